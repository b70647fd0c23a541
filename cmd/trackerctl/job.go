package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newRunJobCmd(opts *rootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "run-job <type> <target>",
		Short: "Submit a job and wait for its result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			paramMap, err := parseParams(params)
			if err != nil {
				return err
			}

			res := opts.client().RunJob(cmd.Context(), args[0], args[1], paramMap, opts.timeout)
			if !res.Success {
				return fmt.Errorf("job failed (%s): %w", res.Kind, res.Err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "done in %s\n", res.Duration.Round(10*time.Millisecond))
			if res.Output != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "job parameter as key=value (repeatable)")
	return cmd
}

func newJobStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "job-status <job_id>",
		Short: "Read the current record of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := opts.client().JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, j)
		},
	}
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", pair)
		}
		m[k] = v
	}
	return m, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
