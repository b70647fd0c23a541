package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"biketrack/internal/client"
)

func newStartSystemCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start-system",
		Short: "Start the tracking pipeline (GPS reader, forwarder, light module)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return reportWorkflow(cmd, opts.client().StartSystem(cmd.Context()))
		},
	}
}

func newStopSystemCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-system",
		Short: "Stop the tracking pipeline in reverse order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return reportWorkflow(cmd, opts.client().StopSystem(cmd.Context()))
		},
	}
}

func reportWorkflow(cmd *cobra.Command, wf *client.WorkflowResult) error {
	for _, step := range wf.Steps {
		mark := "ok"
		if !step.Result.Success {
			mark = "FAILED"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s (%s)\n",
			step.Step.Name, mark, step.Result.Duration.Round(10*time.Millisecond))
	}
	if !wf.Success {
		failed := wf.Steps[len(wf.Steps)-1].Result
		return fmt.Errorf("step %s failed (%s): %w", wf.FailedStep, failed.Kind, failed.Err)
	}
	return nil
}
