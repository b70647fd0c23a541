package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPositionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <device>",
		Short: "Read the latest valid fix for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := opts.client().Position(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, pos)
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <device>",
		Short: "Read the derived connectivity state of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().DeviceStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func newStolenCmd(opts *rootOptions) *cobra.Command {
	var clear bool
	var pin string

	cmd := &cobra.Command{
		Use:   "stolen <device>",
		Short: "Flag or clear a device as stolen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pin == "" {
				pin = os.Getenv("ADMIN_PIN")
			}
			if pin == "" {
				return fmt.Errorf("no PIN given: use --pin or set ADMIN_PIN")
			}

			if err := opts.client().ReportStolen(cmd.Context(), args[0], pin, !clear); err != nil {
				return err
			}
			if clear {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: stolen flag cleared\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: flagged as stolen\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "clear the flag instead of setting it")
	cmd.Flags().StringVar(&pin, "pin", "", "admin PIN (defaults to ADMIN_PIN)")
	return cmd
}
