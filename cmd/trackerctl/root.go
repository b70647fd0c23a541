package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"biketrack/internal/client"
)

type rootOptions struct {
	apiURL  string
	timeout time.Duration
}

func (o *rootOptions) client() *client.Client {
	return client.New(client.Config{BaseURL: o.apiURL})
}

func newRootCmd() *cobra.Command {
	// A .env next to the binary supplies API_URL and ADMIN_PIN for
	// operator machines. Missing files are fine.
	_ = godotenv.Load()

	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Operate the bike tracker fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", defaultURL, "base URL of the tracker service")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultJobTimeout, "wall-clock budget for job runs")

	cmd.AddCommand(
		newRunJobCmd(opts),
		newJobStatusCmd(opts),
		newStartSystemCmd(opts),
		newStopSystemCmd(opts),
		newPositionCmd(opts),
		newStatusCmd(opts),
		newStolenCmd(opts),
	)
	return cmd
}
