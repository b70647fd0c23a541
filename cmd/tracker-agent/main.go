// tracker-agent is the on-device worker. It polls the tracker service for
// jobs addressed to its target id and executes them through the configured
// runtime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"biketrack/internal/agent"
	"biketrack/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadAgentConfig()

	commands, err := agent.LoadCommands(cfg.CommandsPath)
	if err != nil {
		return err
	}

	var runtime agent.Runtime
	switch cfg.Runtime {
	case "exec":
		runtime = agent.NewExecRuntime(commands)
	case "docker":
		dockerRuntime, err := agent.NewDockerRuntime(commands)
		if err != nil {
			return err
		}
		defer dockerRuntime.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.JobTimeout)
		err = dockerRuntime.Ready(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("docker daemon not reachable: %w", err)
		}
		runtime = dockerRuntime
	default:
		return fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.New(*cfg, runtime).Run(ctx)
}
