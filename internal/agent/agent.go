// Package agent implements the on-device worker. It polls the tracker
// service for jobs addressed to its target id, executes them through a
// runtime and reports terminal results back.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"biketrack/internal/config"
	"biketrack/internal/job"
	"biketrack/pkg/backoff"
	"biketrack/pkg/circuitbreaker"
)

// reportAttempts bounds how often a finished job's result is retried
// before the agent gives up and drops it.
const reportAttempts = 5

// Agent is one polling worker.
type Agent struct {
	cfg     config.AgentConfig
	runtime Runtime
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// New creates an agent. The runtime decides how claimed jobs execute.
func New(cfg config.AgentConfig, runtime Runtime) *Agent {
	return &Agent{
		cfg:     cfg,
		runtime: runtime,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: 5,
			Cooldown:  cfg.PollInterval * 6,
		}),
	}
}

// Run polls until ctx is cancelled or the stop file appears. Poll failures
// trip a circuit breaker so a down service is probed instead of hammered.
func (a *Agent) Run(ctx context.Context) error {
	slog.Info("Agent started",
		"target", a.cfg.Target, "api", a.cfg.APIURL, "pollInterval", a.cfg.PollInterval)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if a.stopRequested() {
			slog.Info("Stop file present, agent shutting down", "stopFile", a.cfg.StopFile)
			return nil
		}

		if a.breaker.Allow() {
			a.cycle(ctx)
		} else {
			slog.Debug("Circuit open, skipping poll", "failures", a.breaker.Failures())
		}

		select {
		case <-ctx.Done():
			slog.Info("Agent stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) cycle(ctx context.Context) {
	claimed, err := a.poll(ctx)
	if err != nil {
		a.breaker.RecordFailure()
		slog.Warn("Poll failed", "error", err, "failures", a.breaker.Failures())
		return
	}
	a.breaker.RecordSuccess()

	if claimed == nil {
		return
	}
	a.execute(ctx, claimed)
}

func (a *Agent) execute(ctx context.Context, j *job.Job) {
	slog.Info("Executing job", "jobId", j.ID, "type", j.Type)

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	output, err := a.runtime.Run(runCtx, j)
	duration := time.Since(start)

	result := &job.ResultRequest{
		JobID:      j.ID,
		Output:     output,
		DurationMS: duration.Milliseconds(),
	}
	switch {
	case err == nil:
		result.Status = job.StatusDone
	case errors.Is(err, ErrJobTimeout):
		result.Status = job.StatusTimeout
	default:
		result.Status = job.StatusFailed
		if output == "" {
			result.Output = err.Error()
		}
	}

	slog.Info("Job finished",
		"jobId", j.ID, "status", result.Status, "duration", duration)

	if err := a.report(ctx, result); err != nil {
		slog.Error("Dropping result after failed reports", "jobId", j.ID, "error", err)
	}
}

func (a *Agent) poll(ctx context.Context) (*job.Job, error) {
	u := a.cfg.APIURL + "/job/poll?pi_id=" + url.QueryEscape(a.cfg.Target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building poll request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var pollResp job.PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pollResp); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	return pollResp.Job, nil
}

// report posts a result, retrying with backoff. A 404 means the record
// expired while the job ran; the result is undeliverable and retrying
// cannot help.
func (a *Agent) report(ctx context.Context, result *job.ResultRequest) error {
	var lastErr error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		lastErr = a.postResult(ctx, result)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errResultRejected) {
			return lastErr
		}

		delay := backoff.Exponential(attempt, &backoff.Config{
			Initial: 500 * time.Millisecond,
			Max:     10 * time.Second,
			Jitter:  0.2,
		})
		slog.Warn("Result report failed, retrying",
			"jobId", result.JobID, "attempt", attempt, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// errResultRejected marks a report the service refused; retries are useless.
var errResultRejected = errors.New("result rejected")

func (a *Agent) postResult(ctx context.Context, result *job.ResultRequest) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL+"/job/result", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building result request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("result request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", errResultRejected, resp.StatusCode)
	default:
		return fmt.Errorf("result returned status %d", resp.StatusCode)
	}
}

func (a *Agent) stopRequested() bool {
	if a.cfg.StopFile == "" {
		return false
	}
	_, err := os.Stat(a.cfg.StopFile)
	return err == nil
}
