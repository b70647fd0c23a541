// Package client is the controller-side library for the tracker API. It
// submits jobs, waits for their results on a wall-clock budget and runs
// multi-step workflows.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"biketrack/internal/api"
	"biketrack/internal/job"
	"biketrack/internal/telemetry"
)

// ErrorKind classifies why a job run failed. The caller uses it to decide
// between retrying, surfacing a worker error and giving up.
type ErrorKind string

const (
	// KindNone means the run succeeded.
	KindNone ErrorKind = ""
	// KindInfrastructure covers transport and server errors: the job's real
	// outcome is unknown.
	KindInfrastructure ErrorKind = "infrastructure"
	// KindDomain means the worker ran the job and reported failed or timeout.
	KindDomain ErrorKind = "domain"
	// KindLocalTimeout means the caller's own waiting budget ran out before
	// a terminal status appeared. The worker may still finish the job.
	KindLocalTimeout ErrorKind = "local_timeout"
	// KindNotFound means the job record disappeared: it was never created,
	// or it expired before a result was reported.
	KindNotFound ErrorKind = "not_found"
)

// Default waiting budget and poll cadence for RunJob.
const (
	DefaultJobTimeout   = 60 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Config holds client configuration. Zero values use defaults.
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Client talks to one tracker service.
type Client struct {
	baseURL      string
	pollInterval time.Duration
	http         *http.Client
}

// New creates a client for the service at cfg.BaseURL.
func New(cfg Config) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		pollInterval: interval,
		http:         httpClient,
	}
}

// CreateJob submits a job and returns its id.
func (c *Client) CreateJob(ctx context.Context, jobType, target string, params map[string]string) (string, error) {
	var resp job.CreateResponse
	err := c.post(ctx, "/job", &job.CreateRequest{
		Type:   jobType,
		Target: target,
		Params: params,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// JobStatus reads the current record of a job. It returns (nil, nil) when
// the record has expired or never existed.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*job.Job, error) {
	var resp job.StatusResponse
	err := c.get(ctx, "/job/status?job_id="+url.QueryEscape(jobID), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// Position reads the latest valid fix for a device.
func (c *Client) Position(ctx context.Context, device string) (*telemetry.Position, error) {
	var pos telemetry.Position
	if err := c.get(ctx, "/position?device="+url.QueryEscape(device), &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// DeviceStatus reads the derived connectivity state of a device.
func (c *Client) DeviceStatus(ctx context.Context, device string) (*api.DeviceStatusResponse, error) {
	var resp api.DeviceStatusResponse
	if err := c.get(ctx, "/status?device="+url.QueryEscape(device), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportStolen flags or clears a device as stolen.
func (c *Client) ReportStolen(ctx context.Context, device, pin string, stolen bool) error {
	return c.post(ctx, "/stolen", &api.StolenRequest{
		Device: device,
		PIN:    pin,
		Stolen: stolen,
	}, nil)
}

// Result is the outcome of one job run.
type Result struct {
	JobID    string
	Success  bool
	Status   string // worker-reported terminal status, if any
	Output   string
	Duration time.Duration // wall-clock time spent waiting
	Kind     ErrorKind
	Err      error
}

// RunJob submits a job and polls its status until a terminal state appears
// or the local budget runs out. The budget is wall-clock time measured
// here; it is unrelated to whatever timeout the worker enforces on its own
// side, and expiring locally does not stop the worker.
func (c *Client) RunJob(ctx context.Context, jobType, target string, params map[string]string, timeout time.Duration) *Result {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	start := time.Now()

	jobID, err := c.CreateJob(ctx, jobType, target, params)
	if err != nil {
		return &Result{
			Duration: time.Since(start),
			Kind:     classify(err),
			Err:      err,
		}
	}

	deadline := start.Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return &Result{
				JobID:    jobID,
				Duration: time.Since(start),
				Kind:     KindLocalTimeout,
				Err:      fmt.Errorf("no terminal status for job %s within %s", jobID, timeout),
			}
		}

		j, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return &Result{
				JobID:    jobID,
				Duration: time.Since(start),
				Kind:     classify(err),
				Err:      err,
			}
		}
		if j == nil {
			// The record expired or was never created. That is terminal:
			// polling will never surface a status for it.
			return &Result{
				JobID:    jobID,
				Duration: time.Since(start),
				Kind:     KindNotFound,
				Err:      fmt.Errorf("job %s no longer exists", jobID),
			}
		}
		if j.Terminal() {
			res := &Result{
				JobID:    jobID,
				Status:   j.Status,
				Output:   j.Output,
				Duration: time.Since(start),
			}
			if j.Status == job.StatusDone {
				res.Success = true
			} else {
				res.Kind = KindDomain
				res.Err = fmt.Errorf("job %s finished with status %s", jobID, j.Status)
			}
			return res
		}

		select {
		case <-ctx.Done():
			return &Result{
				JobID:    jobID,
				Duration: time.Since(start),
				Kind:     KindLocalTimeout,
				Err:      ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func classify(err error) ErrorKind {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusNotFound:
			return KindNotFound
		case se.Code >= 400 && se.Code < 500:
			return KindDomain
		}
	}
	return KindInfrastructure
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
