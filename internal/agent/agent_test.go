package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"biketrack/internal/config"
	"biketrack/internal/job"
	"biketrack/internal/testutil"
)

// fakeRuntime records runs and returns a scripted outcome.
type fakeRuntime struct {
	mu     sync.Mutex
	ran    []*job.Job
	output string
	err    error
}

func (f *fakeRuntime) Run(_ context.Context, j *job.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, j)
	return f.output, f.err
}

// fakeAPI hands out one job on the first poll and records results.
type fakeAPI struct {
	mu      sync.Mutex
	pending *job.Job
	results []job.ResultRequest
	reports atomic.Int64
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /job/poll", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		resp := &job.PollResponse{}
		if f.pending != nil && r.URL.Query().Get("pi_id") == f.pending.Target {
			resp.Job = f.pending
			f.pending = nil
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("POST /job/result", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var req job.ResultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.results = append(f.results, req)
		f.reports.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&job.ResultResponse{OK: true})
	})

	return mux
}

func newTestAgent(t *testing.T, api *fakeAPI, rt Runtime) (*Agent, context.CancelFunc) {
	t.Helper()

	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	a := New(config.AgentConfig{
		APIURL:       srv.URL,
		Target:       "pi9",
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   time.Second,
	}, rt)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return a, cancel
}

func TestAgentExecutesAndReports(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pending: &job.Job{
		ID:     "job-1",
		Type:   "gps_read",
		Target: "pi9",
		Status: job.StatusQueued,
	}}
	rt := &fakeRuntime{output: "52.37,4.89"}
	newTestAgent(t, api, rt)

	testutil.MustReachCount(t, &api.reports, 1, testutil.WithTimeout(2*time.Second))

	api.mu.Lock()
	defer api.mu.Unlock()
	res := api.results[0]
	if res.JobID != "job-1" {
		t.Errorf("reported job %q, want job-1", res.JobID)
	}
	if res.Status != job.StatusDone {
		t.Errorf("status = %q, want done", res.Status)
	}
	if res.Output != "52.37,4.89" {
		t.Errorf("output = %q, want runtime output", res.Output)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.ran) != 1 {
		t.Errorf("runtime ran %d jobs, want 1", len(rt.ran))
	}
}

func TestAgentReportsFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pending: &job.Job{ID: "job-1", Type: "gps_read", Target: "pi9"}}
	rt := &fakeRuntime{err: errors.New("device not ready")}
	newTestAgent(t, api, rt)

	testutil.MustReachCount(t, &api.reports, 1, testutil.WithTimeout(2*time.Second))

	api.mu.Lock()
	defer api.mu.Unlock()
	res := api.results[0]
	if res.Status != job.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	if res.Output != "device not ready" {
		t.Errorf("output = %q, want the error message", res.Output)
	}
}

func TestAgentReportsTimeout(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pending: &job.Job{ID: "job-1", Type: "gps_read", Target: "pi9"}}
	rt := &fakeRuntime{output: "partial", err: ErrJobTimeout}
	newTestAgent(t, api, rt)

	testutil.MustReachCount(t, &api.reports, 1, testutil.WithTimeout(2*time.Second))

	api.mu.Lock()
	defer api.mu.Unlock()
	if res := api.results[0]; res.Status != job.StatusTimeout {
		t.Errorf("status = %q, want timeout", res.Status)
	}
}

func TestAgentStopsOnStopFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&fakeAPI{}).handler())
	t.Cleanup(srv.Close)

	stopFile := filepath.Join(t.TempDir(), "stop")
	if err := os.WriteFile(stopFile, nil, 0o644); err != nil {
		t.Fatalf("writing stop file: %v", err)
	}

	a := New(config.AgentConfig{
		APIURL:       srv.URL,
		Target:       "pi9",
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   time.Second,
		StopFile:     stopFile,
	}, &fakeRuntime{})

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on stop file")
	}
}

func TestAgentStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&fakeAPI{}).handler())
	t.Cleanup(srv.Close)

	a := New(config.AgentConfig{
		APIURL:       srv.URL,
		Target:       "pi9",
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   time.Second,
	}, &fakeRuntime{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on context cancel")
	}
}

func TestAgentTripsBreakerOnPollFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	a := New(config.AgentConfig{
		APIURL:       srv.URL,
		Target:       "pi9",
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   time.Second,
	}, &fakeRuntime{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)

	testutil.MustWaitFor(t, func() bool {
		return a.breaker.Failures() >= 5
	}, testutil.WithTimeout(2*time.Second))
}
