// Package testutil provides polling helpers for asynchronous tests.
package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

// WaitOptions configures WaitFor behavior.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for WaitFor.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 10s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 20ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func defaultOptions() WaitOptions {
	return WaitOptions{
		Timeout:  10 * time.Second,
		Interval: 20 * time.Millisecond,
	}
}

// WaitFor polls until condition returns true or the timeout elapses.
// Returns true if the condition was met.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	timeout := time.After(o.Timeout)
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}
		select {
		case <-timeout:
			return false
		case <-ticker.C:
		}
	}
}

// MustWaitFor polls until condition returns true or fails the test.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustReachCount polls until counter reaches target or fails the test.
func MustReachCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) {
	tb.Helper()
	ok := WaitFor(tb, func() bool {
		return counter.Load() >= target
	}, opts...)
	if !ok {
		tb.Fatalf("timed out waiting for counter to reach %d (current: %d)", target, counter.Load())
	}
}
