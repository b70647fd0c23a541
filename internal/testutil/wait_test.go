package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	if !WaitFor(t, func() bool { return true }, WithTimeout(time.Second)) {
		t.Error("expected WaitFor to return true for immediate success")
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	ok := WaitFor(t, func() bool {
		calls++
		return calls >= 3
	}, WithTimeout(time.Second), WithInterval(5*time.Millisecond))

	if !ok {
		t.Error("expected WaitFor to return true for eventual success")
	}
	if calls < 3 {
		t.Errorf("expected at least 3 calls, got %d", calls)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	ok := WaitFor(t, func() bool {
		return false
	}, WithTimeout(40*time.Millisecond), WithInterval(5*time.Millisecond))

	if ok {
		t.Error("expected WaitFor to return false on timeout")
	}
}

func TestMustReachCount(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(5 * time.Millisecond)
			counter.Add(1)
		}
	}()

	MustReachCount(t, &counter, 4, WithTimeout(time.Second), WithInterval(5*time.Millisecond))
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	opts := defaultOptions()

	if opts.Timeout != 10*time.Second {
		t.Errorf("expected default Timeout to be 10s, got %v", opts.Timeout)
	}
	if opts.Interval != 20*time.Millisecond {
		t.Errorf("expected default Interval to be 20ms, got %v", opts.Interval)
	}
}
