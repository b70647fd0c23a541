package health

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	err error
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.err }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoStore(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	if response.Checks == nil {
		t.Fatal("Expected checks to be present")
	}

	storeCheck, ok := response.Checks["store"]
	if !ok {
		t.Fatal("Expected store check to be present")
	}

	if storeCheck.Status != StatusUnhealthy {
		t.Errorf("Expected store check to be unhealthy, got %s", storeCheck.Status)
	}
}

func TestChecker_Readiness_StoreHealthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeStore{})

	response := checker.Readiness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_StoreFailing(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeStore{err: errors.New("database is locked")})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if response.Checks["store"].Message != "database is locked" {
		t.Errorf("Expected store error message, got %q", response.Checks["store"].Message)
	}
}

func TestChecker_Readiness_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeStore{})
	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy after shutdown, got %s", response.Status)
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
