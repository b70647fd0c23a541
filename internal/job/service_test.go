package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"biketrack/internal/apperrors"
	"biketrack/internal/kvstore"
	"biketrack/internal/observability"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *kvstore.SQLite) {
	t.Helper()

	store, err := kvstore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewDispatcher(store, time.Hour, 24*time.Hour, nil), store
}

func TestCreateAndPoll(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	created, err := d.Create(ctx, &CreateRequest{
		Type:   "gps_read",
		Target: "pi9",
		Params: map[string]string{"duration": "10"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create returned empty job id")
	}
	if created.Status != StatusQueued {
		t.Errorf("status = %q, want %q", created.Status, StatusQueued)
	}
	if created.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	claimed, err := d.Poll(ctx, "pi9")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if claimed == nil {
		t.Fatal("Poll returned no job")
	}
	if claimed.ID != created.ID {
		t.Errorf("claimed job %q, want %q", claimed.ID, created.ID)
	}
	if claimed.Params["duration"] != "10" {
		t.Errorf("params not carried through: %v", claimed.Params)
	}
}

func TestPollConsumesPointer(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	first, err := d.Poll(ctx, "pi9")
	if err != nil {
		t.Fatalf("first Poll returned error: %v", err)
	}
	if first == nil {
		t.Fatal("first Poll returned no job")
	}

	second, err := d.Poll(ctx, "pi9")
	if err != nil {
		t.Fatalf("second Poll returned error: %v", err)
	}
	if second != nil {
		t.Errorf("second Poll returned %+v, want nil", second)
	}
}

func TestPollEmptyQueue(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	j, err := d.Poll(context.Background(), "pi9")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if j != nil {
		t.Errorf("Poll returned %+v, want nil on empty queue", j)
	}
}

func TestPollMissingTarget(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	_, err := d.Poll(context.Background(), "")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestCreateOverwritesPointer(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"}); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}
	second, err := d.Create(ctx, &CreateRequest{Type: "stop_gps_reader", Target: "pi9"})
	if err != nil {
		t.Fatalf("second Create returned error: %v", err)
	}

	claimed, err := d.Poll(ctx, "pi9")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("claimed %+v, want the newer job %q", claimed, second.ID)
	}

	// The overwritten job record survives but is no longer claimable.
	if j, err := d.Poll(ctx, "pi9"); err != nil || j != nil {
		t.Errorf("Poll after drain = (%+v, %v), want (nil, nil)", j, err)
	}
}

func TestCreateOverwriteBalancesPendingGauge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	metrics, _, err := observability.NewMetrics(ctx)
	if err != nil {
		t.Fatalf("creating metrics: %v", err)
	}

	store, err := kvstore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	d := NewDispatcher(store, time.Hour, 24*time.Hour, metrics)

	// Two creates for the same target, then one claim. The first job gets
	// superseded in the pointer slot and the second polled off it; neither
	// path may panic or leave the pointer behind.
	if _, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"}); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}
	if _, err := d.Create(ctx, &CreateRequest{Type: "stop_gps_reader", Target: "pi9"}); err != nil {
		t.Fatalf("second Create returned error: %v", err)
	}
	if j, err := d.Poll(ctx, "pi9"); err != nil || j == nil {
		t.Fatalf("Poll = (%+v, %v), want the surviving job", j, err)
	}
	if j, err := d.Poll(ctx, "pi9"); err != nil || j != nil {
		t.Errorf("Poll after drain = (%+v, %v), want (nil, nil)", j, err)
	}
}

func TestPollPointerOutlivesRecord(t *testing.T) {
	t.Parallel()

	d, store := newTestDispatcher(t)
	ctx := context.Background()

	created, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.Delete(ctx, "job:"+created.ID); err != nil {
		t.Fatalf("deleting record: %v", err)
	}

	j, err := d.Poll(ctx, "pi9")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if j != nil {
		t.Errorf("Poll returned %+v, want nil when the record is gone", j)
	}

	// The dangling pointer must be cleared too.
	if _, err := store.Get(ctx, "next:pi9"); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Errorf("pointer still present after poll, get err = %v", err)
	}
}

func TestReportResultLifecycle(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	created, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	err = d.ReportResult(ctx, &ResultRequest{
		JobID:      created.ID,
		Status:     StatusDone,
		Output:     "52.37,4.89",
		DurationMS: 8150,
	})
	if err != nil {
		t.Fatalf("ReportResult returned error: %v", err)
	}

	j, err := d.GetStatus(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if j == nil {
		t.Fatal("GetStatus returned nil for a finished job")
	}
	if j.Status != StatusDone {
		t.Errorf("status = %q, want %q", j.Status, StatusDone)
	}
	if j.Output != "52.37,4.89" {
		t.Errorf("output = %q, want carried through", j.Output)
	}
	if j.DurationMS != 8150 {
		t.Errorf("durationMs = %d, want 8150", j.DurationMS)
	}
	if j.FinishedAt == 0 {
		t.Error("FinishedAt not set")
	}
	if !j.Terminal() {
		t.Error("finished job not reported terminal")
	}
}

func TestReportResultUnknownJob(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	err := d.ReportResult(context.Background(), &ResultRequest{
		JobID:  "no-such-job",
		Status: StatusDone,
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestReportResultRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	created, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	for _, status := range []string{StatusQueued, "running", ""} {
		err := d.ReportResult(ctx, &ResultRequest{JobID: created.ID, Status: status})
		if !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("status %q: error = %v, want validation error", status, err)
		}
	}
}

func TestReportResultOutputTooLarge(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	created, err := d.Create(ctx, &CreateRequest{Type: "gps_read", Target: "pi9"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	err = d.ReportResult(ctx, &ResultRequest{
		JobID:  created.ID,
		Status: StatusDone,
		Output: strings.Repeat("x", maxOutputLen+1),
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestGetStatusAbsent(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t)

	j, err := d.GetStatus(context.Background(), "never-existed")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if j != nil {
		t.Errorf("GetStatus = %+v, want nil for absent record", j)
	}
}

func TestValidateCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     *CreateRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  &CreateRequest{Type: "gps_read", Target: "pi9"},
		},
		{
			name: "valid with params",
			req: &CreateRequest{
				Type:   "mqtt_forward",
				Target: "gateway",
				Params: map[string]string{"topic": "bike/position"},
			},
		},
		{
			name:    "missing type",
			req:     &CreateRequest{Target: "pi9"},
			wantErr: true,
		},
		{
			name:    "missing target",
			req:     &CreateRequest{Type: "gps_read"},
			wantErr: true,
		},
		{
			name:    "type with shell metacharacters",
			req:     &CreateRequest{Type: "gps_read; rm -rf /", Target: "pi9"},
			wantErr: true,
		},
		{
			name:    "target with spaces",
			req:     &CreateRequest{Type: "gps_read", Target: "pi 9"},
			wantErr: true,
		},
		{
			name:    "type too long",
			req:     &CreateRequest{Type: strings.Repeat("a", maxTypeLength+1), Target: "pi9"},
			wantErr: true,
		},
		{
			name: "too many params",
			req: &CreateRequest{
				Type:   "gps_read",
				Target: "pi9",
				Params: func() map[string]string {
					m := make(map[string]string)
					for i := 0; i < maxParamEntries+1; i++ {
						m[strings.Repeat("k", i+1)] = "v"
					}
					return m
				}(),
			},
			wantErr: true,
		},
		{
			name: "param value too long",
			req: &CreateRequest{
				Type:   "gps_read",
				Target: "pi9",
				Params: map[string]string{"k": strings.Repeat("v", maxParamValLen+1)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateCreate(tt.req)
			if tt.wantErr && !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("error = %v, want validation error", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
