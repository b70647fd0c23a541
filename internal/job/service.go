package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"biketrack/internal/apperrors"
	"biketrack/internal/kvstore"
	"biketrack/internal/observability"

	"github.com/google/uuid"
)

// Validation limits
const (
	maxTypeLength   = 64
	maxTargetLength = 64
	maxParamKeyLen  = 64
	maxParamValLen  = 512
	maxParamEntries = 16
	maxOutputLen    = 64 * 1024
)

// nameCharset allows alphanumeric, hyphens, and underscores for job types
// and target identifiers.
var nameCharset = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Key layout in the store. One record per job plus a single-slot pointer per
// target holding the id of the next job awaiting that target's poll.
func recordKey(jobID string) string { return "job:" + jobID }
func pointerKey(target string) string { return "next:" + target }

// Dispatcher creates jobs, hands them to polling workers and records their
// results. All state lives in the key-value store; the dispatcher itself is
// stateless and safe for concurrent use.
type Dispatcher struct {
	store      kvstore.Store
	pendingTTL time.Duration
	resultTTL  time.Duration
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewDispatcher creates a dispatcher over the given store. pendingTTL bounds
// how long an unclaimed job (and its pointer) survives; resultTTL bounds how
// long a terminal result stays readable.
func NewDispatcher(store kvstore.Store, pendingTTL, resultTTL time.Duration, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		store:      store,
		pendingTTL: pendingTTL,
		resultTTL:  resultTTL,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Create validates the request, writes a queued job record and points the
// target's next-pointer at it. A pending job for the same target is
// overwritten in the pointer slot; its record stays in the store but can no
// longer be claimed.
func (d *Dispatcher) Create(ctx context.Context, req *CreateRequest) (*Job, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	j := &Job{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Target:    req.Target,
		Params:    req.Params,
		Status:    StatusQueued,
		CreatedAt: d.now().UnixMilli(),
	}

	if err := d.putJob(ctx, j, d.pendingTTL); err != nil {
		return nil, err
	}

	// A job already in the pointer slot can never be claimed once we
	// overwrite it; take it off the pending gauge. Best effort: a read
	// failure here only costs gauge accuracy, not correctness.
	if d.metrics != nil {
		if old, err := d.store.Get(ctx, pointerKey(j.Target)); err == nil {
			if prev, err := d.getJob(ctx, string(old)); err == nil {
				d.metrics.RecordJobSuperseded(ctx, prev.Type, prev.Target)
				slog.Info("Queued job superseded",
					"jobId", prev.ID, "target", prev.Target, "newJobId", j.ID)
			}
		}
	}

	if err := d.store.Put(ctx, pointerKey(j.Target), []byte(j.ID), d.pendingTTL); err != nil {
		return nil, apperrors.Internal("kvstore.put pointer", err)
	}

	if d.metrics != nil {
		d.metrics.RecordJobCreated(ctx, j.Type, j.Target)
	}
	slog.Info("Job created", "jobId", j.ID, "type", j.Type, "target", j.Target)
	return j, nil
}

// Poll claims the next job for target. The pointer is deleted
// unconditionally once read, whether or not the record itself was still
// there; that delete is the only delivery guarantee. Two concurrent polls
// can both observe the pointer before either delete lands, so duplicate
// delivery is possible and left to idempotent job effects.
func (d *Dispatcher) Poll(ctx context.Context, target string) (*Job, error) {
	if target == "" {
		return nil, apperrors.Validation("pi_id", "target is required")
	}

	ptr, err := d.store.Get(ctx, pointerKey(target))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, nil // no work
	}
	if err != nil {
		return nil, apperrors.Internal("kvstore.get pointer", err)
	}

	jobID := string(ptr)
	j, recErr := d.getJob(ctx, jobID)

	if delErr := d.store.Delete(ctx, pointerKey(target)); delErr != nil {
		slog.Warn("Pointer delete failed, duplicate delivery possible",
			"target", target, "jobId", jobID, "error", delErr)
	}

	if recErr != nil {
		if errors.Is(recErr, apperrors.ErrNotFound) {
			// Pointer outlived the record; nothing to hand out.
			return nil, nil
		}
		return nil, recErr
	}

	if d.metrics != nil {
		d.metrics.RecordJobClaimed(ctx, j.Type, j.Target)
	}
	slog.Info("Job claimed", "jobId", j.ID, "type", j.Type, "target", target)
	return j, nil
}

// ReportResult writes a worker's terminal status onto the job record and
// extends the record's retention so the controller can still observe the
// result after the pending window.
func (d *Dispatcher) ReportResult(ctx context.Context, req *ResultRequest) error {
	if req.JobID == "" {
		return apperrors.Validation("job_id", "job_id is required")
	}
	if !TerminalStatuses[req.Status] {
		return apperrors.Validation("status", fmt.Sprintf("status must be one of done, failed, timeout; got %q", req.Status))
	}
	if len(req.Output) > maxOutputLen {
		return apperrors.Validation("output", fmt.Sprintf("output exceeds maximum length of %d", maxOutputLen))
	}

	j, err := d.getJob(ctx, req.JobID)
	if err != nil {
		return err
	}

	j.Status = req.Status
	j.Output = req.Output
	j.DurationMS = req.DurationMS
	j.FinishedAt = d.now().UnixMilli()

	if err := d.putJob(ctx, j, d.resultTTL); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.RecordJobCompleted(ctx, j.Type, j.Status, float64(req.DurationMS)/1000)
	}
	slog.Info("Job result recorded",
		"jobId", j.ID, "status", j.Status, "durationMs", j.DurationMS)
	return nil
}

// GetStatus reads a job record. It returns (nil, nil) when the record has
// expired or never existed; callers decide how to surface absence.
func (d *Dispatcher) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job_id", "job_id is required")
	}
	j, err := d.getJob(ctx, jobID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (d *Dispatcher) putJob(ctx context.Context, j *Job, ttl time.Duration) error {
	data, err := json.Marshal(j)
	if err != nil {
		return apperrors.Internal("marshal job", err)
	}
	if err := d.store.Put(ctx, recordKey(j.ID), data, ttl); err != nil {
		return apperrors.Internal("kvstore.put job", err)
	}
	return nil
}

func (d *Dispatcher) getJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := d.store.Get(ctx, recordKey(jobID))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, apperrors.NotFound("job", jobID)
	}
	if err != nil {
		return nil, apperrors.Internal("kvstore.get job", err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, apperrors.Internal("unmarshal job", err)
	}
	return &j, nil
}

// validateCreate validates a create request. Does not modify the request.
func validateCreate(req *CreateRequest) error {
	if req.Type == "" {
		return apperrors.Validation("type", "type is required")
	}
	if len(req.Type) > maxTypeLength || !nameCharset.MatchString(req.Type) {
		return apperrors.Validation("type", "type must be alphanumeric (hyphens and underscores allowed)")
	}

	if req.Target == "" {
		return apperrors.Validation("target", "target is required")
	}
	if len(req.Target) > maxTargetLength || !nameCharset.MatchString(req.Target) {
		return apperrors.Validation("target", "target must be alphanumeric (hyphens and underscores allowed)")
	}

	if len(req.Params) > maxParamEntries {
		return apperrors.Validation("params", fmt.Sprintf("params exceed maximum of %d entries", maxParamEntries))
	}
	for k, v := range req.Params {
		if len(k) > maxParamKeyLen {
			return apperrors.Validation("params", fmt.Sprintf("param key exceeds maximum length of %d", maxParamKeyLen))
		}
		if len(v) > maxParamValLen {
			return apperrors.Validation("params", fmt.Sprintf("param value exceeds maximum length of %d", maxParamValLen))
		}
	}
	return nil
}
