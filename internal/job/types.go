// Package job defines the job record and the dispatcher over the key-value
// job store.
package job

// Status constants for the worker-reported lifecycle. A job that can no
// longer be read from the store has no status at all; absence is reported to
// callers as not found, never as a synthetic state.
const (
	StatusQueued  = "queued"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// TerminalStatuses are the statuses a worker may report.
var TerminalStatuses = map[string]bool{
	StatusDone:    true,
	StatusFailed:  true,
	StatusTimeout: true,
}

// Job is the unit of work handed to a device. After creation only Status,
// Output, DurationMS and FinishedAt change, set exactly once by the worker
// that claimed the job.
type Job struct {
	ID         string            `json:"job_id"`
	Type       string            `json:"type"`
	Target     string            `json:"target"`
	Params     map[string]string `json:"params,omitempty"`
	Status     string            `json:"status"`
	Output     string            `json:"output,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	FinishedAt int64             `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has a worker-reported terminal status.
func (j *Job) Terminal() bool {
	return TerminalStatuses[j.Status]
}

// CreateRequest is the body of POST /job.
type CreateRequest struct {
	Type   string            `json:"type"`
	Target string            `json:"target"`
	Params map[string]string `json:"params,omitempty"`
}

// CreateResponse is the response of POST /job.
type CreateResponse struct {
	JobID string `json:"job_id"`
}

// PollResponse wraps the claimed job; Job is null when no work is pending.
type PollResponse struct {
	Job *Job `json:"job"`
}

// ResultRequest is the body of POST /job/result.
type ResultRequest struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// ResultResponse is the response of POST /job/result.
type ResultResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse wraps a job read; Job is null when expired or never created.
type StatusResponse struct {
	Job *Job `json:"job"`
}
