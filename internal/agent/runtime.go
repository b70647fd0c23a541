package agent

import (
	"context"
	"errors"

	"biketrack/internal/job"
)

// Runtime sentinel errors. ErrJobTimeout makes the agent report the
// timeout status instead of failed; ErrUnknownJobType means the job type is
// not in this device's command map.
var (
	ErrJobTimeout     = errors.New("job execution timed out")
	ErrUnknownJobType = errors.New("job type not in command map")
)

// Runtime executes one claimed job and returns its output. Implementations
// must honor ctx cancellation; the agent derives a deadline from its
// configured job timeout.
type Runtime interface {
	Run(ctx context.Context, j *job.Job) (string, error)
}
