package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"biketrack/internal/job"
)

// maxOutputLen caps captured command output at what the result endpoint
// accepts.
const maxOutputLen = 64 * 1024

// ExecRuntime runs jobs as local processes. Job params are passed to the
// command as JOB_PARAM_* environment variables, never interpolated into
// the argv.
type ExecRuntime struct {
	commands *Commands
}

// NewExecRuntime creates an exec runtime over the given command map.
func NewExecRuntime(commands *Commands) *ExecRuntime {
	return &ExecRuntime{commands: commands}
}

func (r *ExecRuntime) Run(ctx context.Context, j *job.Job) (string, error) {
	spec, ok := r.commands.Lookup(j.Type)
	if !ok || len(spec.Argv) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, j.Type)
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Env = append(os.Environ(), paramEnv(j)...)

	out, err := cmd.CombinedOutput()
	output := truncate(string(out), maxOutputLen)

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, ErrJobTimeout
	}
	if err != nil {
		return output, fmt.Errorf("running %s: %w", spec.Argv[0], err)
	}
	return output, nil
}

func paramEnv(j *job.Job) []string {
	env := make([]string, 0, len(j.Params)+1)
	env = append(env, "JOB_ID="+j.ID)
	for k, v := range j.Params {
		env = append(env, "JOB_PARAM_"+strings.ToUpper(k)+"="+v)
	}
	return env
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
