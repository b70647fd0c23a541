package client

import (
	"context"
	"log/slog"
	"time"
)

// Step is one job in a workflow.
type Step struct {
	Name    string
	Type    string
	Target  string
	Params  map[string]string
	Timeout time.Duration // zero uses DefaultJobTimeout
}

// StepResult pairs a step with its run outcome. Steps after the first
// failure carry no result.
type StepResult struct {
	Step   Step
	Result *Result
}

// WorkflowResult is the outcome of a chained run.
type WorkflowResult struct {
	Success    bool
	FailedStep string // name of the step that broke the chain, if any
	Steps      []StepResult
}

// RunWorkflow runs steps in order and stops at the first failure. There is
// no rollback: steps already finished stay finished, and the caller reruns
// the workflow once the cause is fixed.
func (c *Client) RunWorkflow(ctx context.Context, steps []Step) *WorkflowResult {
	wf := &WorkflowResult{Success: true}

	for _, step := range steps {
		res := c.RunJob(ctx, step.Type, step.Target, step.Params, step.Timeout)
		wf.Steps = append(wf.Steps, StepResult{Step: step, Result: res})

		if !res.Success {
			wf.Success = false
			wf.FailedStep = step.Name
			slog.Warn("Workflow step failed, chain stopped",
				"step", step.Name, "kind", res.Kind, "error", res.Err)
			return wf
		}
		slog.Info("Workflow step finished",
			"step", step.Name, "jobId", res.JobID, "duration", res.Duration)
	}
	return wf
}

// Well-known targets of the deployed fleet.
const (
	TargetGateway = "gateway"
	TargetGPSPi   = "pi9"
	TargetLightPi = "lightpi"
)

// StartSystem brings the tracking pipeline up. The GPS reader must be
// running before the forwarder starts shipping its readings; the light
// module comes up last. Later steps never run when an earlier one fails.
func (c *Client) StartSystem(ctx context.Context) *WorkflowResult {
	return c.RunWorkflow(ctx, []Step{
		{Name: "start-gps-reader", Type: "start_gps_reader", Target: TargetGPSPi},
		{Name: "start-forwarder", Type: "mqtt_forward", Target: TargetGateway,
			Params: map[string]string{"script_path": "mqtt_forwarder.py"}},
		{Name: "start-light-module", Type: "start_light_module", Target: TargetLightPi},
	})
}

// StopSystem tears the pipeline down in reverse order. The forwarder has
// no stop job; it exits on its own once the reader stops feeding it.
func (c *Client) StopSystem(ctx context.Context) *WorkflowResult {
	return c.RunWorkflow(ctx, []Step{
		{Name: "stop-light-module", Type: "stop_light_module", Target: TargetLightPi},
		{Name: "stop-gps-reader", Type: "stop_gps_reader", Target: TargetGPSPi},
	})
}
