package sequencer

import (
	"context"

	"stackctl/internal/readiness"
	"stackctl/internal/supervisor"
)

// Runner is the process-management collaborator the sequencer drives.
// *supervisor.Supervisor satisfies it; tests substitute fakes to trace
// call ordering.
type Runner interface {
	Up(ctx context.Context, group supervisor.Group) (string, error)
	Down(ctx context.Context, group supervisor.Group) (string, error)
	RunJob(ctx context.Context, group supervisor.Group, service string) (string, error)
}

// GroupPlan pairs a service group with the readiness signal that gates the
// next tier.
type GroupPlan struct {
	Group  supervisor.Group
	Probe  readiness.Probe
	Policy readiness.Policy
}

// JobPlan is one one-shot bootstrap job.
type JobPlan struct {
	Group   supervisor.Group
	Service string
}

// Plan is the full startup sequence: the data platform, then the
// application tier, then the one-shot jobs. The order is fixed; the
// sequencer never reorders tiers.
type Plan struct {
	Platform    GroupPlan
	Application GroupPlan
	Jobs        []JobPlan
}

// Warning records a non-fatal one-shot job failure surfaced in the
// RunResult.
type Warning struct {
	Job string
	Err error
}

// RunResult is the outcome of one orchestration invocation.
type RunResult struct {
	RunID string

	// State is the terminal state, StateSettled or StateFailed.
	State State

	// FailedStep identifies the failing tier when State is StateFailed.
	FailedStep Step

	// Err is the failure cause when State is StateFailed.
	Err error

	// Diagnostics is the captured external output associated with the
	// failure, empty on success.
	Diagnostics string

	// Warnings lists one-shot jobs that failed without failing the run.
	Warnings []Warning
}

// Settled reports terminal success.
func (r *RunResult) Settled() bool { return r.State == StateSettled }
