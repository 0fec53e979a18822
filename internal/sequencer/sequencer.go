// Package sequencer drives the stack's startup as an explicit state
// machine.
//
// The machine walks Idle → StartingPlatform → PlatformReady →
// StartingApplication → ApplicationReady → RunningOneShotJobs → Settled,
// with Failed(step) reachable from every non-terminal state. Each tier
// start is gated on the previous tier's readiness predicate, polled under
// a bounded policy. A platform or application failure rolls back the
// groups already started; one-shot job failures are recorded as warnings
// and never fail the run. A failed group start is surfaced to the
// operator, not retried: automatic restarts of a misconfigured service
// would only mask the configuration error.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stackctl/internal/readiness"
	"stackctl/internal/supervisor"
	"stackctl/pkg/logging"
)

// State is a phase of the startup sequence.
type State string

const (
	StateIdle                State = "Idle"
	StateStartingPlatform    State = "StartingPlatform"
	StatePlatformReady       State = "PlatformReady"
	StateStartingApplication State = "StartingApplication"
	StateApplicationReady    State = "ApplicationReady"
	StateRunningOneShotJobs  State = "RunningOneShotJobs"
	StateSettled             State = "Settled"
	StateFailed              State = "Failed"
)

// Step identifies the tier a failure happened in.
type Step string

const (
	StepPlatform    Step = "platform"
	StepApplication Step = "application"
	StepJobs        Step = "jobs"
)

// rollbackTimeout bounds the best-effort stop of already-started groups.
// Rollback runs on its own context so it still happens after an operator
// interrupt cancelled the run context.
const rollbackTimeout = 2 * time.Minute

// Sequencer executes one Plan. A Sequencer is single-use: one Run per
// instance, on a single goroutine.
type Sequencer struct {
	runner Runner
	plan   Plan
	state  State

	// started tracks groups brought up so far, in start order, for
	// rollback.
	started []supervisor.Group
}

// New returns a sequencer for the plan.
func New(runner Runner, plan Plan) *Sequencer {
	return &Sequencer{runner: runner, plan: plan, state: StateIdle}
}

// State returns the sequencer's current phase.
func (s *Sequencer) State() State { return s.state }

// Run executes the startup sequence to a terminal state. The returned
// RunResult is never nil. Cancelling the context triggers a best-effort
// stop of every group already started before Run returns.
func (s *Sequencer) Run(ctx context.Context) *RunResult {
	result := &RunResult{RunID: uuid.New().String()}

	logging.Info("Sequencer", "Run %s: starting data platform group %s", result.RunID, s.plan.Platform.Group.Name)
	s.state = StateStartingPlatform
	if err := s.startGroup(ctx, s.plan.Platform); err != nil {
		return s.fail(result, StepPlatform, err)
	}
	s.state = StatePlatformReady

	logging.Info("Sequencer", "Run %s: platform ready, starting application group %s", result.RunID, s.plan.Application.Group.Name)
	s.state = StateStartingApplication
	if err := s.startGroup(ctx, s.plan.Application); err != nil {
		return s.fail(result, StepApplication, err)
	}
	s.state = StateApplicationReady

	s.state = StateRunningOneShotJobs
	for _, job := range s.plan.Jobs {
		if err := ctx.Err(); err != nil {
			return s.fail(result, StepJobs, err)
		}

		logging.Info("Sequencer", "Run %s: running one-shot job %s", result.RunID, job.Service)
		if _, err := s.runner.RunJob(ctx, job.Group, job.Service); err != nil {
			// One-shot jobs are idempotent best-effort initializations;
			// their failure is a warning, not a run failure.
			logging.Warn("Sequencer", "One-shot job %s failed: %v", job.Service, err)
			result.Warnings = append(result.Warnings, Warning{Job: job.Service, Err: err})
		}
	}

	s.state = StateSettled
	result.State = StateSettled
	logging.Info("Sequencer", "Run %s: settled with %d warning(s)", result.RunID, len(result.Warnings))
	return result
}

// startGroup brings a group up and waits for its readiness signal.
func (s *Sequencer) startGroup(ctx context.Context, plan GroupPlan) error {
	if _, err := s.runner.Up(ctx, plan.Group); err != nil {
		// The group may be partially created even on a failed up.
		s.started = append(s.started, plan.Group)
		return err
	}
	s.started = append(s.started, plan.Group)

	if plan.Probe == nil {
		return nil
	}
	return readiness.Wait(ctx, plan.Probe, plan.Policy)
}

// fail transitions to the terminal failure state, rolls back every started
// group, and fills in the result.
func (s *Sequencer) fail(result *RunResult, step Step, err error) *RunResult {
	s.state = StateFailed
	result.State = StateFailed
	result.FailedStep = step
	result.Err = err
	result.Diagnostics = diagnosticsOf(err)

	logging.Error("Sequencer", err, "Run %s: failed at step %s, stopping started groups", result.RunID, step)
	s.rollback()
	return result
}

// rollback stops the started groups in reverse order. Best effort: a stop
// failure is logged and the remaining groups are still stopped.
func (s *Sequencer) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	for i := len(s.started) - 1; i >= 0; i-- {
		group := s.started[i]
		if _, err := s.runner.Down(ctx, group); err != nil {
			logging.Error("Sequencer", err, "Failed to stop group %s during rollback", group.Name)
		}
	}
	s.started = nil
}

func diagnosticsOf(err error) string {
	var procErr *supervisor.ProcessFailedError
	if errors.As(err, &procErr) {
		return procErr.Diagnostics
	}
	return ""
}
