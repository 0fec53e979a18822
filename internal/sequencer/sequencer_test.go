package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/readiness"
	"stackctl/internal/supervisor"
)

// fakeRunner records every call and lets tests inject failures per group
// and per job.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	upErr   map[string]error
	jobErr  map[string]error
	downErr map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		upErr:   map[string]error{},
		jobErr:  map[string]error{},
		downErr: map[string]error{},
	}
}

func (f *fakeRunner) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeRunner) Up(ctx context.Context, group supervisor.Group) (string, error) {
	f.record("up:" + group.Name)
	return "", f.upErr[group.Name]
}

func (f *fakeRunner) Down(ctx context.Context, group supervisor.Group) (string, error) {
	f.record("down:" + group.Name)
	return "", f.downErr[group.Name]
}

func (f *fakeRunner) RunJob(ctx context.Context, group supervisor.Group, service string) (string, error) {
	f.record("job:" + service)
	return "", f.jobErr[service]
}

// readyAfter returns a probe that reports ready from the nth check on.
func readyAfter(n int) readiness.Probe {
	calls := 0
	return &readiness.FuncProbe{Label: "fake", CheckFn: func(ctx context.Context) error {
		calls++
		if calls < n {
			return errors.New("not ready")
		}
		return nil
	}}
}

func neverReady() readiness.Probe {
	return &readiness.FuncProbe{Label: "fake", CheckFn: func(ctx context.Context) error {
		return errors.New("still not ready")
	}}
}

func fastPolicy() readiness.Policy {
	return readiness.Policy{Interval: time.Millisecond, MaxAttempts: 5, Timeout: time.Second}
}

func testPlan(platformProbe, applicationProbe readiness.Probe) Plan {
	return Plan{
		Platform: GroupPlan{
			Group:  supervisor.Group{Name: "platform"},
			Probe:  platformProbe,
			Policy: fastPolicy(),
		},
		Application: GroupPlan{
			Group:  supervisor.Group{Name: "application"},
			Probe:  applicationProbe,
			Policy: fastPolicy(),
		},
		Jobs: []JobPlan{
			{Group: supervisor.Group{Name: "jobs"}, Service: "n8n-import"},
			{Group: supervisor.Group{Name: "jobs"}, Service: "ollama-pull"},
		},
	}
}

func TestRun_HappyPath(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, testPlan(readyAfter(1), readyAfter(1)))

	result := s.Run(context.Background())

	require.True(t, result.Settled())
	assert.Equal(t, StateSettled, s.State())
	assert.Empty(t, result.Warnings)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"up:platform", "up:application", "job:n8n-import", "job:ollama-pull"}, runner.Calls())
}

func TestRun_ApplicationWaitsForPlatformReadiness(t *testing.T) {
	runner := newFakeRunner()
	platformChecks := 0
	probe := &readiness.FuncProbe{Label: "platform", CheckFn: func(ctx context.Context) error {
		platformChecks++
		if platformChecks < 3 {
			return errors.New("booting")
		}
		return nil
	}}

	s := New(runner, testPlan(probe, readyAfter(1)))
	result := s.Run(context.Background())

	require.True(t, result.Settled())
	assert.Equal(t, 3, platformChecks, "application start must wait for the platform predicate to flip")
	assert.Equal(t, "up:platform", runner.Calls()[0])
	assert.Equal(t, "up:application", runner.Calls()[1])
}

func TestRun_PlatformTimeoutRollsBackAndSkipsApplication(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, testPlan(neverReady(), readyAfter(1)))

	result := s.Run(context.Background())

	require.False(t, result.Settled())
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, StepPlatform, result.FailedStep)

	var timeout *readiness.TimeoutError
	assert.ErrorAs(t, result.Err, &timeout)

	calls := runner.Calls()
	assert.Equal(t, []string{"up:platform", "down:platform"}, calls)
	assert.NotContains(t, calls, "up:application")
}

func TestRun_PlatformStartFailureIsNotRetried(t *testing.T) {
	runner := newFakeRunner()
	runner.upErr["platform"] = &supervisor.ProcessFailedError{
		Group: "platform", Action: supervisor.ActionUp, ExitCode: 1, Diagnostics: "bind: address already in use",
	}
	s := New(runner, testPlan(readyAfter(1), readyAfter(1)))

	result := s.Run(context.Background())

	require.False(t, result.Settled())
	assert.Equal(t, StepPlatform, result.FailedStep)
	assert.Equal(t, "bind: address already in use", result.Diagnostics)

	// Exactly one attempt, then rollback.
	assert.Equal(t, []string{"up:platform", "down:platform"}, runner.Calls())
}

func TestRun_ApplicationFailureRollsBackBothGroups(t *testing.T) {
	runner := newFakeRunner()
	runner.upErr["application"] = &supervisor.ProcessFailedError{Group: "application", ExitCode: 2, Diagnostics: "oom"}
	s := New(runner, testPlan(readyAfter(1), readyAfter(1)))

	result := s.Run(context.Background())

	require.False(t, result.Settled())
	assert.Equal(t, StepApplication, result.FailedStep)

	// Reverse start order: application first, then platform.
	assert.Equal(t, []string{"up:platform", "up:application", "down:application", "down:platform"}, runner.Calls())
}

func TestRun_OneShotFailureIsWarningOnly(t *testing.T) {
	runner := newFakeRunner()
	runner.jobErr["n8n-import"] = &supervisor.ProcessFailedError{Group: "jobs/n8n-import", ExitCode: 1, Diagnostics: "import failed"}
	s := New(runner, testPlan(readyAfter(1), readyAfter(1)))

	result := s.Run(context.Background())

	require.True(t, result.Settled(), "one-shot job failure must not fail the run")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "n8n-import", result.Warnings[0].Job)

	// No rollback, and the remaining job still ran.
	calls := runner.Calls()
	assert.Contains(t, calls, "job:ollama-pull")
	assert.NotContains(t, calls, "down:platform")
	assert.NotContains(t, calls, "down:application")
}

func TestRun_RepeatedRunsSettle(t *testing.T) {
	// A second invocation of the same plan converges to Settled again with
	// the same call shape; the engine's project reconciliation handles the
	// actual dedup.
	for i := 0; i < 2; i++ {
		runner := newFakeRunner()
		s := New(runner, testPlan(readyAfter(1), readyAfter(1)))
		result := s.Run(context.Background())
		require.True(t, result.Settled(), "run %d", i+1)
		assert.Equal(t, []string{"up:platform", "up:application", "job:n8n-import", "job:ollama-pull"}, runner.Calls())
	}
}

func TestRun_CancellationStopsStartedGroups(t *testing.T) {
	runner := newFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while waiting on platform readiness.
	probe := &readiness.FuncProbe{Label: "platform", CheckFn: func(ctx context.Context) error {
		cancel()
		return errors.New("booting")
	}}

	s := New(runner, testPlan(probe, readyAfter(1)))
	result := s.Run(ctx)

	require.False(t, result.Settled())
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Contains(t, runner.Calls(), "down:platform", "interrupt must stop already-started groups")
}

func TestRun_RollbackContinuesPastStopFailures(t *testing.T) {
	runner := newFakeRunner()
	runner.upErr["application"] = fmt.Errorf("start failed")
	runner.downErr["application"] = fmt.Errorf("stop failed")

	s := New(runner, testPlan(readyAfter(1), readyAfter(1)))
	result := s.Run(context.Background())

	require.False(t, result.Settled())
	assert.Contains(t, runner.Calls(), "down:platform", "rollback must continue past a failing stop")
}
