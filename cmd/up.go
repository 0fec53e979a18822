package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stackctl/internal/capability"
	"stackctl/internal/readiness"
	"stackctl/internal/sequencer"
	"stackctl/internal/supervisor"
	"stackctl/pkg/logging"
)

func newUpCmd() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the full stack and wait until it settles",
		Long: `Starts the stack in dependency order: the Supabase data platform first,
the application tier once the database answers, then the one-shot bootstrap
jobs (workflow import, model pull) once the application tier is ready.

Any containers left over from a previous run are stopped first, so repeating
the command converges to the same running state.

With --environment public every service port except the reverse proxy's
HTTP/HTTPS pair is kept off the host; the proxy routes by the *_HOSTNAME
settings from the env file.

On a failed startup the already-started groups are stopped again before the
command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, flags)
		},
	}

	addStackFlags(cmd, flags, "")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func runUp(cmd *cobra.Command, flags *stackFlags) error {
	initLogging(flags.debug)

	cfg, variant, err := resolveStack(flags)
	if err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}
	logging.Info("Up", "Starting stack: %s", describeRun(cfg, variant))

	platformOverride, appOverride, err := composeOverrides(cfg, variant)
	if err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}

	// Search engine first-run handling: complete any interrupted earlier
	// run, seed the settings file, then loosen the capability drop for
	// this start if the data directory is still empty.
	patcher := capability.New(appComposeFile, capabilityStateFile, searchDataDir)
	if err := patcher.EnsureRestored(); err != nil {
		return &exitCodeError{code: exitRestore, err: err}
	}
	if err := capability.EnsureSettings(searchDataDir); err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}
	patched, err := patcher.Prepare()
	if err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}
	if patched {
		logging.Info("Up", "First run of %s detected, capability drop disabled for this start", capability.SearchService)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg.ProjectName, cfg.EnvFile, variant.ExtraEnv)
	platform := platformGroup(cfg, platformOverride)
	application := applicationGroup(variant, appOverride)

	stopExisting(ctx, sup, application, platform)

	plan := sequencer.Plan{
		Platform:    sequencer.GroupPlan{Group: platform, Probe: platformProbe(cfg), Policy: readiness.DefaultPolicy},
		Application: sequencer.GroupPlan{Group: application, Probe: applicationProbe(cfg), Policy: readiness.DefaultPolicy},
		Jobs:        jobPlans(application, variant),
	}

	result := sequencer.New(sup, plan).Run(ctx)

	// The compose file must go back to its committed shape no matter how
	// the run ended.
	restoreErr := patcher.Restore()

	printRunSummary(cmd, describeRun(cfg, variant), result, restoreErr)

	if restoreErr != nil {
		return &exitCodeError{code: exitRestore, err: restoreErr}
	}
	if !result.Settled() {
		return &exitCodeError{code: exitCodeFor(result), err: result.Err}
	}
	return nil
}

// exitCodeFor maps a failed run onto its exit code class.
func exitCodeFor(result *sequencer.RunResult) int {
	if errors.Is(result.Err, context.Canceled) {
		return 130
	}

	var timeout *readiness.TimeoutError
	if errors.As(result.Err, &timeout) {
		return exitReadiness
	}

	var process *supervisor.ProcessFailedError
	if errors.As(result.Err, &process) {
		return exitProcess
	}

	return 1
}

func printRunSummary(cmd *cobra.Command, description string, result *sequencer.RunResult, restoreErr error) {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("stackctl up: %s (run %s)", description, result.RunID)))

	for _, warning := range result.Warnings {
		fmt.Fprintln(errOut, warningStyle.Render(fmt.Sprintf("warning: bootstrap job %s failed: %v", warning.Job, warning.Err)))
	}

	switch {
	case result.Settled():
		fmt.Fprintln(out, successStyle.Render("Stack is up."))
	default:
		fmt.Fprintln(errOut, errorStyle.Render(fmt.Sprintf("Startup failed at step %q: %v", result.FailedStep, result.Err)))
		if result.Diagnostics != "" {
			fmt.Fprintln(errOut, result.Diagnostics)
		}
	}

	if restoreErr != nil {
		fmt.Fprintln(errOut, errorStyle.Render(fmt.Sprintf("Capability restore failed: %v", restoreErr)))
	}
}
