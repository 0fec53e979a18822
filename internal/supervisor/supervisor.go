// Package supervisor wraps the external container engine's compose CLI.
//
// Every invocation targets one fixed compose project, which is what makes
// the wrapper idempotent: "up" against a running project reconciles instead
// of duplicating containers, and "down" against a stopped project is a
// no-op. The wrapper itself adds no retries; a non-zero exit is surfaced
// immediately with the captured diagnostics and the caller decides whether
// that is fatal.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"stackctl/pkg/logging"
)

// Action is a process-management call against a service group.
type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
	ActionPull Action = "pull"
)

// Group identifies one compose invocation target: the group's compose
// files, the optional compose profile, and optionally a subset of services
// (used for the one-shot jobs).
type Group struct {
	Name         string
	Dir          string // working directory for the invocation, "" for cwd
	ComposeFiles []string
	Profile      string
	Services     []string
}

// ProcessFailedError is a non-zero exit from the external engine call.
type ProcessFailedError struct {
	Group       string
	Action      Action
	ExitCode    int
	Diagnostics string
}

func (e *ProcessFailedError) Error() string {
	return fmt.Sprintf("'%s %s' for group %s failed with exit code %d", composeBinary, e.Action, e.Group, e.ExitCode)
}

const composeBinary = "docker"

// For mocking in tests
var execCommand = exec.CommandContext

// Supervisor runs compose actions for the stack's single project.
type Supervisor struct {
	Project string
	EnvFile string
	// ExtraEnv is added to the engine's environment, e.g. the host alias
	// the "none" profile variant requires for variable interpolation.
	ExtraEnv map[string]string
}

// New returns a supervisor bound to a compose project.
func New(project, envFile string, extraEnv map[string]string) *Supervisor {
	return &Supervisor{Project: project, EnvFile: envFile, ExtraEnv: extraEnv}
}

// Up starts the group's services detached. Repeating the call against an
// already-running group converges to the same state.
func (s *Supervisor) Up(ctx context.Context, group Group) (string, error) {
	return s.run(ctx, group, ActionUp, append([]string{"up", "-d"}, group.Services...))
}

// Down stops and removes the group's containers. Safe on a stopped group.
func (s *Supervisor) Down(ctx context.Context, group Group) (string, error) {
	return s.run(ctx, group, ActionDown, []string{"down"})
}

// Pull fetches the group's images.
func (s *Supervisor) Pull(ctx context.Context, group Group) (string, error) {
	return s.run(ctx, group, ActionPull, []string{"pull"})
}

// RunJob starts a single one-shot service and waits for it to exit.
func (s *Supervisor) RunJob(ctx context.Context, group Group, service string) (string, error) {
	job := group
	job.Name = fmt.Sprintf("%s/%s", group.Name, service)
	return s.run(ctx, job, ActionUp, []string{"up", "-d", "--wait", service})
}

func (s *Supervisor) run(ctx context.Context, group Group, action Action, actionArgs []string) (string, error) {
	args := []string{"compose", "-p", s.Project}
	if group.Profile != "" {
		args = append(args, "--profile", group.Profile)
	}
	if s.EnvFile != "" {
		args = append(args, "--env-file", s.EnvFile)
	}
	for _, file := range group.ComposeFiles {
		args = append(args, "-f", file)
	}
	args = append(args, actionArgs...)

	logging.Info("Supervisor", "Running: %s %s", composeBinary, strings.Join(args, " "))

	cmd := execCommand(ctx, composeBinary, args...)
	cmd.Dir = group.Dir
	cmd.Env = os.Environ()
	for key, value := range s.ExtraEnv {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		diagnostics := strings.TrimSpace(stderr)
		if diagnostics == "" {
			diagnostics = runErr.Error()
		}
		logging.Error("Supervisor", runErr, "Group %s action %s failed (exit %d)", group.Name, action, exitCode)
		return stdout, &ProcessFailedError{
			Group:       group.Name,
			Action:      action,
			ExitCode:    exitCode,
			Diagnostics: diagnostics,
		}
	}

	return stdout, nil
}
