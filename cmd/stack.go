package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/profile"
	"stackctl/internal/readiness"
	"stackctl/internal/sequencer"
	"stackctl/internal/supervisor"
	"stackctl/pkg/logging"
)

const (
	appComposeFile         = "docker-compose.yml"
	bundledPlatformCompose = "supabase/docker/docker-compose.yml"

	// Generated override files, one per group so neither invocation sees
	// service entries it does not own.
	appOverrideFile      = "docker-compose.override.generated.yml"
	platformOverrideFile = "docker-compose.override.generated.supabase.yml"

	searchDataDir       = "searxng"
	capabilityStateFile = ".capability-override.yml"

	// Containers the engine-level health probes inspect when no host port
	// is reachable. Both set container_name in the compose files.
	platformHealthContainer    = "supabase-db"
	applicationHealthContainer = "n8n"
)

// oneShotServices are the bootstrap jobs declared in the application
// compose file. They run to completion after both tiers are ready and are
// never part of a tier's steady state.
var oneShotServices = []string{
	"n8n-import",
	"ollama-pull-llama-cpu",
	"ollama-pull-llama-gpu",
	"ollama-pull-llama-gpu-amd",
}

// stackFlags are the selectors shared by up, down and pull.
type stackFlags struct {
	profile     string
	environment string
	envFile     string
	platformDir string
	project     string
	debug       bool
}

func addStackFlags(cmd *cobra.Command, flags *stackFlags, defaultProfile string) {
	cmd.Flags().StringVar(&flags.profile, "profile", defaultProfile, "compute profile: none, cpu, gpu-nvidia or gpu-amd")
	cmd.Flags().StringVar(&flags.environment, "environment", string(config.EnvironmentPrivate), "deployment shape: private or public")
	cmd.Flags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file holding the stack's settings")
	cmd.Flags().StringVar(&flags.platformDir, "platform-dir", "", "externally managed Supabase checkout (default: bundled)")
	cmd.Flags().StringVar(&flags.project, "project", config.DefaultProjectName, "compose project name")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
}

func initLogging(debug bool) {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)
}

// resolveStack turns the CLI selectors into the resolved configuration and
// compute variant. All failures here are operator input problems.
func resolveStack(flags *stackFlags) (*config.Config, profile.Variant, error) {
	variant, err := profile.Resolve(flags.profile)
	if err != nil {
		return nil, profile.Variant{}, err
	}

	env, err := config.ParseEnvironment(flags.environment)
	if err != nil {
		return nil, profile.Variant{}, err
	}

	cfg, err := config.Resolve(config.Options{
		EnvFile:     flags.envFile,
		Environment: env,
		ProjectName: flags.project,
		PlatformDir: flags.platformDir,
	})
	if err != nil {
		return nil, profile.Variant{}, err
	}

	// The platform group may run from another working directory, so the
	// env file path has to survive the change of cwd.
	if abs, err := filepath.Abs(cfg.EnvFile); err == nil {
		cfg.EnvFile = abs
	}

	return cfg, variant, nil
}

// composeOverrides loads both compose files, applies the environment
// overlay across the union and writes the per-group override files.
// Returned paths are empty when a group needs no override.
func composeOverrides(cfg *config.Config, variant profile.Variant) (platformOverride, appOverride string, err error) {
	appDefs, err := compose.LoadFile(appComposeFile, compose.GroupApplication, oneShotServices)
	if err != nil {
		return "", "", err
	}
	appDefs = compose.ForProfile(appDefs, variant.ComposeProfile)

	platformCompose := bundledPlatformCompose
	if cfg.PlatformDir != "" {
		platformCompose = filepath.Join(cfg.PlatformDir, appComposeFile)
	}
	platformDefs, err := compose.LoadFile(platformCompose, compose.GroupPlatform, nil)
	if err != nil {
		return "", "", err
	}

	all := append(append([]compose.ServiceDefinition{}, platformDefs...), appDefs...)
	topo, err := compose.Compose(all, cfg.Environment, cfg.Routes())
	if err != nil {
		return "", "", err
	}

	appOverride, err = compose.WriteOverride(appOverrideFile, appDefs, topo)
	if err != nil {
		return "", "", err
	}

	// An external platform checkout manages its own exposure; the overlay
	// only reshapes the bundled platform file.
	if cfg.PlatformDir == "" {
		platformTopo := *topo
		platformTopo.ProxyRoutes = nil
		platformOverride, err = compose.WriteOverride(platformOverrideFile, platformDefs, &platformTopo)
		if err != nil {
			return "", "", err
		}
	}

	return platformOverride, appOverride, nil
}

func platformGroup(cfg *config.Config, override string) supervisor.Group {
	if cfg.PlatformDir != "" {
		return supervisor.Group{Name: "platform", Dir: cfg.PlatformDir, ComposeFiles: []string{appComposeFile}}
	}
	files := []string{bundledPlatformCompose}
	if override != "" {
		files = append(files, override)
	}
	return supervisor.Group{Name: "platform", ComposeFiles: files}
}

func applicationGroup(variant profile.Variant, override string) supervisor.Group {
	files := []string{appComposeFile}
	if override != "" {
		files = append(files, override)
	}
	return supervisor.Group{Name: "application", ComposeFiles: files, Profile: variant.ComposeProfile}
}

// platformProbe gates the application tier on the data platform. In
// private mode the database answers on its published port; otherwise the
// probe falls back to the engine's view of the container.
func platformProbe(cfg *config.Config) readiness.Probe {
	if cfg.Environment == config.EnvironmentPublic || cfg.PlatformDir != "" {
		return &readiness.ContainerHealthProbe{Label: "data platform", Container: platformHealthContainer}
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword("postgres", cfg.Setting("POSTGRES_PASSWORD")),
		Host:     "localhost:5432",
		Path:     "/postgres",
		RawQuery: "sslmode=disable",
	}
	return &readiness.PostgresProbe{Label: "data platform", URL: u.String()}
}

// applicationProbe gates the one-shot jobs on the application tier.
func applicationProbe(cfg *config.Config) readiness.Probe {
	if cfg.Environment == config.EnvironmentPublic {
		return &readiness.ContainerHealthProbe{Label: "application tier", Container: applicationHealthContainer}
	}
	return &readiness.AllProbe{Label: "application tier", Probes: []readiness.Probe{
		&readiness.HTTPProbe{Label: "n8n", URL: "http://localhost:5678/healthz"},
		&readiness.RedisProbe{Label: "langfuse cache", Address: "localhost:6379"},
	}}
}

// jobPlans lists the one-shot jobs for the run: the workflow import always,
// plus the variant's model pull job when the runtime lives in the project.
func jobPlans(application supervisor.Group, variant profile.Variant) []sequencer.JobPlan {
	jobs := application
	jobs.Name = "jobs"

	plans := []sequencer.JobPlan{{Group: jobs, Service: "n8n-import"}}
	if variant.PullJob != "" {
		plans = append(plans, sequencer.JobPlan{Group: jobs, Service: variant.PullJob})
	}
	return plans
}

// stopExisting converges from a clean slate before starting. A previous
// invocation may have left either group running; failures here are logged
// and ignored since a missing project is the common case.
func stopExisting(ctx context.Context, sup *supervisor.Supervisor, groups ...supervisor.Group) {
	for _, group := range groups {
		if _, err := sup.Down(ctx, group); err != nil {
			logging.Warn("Up", "Stopping leftover %s containers failed: %v", group.Name, err)
		}
	}
}

func describeRun(cfg *config.Config, variant profile.Variant) string {
	prof := variant.ComposeProfile
	if prof == "" {
		prof = string(profile.ProfileNone)
	}
	return fmt.Sprintf("project %s, profile %s, environment %s", cfg.ProjectName, prof, cfg.Environment)
}
