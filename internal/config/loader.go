package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultProjectName is the compose project every invocation converges on.
// Using one fixed project name is what makes a repeated "up" idempotent:
// the container engine reconciles against the existing project instead of
// creating a second copy of the stack.
const DefaultProjectName = "localai"

// For mocking in tests
var readEnvFile = godotenv.Read

// Options carries the run-time overrides applied on top of the environment
// source.
type Options struct {
	EnvFile     string // path to the dotenv source (default ".env")
	Environment Environment
	ProjectName string // default DefaultProjectName
	PlatformDir string // external data-platform checkout, optional
}

// Resolve loads the environment source and produces the immutable Config
// snapshot. The source file and the process environment are never mutated.
func Resolve(opts Options) (*Config, error) {
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}
	if opts.Environment == "" {
		opts.Environment = EnvironmentPrivate
	}
	if opts.ProjectName == "" {
		opts.ProjectName = DefaultProjectName
	}

	settings, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment source %s: %w", opts.EnvFile, err)
	}

	if err := validate(settings, opts.Environment); err != nil {
		return nil, err
	}

	if opts.PlatformDir != "" {
		if err := checkPlatformDir(opts.PlatformDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Environment: opts.Environment,
		ProjectName: opts.ProjectName,
		EnvFile:     opts.EnvFile,
		PlatformDir: opts.PlatformDir,
		settings:    make(map[string]string, len(settings)),
	}
	for k, v := range settings {
		cfg.settings[k] = v
	}
	cfg.routes = buildRoutes(settings)

	return cfg, nil
}

func validate(settings map[string]string, env Environment) error {
	required := requiredSettings
	if env == EnvironmentPublic {
		required = append(append([]string{}, required...), requiredPublicSettings...)
	}
	for _, key := range required {
		if settings[key] == "" {
			return &MissingRequiredSettingError{Key: key, Environment: env}
		}
	}

	// The Postgres password is interpolated into connection URLs by several
	// services; URL-reserved characters break those services in ways that
	// only surface deep inside the stack, so reject them up front.
	if pw := settings["POSTGRES_PASSWORD"]; strings.ContainsAny(pw, "@:/") {
		return &InvalidValueError{
			Key:    "POSTGRES_PASSWORD",
			Reason: "must not contain '@', ':' or '/' (the value is embedded in connection URLs)",
		}
	}

	if email := settings["LETSENCRYPT_EMAIL"]; email != "" && !strings.Contains(email, "@") {
		return &InvalidValueError{
			Key:    "LETSENCRYPT_EMAIL",
			Reason: "must be an email address",
		}
	}

	return nil
}

// buildRoutes derives the reverse-proxy routing table from the *_HOSTNAME
// settings. Only hostnames actually present in the source produce a route.
// The result is sorted for deterministic output.
func buildRoutes(settings map[string]string) []Route {
	var routes []Route
	for key, service := range hostnameServices {
		if hostname := settings[key]; hostname != "" {
			routes = append(routes, Route{Setting: key, Hostname: hostname, Service: service})
		}
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Service < routes[j].Service })
	return routes
}

// checkPlatformDir verifies an external data-platform checkout is usable:
// it must exist and carry both a compose file and its own dotenv file.
func checkPlatformDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("external platform directory not found at %s", dir)
	}
	for _, name := range []string{"docker-compose.yml", ".env"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("external platform directory %s is missing %s", dir, name)
		}
	}
	return nil
}
