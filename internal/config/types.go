package config

import (
	"fmt"
)

// Environment selects the deployment shape of the stack.
type Environment string

const (
	// EnvironmentPrivate keeps every service port exposed on the host.
	// This is the development default.
	EnvironmentPrivate Environment = "private"
	// EnvironmentPublic hides all service ports behind the reverse proxy;
	// only the proxy's HTTP/HTTPS ports remain host-exposed.
	EnvironmentPublic Environment = "public"
)

// ParseEnvironment validates an environment selector from the CLI.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvironmentPrivate, EnvironmentPublic:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown environment %q (expected %q or %q)", s, EnvironmentPrivate, EnvironmentPublic)
	}
}

// Settings required regardless of environment. These are the shared secrets
// every tier of the stack derives its credentials from.
var requiredSettings = []string{
	"POSTGRES_PASSWORD",
	"JWT_SECRET",
	"ANON_KEY",
	"SERVICE_ROLE_KEY",
	"N8N_ENCRYPTION_KEY",
	"N8N_USER_MANAGEMENT_JWT_SECRET",
}

// Settings additionally required for environment "public".
var requiredPublicSettings = []string{
	"LETSENCRYPT_EMAIL",
}

// hostnameServices maps the *_HOSTNAME settings onto the service each
// hostname should route to. A reader adding a new routable service adds a
// row here and nothing else.
var hostnameServices = map[string]string{
	"N8N_HOSTNAME":      "n8n",
	"WEBUI_HOSTNAME":    "open-webui",
	"FLOWISE_HOSTNAME":  "flowise",
	"SUPABASE_HOSTNAME": "kong",
	"OLLAMA_HOSTNAME":   "ollama",
	"SEARXNG_HOSTNAME":  "searxng",
	"NEO4J_HOSTNAME":    "neo4j",
	"LANGFUSE_HOSTNAME": "langfuse-web",
}

// Route is one reverse-proxy routing table entry: requests for Hostname are
// forwarded to Service. Setting is the environment key the hostname came
// from, which is also the variable the proxy's site template reads.
type Route struct {
	Setting  string
	Hostname string
	Service  string
}

// Config is the immutable resolved-configuration snapshot handed to the
// downstream components. It is recomputed from the environment source on
// every invocation and must never be persisted or mutated after Resolve
// returns.
type Config struct {
	Environment Environment
	ProjectName string

	// EnvFile is the dotenv file the settings were read from. It is passed
	// through to the process supervisor via --env-file.
	EnvFile string

	// PlatformDir points at an externally managed data-platform checkout.
	// Empty means the bundled platform compose file is used.
	PlatformDir string

	settings map[string]string
	routes   []Route
}

// Setting returns the value of a setting, or "" when absent.
func (c *Config) Setting(key string) string {
	return c.settings[key]
}

// HasSetting reports whether a setting is present and non-empty.
func (c *Config) HasSetting(key string) bool {
	return c.settings[key] != ""
}

// Routes returns the reverse-proxy routing table derived from the
// *_HOSTNAME settings, one entry per hostname present in the source.
// The returned slice is a copy.
func (c *Config) Routes() []Route {
	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}

// MissingRequiredSettingError reports a setting required by the selected
// environment that is absent from the environment source.
type MissingRequiredSettingError struct {
	Key         string
	Environment Environment
}

func (e *MissingRequiredSettingError) Error() string {
	return fmt.Sprintf("required setting %s is missing for environment %q", e.Key, e.Environment)
}

// InvalidValueError reports a setting whose value violates a documented
// constraint.
type InvalidValueError struct {
	Key    string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("setting %s is invalid: %s", e.Key, e.Reason)
}
