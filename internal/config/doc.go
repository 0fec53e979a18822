// Package config resolves the launcher's configuration from a file-backed
// environment source.
//
// The environment source is a dotenv file holding the secrets and hostnames
// shared by every service in the stack. The package reads it without
// mutating either the file or the process environment, applies the run-time
// overrides (deployment environment, platform directory), validates the
// result, and hands back an immutable Config snapshot consumed by all
// downstream components. The snapshot is recomputed on every invocation and
// never persisted.
//
// # Validation
//
// Two error classes are produced:
//
//   - MissingRequiredSettingError: a setting required by the selected
//     deployment environment is absent. The base secret set is always
//     required; environment "public" additionally requires the ACME
//     contact address used by the reverse proxy.
//
//   - InvalidValueError: a setting is present but violates a documented
//     constraint. The Postgres password may not contain '@' or ':' because
//     it is embedded in connection URLs, and the ACME contact address must
//     look like an email address.
//
// # Hostname routing
//
// Settings named *_HOSTNAME map public hostnames onto services. They are
// collected into the routing table returned by Config.Routes, which the
// overlay composer hands to the reverse proxy for environment "public".
// Absent hostname settings simply produce no route.
package config
