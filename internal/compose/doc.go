// Package compose models the stack's service topology and shapes it for the
// selected deployment environment.
//
// The base topology is read from the compose files shipped with the stack.
// Services are bucketed into three groups with a fixed start order: the
// data platform first, then the application tier, then the one-shot
// bootstrap jobs. Within a group no order is imposed; services synchronize
// themselves through their own health checks.
//
// Composing applies the environment overlay on top of the base topology.
// For environment "public" every host port disappears except the reverse
// proxy's HTTP/HTTPS pair, and the proxy's routing table is filled with one
// entry per hostname present in the configuration. For environment
// "private" all configured ports stay host-exposed. Two services claiming
// the same host port is a PortConflictError and nothing is started.
//
// The shaped topology is rendered as a compose override file that the
// process supervisor passes alongside the base files. Removed port lists
// use the compose `!reset` tag so the override replaces instead of
// appending.
package compose
