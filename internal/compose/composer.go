package compose

import (
	"sort"

	"stackctl/internal/config"
	"stackctl/pkg/logging"
)

// Topology is the final merged service topology for one run, with the
// environment overlay already applied.
type Topology struct {
	Environment config.Environment
	Services    []ServiceDefinition

	// ProxyRoutes is the reverse proxy's routing table. Populated only for
	// environment "public".
	ProxyRoutes []config.Route
}

// Compose applies the environment overlay to the base service definitions
// and validates the result. It is pure: no external process is involved,
// and a returned error means nothing has been started.
func Compose(services []ServiceDefinition, env config.Environment, routes []config.Route) (*Topology, error) {
	// Conflicts are checked against the declared bindings, before the
	// overlay strips any. Two services claiming the same host port is an
	// operator error in every environment; the public overlay hiding the
	// ports must not hide the mistake.
	if err := checkPortConflicts(services); err != nil {
		return nil, err
	}

	topo := &Topology{Environment: env}

	for _, svc := range services {
		shaped := svc

		if env == config.EnvironmentPublic {
			if svc.Name == ProxyService {
				// The proxy keeps exactly its HTTP/HTTPS pair, regardless
				// of what the base file declares.
				shaped.Ports = append([]PortBinding{}, ProxyPorts...)
			} else {
				shaped.Ports = nil
			}
		}

		topo.Services = append(topo.Services, shaped)
	}

	if env == config.EnvironmentPublic {
		topo.ProxyRoutes = routes
	}

	logging.Debug("Composer", "Composed topology for environment %s: %d services, %d proxy routes",
		env, len(topo.Services), len(topo.ProxyRoutes))
	return topo, nil
}

// ForProfile filters the definitions down to the services active under the
// given compose profile. Ungated services are always active; an empty
// profile keeps only the ungated ones. This mirrors the engine's own
// profile activation, so port conflict checks do not trip over mutually
// exclusive compute variants that all claim the same port.
func ForProfile(services []ServiceDefinition, profile string) []ServiceDefinition {
	var active []ServiceDefinition
	for _, svc := range services {
		if len(svc.Profiles) == 0 {
			active = append(active, svc)
			continue
		}
		for _, p := range svc.Profiles {
			if p == profile {
				active = append(active, svc)
				break
			}
		}
	}
	return active
}

// checkPortConflicts rejects topologies where two services claim the same
// host port. Both claimants are named so the operator can pick which one
// moves.
func checkPortConflicts(services []ServiceDefinition) error {
	claimed := make(map[int]string)

	// Deterministic conflict attribution regardless of input order.
	ordered := append([]ServiceDefinition{}, services...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, svc := range ordered {
		for _, port := range svc.Ports {
			if other, taken := claimed[port.Host]; taken && other != svc.Name {
				return &PortConflictError{Port: port.Host, ServiceA: other, ServiceB: svc.Name}
			}
			claimed[port.Host] = svc.Name
		}
	}
	return nil
}
