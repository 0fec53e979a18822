package compose

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceGroup is a startup-dependency tier. Groups start strictly in the
// order platform, application, jobs.
type ServiceGroup string

const (
	GroupPlatform    ServiceGroup = "platform"
	GroupApplication ServiceGroup = "application"
	GroupJobs        ServiceGroup = "jobs"
)

// ProxyService is the reverse proxy fronting the stack in public mode.
const ProxyService = "caddy"

// ProxyPorts are the only host ports that survive the public overlay.
var ProxyPorts = []PortBinding{
	{Host: 80, Container: 80},
	{Host: 443, Container: 443},
}

// PortBinding is one host-to-container port mapping.
type PortBinding struct {
	Host      int
	Container int
	Protocol  string // "" means tcp
}

func (p PortBinding) String() string {
	s := fmt.Sprintf("%d:%d", p.Host, p.Container)
	if p.Protocol != "" {
		s += "/" + p.Protocol
	}
	return s
}

// ParsePortBinding parses compose short port syntax: "8080:80",
// "127.0.0.1:8080:80" or "8080:80/udp". Container-only forms ("80") carry
// no host port and are not host-exposed.
func ParsePortBinding(spec string) (PortBinding, error) {
	var binding PortBinding

	portPart := spec
	if idx := strings.Index(spec, "/"); idx >= 0 {
		binding.Protocol = spec[idx+1:]
		portPart = spec[:idx]
	}

	parts := strings.Split(portPart, ":")
	switch len(parts) {
	case 1:
		container, err := strconv.Atoi(parts[0])
		if err != nil {
			return PortBinding{}, fmt.Errorf("invalid port spec %q: %w", spec, err)
		}
		binding.Container = container
	case 2, 3:
		// With a bind address the host port is the second-to-last element.
		hostStr := parts[len(parts)-2]
		containerStr := parts[len(parts)-1]
		host, err := strconv.Atoi(hostStr)
		if err != nil {
			return PortBinding{}, fmt.Errorf("invalid host port in %q: %w", spec, err)
		}
		container, err := strconv.Atoi(containerStr)
		if err != nil {
			return PortBinding{}, fmt.Errorf("invalid container port in %q: %w", spec, err)
		}
		binding.Host = host
		binding.Container = container
	default:
		return PortBinding{}, fmt.Errorf("invalid port spec %q", spec)
	}

	return binding, nil
}

// ServiceDefinition is the orchestrator's view of one compose service.
type ServiceDefinition struct {
	Name    string
	Image   string
	Group   ServiceGroup
	OneShot bool

	// Ports are the host-exposed bindings declared for the service.
	Ports []PortBinding

	// CapDrop is the declared security capability drop list, kept so the
	// capability patcher can find the restrictive entry it manages.
	CapDrop []string

	// Profiles are the compose profiles gating the service, if any.
	Profiles []string
}

// PortConflictError reports two services claiming the same host port in the
// composed topology.
type PortConflictError struct {
	Port     int
	ServiceA string
	ServiceB string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("host port %d claimed by both %s and %s", e.Port, e.ServiceA, e.ServiceB)
}
