package compose

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// composeDocument is the subset of a compose file the orchestrator reads.
// Everything else in the file is the container engine's business and is
// deliberately not modeled here.
type composeDocument struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image    string      `yaml:"image"`
	Ports    []yaml.Node `yaml:"ports"`
	CapDrop  []string    `yaml:"cap_drop"`
	Profiles []string    `yaml:"profiles"`
}

// longPort is the compose long port syntax.
type longPort struct {
	Published int    `yaml:"published"`
	Target    int    `yaml:"target"`
	Protocol  string `yaml:"protocol"`
}

// For mocking in tests
var readComposeFile = os.ReadFile

// LoadFile reads the services of one compose file into the orchestrator's
// topology model. All services take the given group; services named in
// oneShotServices are marked as run-to-completion jobs.
func LoadFile(path string, group ServiceGroup, oneShotServices []string) ([]ServiceDefinition, error) {
	data, err := readComposeFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file %s: %w", path, err)
	}

	var doc composeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse compose file %s: %w", path, err)
	}

	oneShot := make(map[string]bool, len(oneShotServices))
	for _, name := range oneShotServices {
		oneShot[name] = true
	}

	var defs []ServiceDefinition
	for name, svc := range doc.Services {
		def := ServiceDefinition{
			Name:     name,
			Image:    svc.Image,
			Group:    group,
			OneShot:  oneShot[name],
			CapDrop:  svc.CapDrop,
			Profiles: svc.Profiles,
		}
		if def.OneShot {
			def.Group = GroupJobs
		}

		for _, node := range svc.Ports {
			binding, err := decodePortNode(&node)
			if err != nil {
				return nil, fmt.Errorf("service %s in %s: %w", name, path, err)
			}
			if binding.Host != 0 {
				def.Ports = append(def.Ports, binding)
			}
		}

		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func decodePortNode(node *yaml.Node) (PortBinding, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return ParsePortBinding(node.Value)
	case yaml.MappingNode:
		var lp longPort
		if err := node.Decode(&lp); err != nil {
			return PortBinding{}, fmt.Errorf("invalid long port syntax: %w", err)
		}
		return PortBinding{Host: lp.Published, Container: lp.Target, Protocol: lp.Protocol}, nil
	default:
		return PortBinding{}, fmt.Errorf("unsupported port declaration (yaml kind %d)", node.Kind)
	}
}
