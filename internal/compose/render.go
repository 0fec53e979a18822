package compose

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RenderOverride produces the compose override file for the shaped
// topology. A nil result means no override is needed (environment
// "private" runs the base files as-is).
//
// The override is built against the base definitions: services whose host
// ports were removed by the overlay get their port list reset, and the
// proxy gets its fixed port pair plus one routing entry per hostname.
func RenderOverride(base []ServiceDefinition, topo *Topology) ([]byte, error) {
	if len(topo.ProxyRoutes) == 0 && sameShape(base, topo.Services) {
		return nil, nil
	}

	shapedPorts := make(map[string][]PortBinding, len(topo.Services))
	for _, svc := range topo.Services {
		shapedPorts[svc.Name] = svc.Ports
	}

	servicesNode := mappingNode()
	for _, svc := range base {
		shaped := shapedPorts[svc.Name]
		if len(svc.Ports) > 0 && len(shaped) == 0 {
			// Ports removed by the overlay. The !reset tag makes the
			// override replace the base list instead of appending to it.
			reset := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!reset", Style: yaml.FlowStyle}
			appendMapping(servicesNode, svc.Name, wrapMapping("ports", reset))
		}
	}

	proxyNode := mappingNode()
	if len(topo.ProxyRoutes) > 0 {
		portsNode := &yaml.Node{Kind: yaml.SequenceNode}
		for _, p := range ProxyPorts {
			portsNode.Content = append(portsNode.Content, quotedScalar(p.String()))
		}
		appendMapping(proxyNode, "ports", portsNode)

		envNode := &yaml.Node{Kind: yaml.SequenceNode}
		for _, route := range topo.ProxyRoutes {
			envNode.Content = append(envNode.Content, quotedScalar(fmt.Sprintf("%s=%s", route.Setting, route.Hostname)))
		}
		appendMapping(proxyNode, "environment", envNode)
		appendMapping(servicesNode, ProxyService, proxyNode)
	}

	root := mappingNode()
	appendMapping(root, "services", servicesNode)

	return yaml.Marshal(root)
}

// WriteOverride renders the override and writes it next to the base files.
// Returns the written path, or "" when no override is needed.
func WriteOverride(path string, base []ServiceDefinition, topo *Topology) (string, error) {
	data, err := RenderOverride(base, topo)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write compose override %s: %w", path, err)
	}
	return path, nil
}

func sameShape(base, shaped []ServiceDefinition) bool {
	ports := make(map[string]int, len(shaped))
	for _, svc := range shaped {
		ports[svc.Name] = len(svc.Ports)
	}
	for _, svc := range base {
		if len(svc.Ports) != ports[svc.Name] {
			return false
		}
	}
	return true
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func appendMapping(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
}

func wrapMapping(key string, value *yaml.Node) *yaml.Node {
	node := mappingNode()
	appendMapping(node, key, value)
	return node
}

func quotedScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: s}
}
