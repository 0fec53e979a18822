package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/config"
)

func baseServices() []ServiceDefinition {
	return []ServiceDefinition{
		{Name: "caddy", Group: GroupApplication, Ports: []PortBinding{{Host: 80, Container: 80}, {Host: 443, Container: 443}}},
		{Name: "n8n", Group: GroupApplication, Ports: []PortBinding{{Host: 5678, Container: 5678}}},
		{Name: "postgres", Group: GroupPlatform, Ports: []PortBinding{{Host: 5432, Container: 5432}}},
		{Name: "searxng", Group: GroupApplication, Ports: []PortBinding{{Host: 8081, Container: 8080}}, CapDrop: []string{"ALL"}},
	}
}

func TestCompose_PrivateKeepsAllPorts(t *testing.T) {
	topo, err := Compose(baseServices(), config.EnvironmentPrivate, nil)
	require.NoError(t, err)

	exposed := map[string]int{}
	for _, svc := range topo.Services {
		exposed[svc.Name] = len(svc.Ports)
	}
	assert.Equal(t, map[string]int{"caddy": 2, "n8n": 1, "postgres": 1, "searxng": 1}, exposed)
	assert.Empty(t, topo.ProxyRoutes)
}

func TestCompose_PublicExposesOnlyProxy(t *testing.T) {
	routes := []config.Route{
		{Setting: "N8N_HOSTNAME", Hostname: "n8n.example.com", Service: "n8n"},
	}

	topo, err := Compose(baseServices(), config.EnvironmentPublic, routes)
	require.NoError(t, err)

	for _, svc := range topo.Services {
		if svc.Name == ProxyService {
			assert.Equal(t, ProxyPorts, svc.Ports)
			continue
		}
		assert.Empty(t, svc.Ports, "service %s must not expose host ports in public mode", svc.Name)
	}
	assert.Equal(t, routes, topo.ProxyRoutes)
}

func TestCompose_PortConflictNamesBothServices(t *testing.T) {
	services := append(baseServices(), ServiceDefinition{
		Name:  "supavisor",
		Group: GroupPlatform,
		Ports: []PortBinding{{Host: 5432, Container: 5432}},
	})

	_, err := Compose(services, config.EnvironmentPrivate, nil)
	require.Error(t, err)

	var conflict *PortConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 5432, conflict.Port)
	assert.ElementsMatch(t, []string{"postgres", "supavisor"}, []string{conflict.ServiceA, conflict.ServiceB})
}

func TestCompose_PublicOverlayStillRejectsConflicts(t *testing.T) {
	// Public strips the host ports, but a double claim on 5432 is still
	// an operator error and must surface before anything is started.
	services := []ServiceDefinition{
		{Name: "postgres", Group: GroupPlatform, Ports: []PortBinding{{Host: 5432, Container: 5432}}},
		{Name: "supavisor", Group: GroupPlatform, Ports: []PortBinding{{Host: 5432, Container: 5432}}},
	}

	_, err := Compose(services, config.EnvironmentPublic, nil)

	var conflict *PortConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 5432, conflict.Port)
	assert.ElementsMatch(t, []string{"postgres", "supavisor"}, []string{conflict.ServiceA, conflict.ServiceB})
}

func TestParsePortBinding(t *testing.T) {
	tests := []struct {
		spec    string
		want    PortBinding
		wantErr bool
	}{
		{spec: "8080:80", want: PortBinding{Host: 8080, Container: 80}},
		{spec: "127.0.0.1:5432:5432", want: PortBinding{Host: 5432, Container: 5432}},
		{spec: "53:53/udp", want: PortBinding{Host: 53, Container: 53, Protocol: "udp"}},
		{spec: "11434", want: PortBinding{Container: 11434}},
		{spec: "http:80", wantErr: true},
		{spec: "80:http", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.spec, func(t *testing.T) {
			got, err := ParsePortBinding(tc.spec)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestForProfile(t *testing.T) {
	services := []ServiceDefinition{
		{Name: "n8n"},
		{Name: "ollama-cpu", Profiles: []string{"cpu"}},
		{Name: "ollama-gpu", Profiles: []string{"gpu-nvidia"}},
		{Name: "ollama-pull-llama-cpu", Profiles: []string{"cpu"}},
	}

	names := func(defs []ServiceDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"n8n", "ollama-cpu", "ollama-pull-llama-cpu"}, names(ForProfile(services, "cpu")))
	assert.Equal(t, []string{"n8n", "ollama-gpu"}, names(ForProfile(services, "gpu-nvidia")))
	assert.Equal(t, []string{"n8n"}, names(ForProfile(services, "")))
}

func TestForProfile_MasksVariantPortConflicts(t *testing.T) {
	services := []ServiceDefinition{
		{Name: "ollama-cpu", Profiles: []string{"cpu"}, Ports: []PortBinding{{Host: 11434, Container: 11434}}},
		{Name: "ollama-gpu", Profiles: []string{"gpu-nvidia"}, Ports: []PortBinding{{Host: 11434, Container: 11434}}},
	}

	_, err := Compose(ForProfile(services, "cpu"), config.EnvironmentPrivate, nil)
	assert.NoError(t, err)
}
