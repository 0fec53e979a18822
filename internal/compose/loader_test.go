package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"stackctl/internal/config"
)

const sampleCompose = `
services:
  n8n:
    image: n8nio/n8n:latest
    ports:
      - "5678:5678"
  n8n-import:
    image: n8nio/n8n:latest
    restart: "no"
  searxng:
    image: searxng/searxng:latest
    cap_drop:
      - ALL
    ports:
      - "8081:8080"
  ollama-cpu:
    image: ollama/ollama:latest
    profiles: ["cpu"]
    ports:
      - published: 11434
        target: 11434
  redis:
    image: valkey/valkey:8-alpine
    expose:
      - 6379
`

func withComposeFile(t *testing.T, content string) {
	t.Helper()
	original := readComposeFile
	t.Cleanup(func() { readComposeFile = original })
	readComposeFile = func(name string) ([]byte, error) {
		return []byte(content), nil
	}
}

func TestLoadFile(t *testing.T) {
	withComposeFile(t, sampleCompose)

	defs, err := LoadFile("docker-compose.yml", GroupApplication, []string{"n8n-import"})
	require.NoError(t, err)
	require.Len(t, defs, 5)

	byName := map[string]ServiceDefinition{}
	for _, def := range defs {
		byName[def.Name] = def
	}

	assert.Equal(t, GroupApplication, byName["n8n"].Group)
	assert.Equal(t, []PortBinding{{Host: 5678, Container: 5678}}, byName["n8n"].Ports)

	// One-shot services land in the jobs group no matter which file they
	// were declared in.
	assert.True(t, byName["n8n-import"].OneShot)
	assert.Equal(t, GroupJobs, byName["n8n-import"].Group)

	assert.Equal(t, []string{"ALL"}, byName["searxng"].CapDrop)
	assert.Equal(t, []string{"cpu"}, byName["ollama-cpu"].Profiles)
	assert.Equal(t, []PortBinding{{Host: 11434, Container: 11434}}, byName["ollama-cpu"].Ports)
	assert.Empty(t, byName["redis"].Ports, "expose-only services carry no host ports")
}

func TestLoadFile_SortedByName(t *testing.T) {
	withComposeFile(t, sampleCompose)

	defs, err := LoadFile("docker-compose.yml", GroupApplication, nil)
	require.NoError(t, err)

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	assert.Equal(t, []string{"n8n", "n8n-import", "ollama-cpu", "redis", "searxng"}, names)
}

func TestRenderOverride_Private(t *testing.T) {
	base := baseServices()
	topo, err := Compose(base, config.EnvironmentPrivate, nil)
	require.NoError(t, err)

	data, err := RenderOverride(base, topo)
	require.NoError(t, err)
	assert.Nil(t, data, "private runs the base files without an override")
}

func TestRenderOverride_Public(t *testing.T) {
	base := baseServices()
	routes := []config.Route{
		{Setting: "N8N_HOSTNAME", Hostname: "n8n.example.com", Service: "n8n"},
		{Setting: "SEARXNG_HOSTNAME", Hostname: "search.example.com", Service: "searxng"},
	}
	topo, err := Compose(base, config.EnvironmentPublic, routes)
	require.NoError(t, err)

	data, err := RenderOverride(base, topo)
	require.NoError(t, err)
	require.NotNil(t, data)

	text := string(data)
	assert.Contains(t, text, "!reset")
	assert.Contains(t, text, `"80:80"`)
	assert.Contains(t, text, `"443:443"`)
	assert.Contains(t, text, "N8N_HOSTNAME=n8n.example.com")
	assert.Contains(t, text, "SEARXNG_HOSTNAME=search.example.com")

	// The override must still be a well-formed compose fragment.
	var doc composeDocument
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc.Services, "n8n")
	assert.Contains(t, doc.Services, "searxng")
	assert.Contains(t, doc.Services, "postgres")
	assert.Contains(t, doc.Services, "caddy")
	assert.Len(t, doc.Services["caddy"].Ports, 2)
}
