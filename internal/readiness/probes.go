package readiness

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// TCPProbe is satisfied when the address accepts a connection.
type TCPProbe struct {
	Label   string
	Address string
}

func (p *TCPProbe) Name() string { return p.Label }

func (p *TCPProbe) Check(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Address, err)
	}
	return conn.Close()
}

// HTTPProbe is satisfied when the URL answers with a non-5xx status.
type HTTPProbe struct {
	Label string
	URL   string
}

func (p *HTTPProbe) Name() string { return p.Label }

func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s returned status %d", p.URL, resp.StatusCode)
	}
	return nil
}

// PostgresProbe is satisfied when the database accepts a ping. The data
// platform is considered up once its Postgres answers, since every other
// platform service gates itself on the same database.
type PostgresProbe struct {
	Label string
	URL   string
}

func (p *PostgresProbe) Name() string { return p.Label }

func (p *PostgresProbe) Check(ctx context.Context) error {
	db, err := sql.Open("pgx", p.URL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RedisProbe is satisfied when the key-value store answers PING. Used for
// the tracing stack's cache.
type RedisProbe struct {
	Label   string
	Address string
}

func (p *RedisProbe) Name() string { return p.Label }

func (p *RedisProbe) Check(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:        p.Address,
		DialTimeout: 3 * time.Second,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping %s: %w", p.Address, err)
	}
	return nil
}

// execCommand is swapped in tests to avoid depending on a container engine.
var execCommand = exec.CommandContext

// ContainerHealthProbe is satisfied when the named container reports
// healthy, or running if it carries no healthcheck. This is the probe of
// choice when the service publishes no host port, as in public deployments.
type ContainerHealthProbe struct {
	Label     string
	Container string
}

func (p *ContainerHealthProbe) Name() string { return p.Label }

func (p *ContainerHealthProbe) Check(ctx context.Context) error {
	cmd := execCommand(ctx, "docker", "inspect",
		"--format", "{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}",
		p.Container)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("inspect %s: %w: %s", p.Container, err, strings.TrimSpace(stderr.String()))
	}

	state := strings.TrimSpace(stdout.String())
	switch state {
	case "healthy", "running":
		return nil
	default:
		return fmt.Errorf("container %s is %s", p.Container, state)
	}
}

// AllProbe is satisfied only when every member probe is.
type AllProbe struct {
	Label  string
	Probes []Probe
}

func (p *AllProbe) Name() string { return p.Label }

func (p *AllProbe) Check(ctx context.Context) error {
	for _, probe := range p.Probes {
		if err := probe.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", probe.Name(), err)
		}
	}
	return nil
}

// FuncProbe adapts a plain function, mainly for tests and call-ordering
// traces.
type FuncProbe struct {
	Label   string
	CheckFn func(ctx context.Context) error
}

func (p *FuncProbe) Name() string { return p.Label }

func (p *FuncProbe) Check(ctx context.Context) error { return p.CheckFn(ctx) }
