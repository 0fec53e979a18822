// Package readiness provides the health predicates the sequencer gates
// group startup on.
//
// A predicate is a plain boolean check against a collaborator-defined
// signal (a TCP port accepting connections, an HTTP endpoint answering, a
// database accepting a ping). Waiting on a predicate is always bounded:
// a fixed number of attempts at a fixed interval under an overall timeout,
// never an open-ended sleep.
package readiness

import (
	"context"
	"fmt"
	"time"

	"stackctl/pkg/logging"
)

// Probe checks one readiness signal. A nil return means ready.
type Probe interface {
	// Name identifies the probe in logs and errors.
	Name() string
	// Check performs a single readiness check.
	Check(ctx context.Context) error
}

// Policy bounds the polling of a probe.
type Policy struct {
	// Interval between attempts.
	Interval time.Duration
	// MaxAttempts is the retry bound; at least one attempt is always made.
	MaxAttempts int
	// Timeout caps the whole wait regardless of attempts left.
	Timeout time.Duration
}

// DefaultPolicy matches the time the data platform typically needs on a
// cold start.
var DefaultPolicy = Policy{
	Interval:    2 * time.Second,
	MaxAttempts: 30,
	Timeout:     2 * time.Minute,
}

// TimeoutError reports a probe that never became ready within its policy.
type TimeoutError struct {
	Probe    string
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("readiness probe %s not satisfied after %d attempts: %v", e.Probe, e.Attempts, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Wait polls the probe under the policy until it succeeds, the bounds are
// exhausted, or the context is cancelled. Context cancellation is returned
// as-is so an operator interrupt is distinguishable from a timeout.
func Wait(ctx context.Context, probe Probe, policy Policy) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = probe.Check(ctx)
		if lastErr == nil {
			logging.Debug("Readiness", "Probe %s satisfied after %d attempt(s)", probe.Name(), attempt)
			return nil
		}
		logging.Debug("Readiness", "Probe %s attempt %d/%d failed: %v", probe.Name(), attempt, policy.MaxAttempts, lastErr)

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(policy.Interval):
		case <-ctx.Done():
			// Operator cancellation propagates as-is; the policy's own
			// deadline is a readiness timeout.
			if ctx.Err() == context.Canceled {
				return ctx.Err()
			}
			return &TimeoutError{Probe: probe.Name(), Attempts: attempt, LastErr: lastErr}
		}
	}

	return &TimeoutError{Probe: probe.Name(), Attempts: policy.MaxAttempts, LastErr: lastErr}
}
