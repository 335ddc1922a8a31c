// Package resilience guards calls to the reasoning service with a circuit
// breaker and a bounded retry executor.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"storefront-agent/internal/domain"
)

// Default circuit breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// Breaker states as reported by State.
const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

// BreakerConfig configures one circuit breaker.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures before the circuit opens.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before admitting one trial request.
	Cooldown time.Duration
}

// ErrNotAttempted passed to a done callback releases the admission without
// counting a success or a failure, e.g. when the request was served from cache.
var ErrNotAttempted = errors.New("request not attempted")

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(name, from, to string)

// CircuitBreaker tracks consecutive reasoning-service failures for one agent.
// While open it rejects work until the cooldown elapses, then admits exactly
// one trial request in the half-open state.
type CircuitBreaker struct {
	cb        *gobreaker.TwoStepCircuitBreaker[struct{}]
	threshold int
	logger    *slog.Logger

	mu          sync.Mutex
	failures    uint32 // consecutive failures, reset only by a success
	lastFailure time.Time
}

// NewCircuitBreaker creates a breaker. Zero-valued settings fall back to defaults.
// onChange may be nil.
func NewCircuitBreaker(cfg BreakerConfig, logger *slog.Logger, onChange StateChangeFunc) *CircuitBreaker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	b := &CircuitBreaker{threshold: threshold, logger: logger}
	b.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		// Interval 0 keeps closed-state counts until a success or a trip.
		Interval: 0,
		Timeout:  cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if onChange != nil {
				onChange(name, from.String(), to.String())
			}
		},
		// A caller abandoning the request says nothing about the service.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, ErrNotAttempted)
		},
	})
	return b
}

// Allow reports whether a request may proceed. On success it returns a done
// callback that must be invoked exactly once with the outcome: nil records a
// success, any other error records a failure. When the circuit is open (or the
// half-open trial is already in flight) it returns an error wrapping
// domain.ErrCircuitOpen.
func (b *CircuitBreaker) Allow() (done func(err error), err error) {
	cbDone, err := b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("breaker %q: %w: %w", b.cb.Name(), domain.ErrCircuitOpen, err)
	}
	return func(outcome error) {
		b.mu.Lock()
		switch {
		case outcome == nil:
			b.failures = 0
		case errors.Is(outcome, context.Canceled), errors.Is(outcome, ErrNotAttempted):
			// neither success nor failure
		default:
			b.failures++
			b.lastFailure = time.Now()
		}
		b.mu.Unlock()
		cbDone(outcome)
	}, nil
}

// CanExecute reports whether a request would currently be admitted without
// consuming the half-open trial.
func (b *CircuitBreaker) CanExecute() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// State returns "closed", "half-open" or "open". Reading the state moves an
// open breaker whose cooldown has elapsed to half-open.
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}

// Failures returns the consecutive failure count. It survives state
// transitions and resets only when a request succeeds.
func (b *CircuitBreaker) Failures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Threshold returns the configured consecutive-failure threshold.
func (b *CircuitBreaker) Threshold() int { return b.threshold }

// Snapshot returns the breaker state for diagnostics.
func (b *CircuitBreaker) Snapshot() domain.BreakerSnapshot {
	b.mu.Lock()
	failures, last := b.failures, b.lastFailure
	b.mu.Unlock()
	return domain.BreakerSnapshot{
		State:       b.State(),
		Failures:    failures,
		Threshold:   b.threshold,
		LastFailure: last,
	}
}
