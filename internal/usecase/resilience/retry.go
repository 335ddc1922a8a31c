package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"storefront-agent/internal/domain"
)

// Default retry settings.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxDelay       = 8 * time.Second
	DefaultJitter         = 250 * time.Millisecond
	DefaultAttemptTimeout = 30 * time.Second
)

// RetryConfig configures bounded retries with exponential backoff and jitter.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         time.Duration
	AttemptTimeout time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	return c
}

// RetryExhaustedError is returned when every attempt failed.
// It matches domain.ErrRetryExhausted and unwraps to the last attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", domain.ErrRetryExhausted, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() []error {
	return []error{domain.ErrRetryExhausted, e.Last}
}

// Retrier runs an operation up to MaxAttempts times. Each attempt is bounded
// by AttemptTimeout; an attempt that times out counts as a failure.
type Retrier struct {
	cfg        RetryConfig
	classifier *ErrorClassifier
	logger     *slog.Logger

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error)

	sleep  func(ctx context.Context, d time.Duration) error // for testing
	jitter func(window time.Duration) time.Duration         // for testing
}

// NewRetrier creates a retrier. classifier and logger may be nil.
func NewRetrier(cfg RetryConfig, classifier *ErrorClassifier, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Retrier{
		cfg:        cfg.withDefaults(),
		classifier: classifier,
		logger:     logger,
		sleep:      sleepCtx,
		jitter:     randomJitter,
	}
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig { return r.cfg }

// Backoff returns the delay before the attempt following attempt (1-based),
// excluding jitter: min(BaseDelay * 2^(attempt-1), MaxDelay).
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	return min(delay, r.cfg.MaxDelay)
}

// Run calls op until it succeeds, the attempts are used up, the error is
// classified permanent, or ctx is cancelled. Exhaustion yields a
// *RetryExhaustedError; cancellation of ctx is returned as is.
//
// A permanent error (for example a rejected credential) stops the loop
// without backoff. It is still reported as a *RetryExhaustedError whose
// Attempts counts only the calls actually made.
func Run[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		result, err := op(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		if r.classifier != nil {
			if classified := r.classifier.Classify(err); classified.Category == ErrorCategoryPermanent {
				r.logger.Warn("permanent reasoning-service error, not retrying",
					"attempt", attempt, "error", err)
				return zero, &RetryExhaustedError{Attempts: attempt, Last: err}
			}
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.Backoff(attempt) + r.jitter(r.cfg.Jitter)
		r.logger.Info("retrying reasoning-service call after error",
			"attempt", attempt, "delay", delay, "error", err)
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &RetryExhaustedError{Attempts: r.cfg.MaxAttempts, Last: lastErr}
}

// IsExhausted reports whether err came from retry exhaustion.
func IsExhausted(err error) bool {
	return errors.Is(err, domain.ErrRetryExhausted)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return rand.N(window)
}
