// Package resilience wraps calls to storage and transport collaborators:
// retry with exponential backoff, circuit breaker, and bulkhead. The
// lifecycle engine itself owns no retries.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Retryable decides whether an error is worth another attempt. Nil
	// means RetryableDefault.
	Retryable func(error) bool
}

// RetryableDefault retries everything except caller mistakes (validation,
// not-found, failed preconditions) and context cancellation.
func RetryableDefault(err error) bool {
	var (
		validation   *domain.ErrValidation
		notFound     *domain.ErrNotFound
		precondition *domain.ErrPreconditionFailed
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &notFound), errors.As(err, &precondition):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation and stops on non-retryable errors.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = RetryableDefault
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg.InitialBackoff, attempt)):
			}
		}
	}
	return lastErr
}

func backoff(initial time.Duration, attempt int) time.Duration {
	b := time.Duration(math.Pow(2, float64(attempt))) * initial
	if b < 2 {
		return b
	}
	return b + time.Duration(rand.Int63n(int64(b/2)))
}

// NewCircuitBreaker creates a circuit breaker that logs state changes.
// Not-found and validation results do not count as failures.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !RetryableDefault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// Do runs fn inside a slot.
func (b *Bulkhead) Do(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// Reconnect keeps a long-lived connection alive until ctx is done. Each
// failed connect waits an exponential backoff, capped at maxBackoff; a
// connection that ends cleanly resets the backoff. onErr, when set, sees
// every failure together with the wait before the next attempt.
func Reconnect(ctx context.Context, cfg Config, maxBackoff time.Duration, connect func(context.Context) error, onErr func(err error, wait time.Duration)) {
	attempt := 0
	for ctx.Err() == nil {
		err := connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			attempt = 0
		} else {
			attempt++
		}
		wait := backoff(cfg.InitialBackoff, attempt)
		if maxBackoff > 0 && wait > maxBackoff {
			wait = maxBackoff
		}
		if err != nil && onErr != nil {
			onErr(err, wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
