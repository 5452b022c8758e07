package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"
)

// RetryPolicy bounds how often an overloaded call is re-attempted.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

var (
	// ProbePolicy is used when checking whether a model is usable.
	ProbePolicy = RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
	// GenerationPolicy is used for the actual reply generation.
	GenerationPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
)

func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Delay returns the pause after the given zero-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Retrier runs operations under a RetryPolicy.
type Retrier struct {
	sleeper func(time.Duration)
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) RetrierOption {
	return func(r *Retrier) {
		r.sleeper = sleeper
	}
}

// NewRetrier creates a retrier that sleeps on the real clock by default.
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsOverloadMessage reports whether an upstream error message means the
// service is temporarily overloaded. Only these errors are retried.
func IsOverloadMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "503") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "unavailable")
}

// IsOverloadError is IsOverloadMessage for an error value.
func IsOverloadError(err error) bool {
	if err == nil {
		return false
	}
	return IsOverloadMessage(err.Error())
}

// Retry calls fn until it succeeds, fails with a non-overload error, or the
// policy's attempts are used up. The last underlying error is returned as-is.
func Retry[T any](ctx context.Context, r *Retrier, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.attempts()

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsOverloadError(err) || attempt == attempts-1 {
			return zero, err
		}

		delay := policy.Delay(attempt)
		MetricInc("llm", "retry")
		L_warn("llm: upstream overloaded, retrying",
			"op", op,
			"attempt", attempt+1,
			"of", attempts,
			"delay", delay,
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
	return zero, errors.New("llm retry: no attempts made")
}

func (r *Retrier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r != nil && r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
