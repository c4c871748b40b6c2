// Package retry retries notification deliveries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries     int           // retries after the first attempt (0 = single attempt)
	InitialBackoff time.Duration // delay before the first retry
	MaxBackoff     time.Duration // cap on any single delay
	BackoffFactor  float64       // growth per retry
}

// DefaultConfig returns the delivery retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

var nonRetryable = []string{
	"not verified",
	"validation error",
	"invalid",
	"malformed",
	"email address is empty",
	"recipient is required",
	"550", // mailbox unavailable
	"553", // mailbox name not allowed
}

var retryable = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary",
	"rate limit",
	"throttl",
	"503",
	"502",
	"504",
	"421", // smtp service not available
	"450", // smtp mailbox busy
	"451", // smtp local error
	"too many requests",
	"try again",
	"eof",
}

// IsRetryable reports whether err looks transient. Unknown errors are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range nonRetryable {
		if strings.Contains(errStr, s) {
			return false
		}
	}
	for _, s := range retryable {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retries
// are used up. It returns the number of attempts made alongside the last error.
func Do(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempts,
				)
			}
			return attempts, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			slog.Debug("Error is not retryable, failing immediately",
				"operation", operation,
				"error", err,
			)
			return attempts, err
		}

		if attempt >= cfg.MaxRetries {
			slog.Warn("Max retries exceeded",
				"operation", operation,
				"attempts", attempts,
				"error", err,
			)
			return attempts, err
		}

		backoff := Backoff(cfg, attempt)
		slog.Warn("Operation failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", cfg.MaxRetries+1,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}

	return attempts, lastErr
}

// Backoff returns the delay before retry number attempt+1, with ±25% jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(cfg.InitialBackoff) * math.Pow(factor, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
