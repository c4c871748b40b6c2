package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "timeout", err: errors.New("dial tcp: i/o timeout"), expected: true},
		{name: "smtp 421", err: errors.New("421 Service not available"), expected: true},
		{name: "smtp 451", err: errors.New("451 4.3.0 local error"), expected: true},
		{name: "throttled", err: errors.New("Throttling: maximum sending rate exceeded"), expected: true},
		{name: "deadline exceeded", err: fmt.Errorf("send: %w", context.DeadlineExceeded), expected: true},
		{name: "canceled", err: fmt.Errorf("send: %w", context.Canceled), expected: false},
		{name: "smtp 550", err: errors.New("550 mailbox unavailable"), expected: false},
		{name: "ses not verified", err: errors.New("Email address is not verified"), expected: false},
		{name: "permanent wrapper", err: Permanent(errors.New("connection refused")), expected: false},
		{name: "unknown", err: errors.New("something odd"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastConfig(3), "test", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("Do() attempts = %d calls = %d, want 1/1", attempts, calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastConfig(3), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	transient := errors.New("503 service unavailable")
	attempts, err := Do(context.Background(), fastConfig(2), "test", func(ctx context.Context) error {
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want %v", err, transient)
	}
	if attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", attempts)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	attempts, err := Do(context.Background(), fastConfig(5), "test", func(ctx context.Context) error {
		return errors.New("invalid recipient")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if attempts != 1 {
		t.Errorf("Do() attempts = %d, want 1", attempts)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 2}

	attempts, err := Do(ctx, cfg, "test", func(ctx context.Context) error {
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() attempts = %d, want 1", attempts)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}

	for attempt := 0; attempt < 10; attempt++ {
		got := Backoff(cfg, attempt)
		if got > 1250*time.Millisecond {
			t.Errorf("Backoff(%d) = %v, exceeds cap plus jitter", attempt, got)
		}
		if got < 75*time.Millisecond {
			t.Errorf("Backoff(%d) = %v, below initial minus jitter", attempt, got)
		}
	}
}
