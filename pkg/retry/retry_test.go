package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialInterval != 500*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 500ms", config.InitialInterval)
	}
	if config.MaxInterval != 10*time.Second {
		t.Errorf("MaxInterval = %v, want 10s", config.MaxInterval)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	retrier := New(&Config{JitterFactor: 3})

	if retrier.config.InitialInterval != 500*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 500ms", retrier.config.InitialInterval)
	}
	if retrier.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", retrier.config.Multiplier)
	}
	if retrier.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want 1", retrier.config.JitterFactor)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if result.Err != nil {
		t.Fatalf("Err = %v, want nil", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	opErr := errors.New("provider down")
	result := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		return opErr
	})

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.Unwrap() != opErr {
		t.Errorf("Unwrap() = %v, want %v", result.Unwrap(), opErr)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	notFound := errors.New("not found")
	calls := 0
	result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(notFound)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if result.Err != notFound {
		t.Errorf("Err = %v, want %v", result.Err, notFound)
	}
}

func TestDo_RetryIf(t *testing.T) {
	rateLimited := errors.New("429")
	badRequest := errors.New("400")

	cfg := fastConfig(3)
	cfg.RetryIf = func(err error) bool { return errors.Is(err, rateLimited) }

	calls := 0
	result := New(cfg).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return badRequest
	})
	if calls != 1 || result.Err != badRequest {
		t.Errorf("calls = %d, Err = %v; want 1, %v", calls, result.Err, badRequest)
	}

	calls = 0
	result = New(cfg).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return rateLimited
	})
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}

	calls = 0
	New(cfg).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(badRequest)
	})
	if calls != 4 {
		t.Errorf("Retryable calls = %d, want 4", calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error {
		t.Error("operation should not run on a canceled context")
		return nil
	})
	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}
}

func TestDoWithCallback(t *testing.T) {
	var attempts []int
	New(fastConfig(2)).DoWithCallback(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt int, err error, next time.Duration) {
		attempts = append(attempts, attempt)
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateInterval_Capped(t *testing.T) {
	r := New(&Config{InitialInterval: time.Second, MaxInterval: 3 * time.Second, Multiplier: 2})

	if got := r.calculateInterval(0); got != time.Second {
		t.Errorf("calculateInterval(0) = %v, want 1s", got)
	}
	if got := r.calculateInterval(5); got != 3*time.Second {
		t.Errorf("calculateInterval(5) = %v, want 3s", got)
	}
}
