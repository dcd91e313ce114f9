package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func constClass(class ErrorClass) func(error) ErrorClass {
	return func(error) ErrorClass { return class }
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 2*time.Second {
		t.Errorf("MaxBackoff = %v, want 2s", config.MaxBackoff)
	}
}

func TestRetryConfig_ForErrorClass(t *testing.T) {
	base := DefaultRetryConfig()

	tests := []struct {
		errorClass  ErrorClass
		wantInitial time.Duration
		wantMax     time.Duration
	}{
		{ErrorClassServer, 250 * time.Millisecond, 2 * time.Second},
		{ErrorClassRateLimit, time.Second, 8 * time.Second},
		{ErrorClassNetwork, 500 * time.Millisecond, 4 * time.Second},
		{"", 250 * time.Millisecond, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorClass), func(t *testing.T) {
			got := base.ForErrorClass(tt.errorClass)
			if got.InitialBackoff != tt.wantInitial || got.MaxBackoff != tt.wantMax {
				t.Errorf("ForErrorClass(%q) = %v/%v, want %v/%v",
					tt.errorClass, got.InitialBackoff, got.MaxBackoff, tt.wantInitial, tt.wantMax)
			}
			if got.MaxAttempts != base.MaxAttempts {
				t.Errorf("MaxAttempts changed to %d", got.MaxAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), constClass(ErrorClassServer), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), constClass(ErrorClassServer), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	lastErr := errors.New("still failing")
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), constClass(ErrorClassNetwork), func() error {
		calls++
		return lastErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("error = %v, should wrap the last failure", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_NoRetryClasses(t *testing.T) {
	for _, class := range []ErrorClass{ErrorClassClient, ErrorClassUnreachable, ErrorClassDecode} {
		t.Run(string(class), func(t *testing.T) {
			testErr := errors.New("permanent")
			calls := 0
			err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), constClass(class), func() error {
				calls++
				return testErr
			})

			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Error("no retry was attempted, error must not be ErrRetryExhausted")
			}
			if !errors.Is(err, testErr) {
				t.Errorf("error = %v, want original error", err)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := fastRetry()
	config.InitialBackoff = time.Hour
	config.MaxBackoff = time.Hour

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retryWithBackoff(ctx, config, zerolog.Nop(), constClass(ErrorClassServer), func() error {
		calls++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff ignored cancellation")
	}
}

func TestRetryWithBackoff_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	failure := errors.New("failed because cancelled")
	err := retryWithBackoff(ctx, fastRetry(), zerolog.Nop(), constClass(ErrorClassNetwork), func() error {
		calls++
		return failure
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, failure) {
		t.Errorf("error = %v, want the attempt's error", err)
	}
}

func TestRetryWithBackoff_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = retryWithBackoff(context.Background(), RetryConfig{}, zerolog.Nop(), constClass(ErrorClassServer), func() error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
