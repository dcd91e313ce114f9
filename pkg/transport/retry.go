package transport

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration. Searches are
// interactive, so backoffs stay short.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ForErrorClass scales the configuration for an error class: 429 waits
// four times longer and network errors twice as long as server errors.
func (c RetryConfig) ForErrorClass(errorClass ErrorClass) RetryConfig {
	scaled := c
	switch errorClass {
	case ErrorClassRateLimit:
		scaled.InitialBackoff *= 4
		scaled.MaxBackoff *= 4
	case ErrorClassNetwork:
		scaled.InitialBackoff *= 2
		scaled.MaxBackoff *= 2
	}
	return scaled
}

// retryWithBackoff runs fn until it succeeds, fails with a class that is not
// retried, ctx ends, or the attempts run out. classify maps fn's error to
// its class. Returned errors wrap the last failure.
func retryWithBackoff(ctx context.Context, base RetryConfig, logger zerolog.Logger, classify func(error) ErrorClass, fn func() error) error {
	var lastErr error
	var backoff time.Duration
	attempts := base.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}

		errorClass := classify(err)
		if !shouldRetry(errorClass) {
			return err
		}

		if attempt >= attempts {
			break
		}

		config := base.ForErrorClass(errorClass)
		if backoff == 0 {
			backoff = config.InitialBackoff
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	errorClass := classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
