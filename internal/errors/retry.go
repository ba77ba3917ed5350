package errors

import (
	"context"
	"time"
)

// RetryConfig configures retry behavior. Backoff grows linearly with the
// attempt number: the wait before attempt n is n * Delay, capped at MaxDelay.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retries (0 = no retries)
	Delay          time.Duration // Base delay, multiplied by the attempt number
	MaxDelay       time.Duration // Maximum delay between retries
	RetryableTypes []ErrorType   // Error types that should be retried
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		Delay:      500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		RetryableTypes: []ErrorType{
			Network,
			Timeout,
			RateLimit,
		},
	}
}

// Retrier implements retry logic with linear backoff.
type Retrier struct {
	config RetryConfig
	delays []time.Duration
}

// NewRetrier creates a new retrier.
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		delays: LinearBackoff(config.MaxRetries, config.Delay, config.MaxDelay),
	}
}

// NewDefaultRetrier creates a retrier with default configuration.
func NewDefaultRetrier() *Retrier {
	return NewRetrier(DefaultRetryConfig())
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryResult holds the result of a retry operation.
type RetryResult struct {
	Attempts  int           // Number of attempts made
	LastError error         // The last error encountered
	Duration  time.Duration // Total time spent retrying
	Success   bool          // Whether the operation succeeded
}

// Do executes the function with retries.
func (r *Retrier) Do(ctx context.Context, operation string, target string, fn RetryFunc) *RetryResult {
	result := &RetryResult{}
	start := time.Now()

	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts++

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			return result
		}

		lastErr = err

		if ctx.Err() != nil {
			result.LastError = NewCancelledError(target, operation)
			result.Duration = time.Since(start)
			return result
		}

		if attempt >= r.config.MaxRetries {
			break
		}

		if !r.shouldRetry(err) {
			break
		}

		select {
		case <-ctx.Done():
			result.LastError = NewCancelledError(target, operation)
			result.Duration = time.Since(start)
			return result
		case <-time.After(r.delayFor(attempt + 1)):
		}
	}

	result.LastError = lastErr
	result.Duration = time.Since(start)
	return result
}

// shouldRetry checks if an error should be retried.
func (r *Retrier) shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	errType := GetErrorType(err)

	for _, t := range r.config.RetryableTypes {
		if errType == t {
			return true
		}
	}

	return IsRetryable(err)
}

// delayFor returns the wait before the given attempt (1-based).
func (r *Retrier) delayFor(attempt int) time.Duration {
	if attempt >= 1 && attempt <= len(r.delays) {
		return r.delays[attempt-1]
	}
	return r.config.MaxDelay
}

// DoWithResult executes a function that returns a value and error.
func DoWithResult[T any](ctx context.Context, r *Retrier, operation, target string, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	var result T
	var lastErr error

	retryResult := r.Do(ctx, operation, target, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		lastErr = err
		return err
	})

	if !retryResult.Success {
		retryResult.LastError = lastErr
	}

	return result, retryResult
}

// LinearBackoff returns the sequence of backoff durations a retrier with the
// given configuration would wait between attempts.
func LinearBackoff(maxRetries int, delay, max time.Duration) []time.Duration {
	delays := make([]time.Duration, maxRetries)

	for i := 0; i < maxRetries; i++ {
		d := time.Duration(i+1) * delay
		if max > 0 && d > max {
			d = max
		}
		delays[i] = d
	}

	return delays
}
