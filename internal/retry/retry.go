package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loykin/apifetch/internal/common"
	"github.com/loykin/apifetch/internal/constants"
)

// ErrExhausted wraps the last error once every attempt failed.
var ErrExhausted = errors.New("all attempts failed")

// Outcome tags the result of one attempt.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Config holds retry configuration. MaxRetries counts retries, so MaxRetries+1 attempts run.
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialDelay    time.Duration // Delay before the first retry; zero retries immediately
	MaxDelay        time.Duration // Maximum delay between retries
	BackoffFactor   float64       // Multiplier for exponential backoff
	RetryableErrors []string      // Error strings that make an untagged error retryable
	Logger          *common.Logger
	// OnAttempt is called after every attempt with its 1-based number and outcome.
	OnAttempt func(attempt int, outcome Outcome, err error)
}

// DefaultRetryConfig returns the action defaults: three immediate retries.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    constants.DefaultNumRetries,
		InitialDelay:  constants.DefaultRetryInitialDelay,
		MaxDelay:      constants.DefaultRetryMaxDelay,
		BackoffFactor: constants.DefaultRetryMultiplier,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"deadlock",
			"database is locked",
			"broken pipe",
		},
	}
}

// isRetryableError classifies untagged errors by message.
func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

func (rc *Config) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.MaxInterval = rc.MaxDelay
	b.Multiplier = rc.BackoffFactor
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// calculateDelay returns the wait before retry number attempt (0-based).
func (rc *Config) calculateDelay(attempt int) time.Duration {
	b := rc.backOff()
	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		return rc.MaxDelay
	}
	return d
}

func (rc *Config) logger() *common.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return common.GetLogger().WithComponent("retry")
}

// Attempt performs one try and tags its outcome. attempt is 1-based.
type Attempt func(ctx context.Context, attempt int) (Outcome, error)

// Do runs fn until it succeeds, returns Fatal, or MaxRetries+1 attempts are spent.
// It returns the number of attempts made. Fatal errors are returned unwrapped;
// exhaustion wraps the last error with ErrExhausted.
func Do(ctx context.Context, config *Config, fn Attempt) (int, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxAttempts := maxRetries + 1
	logger := config.logger()
	b := config.backOff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, joinCancel(err, lastErr)
		}
		outcome, err := fn(ctx, attempt)
		if outcome == Success && err != nil {
			outcome = Retryable
		}
		if config.OnAttempt != nil {
			config.OnAttempt(attempt, outcome, err)
		}

		switch outcome {
		case Success:
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "attempt", attempt, "max_attempts", maxAttempts)
			}
			return attempt, nil
		case Fatal:
			logger.Error("operation failed with non-retryable error", "error", err, "attempt", attempt)
			return attempt, err
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		delay := b.NextBackOff()
		if delay < 0 {
			delay = config.MaxDelay
		}
		logger.Warn("operation failed, retrying",
			"error", err,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_delay", delay)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, joinCancel(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}

	logger.Error("operation failed after all retry attempts", "error", lastErr, "attempts", maxAttempts)
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

func joinCancel(ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("operation cancelled: %w", ctxErr)
	}
	return fmt.Errorf("operation cancelled during retry: %w (last error: %v)", ctxErr, lastErr)
}

// RetryableOperation is an untagged operation classified by RetryableErrors.
type RetryableOperation func() error

// WithRetry executes a database operation, retrying errors listed in RetryableErrors.
func WithRetry(ctx context.Context, config *Config, operation RetryableOperation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	_, err := Do(ctx, config, func(context.Context, int) (Outcome, error) {
		err := operation()
		switch {
		case err == nil:
			return Success, nil
		case config.isRetryableError(err):
			return Retryable, err
		default:
			return Fatal, err
		}
	})
	return err
}

// WithRetryExec runs exec under WithRetry and returns its last result.
func WithRetryExec[T any](ctx context.Context, config *Config, exec func() (T, error)) (T, error) {
	var result T
	err := WithRetry(ctx, config, func() error {
		var err error
		result, err = exec()
		return err
	})
	return result, err
}
