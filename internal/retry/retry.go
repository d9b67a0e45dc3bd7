// Package retry wraps fallible operations with bounded retry and
// configurable backoff.
//
// The executor is generic over the operation's result type and reports
// outcomes as a Result value rather than panicking or losing the error
// chain. Sleeps between attempts go through an injectable clock so
// tests run without wall-clock waits.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/marklab/marksync/internal/clock"
	"github.com/marklab/marksync/internal/remote"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy string

const (
	// BackoffConstant uses InitialDelay for every retry.
	BackoffConstant BackoffStrategy = "CONSTANT"

	// BackoffLinear uses InitialDelay * attempt.
	BackoffLinear BackoffStrategy = "LINEAR"

	// BackoffExponential uses InitialDelay * Multiplier^(attempt-1).
	BackoffExponential BackoffStrategy = "EXPONENTIAL"
)

// ErrorClass names a retryable error category for RetryOn.
type ErrorClass string

const (
	ClassNetwork     ErrorClass = "NETWORK"
	ClassRateLimit   ErrorClass = "RATE_LIMIT"
	ClassServerError ErrorClass = "SERVER_ERROR"
	ClassTimeout     ErrorClass = "TIMEOUT"
	ClassAuthExpired ErrorClass = "AUTH_EXPIRED"

	// ClassTransient matches anything the default classifier would
	// retry.
	ClassTransient ErrorClass = "TRANSIENT"
)

// Policy configures the executor.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means try once and give up.
	MaxRetries int

	// InitialDelay seeds the backoff computation.
	InitialDelay time.Duration

	// MaxDelay clamps the computed delay. Zero means no clamp.
	MaxDelay time.Duration

	// Strategy selects the backoff curve. Default: exponential.
	Strategy BackoffStrategy

	// BackoffMultiplier is the exponential growth factor. Default: 2.
	BackoffMultiplier float64

	// UseJitter applies symmetric ±25% jitter to each delay.
	UseJitter bool

	// IsRetryable overrides the default retryability classifier.
	IsRetryable func(error) bool

	// OnRetry is invoked before each sleep with the upcoming attempt
	// number (1-based), the computed delay, and the error that
	// triggered the retry.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultPolicy returns sensible defaults: 3 retries, 1s initial delay,
// 30s cap, exponential backoff with jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		Strategy:          BackoffExponential,
		BackoffMultiplier: 2,
		UseJitter:         true,
	}
}

// Result reports the outcome of an Execute call.
type Result[T any] struct {
	// Success is true when the operation eventually returned nil.
	Success bool

	// Value is the operation's result on success.
	Value T

	// Err is the final error on failure.
	Err error

	// Attempts is how many times the operation ran.
	Attempts int

	// TotalTime is the elapsed time across all attempts and sleeps.
	TotalTime time.Duration
}

// Operation is a fallible unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Execute runs op with bounded retry per the policy.
//
// Retryable failures sleep the computed backoff delay and try again, up
// to MaxRetries retries. A non-retryable error aborts immediately with
// Attempts = 1. Context cancellation during a sleep aborts with the
// context error.
func Execute[T any](ctx context.Context, op Operation[T], p *Policy) Result[T] {
	if p == nil {
		p = DefaultPolicy()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = remote.IsRetryable
	}

	start := clk.Now()
	attempts := 0
	var lastErr error

	for {
		value, err := op(ctx)
		attempts++

		if err == nil {
			return Result[T]{
				Success:   true,
				Value:     value,
				Attempts:  attempts,
				TotalTime: clk.Now().Sub(start),
			}
		}
		lastErr = err

		if attempts > p.MaxRetries {
			break
		}
		if !isRetryable(err) {
			break
		}

		delay := Delay(p, attempts)
		if p.OnRetry != nil {
			p.OnRetry(attempts, delay, err)
		}
		if sleepErr := clk.Sleep(ctx, delay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	return Result[T]{
		Err:       lastErr,
		Attempts:  attempts,
		TotalTime: clk.Now().Sub(start),
	}
}

// Delay computes the backoff delay before retry number attempt
// (1-based): constant, linear in the attempt, or exponential in the
// multiplier, clamped to MaxDelay and then jittered ±25% when enabled.
// The returned delay is never negative.
func Delay(p *Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch p.Strategy {
	case BackoffConstant:
		d = p.InitialDelay
	case BackoffLinear:
		d = p.InitialDelay * time.Duration(attempt)
	default: // exponential
		multiplier := p.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2
		}
		d = time.Duration(float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.UseJitter {
		// Symmetric jitter: d ± 25%.
		jitter := time.Duration((rand.Float64()*0.5 - 0.25) * float64(d))
		d += jitter
	}

	if d < 0 {
		d = 0
	}
	return d
}

// Classifier returns the retryability predicate for one error class.
func Classifier(class ErrorClass) func(error) bool {
	switch class {
	case ClassNetwork:
		return remote.IsNetwork
	case ClassRateLimit:
		return remote.IsRateLimited
	case ClassServerError:
		return remote.IsServerError
	case ClassTimeout:
		return remote.IsTimeout
	case ClassAuthExpired:
		return remote.IsAuthExpired
	default:
		return remote.IsRetryable
	}
}

// RetryOn runs op retrying only errors of the named class. Any other
// error aborts immediately.
func RetryOn[T any](ctx context.Context, op Operation[T], class ErrorClass, p *Policy) Result[T] {
	if p == nil {
		p = DefaultPolicy()
	}
	scoped := *p
	scoped.IsRetryable = Classifier(class)
	return Execute(ctx, op, &scoped)
}

// Wrap returns a zero-argument callable with exception semantics: on
// exhaustion it returns the final error rather than a Result. A
// convenience for call sites that only care about the value.
func Wrap[T any](op Operation[T], p *Policy) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		res := Execute(ctx, op, p)
		if !res.Success {
			var zero T
			if res.Err == nil {
				return zero, errors.New("retry: operation failed")
			}
			return zero, res.Err
		}
		return res.Value, nil
	}
}
