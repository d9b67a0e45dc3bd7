package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marklab/marksync/internal/clock"
	"github.com/marklab/marksync/internal/remote"
)

func testPolicy(fake *clock.Fake) *Policy {
	return &Policy{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		Strategy:          BackoffExponential,
		BackoffMultiplier: 2,
		Clock:             fake,
	}
}

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	fake := clock.NewFake(time.Now())
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &remote.NetworkError{Err: errors.New("connection reset")}
		}
		return "ok", nil
	}

	res := Execute(context.Background(), op, testPolicy(fake))

	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.Value != "ok" {
		t.Errorf("expected value ok, got %q", res.Value)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	fake := clock.NewFake(time.Now())
	failure := &remote.HTTPError{Status: 503}
	op := func(ctx context.Context) (int, error) {
		return 0, failure
	}

	p := testPolicy(fake)
	p.MaxRetries = 2
	res := Execute(context.Background(), op, p)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", res.Attempts)
	}
	if !errors.Is(res.Err, failure) {
		t.Errorf("expected last error to surface, got %v", res.Err)
	}
}

func TestExecuteNonRetryableAbortsImmediately(t *testing.T) {
	fake := clock.NewFake(time.Now())
	op := func(ctx context.Context) (int, error) {
		return 0, &remote.ValidationError{Reason: "no folder configured"}
	}

	res := Execute(context.Background(), op, testPolicy(fake))

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("non-retryable error should abort with 1 attempt, got %d", res.Attempts)
	}
	if len(fake.Slept()) != 0 {
		t.Errorf("non-retryable error should not sleep, slept %v", fake.Slept())
	}
}

func TestExecuteBackoffSequence(t *testing.T) {
	fake := clock.NewFake(time.Now())
	op := func(ctx context.Context) (int, error) {
		return 0, &remote.TimeoutError{Op: "fetch"}
	}

	p := &Policy{
		MaxRetries:        4,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          500 * time.Millisecond,
		Strategy:          BackoffExponential,
		BackoffMultiplier: 2,
		Clock:             fake,
	}
	Execute(context.Background(), op, p)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // clamped by MaxDelay
	}
	got := fake.Slept()
	if len(got) != len(want) {
		t.Fatalf("expected %d sleeps, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDelayStrategies(t *testing.T) {
	base := &Policy{
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2,
	}

	tests := []struct {
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{BackoffConstant, 1, 100 * time.Millisecond},
		{BackoffConstant, 5, 100 * time.Millisecond},
		{BackoffLinear, 1, 100 * time.Millisecond},
		{BackoffLinear, 3, 300 * time.Millisecond},
		{BackoffExponential, 1, 100 * time.Millisecond},
		{BackoffExponential, 2, 200 * time.Millisecond},
		{BackoffExponential, 3, 400 * time.Millisecond},
	}

	for _, tt := range tests {
		p := *base
		p.Strategy = tt.strategy
		if got := Delay(&p, tt.attempt); got != tt.want {
			t.Errorf("%s attempt %d: expected %v, got %v", tt.strategy, tt.attempt, tt.want, got)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := &Policy{
		InitialDelay: 100 * time.Millisecond,
		Strategy:     BackoffConstant,
		UseJitter:    true,
	}

	for i := 0; i < 100; i++ {
		d := Delay(p, 1)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±25%% band", d)
		}
	}
}

func TestOnRetryCallback(t *testing.T) {
	fake := clock.NewFake(time.Now())
	var attempts []int
	var delays []time.Duration

	p := testPolicy(fake)
	p.MaxRetries = 2
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	op := func(ctx context.Context) (int, error) {
		return 0, &remote.HTTPError{Status: 502}
	}
	Execute(context.Background(), op, p)

	if len(attempts) != 2 {
		t.Fatalf("expected 2 onRetry calls, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected attempt numbers: %v", attempts)
	}
	if delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Errorf("unexpected delays: %v", delays)
	}
}

func TestCustomClassifier(t *testing.T) {
	fake := clock.NewFake(time.Now())
	sentinel := errors.New("flaky but known")
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, sentinel
		}
		return 42, nil
	}

	p := testPolicy(fake)
	p.IsRetryable = func(err error) bool { return errors.Is(err, sentinel) }
	res := Execute(context.Background(), op, p)

	if !res.Success || res.Value != 42 || res.Attempts != 2 {
		t.Errorf("custom classifier should have retried: %+v", res)
	}
}

func TestRetryOn(t *testing.T) {
	fake := clock.NewFake(time.Now())

	// A network error is not in the RATE_LIMIT class, so it aborts.
	op := func(ctx context.Context) (int, error) {
		return 0, &remote.NetworkError{Err: errors.New("refused")}
	}
	res := RetryOn(context.Background(), op, ClassRateLimit, testPolicy(fake))
	if res.Attempts != 1 {
		t.Errorf("out-of-class error should abort immediately, got %d attempts", res.Attempts)
	}

	// A 429 is.
	calls := 0
	op = func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &remote.HTTPError{Status: 429}
		}
		return 1, nil
	}
	res = RetryOn(context.Background(), op, ClassRateLimit, testPolicy(fake))
	if !res.Success || res.Attempts != 2 {
		t.Errorf("in-class error should retry: %+v", res)
	}
}

func TestWrap(t *testing.T) {
	fake := clock.NewFake(time.Now())
	failure := &remote.HTTPError{Status: 500}
	op := func(ctx context.Context) (int, error) {
		return 0, failure
	}

	p := testPolicy(fake)
	p.MaxRetries = 1
	wrapped := Wrap(op, p)

	_, err := wrapped(context.Background())
	if !errors.Is(err, failure) {
		t.Errorf("wrap should surface the final error, got %v", err)
	}

	ok := func(ctx context.Context) (int, error) { return 7, nil }
	v, err := Wrap(ok, p)(context.Background())
	if err != nil || v != 7 {
		t.Errorf("wrap should pass through success, got %d, %v", v, err)
	}
}

func TestExecuteContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := func(ctx context.Context) (int, error) {
		return 0, &remote.HTTPError{Status: 503}
	}
	// Real clock: the cancelled context short-circuits the sleep.
	p := DefaultPolicy()
	p.UseJitter = false
	res := Execute(ctx, op, p)

	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context error, got %v", res.Err)
	}
}
