package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "fantiadl/pkg/errors"
)

func TestExponentialBackoff(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second}, // capped at MaxDelay
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := eb.NextDelay(tt.attempt); got != tt.expected {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.5,
	}

	seen := make(map[time.Duration]bool)
	for i := 0; i < 10; i++ {
		d := eb.NextDelay(2)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Errorf("NextDelay(2) = %v, outside jitter range [100ms, 300ms]", d)
		}
		seen[d] = true
	}

	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}

func TestConstantBackoff(t *testing.T) {
	cb := &ConstantBackoff{Delay: 250 * time.Millisecond}

	if got := cb.NextDelay(0); got != 0 {
		t.Errorf("NextDelay(0) = %v, want 0", got)
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if got := cb.NextDelay(attempt); got != 250*time.Millisecond {
			t.Errorf("NextDelay(%d) = %v, want 250ms", attempt, got)
		}
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.KindNetwork, "temporary failure")
		}
		return nil
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	}

	if err := Do(op, cfg); err != nil {
		t.Errorf("Do() = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		return errs.New(errs.KindNetwork, "always failing")
	}

	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	}

	err := Do(op, cfg)
	if err == nil {
		t.Fatal("Do() = nil, want error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	// The last operation error stays reachable through the wrap
	if !errs.IsKind(err, errs.KindNetwork) {
		t.Errorf("Do() = %v, want wrapped network error", err)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	authErr := &errs.Error{Kind: errs.KindAuth, Message: "session rejected", Code: 401}

	attempts := 0
	op := func() error {
		attempts++
		return authErr
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	}

	err := Do(op, cfg)
	if err != authErr {
		t.Errorf("Do() = %v, want the auth error unchanged", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	op := func() error {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return errs.New(errs.KindNetwork, "failing")
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 50 * time.Millisecond},
		Context:     ctx,
	}

	err := Do(op, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errs.New(errs.KindServerError, "transient")
		}
		return "payload", nil
	}

	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	}

	result, err := DoWithResult(op, cfg)
	if err != nil {
		t.Fatalf("DoWithResult() error = %v", err)
	}
	if result != "payload" {
		t.Errorf("result = %q, want %q", result, "payload")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errs.New(errs.KindNetwork, "connection reset"), true},
		{"rate limit", errs.New(errs.KindRateLimit, "slow down"), true},
		{"server error", errs.New(errs.KindServerError, "bad gateway"), true},
		{"auth", errs.New(errs.KindAuth, "session rejected"), false},
		{"gone post", errs.New(errs.KindPostGone, "deleted"), false},
		{"cancelled", context.Canceled, false},
		{"plain error", errors.New("mystery"), true},
	}

	for _, tt := range tests {
		if got := DefaultRetryIf(tt.err); got != tt.want {
			t.Errorf("%s: DefaultRetryIf() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}
