package llm

import (
	"context"
	"errors"
	"time"
)

// SleepFunc lets tests replace the backoff sleep.
type SleepFunc func(ctx context.Context, d time.Duration) error

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget runs out. A Retry-After hint from the provider overrides the
// computed backoff for that attempt.
func Retry(ctx context.Context, policy RetryPolicy, sleep SleepFunc, fn func() (Response, error)) (Response, error) {
	if sleep == nil {
		sleep = sleepCtx
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var le Error
		if !errors.As(err, &le) || !le.Retryable() {
			return Response{}, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := delay
		if ra := le.RetryAfter(); ra != nil {
			wait = *ra
		}
		if policy.MaxDelay > 0 && wait > policy.MaxDelay {
			wait = policy.MaxDelay
		}
		if err := sleep(ctx, wait); err != nil {
			return Response{}, err
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}
	return Response{}, lastErr
}
