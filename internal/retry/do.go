package retry

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Observer is notified before each retry sleep. retry is 1-based.
type Observer func(retry int, err error, delay time.Duration)

// Outcome summarizes a Do invocation.
type Outcome struct {
	Attempts int
	Retries  int
	// Exhausted is set when every attempt failed transiently.
	Exhausted bool
}

// Do runs fn until it succeeds, returns a non-transient error, or the policy's
// attempt budget is spent. Transient means errors.IsRetryable. Exhaustion
// returns a fatal provider error wrapping the last failure.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, observe Observer) (Outcome, error) {
	var out Outcome
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		last = fn(ctx, attempt)
		if last == nil {
			return out, nil
		}
		if !errors.IsRetryable(last) {
			return out, last
		}
		if attempt == maxAttempts {
			break
		}
		delay := p.Delay(attempt)
		out.Retries++
		if observe != nil {
			observe(out.Retries, last, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return out, errors.WrapError(err, errors.CategoryCanceled, "retry wait interrupted").Info().Build()
		}
	}
	out.Exhausted = true
	return out, errors.WrapError(last, errors.CategoryProvider, "retries exhausted").
		Fatal().
		WithContext("attempts", out.Attempts).
		Build()
}

func sleep(ctx context.Context, d time.Duration) error {
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
