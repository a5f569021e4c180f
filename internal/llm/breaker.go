package llm

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/sony/gobreaker"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Breaker wraps a Client with a circuit breaker. Only transient failures
// count toward tripping, whether they happen when the call is made or while
// its stream is read. An open circuit surfaces as a retryable provider
// error so the retry loop backs off instead of failing outright.
type Breaker struct {
	inner Client
	cb    *gobreaker.TwoStepCircuitBreaker
}

// NewBreaker wraps inner using cfg.
func NewBreaker(inner Client, cfg config.BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

func (b *Breaker) Name() string { return b.inner.Name() }

// State exposes the breaker state for health reporting.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Create(ctx context.Context, req Request) (*Stream, error) {
	done, err := b.cb.Allow()
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.WrapError(err, errors.CategoryProvider, "generation service circuit open").
				Retryable().
				WithContext("provider", b.inner.Name()).
				Build()
		}
		return nil, err
	}
	s, err := b.inner.Create(ctx, req)
	if err != nil {
		done(healthy(err))
		return nil, err
	}
	s.finish = func(err error) { done(healthy(err)) }
	return s, nil
}

// healthy reports whether err leaves the provider in good standing.
func healthy(err error) bool {
	return err == nil || !errors.IsRetryable(err)
}
