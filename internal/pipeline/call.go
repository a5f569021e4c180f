package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/llm"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/stream"
)

// unitCall describes one generation call for a unit.
type unitCall struct {
	stage       string
	unit        string
	index       int
	total       int
	instruction string
	maxTokens   int
}

// streamUnit generates a unit with a streamed call, forwarding deltas. A
// retry after partial output emits unit_reset so the client discards it.
func (r *run) streamUnit(uc unitCall) (string, error) {
	r.emit(stream.Event{Type: stream.EventUnitStart, Stage: uc.stage, Unit: uc.unit, Index: uc.index, Total: uc.total})

	var out string
	outcome, err := r.c.policy.Do(r.ctx, func(_ context.Context, attempt int) error {
		if r.sig.Canceled() {
			return r.canceledErr()
		}
		if attempt > 1 {
			r.emit(stream.Event{Type: stream.EventUnitReset, Stage: uc.stage, Unit: uc.unit, Index: uc.index, Total: uc.total})
		}
		text, err := r.call(uc, true, func(delta string) error {
			return r.sink.Delta(uc.unit, delta)
		})
		if err != nil {
			return err
		}
		out = text
		return nil
	}, r.retryObserver(uc))
	if err != nil {
		return "", r.callFailed(uc, outcome, err)
	}

	r.emit(stream.Event{Type: stream.EventUnitDone, Stage: uc.stage, Unit: uc.unit, Index: uc.index, Total: uc.total,
		Data: map[string]int{"length": len(out)}})
	r.record(journal.KindUnitDone, nil, map[string]string{"stage": uc.stage, "unit": uc.unit, "length": strconv.Itoa(len(out))})
	r.plan.SetArtifact(uc.stage, out)
	return out, nil
}

// complete runs a bounded non-streamed call.
func (r *run) complete(uc unitCall) (string, error) {
	var out string
	outcome, err := r.c.policy.Do(r.ctx, func(_ context.Context, _ int) error {
		if r.sig.Canceled() {
			return r.canceledErr()
		}
		text, err := r.call(uc, false, nil)
		if err != nil {
			return err
		}
		out = text
		return nil
	}, r.retryObserver(uc))
	if err != nil {
		return "", r.callFailed(uc, outcome, err)
	}
	r.plan.SetArtifact(uc.stage, out)
	return out, nil
}

// call performs one provider request. The request runs on a context
// detached from the client connection; when the signal trips mid-call the
// rest of the response is drained in the background and discarded.
func (r *run) call(uc unitCall, streamed bool, forward func(string) error) (string, error) {
	system, err := r.c.prompts.Render(prompts.System, prompts.Data{})
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryInternal, "render system prompt").Build()
	}

	callCtx, cancel := r.c.callContext(r.ctx)
	t0 := time.Now()
	s, err := r.c.client.Create(callCtx, llm.Request{
		Model:       r.c.gen.Model,
		System:      system,
		Messages:    llm.UserPrompt(uc.instruction),
		MaxTokens:   uc.maxTokens,
		Temperature: r.c.gen.Temperature,
		Stream:      streamed,
	})
	if err != nil {
		cancel()
		r.c.recorder.ObserveProviderCall(r.c.client.Name(), time.Since(t0), false)
		return "", err
	}

	var b strings.Builder
	for {
		if r.sig.Canceled() {
			r.c.drain(s, cancel, r.log)
			return "", r.canceledErr()
		}
		d, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cancel()
			r.c.recorder.ObserveProviderCall(r.c.client.Name(), time.Since(t0), false)
			return "", err
		}
		b.WriteString(d.Text)
		if forward == nil || d.Text == "" {
			continue
		}
		if ferr := forward(d.Text); ferr != nil {
			r.sig.Cancel("client disconnected")
			r.c.drain(s, cancel, r.log)
			return "", errors.WrapError(ferr, errors.CategoryDisconnected, "client disconnected").Info().Build()
		}
	}
	cancel()
	r.c.recorder.ObserveProviderCall(r.c.client.Name(), time.Since(t0), true)
	return b.String(), nil
}

func (r *run) retryObserver(uc unitCall) retry.Observer {
	label := stageLabel(uc.stage)
	return func(n int, err error, delay time.Duration) {
		if r.plan != nil {
			r.plan.Retries++
		}
		r.res.Retries++
		r.c.recorder.IncRetry(label)
		r.record(journal.KindRetry, nil, map[string]string{
			"stage": uc.stage,
			"unit":  uc.unit,
			"retry": strconv.Itoa(n),
			"delay": delay.String(),
			"error": err.Error(),
		})
		r.log.Warn("Retrying generation call",
			logfields.Stage(uc.stage),
			logfields.Unit(uc.unit),
			logfields.Attempt(n+1),
			slog.Duration("delay", delay),
			logfields.Error(err))
	}
}

func (r *run) callFailed(uc unitCall, outcome retry.Outcome, err error) error {
	if outcome.Exhausted {
		r.c.recorder.IncRetryExhausted(stageLabel(uc.stage))
	}
	if r.sig.Canceled() && !errors.HasCategory(err, errors.CategoryDisconnected) {
		return r.canceledErr()
	}
	return err
}

// callContext detaches provider calls from the request so a disconnect does
// not abort them mid-response.
func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if c.gen.RequestTimeout > 0 {
		return context.WithTimeout(base, c.gen.RequestTimeout)
	}
	return context.WithCancel(base)
}

// drain consumes the rest of an abandoned stream so the provider connection
// is released cleanly. Its output is discarded.
func (c *Controller) drain(s *llm.Stream, cancel context.CancelFunc, log *slog.Logger) {
	c.drains.Add(1)
	go func() {
		defer c.drains.Done()
		stop := time.AfterFunc(c.drainTimeout, cancel)
		defer stop.Stop()
		defer cancel()

		n := 0
		for {
			d, err := s.Next()
			if err != nil {
				break
			}
			n += len(d.Text)
		}
		_ = s.Close()
		log.Debug("Drained abandoned call", slog.Int("discarded_bytes", n))
	}()
}
