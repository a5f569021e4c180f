// Package stream frames generation progress as Server-Sent Events.
//
// An Emitter owns one response for its whole life. It interleaves keep-alive
// comments, typed progress events and content deltas, and terminates with a
// single "data: [DONE]" sentinel no matter how the request ends.
package stream

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
)

// DefaultKeepAlive is the interval between keep-alive comments.
const DefaultKeepAlive = 10 * time.Second

// Sentinel is the data payload of the final frame.
const Sentinel = "[DONE]"

// ErrClosed is returned by writes after Close.
var ErrClosed = stderrors.New("stream closed")

// EventType tags a progress event.
type EventType string

const (
	EventPlan      EventType = "plan"
	EventStage     EventType = "stage"
	EventUnitStart EventType = "unit_start"
	EventUnitDone  EventType = "unit_done"
	EventUnitReset EventType = "unit_reset"
	EventSaved     EventType = "saved"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
)

// Event is a progress frame payload.
type Event struct {
	Type         EventType `json:"type"`
	GenerationID string    `json:"generationId,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Index        int       `json:"index,omitempty"`
	Total        int       `json:"total,omitempty"`
	Message      string    `json:"message,omitempty"`
	Data         any       `json:"data,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Type      EventType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

type deltaPayload struct {
	Type    string `json:"type"`
	Unit    string `json:"unit"`
	Content string `json:"content"`
}

// Stats counts frames written, for diagnostics and tests.
type Stats struct {
	Events     int
	Deltas     int
	KeepAlives int
	Sentinels  int
}

// Emitter writes SSE frames to one response. Methods are safe for concurrent use.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	stats  Stats

	closeOnce sync.Once
	stopTick  chan struct{}
	tickDone  chan struct{}

	keepAlive time.Duration
	logger    *slog.Logger
	recorder  metrics.Recorder
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithKeepAlive sets the keep-alive interval. Non-positive values use the default.
func WithKeepAlive(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.keepAlive = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder tracks open streams.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Emitter) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New writes the SSE response headers and starts the keep-alive ticker.
// The caller must call Close on every path.
func New(w http.ResponseWriter, opts ...Option) *Emitter {
	e := &Emitter{
		w:         w,
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
		keepAlive: DefaultKeepAlive,
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.flusher, _ = w.(http.Flusher)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	e.flush()

	e.recorder.AddActiveStreams(1)
	go e.tick()
	return e
}

func (e *Emitter) tick() {
	defer close(e.tickDone)
	t := time.NewTicker(e.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-e.stopTick:
			return
		case <-t.C:
			if err := e.write(": keep-alive\n\n", func(s *Stats) { s.KeepAlives++ }); err != nil {
				return
			}
		}
	}
}

// Event sends a progress frame.
func (e *Emitter) Event(ev Event) error {
	return e.writeJSON("event: progress\n", ev, func(s *Stats) { s.Events++ })
}

// Delta sends a content increment for unit.
func (e *Emitter) Delta(unit, content string) error {
	return e.writeJSON("", deltaPayload{Type: "delta", Unit: unit, Content: content}, func(s *Stats) { s.Deltas++ })
}

// Error sends an error frame describing err.
func (e *Emitter) Error(err error) error {
	return e.writeJSON("event: progress\n", PayloadFor(err), func(s *Stats) { s.Events++ })
}

// PayloadFor maps err onto the error frame fields.
func PayloadFor(err error) ErrorPayload {
	p := ErrorPayload{Type: EventError, Code: string(errors.CategoryInternal), Message: "internal error"}
	if err == nil {
		return p
	}
	p.Message = err.Error()
	if ce, ok := errors.AsClassified(err); ok {
		p.Code = string(ce.Category())
		p.Retryable = ce.CanRetry()
	}
	return p
}

// Close stops the ticker, writes the sentinel and marks the stream closed.
// Only the first call has any effect.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.stopTick)
		<-e.tickDone

		e.mu.Lock()
		err := e.writeLocked("data: "+Sentinel+"\n\n", func(s *Stats) { s.Sentinels++ })
		e.closed = true
		e.mu.Unlock()
		if err != nil {
			e.logger.Debug("Sentinel not delivered", slog.Any("error", err))
		}
		e.recorder.AddActiveStreams(-1)
	})
}

// Closed reports whether the stream has finished or its client went away.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Stats returns a snapshot of frame counters.
func (e *Emitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Emitter) writeJSON(prefix string, v any, count func(*Stats)) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return e.write(prefix+"data: "+string(data)+"\n\n", count)
}

// write emits one frame. A failed write means the client is gone: the stream
// is marked closed and later writes return ErrClosed.
func (e *Emitter) write(frame string, count func(*Stats)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeLocked(frame, count)
}

func (e *Emitter) writeLocked(frame string, count func(*Stats)) error {
	if e.closed {
		return ErrClosed
	}
	if _, err := e.w.Write([]byte(frame)); err != nil {
		e.closed = true
		return errors.WrapError(err, errors.CategoryDisconnected, "client disconnected").Info().Build()
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	count(&e.stats)
	return nil
}

func (e *Emitter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
