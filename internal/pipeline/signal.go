package pipeline

import (
	"context"
	"sort"
	"sync"
)

// Signal is the cooperative cancellation flag of one generation. It trips
// when the request context ends or Cancel is called, whichever comes first.
type Signal struct {
	ctx    context.Context
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	reason string
}

// NewSignal returns a Signal bound to the request context.
func NewSignal(ctx context.Context) *Signal {
	return &Signal{ctx: ctx, done: make(chan struct{})}
}

// Cancel trips the signal. Only the first reason is kept.
func (s *Signal) Cancel(reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// Canceled polls the signal.
func (s *Signal) Canceled() bool {
	select {
	case <-s.done:
		return true
	default:
	}
	if s.ctx.Err() != nil {
		s.Cancel("client disconnected")
		return true
	}
	return false
}

// Reason returns why the signal tripped, or "" while it has not.
func (s *Signal) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done is closed once Cancel has been called.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Registry tracks the signals of in-flight generations so they can be
// canceled by ID.
type Registry struct {
	mu      sync.Mutex
	signals map[string]*Signal
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{signals: make(map[string]*Signal)}
}

// Register adds a generation and returns a function that removes it.
func (r *Registry) Register(id string, s *Signal) func() {
	r.mu.Lock()
	r.signals[id] = s
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if r.signals[id] == s {
			delete(r.signals, id)
		}
		r.mu.Unlock()
	}
}

// Cancel trips the signal of generation id. It reports whether the
// generation was active.
func (r *Registry) Cancel(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.signals[id]
	r.mu.Unlock()
	if ok {
		s.Cancel(reason)
	}
	return ok
}

// Active lists in-flight generation IDs.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.signals))
	for id := range r.signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
