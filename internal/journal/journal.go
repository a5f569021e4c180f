// Package journal records what happened during a generation run: the plan,
// each stage, retries, saves and the terminal state. Entries are append-only
// and pruned after a retention window.
package journal

import (
	"context"
	"time"
)

// Kind names a journal entry type.
type Kind string

const (
	KindPlanned   Kind = "planned"
	KindStage     Kind = "stage"
	KindRetry     Kind = "retry"
	KindUnitDone  Kind = "unit_done"
	KindSaved     Kind = "saved"
	KindWarning   Kind = "warning"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindCanceled  Kind = "canceled"
)

// Entry is one recorded generation event.
type Entry struct {
	ID           int64             `json:"id"`
	GenerationID string            `json:"generationId"`
	Kind         Kind              `json:"kind"`
	Timestamp    time.Time         `json:"timestamp"`
	Payload      []byte            `json:"payload,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Journal persists and reads generation entries.
type Journal interface {
	// Append adds an entry for the generation.
	Append(ctx context.Context, generationID string, kind Kind, payload []byte, metadata map[string]string) error

	// ByGeneration returns the entries of one generation in append order.
	ByGeneration(ctx context.Context, generationID string) ([]Entry, error)

	// Prune deletes entries older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources.
	Close() error
}

// Noop discards everything. Used when the journal is disabled.
type Noop struct{}

func (Noop) Append(context.Context, string, Kind, []byte, map[string]string) error { return nil }
func (Noop) ByGeneration(context.Context, string) ([]Entry, error)                 { return nil, nil }
func (Noop) Prune(context.Context, time.Time) (int64, error)                       { return 0, nil }
func (Noop) Close() error                                                          { return nil }
