package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLite opens a journal at dbPath. Use ":memory:" for a throwaway journal.
func NewSQLite(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "open journal database").
			WithContext("path", dbPath).Build()
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db, now: time.Now}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryJournal, "initialize journal schema").Build()
	}
	return j, nil
}

func (j *SQLiteJournal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		generation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_generation_id ON generation_events(generation_id);
	CREATE INDEX IF NOT EXISTS idx_generation_ts ON generation_events(timestamp);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append adds a new entry.
func (j *SQLiteJournal) Append(ctx context.Context, generationID string, kind Kind, payload []byte, metadata map[string]string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return errors.WrapError(err, errors.CategoryJournal, "marshal metadata").Build()
		}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO generation_events (generation_id, kind, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		generationID, string(kind), j.now().UnixNano(), payload, metadataJSON,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryJournal, "insert entry").
			WithContext("generation_id", generationID).Build()
	}
	return nil
}

// ByGeneration retrieves all entries for one generation.
func (j *SQLiteJournal) ByGeneration(ctx context.Context, generationID string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, generation_id, kind, timestamp, payload, metadata FROM generation_events WHERE generation_id = ? ORDER BY id",
		generationID,
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "query entries").Build()
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Prune deletes entries recorded before the cutoff.
func (j *SQLiteJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx, "DELETE FROM generation_events WHERE timestamp < ?", before.UnixNano())
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryJournal, "prune entries").Build()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryJournal, "prune entries").Build()
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			kind         string
			ts           int64
			metadataJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.GenerationID, &kind, &ts, &e.Payload, &metadataJSON); err != nil {
			return nil, errors.WrapError(err, errors.CategoryJournal, "scan entry").Build()
		}
		e.Kind = Kind(kind)
		e.Timestamp = time.Unix(0, ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, errors.WrapError(err, errors.CategoryJournal, "unmarshal metadata").Build()
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "iterate rows").Build()
	}
	return entries, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
