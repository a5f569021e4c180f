package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// SQLiteStore implements Store using SQLite. Aggregates are stored as JSON
// documents alongside the columns needed for lookups.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		project_id TEXT,
		page_name TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		doc BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_project_name ON pages(project_id, page_name);
	CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM pages WHERE id = ?", id).Scan(&doc)
	return decodePage(doc, err)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM projects WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	var p model.Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) FindPageByName(ctx context.Context, projectID, pageName string) (*model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM pages WHERE project_id = ? AND page_name = ? ORDER BY updated_at DESC LIMIT 1",
		projectID, pageName,
	).Scan(&doc)
	return decodePage(doc, err)
}

func decodePage(doc []byte, err error) (*model.Page, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	var p model.Page
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}

// SaveAggregate writes project and page in a single transaction.
func (s *SQLiteStore) SaveAggregate(ctx context.Context, project *model.Project, page *model.Page) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if project != nil {
		doc, mErr := json.Marshal(project)
		if mErr != nil {
			return fmt.Errorf("encode project: %w", mErr)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO projects (id, updated_at, doc) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, doc = excluded.doc`,
			project.ID, project.UpdatedAt.UnixNano(), doc,
		); err != nil {
			return fmt.Errorf("upsert project: %w", err)
		}
	}
	if page != nil {
		doc, mErr := json.Marshal(page)
		if mErr != nil {
			return fmt.Errorf("encode page: %w", mErr)
		}
		var projectID any
		if page.ProjectID != "" {
			projectID = page.ProjectID
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO pages (id, project_id, page_name, updated_at, doc) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id, page_name = excluded.page_name,
			 updated_at = excluded.updated_at, doc = excluded.doc`,
			page.ID, projectID, page.PageName, page.UpdatedAt.UnixNano(), doc,
		); err != nil {
			return fmt.Errorf("upsert page: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM projects ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Project, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p model.Project
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
