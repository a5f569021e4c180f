// Package store persists Project and Page aggregates.
//
// Three backends implement Store: SQLite (default), MongoDB and an in-memory
// map for tests and ephemeral runs. Lookups return ErrNotFound rather than a
// nil document.
package store

import (
	"context"
	"errors"
	"fmt"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// Store is the document store contract.
type Store interface {
	GetPage(ctx context.Context, id string) (*model.Page, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	// FindPageByName resolves a page through its back-reference, for project
	// descriptors that carry no page ID.
	FindPageByName(ctx context.Context, projectID, pageName string) (*model.Page, error)
	// SaveAggregate upserts project and page atomically. Either may be nil.
	SaveAggregate(ctx context.Context, project *model.Project, page *model.Page) error
	ListProjects(ctx context.Context) ([]*model.Project, error)
	Close() error
}

// Open constructs the backend selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StorageSQLite, "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
