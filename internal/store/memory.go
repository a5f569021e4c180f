package store

import (
	"context"
	"sort"
	"sync"

	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// MemoryStore keeps aggregates in process memory. Documents are cloned on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	pages    map[string]*model.Page
	projects map[string]*model.Project
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:    make(map[string]*model.Page),
		projects: make(map[string]*model.Project),
	}
}

func (m *MemoryStore) GetPage(_ context.Context, id string) (*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) FindPageByName(_ context.Context, projectID, pageName string) (*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *model.Page
	for _, p := range m.pages {
		if p.ProjectID != projectID || p.PageName != pageName {
			continue
		}
		if found == nil || p.UpdatedAt.After(found.UpdatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (m *MemoryStore) SaveAggregate(ctx context.Context, project *model.Project, page *model.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if project != nil {
		m.projects[project.ID] = project.Clone()
	}
	if page != nil {
		m.pages[page.ID] = page.Clone()
	}
	return nil
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
