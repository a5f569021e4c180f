package site

import (
	"context"
	stderrors "errors"

	"git.home.luguber.info/inful/pagesmith/internal/linkaudit"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/store"
)

// GetPage returns a page by ID.
func (m *Manager) GetPage(ctx context.Context, id string) (*model.Page, error) {
	p, err := m.store.GetPage(ctx, id)
	if err != nil {
		return nil, m.readErr(err, "page", id)
	}
	return p, nil
}

// GetProject returns a project by ID.
func (m *Manager) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := m.store.GetProject(ctx, id)
	if err != nil {
		return nil, m.readErr(err, "project", id)
	}
	return p, nil
}

// ListProjects returns every project, most recently updated first.
func (m *Manager) ListProjects(ctx context.Context) ([]*model.Project, error) {
	ps, err := m.store.ListProjects(ctx)
	if err != nil {
		return nil, m.readErr(err, "project", "")
	}
	return ps, nil
}

// ProjectPages loads the stored pages of a project in descriptor order.
// Descriptors whose page is gone are skipped.
func (m *Manager) ProjectPages(ctx context.Context, project *model.Project) ([]*model.Page, error) {
	pages := make([]*model.Page, 0, len(project.Pages))
	for _, ref := range project.Pages {
		var (
			p   *model.Page
			err error
		)
		if ref.PageID != "" {
			p, err = m.store.GetPage(ctx, ref.PageID)
		} else {
			p, err = m.store.FindPageByName(ctx, project.ID, ref.PageName)
		}
		if stderrors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, m.readErr(err, "page", ref.PageName)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// AuditProject runs the link audit over every stored page of a project.
func (m *Manager) AuditProject(ctx context.Context, projectID string) ([]linkaudit.Report, error) {
	project, err := m.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	pages, err := m.ProjectPages(ctx, project)
	if err != nil {
		return nil, err
	}
	return linkaudit.AuditPages(project, pages)
}

// PageByName returns the stored page named pageName in projectID.
func (m *Manager) PageByName(ctx context.Context, projectID, pageName string) (*model.Page, error) {
	project, err := m.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	page, err := m.existingPage(ctx, project, pageName)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, m.readErr(store.ErrNotFound, "page", pageName)
	}
	return page, nil
}
