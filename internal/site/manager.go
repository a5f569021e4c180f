// Package site manages Project and Page aggregates: it rewrites markup to the
// canonical addressing scheme, keeps modification history and persists both
// documents in one store write.
package site

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/linkaudit"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/plan"
	"git.home.luguber.info/inful/pagesmith/internal/rewrite"
	"git.home.luguber.info/inful/pagesmith/internal/store"
)

// SaveRequest is the input of Manager.Save.
type SaveRequest struct {
	HTML   string `json:"html" validate:"required"`
	Prompt string `json:"prompt"`

	// Modification saves name the page to change.
	IsModification bool   `json:"isModification"`
	PageID         string `json:"pageId" validate:"required_if=IsModification true"`
	// Plan is an optional description of the modification, kept in history.
	Plan string `json:"plan,omitempty"`

	ProjectID          string               `json:"projectId,omitempty"`
	ProjectName        string               `json:"projectName,omitempty"`
	ProjectDescription string               `json:"projectDescription,omitempty"`
	GenerationType     model.GenerationType `json:"generationType,omitempty" validate:"omitempty,oneof=single multi long hierarchical"`
	PlannedPages       []string             `json:"plannedPages,omitempty" validate:"omitempty,dive,required"`
	DesignSystem       map[string]any       `json:"designSystem,omitempty"`
	PageName           string               `json:"pageName,omitempty"`
	SectionIndex       int                  `json:"sectionIndex,omitempty" validate:"gte=0"`
	TotalSections      int                  `json:"totalSections,omitempty" validate:"gte=0"`
}

// SaveResult describes a committed save.
type SaveResult struct {
	Page           *model.Page       `json:"page"`
	Project        *model.Project    `json:"project,omitempty"`
	ProjectCreated bool              `json:"projectCreated"`
	PageCreated    bool              `json:"pageCreated"`
	PreviewURL     string            `json:"previewUrl"`
	Rewrite        rewrite.Report    `json:"rewrite"`
	Audit          *linkaudit.Report `json:"audit,omitempty"`
}

// Manager is the single write path for pages and projects.
type Manager struct {
	store     store.Store
	rewriter  *rewrite.Rewriter
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	// Saves are serialized per project so concurrent page saves do not drop
	// each other's descriptors.
	locks sync.Map
}

// Option configures a Manager.
type Option func(*Manager)

// WithRewriter replaces the default Rewriter.
func WithRewriter(r *rewrite.Rewriter) Option {
	return func(m *Manager) {
		if r != nil {
			m.rewriter = r
		}
	}
}

// WithPublisher sets the page.saved notification sink.
func WithPublisher(p notify.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager builds a Manager over st.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		rewriter:  rewrite.New(),
		publisher: notify.Noop{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewProjectID allocates an ID for a project that does not exist yet. A
// later save naming it creates the project under that ID.
func (m *Manager) NewProjectID() string { return m.newID() }

// Save persists one page and its project.
func (m *Manager) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if req.IsModification {
		return m.saveModification(ctx, req)
	}
	return m.saveGenerated(ctx, req)
}

func (m *Manager) saveModification(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if req.PageID == "" {
		return SaveResult{}, errors.ValidationError("modification save requires a page id").Build()
	}

	page, err := m.store.GetPage(ctx, req.PageID)
	if err != nil {
		return SaveResult{}, m.readErr(err, "page", req.PageID)
	}
	// Generated saves into the same project rewrite its descriptor list, so
	// both paths serialize on the project key. Re-read under the lock.
	key := page.ProjectID
	if key == "" {
		key = page.ID
	}
	unlock := m.lock(key)
	defer unlock()
	if page, err = m.store.GetPage(ctx, req.PageID); err != nil {
		return SaveResult{}, m.readErr(err, "page", req.PageID)
	}

	var project *model.Project
	known := []string{page.PageName}
	if page.ProjectID != "" {
		project, err = m.store.GetProject(ctx, page.ProjectID)
		switch {
		case err == nil:
			known = project.PlannedPages
		case stderrors.Is(err, store.ErrNotFound):
			project = nil
		default:
			return SaveResult{}, m.readErr(err, "project", page.ProjectID)
		}
	}

	now := m.now()
	html, rep := m.rewriter.RewriteReport(req.HTML, page.ProjectID, page.PageName, known)
	if page.ProjectID == "" {
		// Standalone pages have no link namespace; store as given.
		html, rep = req.HTML, rewrite.Report{}
	}

	if page.OriginalPrompt == "" {
		page.OriginalPrompt = page.Prompt
	}
	page.HTML = html
	page.OriginalHTML = req.HTML
	page.IsModification = true
	if req.Prompt != "" {
		page.Prompt = req.Prompt
	}
	page.ModificationHistory = append(page.ModificationHistory, model.HistoryEntry{
		Request:   req.Prompt,
		Plan:      req.Plan,
		Timestamp: now,
	})
	page.UpdatedAt = now

	if project != nil {
		project.UpdatedAt = now
	}
	if err := m.commit(ctx, project, page); err != nil {
		return SaveResult{}, err
	}

	res := SaveResult{
		Page:       page,
		Project:    project,
		PreviewURL: previewURL(page),
		Rewrite:    rep,
	}
	m.afterCommit(ctx, &res)
	return res, nil
}

func (m *Manager) saveGenerated(ctx context.Context, req SaveRequest) (SaveResult, error) {
	planned, err := PlannedPages(req.PlannedPages)
	if err != nil {
		return SaveResult{}, err
	}
	pageName := strings.TrimSpace(req.PageName)
	if pageName == "" {
		pageName = model.IndexPage
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = m.newID()
	}
	unlock := m.lock(projectID)
	defer unlock()

	now := m.now()
	res := SaveResult{}

	project, err := m.store.GetProject(ctx, projectID)
	switch {
	case err == nil:
		if err := mergePlanned(project, planned); err != nil {
			return SaveResult{}, err
		}
		if req.DesignSystem != nil {
			project.DesignSystem = req.DesignSystem
		}
		project.UpdatedAt = now
	case stderrors.Is(err, store.ErrNotFound):
		project = &model.Project{
			ID:             projectID,
			Name:           firstNonEmpty(req.ProjectName, nameFromPrompt(req.Prompt)),
			Description:    req.ProjectDescription,
			GenerationType: generationType(req.GenerationType, planned),
			Pages:          []model.PageRef{},
			PlannedPages:   planned,
			DesignSystem:   req.DesignSystem,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		res.ProjectCreated = true
	default:
		return SaveResult{}, m.readErr(err, "project", projectID)
	}

	if !project.IsPlanned(pageName) {
		return SaveResult{}, errors.ValidationError(fmt.Sprintf("page %q is not one of the project's planned pages", pageName)).
			WithContext("project_id", projectID).
			WithContext("planned_pages", project.PlannedPages).
			Build()
	}

	page, err := m.existingPage(ctx, project, pageName)
	if err != nil {
		return SaveResult{}, err
	}
	if page == nil {
		page = &model.Page{
			ID:        m.newID(),
			ProjectID: project.ID,
			PageName:  pageName,
			PageType:  model.TypeFor(pageName),
			CreatedAt: now,
		}
		res.PageCreated = true
	}

	html, rep := m.rewriter.RewriteReport(req.HTML, project.ID, pageName, project.PlannedPages)
	page.HTML = html
	page.OriginalHTML = req.HTML
	page.Prompt = req.Prompt
	page.IsModification = false
	page.SectionIndex = req.SectionIndex
	page.TotalSections = req.TotalSections
	page.UpdatedAt = now

	project.UpsertRef(model.PageRef{
		PageID:     page.ID,
		PageName:   pageName,
		IsMainPage: pageName == model.IndexPage,
	})

	if err := m.commit(ctx, project, page); err != nil {
		return SaveResult{}, err
	}

	res.Page = page
	res.Project = project
	res.PreviewURL = previewURL(page)
	res.Rewrite = rep
	m.afterCommit(ctx, &res)
	return res, nil
}

// existingPage finds the page already stored under pageName, by descriptor
// first and back-reference second.
func (m *Manager) existingPage(ctx context.Context, project *model.Project, pageName string) (*model.Page, error) {
	if ref, ok := project.FindRef(pageName); ok && ref.PageID != "" {
		p, err := m.store.GetPage(ctx, ref.PageID)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, store.ErrNotFound) {
			return nil, m.readErr(err, "page", ref.PageID)
		}
	}
	p, err := m.store.FindPageByName(ctx, project.ID, pageName)
	switch {
	case err == nil:
		return p, nil
	case stderrors.Is(err, store.ErrNotFound):
		return nil, nil
	default:
		return nil, m.readErr(err, "page", pageName)
	}
}

func (m *Manager) commit(ctx context.Context, project *model.Project, page *model.Page) error {
	if err := m.store.SaveAggregate(ctx, project, page); err != nil {
		if ctx.Err() != nil {
			return errors.WrapError(err, errors.CategoryCanceled, "save canceled").Info().Build()
		}
		b := errors.WrapError(err, errors.CategoryPersistence, "failed to persist page").
			WithContext("page_id", page.ID)
		if project != nil {
			b = b.WithContext("project_id", project.ID)
		}
		return b.Build()
	}
	return nil
}

// afterCommit publishes the notification and logs the link audit. Neither
// affects the outcome of the save.
func (m *Manager) afterCommit(ctx context.Context, res *SaveResult) {
	page := res.Page
	log := m.logger.With(logfields.PageID(page.ID), logfields.ProjectID(page.ProjectID), logfields.PageName(page.PageName))

	if err := m.publisher.PublishPageSaved(ctx, notify.PageSaved{
		ProjectID:      page.ProjectID,
		PageID:         page.ID,
		PageName:       page.PageName,
		IsModification: page.IsModification,
		PreviewURL:     res.PreviewURL,
		Timestamp:      page.UpdatedAt,
	}); err != nil {
		log.Warn("Failed to publish page.saved", logfields.Error(err))
	}

	if res.Project == nil {
		log.Info("Page saved")
		return
	}
	audit, err := linkaudit.Audit(page.HTML, res.Project.ID, page.PageName, res.Project.PlannedPages)
	if err != nil {
		log.Warn("Link audit failed", logfields.Error(err))
		return
	}
	res.Audit = &audit
	for _, l := range audit.Unresolved {
		log.Warn("Unresolved intra-site link",
			slog.String("url", l.URL),
			slog.String("tag", l.Tag))
	}
	log.Info("Page saved",
		slog.Int("rewrites", res.Rewrite.Total()),
		slog.Int("unresolved_links", len(audit.Unresolved)))
}

func (m *Manager) readErr(err error, kind, id string) error {
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NotFoundError(kind+" not found").WithContext(kind+"_id", id).Build()
	}
	return errors.WrapError(err, errors.CategoryPersistence, "failed to read "+kind).
		WithContext(kind+"_id", id).Build()
}

func (m *Manager) lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// PlannedPages normalizes a planned page list: an empty list becomes
// ["index"], "index" is prepended when missing, blanks and exact repeats are
// dropped. Names that collide after case folding are rejected.
func PlannedPages(names []string) ([]string, error) {
	out := []string{model.IndexPage}
	seen := map[string]bool{model.IndexPage: true}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if dups := plan.FoldedDuplicates(out); len(dups) > 0 {
		return nil, errors.ValidationError("planned page names collide case-insensitively").
			WithContext("duplicates", dups).Build()
	}
	return out, nil
}

// mergePlanned extends a project's planned pages; existing names keep their
// position so Pages never references a name outside PlannedPages.
func mergePlanned(project *model.Project, planned []string) error {
	merged := append([]string(nil), project.PlannedPages...)
	for _, n := range planned {
		if !project.IsPlanned(n) {
			merged = append(merged, n)
		}
	}
	if dups := plan.FoldedDuplicates(merged); len(dups) > 0 {
		return errors.ValidationError("planned page names collide case-insensitively").
			WithContext("project_id", project.ID).
			WithContext("duplicates", dups).Build()
	}
	project.PlannedPages = merged
	return nil
}

func generationType(t model.GenerationType, planned []string) model.GenerationType {
	if t != "" {
		return t
	}
	if len(planned) > 1 {
		return model.GenerationMulti
	}
	return model.GenerationSingle
}

func previewURL(page *model.Page) string {
	if page.ProjectID == "" {
		return "/preview/" + page.ID
	}
	return model.CanonicalPath(page.ProjectID, page.PageName)
}

func nameFromPrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 6 {
		words = words[:6]
	}
	name := strings.Join(words, " ")
	if name == "" {
		return "Untitled site"
	}
	return name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
