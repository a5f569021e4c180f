// Package preview resolves preview requests to stored markup, ready to serve.
package preview

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/rewrite"
	"git.home.luguber.info/inful/pagesmith/internal/store"
	"git.home.luguber.info/inful/pagesmith/internal/version"
)

// DefaultContentPolicy lets generated pages pull images, fonts, scripts and
// styles from external https origins and inline blocks.
const DefaultContentPolicy = "default-src 'self' https: data:; " +
	"img-src 'self' https: data: blob:; " +
	"font-src 'self' https: data:; " +
	"style-src 'self' 'unsafe-inline' https:; " +
	"script-src 'self' 'unsafe-inline' https:; " +
	"connect-src 'self' https:; " +
	"frame-ancestors 'self'"

var (
	headOpenRE = regexp.MustCompile(`(?i)<head(?:\s[^>]*)?>`)
	htmlOpenRE = regexp.MustCompile(`(?i)<html(?:\s[^>]*)?>`)
)

// Rendered is a page ready to serve.
type Rendered struct {
	HTML    string
	Page    *model.Page
	Project *model.Project
	Rewrite rewrite.Report
}

// PageLink is a planned page and its canonical URL.
type PageLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NotFound is the structured answer for an unknown project or page.
type NotFound struct {
	Error          string     `json:"error"`
	ProjectID      string     `json:"projectId"`
	RequestedPage  string     `json:"requestedPage,omitempty"`
	AvailablePages []PageLink `json:"availablePages"`
}

// Resolver serves stored pages.
type Resolver struct {
	store         store.Store
	rewriter      *rewrite.Rewriter
	logger        *slog.Logger
	contentPolicy string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRewriter replaces the default Rewriter.
func WithRewriter(r *rewrite.Rewriter) Option {
	return func(res *Resolver) {
		if r != nil {
			res.rewriter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(res *Resolver) {
		if l != nil {
			res.logger = l
		}
	}
}

// WithContentPolicy overrides DefaultContentPolicy.
func WithContentPolicy(policy string) Option {
	return func(res *Resolver) {
		if strings.TrimSpace(policy) != "" {
			res.contentPolicy = policy
		}
	}
}

// NewResolver builds a Resolver over st.
func NewResolver(st store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:         st,
		rewriter:      rewrite.New(),
		logger:        slog.Default(),
		contentPolicy: DefaultContentPolicy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ContentPolicy is the Content-Security-Policy to send with rendered pages.
func (r *Resolver) ContentPolicy() string { return r.contentPolicy }

// Resolve finds the page addressed by id and pageName. Exactly one of the
// results is non-nil: a Rendered page, a NotFound, or an error for store
// failures.
func (r *Resolver) Resolve(ctx context.Context, id, pageName string) (*Rendered, *NotFound, error) {
	if pageName == "" {
		page, err := r.store.GetPage(ctx, id)
		switch {
		case err == nil:
			return r.render(ctx, page, nil)
		case !stderrors.Is(err, store.ErrNotFound):
			return nil, nil, r.storeErr(err, id)
		}
	}

	project, err := r.store.GetProject(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, &NotFound{
			Error:          fmt.Sprintf("no project or page with id %q", id),
			ProjectID:      id,
			RequestedPage:  pageName,
			AvailablePages: []PageLink{},
		}, nil
	}
	if err != nil {
		return nil, nil, r.storeErr(err, id)
	}

	target := pageName
	if target == "" {
		target = model.IndexPage
	}
	if d, ok := project.FindRef(target); ok {
		page, err := r.load(ctx, RefFor(project.ID, d))
		switch {
		case err == nil:
			return r.render(ctx, page, project)
		case !stderrors.Is(err, store.ErrNotFound):
			return nil, nil, r.storeErr(err, id)
		}
		r.logger.Warn("Project descriptor points at a missing page",
			logfields.ProjectID(project.ID),
			logfields.PageName(target))
	}
	return nil, notFoundFor(project, target), nil
}

// load is the one place a Ref is turned into a stored page.
func (r *Resolver) load(ctx context.Context, ref Ref) (*model.Page, error) {
	switch v := ref.(type) {
	case WithReference:
		return r.store.GetPage(ctx, v.PageID)
	case LegacyByName:
		return r.store.FindPageByName(ctx, v.ProjectID, v.PageName)
	default:
		return nil, fmt.Errorf("unsupported page ref %T", ref)
	}
}

func (r *Resolver) render(ctx context.Context, page *model.Page, project *model.Project) (*Rendered, *NotFound, error) {
	if project == nil && page.ProjectID != "" {
		p, err := r.store.GetProject(ctx, page.ProjectID)
		if err != nil && !stderrors.Is(err, store.ErrNotFound) {
			return nil, nil, r.storeErr(err, page.ProjectID)
		}
		project = p
	}

	out := page.HTML
	var rep rewrite.Report
	if project != nil {
		out, rep = r.rewriter.RewriteReport(page.HTML, project.ID, page.PageName, project.PlannedPages)
	}
	out = injectMeta(out, metaFor(page, project))
	return &Rendered{HTML: out, Page: page, Project: project, Rewrite: rep}, nil, nil
}

func (r *Resolver) storeErr(err error, id string) error {
	return errors.WrapError(err, errors.CategoryPersistence, "failed to load preview").
		WithContext("id", id).Build()
}

func notFoundFor(project *model.Project, target string) *NotFound {
	links := make([]PageLink, 0, len(project.PlannedPages))
	for _, n := range project.PlannedPages {
		links = append(links, PageLink{Name: n, URL: model.CanonicalPath(project.ID, n)})
	}
	return &NotFound{
		Error:          fmt.Sprintf("page %q not found in project %q", target, project.ID),
		ProjectID:      project.ID,
		RequestedPage:  target,
		AvailablePages: links,
	}
}

type meta struct {
	name, content string
}

func metaFor(page *model.Page, project *model.Project) []meta {
	m := []meta{{"generator", version.Generator()}}
	if project != nil {
		m = append(m,
			meta{"pagesmith:project-id", project.ID},
			meta{"pagesmith:project-name", project.Name})
	}
	return append(m, meta{"pagesmith:page-name", page.PageName})
}

// injectMeta inserts meta tags right after <head>. Documents without a head
// get one after <html>, fragments get the tags prepended.
func injectMeta(doc string, tags []meta) string {
	var b strings.Builder
	for _, t := range tags {
		fmt.Fprintf(&b, `<meta name="%s" content="%s">`, html.EscapeString(t.name), html.EscapeString(t.content))
	}
	block := b.String()

	if loc := headOpenRE.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + block + doc[loc[1]:]
	}
	if loc := htmlOpenRE.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "<head>" + block + "</head>" + doc[loc[1]:]
	}
	return block + doc
}
