package preview

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/store"
)

type brokenStore struct {
	store.Store
}

func (brokenStore) GetPage(context.Context, string) (*model.Page, error) {
	return nil, stderrors.New("connection reset")
}

func seed(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	project := &model.Project{
		ID:           "P1",
		Name:         "Bakery",
		PlannedPages: []string{"index", "about", "contact"},
		Pages: []model.PageRef{
			{PageID: "pg-index", PageName: "index", IsMainPage: true},
			{PageName: "about"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	index := &model.Page{ID: "pg-index", ProjectID: "P1", PageName: "index",
		HTML: `<html><head><title>Home</title></head><body><a href="about.html">About</a></body></html>`, UpdatedAt: now}
	about := &model.Page{ID: "pg-about", ProjectID: "P1", PageName: "about",
		HTML: `<html><head></head><body><a href="contact.html">Contact</a><a href="./">Home</a></body></html>`, UpdatedAt: now}
	standalone := &model.Page{ID: "legacy-page", PageName: "index", HTML: "<h1>Standalone</h1>", UpdatedAt: now}

	require.NoError(t, st.SaveAggregate(ctx, project, index))
	require.NoError(t, st.SaveAggregate(ctx, nil, about))
	require.NoError(t, st.SaveAggregate(ctx, nil, standalone))
	return st
}

func TestResolve_ProjectRoot(t *testing.T) {
	r := NewResolver(seed(t))

	rendered, nf, err := r.Resolve(context.Background(), "P1", "")
	require.NoError(t, err)
	require.Nil(t, nf)
	require.NotNil(t, rendered)

	assert.Equal(t, "pg-index", rendered.Page.ID)
	assert.Contains(t, rendered.HTML, `href="/preview/P1/about"`)
	assert.Contains(t, rendered.HTML, `<head><meta name="generator" content="pagesmith`)
	assert.Contains(t, rendered.HTML, `<meta name="pagesmith:project-id" content="P1">`)
	assert.Contains(t, rendered.HTML, `<meta name="pagesmith:project-name" content="Bakery">`)
	assert.Contains(t, rendered.HTML, `<meta name="pagesmith:page-name" content="index">`)
}

func TestResolve_LegacyDescriptorByName(t *testing.T) {
	r := NewResolver(seed(t))

	rendered, nf, err := r.Resolve(context.Background(), "P1", "about")
	require.NoError(t, err)
	require.Nil(t, nf)
	assert.Equal(t, "pg-about", rendered.Page.ID)
	assert.Contains(t, rendered.HTML, `href="/preview/P1/contact"`)
	assert.Contains(t, rendered.HTML, `href="/preview/P1"`)
}

func TestResolve_BarePageID(t *testing.T) {
	r := NewResolver(seed(t))

	rendered, nf, err := r.Resolve(context.Background(), "legacy-page", "")
	require.NoError(t, err)
	require.Nil(t, nf)
	assert.Nil(t, rendered.Project)
	assert.Equal(t, `<meta name="generator" content="pagesmith"><meta name="pagesmith:page-name" content="index"><h1>Standalone</h1>`, rendered.HTML)
}

func TestResolve_NotFoundEnumeratesPlannedPages(t *testing.T) {
	r := NewResolver(seed(t))

	for _, name := range []string{"pricing", "About", "contact"} {
		rendered, nf, err := r.Resolve(context.Background(), "P1", name)
		require.NoError(t, err)
		require.Nil(t, rendered, name)
		require.NotNil(t, nf, name)
		assert.Equal(t, name, nf.RequestedPage)
		assert.Equal(t, []PageLink{
			{Name: "index", URL: "/preview/P1"},
			{Name: "about", URL: "/preview/P1/about"},
			{Name: "contact", URL: "/preview/P1/contact"},
		}, nf.AvailablePages)
	}
}

func TestResolve_UnknownProject(t *testing.T) {
	r := NewResolver(seed(t))

	rendered, nf, err := r.Resolve(context.Background(), "nope", "about")
	require.NoError(t, err)
	assert.Nil(t, rendered)
	require.NotNil(t, nf)
	assert.Empty(t, nf.AvailablePages)
}

func TestResolve_StoreFailure(t *testing.T) {
	r := NewResolver(brokenStore{Store: seed(t)})

	_, _, err := r.Resolve(context.Background(), "P1", "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPersistence))
}

func TestResolve_SecondRewriteIsNoop(t *testing.T) {
	st := seed(t)
	r := NewResolver(st)

	page, err := st.GetPage(context.Background(), "pg-index")
	require.NoError(t, err)
	page.HTML = `<a href="/preview/P1/about">About</a>`
	require.NoError(t, st.SaveAggregate(context.Background(), nil, page))

	rendered, _, err := r.Resolve(context.Background(), "P1", "index")
	require.NoError(t, err)
	assert.Zero(t, rendered.Rewrite.Total())
}

func TestRefFor(t *testing.T) {
	assert.Equal(t, WithReference{PageID: "x"}, RefFor("P1", model.PageRef{PageID: "x", PageName: "about"}))
	assert.Equal(t, LegacyByName{ProjectID: "P1", PageName: "about"}, RefFor("P1", model.PageRef{PageName: "about"}))
}

func TestInjectMeta(t *testing.T) {
	tags := []meta{{"generator", `a"b`}}
	assert.Equal(t, `<html lang="en"><head><meta name="generator" content="a&#34;b"></head><body></body></html>`,
		injectMeta(`<html lang="en"><body></body></html>`, tags))
	assert.Equal(t, `<HEAD data-x="1"><meta name="generator" content="a&#34;b"><title>t</title></HEAD>`,
		injectMeta(`<HEAD data-x="1"><title>t</title></HEAD>`, tags))
}

func TestContentPolicy(t *testing.T) {
	assert.Equal(t, DefaultContentPolicy, NewResolver(store.NewMemoryStore()).ContentPolicy())
	assert.Equal(t, "default-src 'none'", NewResolver(store.NewMemoryStore(), WithContentPolicy("default-src 'none'")).ContentPolicy())
}
