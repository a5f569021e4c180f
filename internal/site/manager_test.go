package site

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.PageSaved
	err    error
}

func (p *recordingPublisher) PublishPageSaved(_ context.Context, evt notify.PageSaved) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) SaveAggregate(context.Context, *model.Project, *model.Page) error { return f.err }

func newTestManager(t *testing.T, st store.Store, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(st, opts...)
	ids := 0
	m.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	m.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }
	return m
}

func TestSave_CreatesProjectAndRewrites(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	m := newTestManager(t, st, WithPublisher(pub))
	ctx := context.Background()

	res, err := m.Save(ctx, SaveRequest{
		ProjectID:    "P1",
		PlannedPages: []string{"index", "about", "contact"},
		PageName:     "index",
		Prompt:       "a bakery website",
		HTML:         `<a href="about.html">About</a><a href="Contact">Contact</a>`,
	})
	require.NoError(t, err)

	assert.True(t, res.ProjectCreated)
	assert.True(t, res.PageCreated)
	assert.Equal(t, "/preview/P1", res.PreviewURL)
	assert.Equal(t, `<a href="/preview/P1/about">About</a><a href="/preview/P1/contact">Contact</a>`, res.Page.HTML)
	assert.Equal(t, `<a href="about.html">About</a><a href="Contact">Contact</a>`, res.Page.OriginalHTML)
	assert.Equal(t, model.PageTypeMain, res.Page.PageType)
	require.NotNil(t, res.Audit)
	assert.True(t, res.Audit.OK())

	project, err := st.GetProject(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "about", "contact"}, project.PlannedPages)
	assert.Equal(t, model.GenerationMulti, project.GenerationType)
	require.Len(t, project.Pages, 1)
	assert.Equal(t, model.PageRef{PageID: res.Page.ID, PageName: "index", IsMainPage: true}, project.Pages[0])

	require.Len(t, pub.events, 1)
	assert.Equal(t, "P1", pub.events[0].ProjectID)
	assert.Equal(t, "/preview/P1", pub.events[0].PreviewURL)
}

func TestSave_ReplacesSameNamedPage(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(t, st)
	ctx := context.Background()

	req := SaveRequest{ProjectID: "P1", PlannedPages: []string{"about"}, PageName: "about", HTML: "<p>v1</p>"}
	first, err := m.Save(ctx, req)
	require.NoError(t, err)

	req.HTML = "<p>v2</p>"
	second, err := m.Save(ctx, req)
	require.NoError(t, err)

	assert.False(t, second.ProjectCreated)
	assert.False(t, second.PageCreated)
	assert.Equal(t, first.Page.ID, second.Page.ID)
	assert.Equal(t, "<p>v2</p>", second.Page.HTML)
	assert.Len(t, second.Project.Pages, 1)
	assert.Equal(t, []string{"index", "about"}, second.Project.PlannedPages)
}

func TestSave_PlannedPagesDefaults(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	res, err := m.Save(context.Background(), SaveRequest{HTML: "<h1>hi</h1>", Prompt: "portfolio for a photographer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"index"}, res.Project.PlannedPages)
	assert.Equal(t, "index", res.Page.PageName)
	assert.Equal(t, model.GenerationSingle, res.Project.GenerationType)
	assert.Equal(t, "portfolio for a photographer", res.Project.Name)
	assert.NotEmpty(t, res.Project.ID)
}

func TestSave_RejectsUnplannedPage(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	_, err := m.Save(context.Background(), SaveRequest{
		PlannedPages: []string{"about"},
		PageName:     "pricing",
		HTML:         "<p>x</p>",
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSave_RejectsFoldedDuplicates(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	_, err := m.Save(context.Background(), SaveRequest{
		PlannedPages: []string{"About", "about"},
		HTML:         "<p>x</p>",
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = PlannedPages([]string{"Index"})
	require.Error(t, err)
}

func TestSave_Modification(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(t, st)
	ctx := context.Background()

	created, err := m.Save(ctx, SaveRequest{
		ProjectID:    "P1",
		PlannedPages: []string{"index", "about"},
		Prompt:       "original request",
		HTML:         "<p>v1</p>",
	})
	require.NoError(t, err)

	for i, request := range []string{"make it blue", "add a footer"} {
		res, err := m.Save(ctx, SaveRequest{
			IsModification: true,
			PageID:         created.Page.ID,
			Prompt:         request,
			Plan:           "restyle",
			HTML:           fmt.Sprintf(`<p>v%d</p><a href="about.html">About</a>`, i+2),
		})
		require.NoError(t, err)
		assert.Equal(t, created.Page.ID, res.Page.ID)
	}

	page, err := st.GetPage(ctx, created.Page.ID)
	require.NoError(t, err)
	assert.True(t, page.IsModification)
	assert.Equal(t, "original request", page.OriginalPrompt)
	assert.Equal(t, `<p>v3</p><a href="/preview/P1/about">About</a>`, page.HTML)
	assert.Equal(t, `<p>v3</p><a href="about.html">About</a>`, page.OriginalHTML)
	require.Len(t, page.ModificationHistory, 2)
	assert.Equal(t, "make it blue", page.ModificationHistory[0].Request)
	assert.Equal(t, "restyle", page.ModificationHistory[1].Plan)

	project, err := st.GetProject(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, project.Pages, 1)
}

func TestSave_ModificationUnknownPage(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	_, err := m.Save(context.Background(), SaveRequest{IsModification: true, PageID: "nope", HTML: "<p/>"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	_, err = m.Save(context.Background(), SaveRequest{IsModification: true, HTML: "<p/>"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSave_PersistenceFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	pub := &recordingPublisher{}
	m := newTestManager(t, failingStore{Store: mem, err: stderrors.New("disk full")}, WithPublisher(pub))

	_, err := m.Save(context.Background(), SaveRequest{ProjectID: "P1", HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPersistence))
	assert.Empty(t, pub.events)

	_, err = mem.GetProject(context.Background(), "P1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSave_PublishFailureDoesNotFailSave(t *testing.T) {
	pub := &recordingPublisher{err: stderrors.New("nats down")}
	m := newTestManager(t, store.NewMemoryStore(), WithPublisher(pub))

	_, err := m.Save(context.Background(), SaveRequest{HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

func TestSave_ConcurrentPagesKeepAllDescriptors(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st)
	ctx := context.Background()
	names := []string{"index", "about", "contact", "team", "blog"}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := m.Save(ctx, SaveRequest{ProjectID: "P1", PlannedPages: names, PageName: name, HTML: "<p>" + name + "</p>"})
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	project, err := st.GetProject(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, project.Pages, len(names))
}

// gatedStore parks the first armed GetProject call until release is closed.
type gatedStore struct {
	*store.MemoryStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := g.MemoryStore.GetProject(ctx, id)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return p, err
}

func TestSave_ModificationKeepsConcurrentDescriptors(t *testing.T) {
	st := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := NewManager(st)
	ctx := context.Background()

	created, err := m.Save(ctx, SaveRequest{ProjectID: "P1", PlannedPages: []string{"index", "about"}, HTML: "<p>v1</p>"})
	require.NoError(t, err)
	st.armed.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Save(ctx, SaveRequest{IsModification: true, PageID: created.Page.ID, Prompt: "darker", HTML: "<p>v2</p>"})
		assert.NoError(t, err)
	}()
	<-st.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Save(ctx, SaveRequest{ProjectID: "P1", PlannedPages: []string{"index", "about"}, PageName: "about", HTML: "<p>about</p>"})
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond)
	close(st.release)
	wg.Wait()

	project, err := st.MemoryStore.GetProject(ctx, "P1")
	require.NoError(t, err)
	var names []string
	for _, ref := range project.Pages {
		names = append(names, ref.PageName)
	}
	assert.ElementsMatch(t, []string{"index", "about"}, names)

	page, err := st.MemoryStore.GetPage(ctx, created.Page.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", page.HTML)
}

func TestAuditProject(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()

	_, err := m.Save(ctx, SaveRequest{ProjectID: "P1", PlannedPages: []string{"about"}, HTML: `<a href="/preview/P1/pricing">Pricing</a>`})
	require.NoError(t, err)
	_, err = m.Save(ctx, SaveRequest{ProjectID: "P1", PageName: "about", HTML: `<a href="/preview/P1">Home</a>`})
	require.NoError(t, err)

	reports, err := m.AuditProject(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.False(t, reports[0].OK())
	assert.True(t, reports[1].OK())

	_, err = m.AuditProject(ctx, "missing")
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}
