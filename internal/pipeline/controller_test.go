package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/llm"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/plan"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/site"
	"git.home.luguber.info/inful/pagesmith/internal/store"
	"git.home.luguber.info/inful/pagesmith/internal/stream"
)

// scriptedClient answers each call through handle; calls are recorded.
type scriptedClient struct {
	mu       sync.Mutex
	requests []llm.Request
	handle   func(n int, req llm.Request) (*llm.Stream, error)
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Create(_ context.Context, req llm.Request) (*llm.Stream, error) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.handle(n, req)
}

func (s *scriptedClient) instructions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Messages[0].Content
	}
	return out
}

// recordingSink collects frames. onDelta may fail to simulate a client
// that went away.
type recordingSink struct {
	mu      sync.Mutex
	events  []stream.Event
	deltas  []string
	onDelta func(n int) error
}

func (s *recordingSink) Event(ev stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Delta(unit, content string) error {
	s.mu.Lock()
	s.deltas = append(s.deltas, unit+"|"+content)
	n := len(s.deltas)
	hook := s.onDelta
	s.mu.Unlock()
	if hook != nil {
		return hook(n)
	}
	return nil
}

func (s *recordingSink) types() []stream.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func (s *recordingSink) count(t stream.EventType) int {
	n := 0
	for _, et := range s.types() {
		if et == t {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl   *Controller
	client *scriptedClient
	store  *store.MemoryStore
	sites  *site.Manager
}

func newHarness(t *testing.T, handle func(n int, req llm.Request) (*llm.Stream, error), opts ...Option) *harness {
	t.Helper()
	set, err := prompts.NewSet("")
	require.NoError(t, err)

	client := &scriptedClient{handle: handle}
	st := store.NewMemoryStore()
	sites := site.NewManager(st)
	policy := retry.NewPolicy(config.RetryBackoffLinear, time.Millisecond, 2*time.Millisecond, 3)
	gen := config.GenerationConfig{
		Model:     "test-model",
		MaxTokens: 8000,
		Budgets:   config.StageBudgets{Needs: 1500, Architecture: 2000, Component: 1200, Assembly: 8000},
	}
	planner := plan.NewPlanner(client, set, "test-model", plan.WithRetryPolicy(policy))

	opts = append([]Option{WithRetryPolicy(policy)}, opts...)
	return &harness{
		ctrl:   New(client, planner, set, sites, gen, opts...),
		client: client,
		store:  st,
		sites:  sites,
	}
}

func text(chunks ...string) *llm.Stream { return llm.StreamOf(chunks, nil) }

func transient() error { return errors.ProviderError("upstream 503").Build() }

func TestRun_SingleShot(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) {
		return text("<html><body>", "<h1>Bakery</h1>", "</body></html>"), nil
	})
	sink := &recordingSink{}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "a bakery", Strategy: "single"}, sink)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, plan.StrategySingle, res.Strategy)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "index", res.Pages[0].PageName)
	assert.Equal(t, "/preview/"+res.ProjectID, res.Pages[0].PreviewURL)

	assert.Equal(t, []stream.EventType{
		stream.EventPlan, stream.EventStage, stream.EventUnitStart, stream.EventUnitDone, stream.EventSaved,
	}, sink.types())
	assert.Equal(t, []string{"index|<html><body>", "index|<h1>Bakery</h1>", "index|</body></html>"}, sink.deltas)

	require.Len(t, h.client.requests, 1)
	req := h.client.requests[0]
	assert.True(t, req.Stream)
	assert.Equal(t, 8000, req.MaxTokens)
	assert.Contains(t, req.System, "expert web designer")

	page, err := h.store.GetPage(context.Background(), res.Pages[0].PageID)
	require.NoError(t, err)
	assert.Equal(t, "<html><body><h1>Bakery</h1></body></html>", page.HTML)
	assert.Empty(t, h.ctrl.Registry().Active())
}

func TestRun_PlanFallbackOnUnparseableResponse(t *testing.T) {
	h := newHarness(t, func(n int, _ llm.Request) (*llm.Stream, error) {
		if n == 0 {
			return text("I would build a lovely site, no JSON today."), nil
		}
		return text("<p>fallback</p>"), nil
	})
	sink := &recordingSink{}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "something"}, sink)
	require.NoError(t, err)
	assert.Equal(t, plan.StrategySingle, res.Strategy)
	assert.Equal(t, StateCompleted, res.State)
	assert.Len(t, res.Pages, 1)
	assert.Equal(t, 1, sink.count(stream.EventWarning))
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "default plan used")
}

func TestRun_MultiPage(t *testing.T) {
	h := newHarness(t, func(_ int, req llm.Request) (*llm.Stream, error) {
		prompt := req.Messages[0].Content
		switch {
		case strings.Contains(prompt, `generating page "index"`):
			return text(`<nav><a href="about.html">About</a><a href="Contact">Contact</a></nav><main>INDEX</main>`), nil
		case strings.Contains(prompt, `generating page "about"`):
			return text(`<nav><a href="./">Home</a><a href="contact.html">Contact</a></nav><main>ABOUT</main>`), nil
		default:
			return text(`<nav><a href="index.html">Home</a></nav><main>CONTACT</main>`), nil
		}
	})
	sink := &recordingSink{}

	res, err := h.ctrl.Run(context.Background(), Request{
		Prompt:   "a bakery with several pages",
		Strategy: "multi",
		Pages:    []string{"home", "about", "contact"},
	}, sink)
	require.NoError(t, err)
	require.Len(t, res.Pages, 3)
	assert.Equal(t, []string{"index", "about", "contact"}, []string{res.Pages[0].PageName, res.Pages[1].PageName, res.Pages[2].PageName})
	assert.Contains(t, strings.Join(res.Warnings, "\n"), `first page "home" pinned to "index"`)

	pid := res.ProjectID
	instr := h.client.instructions()
	require.Len(t, instr, 3)
	assert.Contains(t, instr[1], "/preview/"+pid+"/about (this page")
	assert.Contains(t, instr[1], "/preview/"+pid+"/contact")
	assert.Contains(t, instr[1], "<main>INDEX</main>", "later pages replicate the first page")
	assert.NotContains(t, instr[0], "Exactly replicate")

	project, err := h.store.GetProject(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "about", "contact"}, project.PlannedPages)
	assert.Equal(t, model.GenerationMulti, project.GenerationType)
	assert.Len(t, project.Pages, 3)

	about, err := h.store.FindPageByName(context.Background(), pid, "about")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(`<nav><a href="/preview/%s">Home</a><a href="/preview/%s/contact">Contact</a></nav><main>ABOUT</main>`, pid, pid), about.HTML)
}

func TestRun_MultiTargetPage(t *testing.T) {
	h := newHarness(t, func(_ int, req llm.Request) (*llm.Stream, error) {
		return text("<main>regenerated</main>"), nil
	})
	ctx := context.Background()
	_, err := h.sites.Save(ctx, site.SaveRequest{
		ProjectID: "P1", PlannedPages: []string{"index", "about"}, GenerationType: model.GenerationMulti,
		HTML: "<main>FIRST PAGE</main>",
	})
	require.NoError(t, err)

	res, err := h.ctrl.Run(ctx, Request{Prompt: "bakery", ProjectID: "P1", TargetPage: "about"}, &recordingSink{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "about", res.Pages[0].PageName)

	instr := h.client.instructions()
	require.Len(t, instr, 1)
	assert.Contains(t, instr[0], "<main>FIRST PAGE</main>")

	_, err = h.ctrl.Run(ctx, Request{Prompt: "bakery", ProjectID: "P1", TargetPage: "pricing"}, &recordingSink{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestRun_MultiTargetPageWithoutStoredIndex(t *testing.T) {
	h := newHarness(t, func(_ int, req llm.Request) (*llm.Stream, error) {
		return text("<main>about</main>"), nil
	})
	ctx := context.Background()
	_, err := h.sites.Save(ctx, site.SaveRequest{
		ProjectID: "P2", PlannedPages: []string{"index", "about"}, GenerationType: model.GenerationMulti,
		PageName: "about", HTML: "<main>old about</main>",
	})
	require.NoError(t, err)

	_, err = h.ctrl.Run(ctx, Request{Prompt: "bakery", ProjectID: "P2", TargetPage: "about"}, &recordingSink{})
	require.NoError(t, err)

	instr := h.client.instructions()
	require.Len(t, instr, 1)
	assert.Contains(t, instr[0], "Exactly replicate")
}

func TestRun_MultiTargetPageRequiresProject(t *testing.T) {
	h := newHarness(t, func(_ int, req llm.Request) (*llm.Stream, error) {
		return text("<main>about</main>"), nil
	})
	ctx := context.Background()

	res, err := h.ctrl.Run(ctx, Request{Prompt: "bakery", Pages: []string{"index", "about"}, TargetPage: "about"}, &recordingSink{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Empty(t, res.Pages)

	_, err = h.ctrl.Run(ctx, Request{Prompt: "bakery", ProjectID: "missing", TargetPage: "about"}, &recordingSink{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	assert.Empty(t, h.client.instructions())
	projects, err := h.store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestRun_RetryTwiceThenSuccess(t *testing.T) {
	h := newHarness(t, func(n int, _ llm.Request) (*llm.Stream, error) {
		switch n {
		case 0:
			return nil, transient()
		case 1:
			return llm.StreamOf([]string{"<p>partial"}, transient()), nil
		default:
			return text("<p>done</p>"), nil
		}
	})
	sink := &recordingSink{}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single"}, sink)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 2, sink.count(stream.EventUnitReset))
	assert.Equal(t, 1, sink.count(stream.EventUnitDone))
	assert.Equal(t, []string{"index|<p>partial", "index|<p>done</p>"}, sink.deltas)

	page, err := h.store.GetPage(context.Background(), res.Pages[0].PageID)
	require.NoError(t, err)
	assert.Equal(t, "<p>done</p>", page.HTML)
}

func TestRun_RetryExhausted(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) { return nil, transient() })

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single"}, &recordingSink{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.Retries)
	assert.Len(t, h.client.requests, 3)
	assert.False(t, errors.IsRetryable(err))
	assert.True(t, errors.HasCategory(err, errors.CategoryProvider))

	projects, err := h.store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestRun_NonTransientNotRetried(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) {
		return nil, errors.NewError(errors.CategoryProvider, "invalid api key").Fatal().Build()
	})

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single"}, &recordingSink{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, h.client.requests, 1)
	assert.Zero(t, res.Retries)
}

func TestRun_LongFormResume(t *testing.T) {
	h := newHarness(t, func(n int, req llm.Request) (*llm.Stream, error) {
		return text(fmt.Sprintf("<html>intro|section-%d</html>", n+2)), nil
	})

	res, err := h.ctrl.Run(context.Background(), Request{
		Prompt:      "a long guide",
		Strategy:    "long",
		Pages:       []string{"intro", "body", "outro"},
		StageIndex:  1,
		Accumulated: "<html>intro</html>",
	}, &recordingSink{})
	require.NoError(t, err)

	instr := h.client.instructions()
	require.Len(t, instr, 2)
	assert.Contains(t, instr[0], "section 2 of 3")
	assert.Contains(t, instr[0], "<html>intro</html>")
	assert.Contains(t, instr[1], "<html>intro|section-2</html>")

	require.Len(t, res.Pages, 2)
	assert.Equal(t, res.Pages[0].PageID, res.Pages[1].PageID, "one index page upserted per section")
	page, err := h.store.GetPage(context.Background(), res.Pages[1].PageID)
	require.NoError(t, err)
	assert.Equal(t, 3, page.SectionIndex)
	assert.Equal(t, 3, page.TotalSections)
	assert.Equal(t, "<html>intro|section-3</html>", page.HTML)

	project, err := h.store.GetProject(context.Background(), res.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, model.GenerationLong, project.GenerationType)
	assert.Equal(t, []string{"index"}, project.PlannedPages)
}

func TestRun_Hierarchical(t *testing.T) {
	h := newHarness(t, func(n int, req llm.Request) (*llm.Stream, error) {
		return text(fmt.Sprintf("<html>layer-%d</html>", n+1)), nil
	})

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "an interactive page", Strategy: "hierarchical", Pages: []string{"structure", "style", "interaction"}}, &recordingSink{})
	require.NoError(t, err)

	instr := h.client.instructions()
	require.Len(t, instr, 3)
	assert.Contains(t, instr[0], "Return a complete HTML document.")
	assert.Contains(t, instr[1], "<html>layer-1</html>")
	assert.Contains(t, instr[2], "<html>layer-2</html>")

	page, err := h.store.GetPage(context.Background(), res.Pages[len(res.Pages)-1].PageID)
	require.NoError(t, err)
	assert.Equal(t, "<html>layer-3</html>", page.HTML)
}

func TestRun_TwoStage(t *testing.T) {
	h := newHarness(t, func(n int, req llm.Request) (*llm.Stream, error) {
		prompt := req.Messages[0].Content
		switch {
		case strings.HasPrefix(prompt, "Analyze the needs"):
			assert.Equal(t, 1500, req.MaxTokens)
			assert.False(t, req.Stream)
			return text("# Audience\n\n- home bakers\n"), nil
		case strings.HasPrefix(prompt, "Based on the request"):
			assert.Equal(t, 2000, req.MaxTokens)
			return text("Here you go:\n```json\n{\"components\":[{\"name\":\"Hero Banner\",\"purpose\":\"welcome\"},{\"name\":\"menu\",\"purpose\":\"list breads\"}]}\n```"), nil
		case strings.Contains(prompt, `"Hero-Banner" component`):
			assert.Equal(t, 1200, req.MaxTokens)
			return text("<section>HERO</section>"), nil
		case strings.Contains(prompt, `"menu" component`):
			return nil, errors.NewError(errors.CategoryProvider, "content filtered").Build()
		default:
			assert.Equal(t, 8000, req.MaxTokens)
			assert.True(t, req.Stream)
			return text("<html>", "assembled", "</html>"), nil
		}
	})
	sink := &recordingSink{}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "bakery app", Strategy: "two_stage"}, sink)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)

	var needsHTML string
	for _, ev := range sink.events {
		if ev.Type == stream.EventStage && ev.Stage == plan.StageNeeds && ev.Data != nil {
			needsHTML = ev.Data.(map[string]string)["html"]
		}
	}
	assert.Contains(t, needsHTML, "<h1>Audience</h1>")
	assert.Contains(t, needsHTML, "<li>home bakers</li>")

	instr := h.client.instructions()
	assembly := instr[len(instr)-1]
	assert.Contains(t, assembly, "<section>HERO</section>")
	assert.Contains(t, assembly, `class="component-placeholder"`)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), `component "menu" failed`)

	page, err := h.store.GetPage(context.Background(), res.Pages[0].PageID)
	require.NoError(t, err)
	assert.Equal(t, "<html>assembled</html>", page.HTML)
	project, err := h.store.GetProject(context.Background(), res.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, model.GenerationSingle, project.GenerationType)
}

func TestRun_CancelMidStreamDiscardsResult(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) {
		return text("<p>one", " two", " three</p>"), nil
	})
	sink := &recordingSink{}
	sink.onDelta = func(n int) error {
		if n == 1 {
			assert.True(t, h.ctrl.Registry().Cancel("gen-1", "user requested"))
		}
		return nil
	}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single", GenerationID: "gen-1"}, sink)
	h.ctrl.Wait()

	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCanceled))
	assert.Equal(t, StateCanceled, res.State)
	assert.Len(t, sink.deltas, 1)
	assert.Empty(t, res.Pages)
	assert.Zero(t, sink.count(stream.EventSaved))

	projects, err := h.store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.False(t, h.ctrl.Registry().Cancel("gen-1", "again"), "finished runs leave the registry")
}

func TestRun_ClientDisconnect(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) {
		return text("<p>one", " two</p>"), nil
	})
	sink := &recordingSink{onDelta: func(int) error { return stderrors.New("broken pipe") }}

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single"}, sink)
	h.ctrl.Wait()

	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryDisconnected))
	assert.Equal(t, StateCanceled, res.State)
	assert.Len(t, h.client.requests, 1, "disconnects are not retried")
	assert.Empty(t, res.Pages)
}

func TestRun_RequestContextCanceledBeforeStart(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) { return text("<p/>"), nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.ctrl.Run(ctx, Request{Prompt: "x", Strategy: "single"}, &recordingSink{})
	require.Error(t, err)
	assert.Equal(t, StateCanceled, res.State)
	assert.Empty(t, h.client.requests)
}

func TestRun_Modification(t *testing.T) {
	h := newHarness(t, func(int, llm.Request) (*llm.Stream, error) {
		return text(`<p>blue</p><a href="about.html">About</a>`), nil
	})
	ctx := context.Background()
	saved, err := h.sites.Save(ctx, site.SaveRequest{ProjectID: "P1", PlannedPages: []string{"about"}, Prompt: "site", HTML: "<p>red</p>"})
	require.NoError(t, err)

	res, err := h.ctrl.Run(ctx, Request{Prompt: "make it blue", IsModification: true, PageID: saved.Page.ID}, &recordingSink{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, saved.Page.ID, res.Pages[0].PageID)

	instr := h.client.instructions()
	require.Len(t, instr, 1)
	assert.Contains(t, instr[0], "<p>red</p>")
	assert.Contains(t, instr[0], "make it blue")

	page, err := h.store.GetPage(ctx, saved.Page.ID)
	require.NoError(t, err)
	assert.Equal(t, `<p>blue</p><a href="/preview/P1/about">About</a>`, page.HTML)
	require.Len(t, page.ModificationHistory, 1)
	assert.Equal(t, "make it blue", page.ModificationHistory[0].Request)

	_, err = h.ctrl.Run(ctx, Request{Prompt: "x", IsModification: true, PageID: "missing"}, &recordingSink{})
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestRun_Journal(t *testing.T) {
	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	h := newHarness(t, func(n int, _ llm.Request) (*llm.Stream, error) {
		if n == 0 {
			return nil, transient()
		}
		return text("<p>ok</p>"), nil
	}, WithJournal(j))

	res, err := h.ctrl.Run(context.Background(), Request{Prompt: "x", Strategy: "single", GenerationID: "gen-j"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "gen-j", res.GenerationID)

	entries, err := j.ByGeneration(context.Background(), "gen-j")
	require.NoError(t, err)
	kinds := make([]journal.Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []journal.Kind{
		journal.KindPlanned, journal.KindStage, journal.KindRetry, journal.KindUnitDone, journal.KindSaved, journal.KindCompleted,
	}, kinds)
	assert.Equal(t, "1", entries[2].Metadata["retry"])
}

func TestParseComponents(t *testing.T) {
	comps, err := parseComponents("```json\n[{\"name\":\"Nav Bar\",\"purpose\":\"links\"},{\"name\":\"\",\"purpose\":\"dropped\"}]\n```")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "Nav-Bar", comps[0].Name)

	_, err = parseComponents("no structure at all")
	require.Error(t, err)

	_, err = parseComponents(`{"components":[]}`)
	require.Error(t, err)
}

func TestSignalAndRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSignal(ctx)
	assert.False(t, s.Canceled())
	cancel()
	assert.True(t, s.Canceled())
	assert.Equal(t, "client disconnected", s.Reason())

	reg := NewRegistry()
	s2 := NewSignal(context.Background())
	remove := reg.Register("a", s2)
	assert.Equal(t, []string{"a"}, reg.Active())
	assert.True(t, reg.Cancel("a", "stop"))
	assert.True(t, s2.Canceled())
	assert.Equal(t, "stop", s2.Reason())
	remove()
	assert.Empty(t, reg.Active())
}
