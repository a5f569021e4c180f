// Package pipeline drives a generation from plan to persisted pages.
//
// A Controller resolves the plan, runs its stages in order against the
// generation service, forwards streamed output to a Sink and persists every
// completed unit through the site manager. Transient provider failures are
// retried per unit; cancellation is polled between calls and between deltas.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/llm"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/plan"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/site"
	"git.home.luguber.info/inful/pagesmith/internal/stream"
)

// DefaultDrainTimeout bounds how long an abandoned call is drained.
const DefaultDrainTimeout = 2 * time.Minute

// State is the terminal state of a generation.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Sink receives progress frames. *stream.Emitter satisfies it.
type Sink interface {
	Event(ev stream.Event) error
	Delta(unit, content string) error
}

// Request is one stream request.
type Request struct {
	Prompt   string
	Strategy string
	Pages    []string

	// Resumption.
	StageIndex  int
	Accumulated string
	TargetPage  string
	ProjectID   string

	// Modification of an existing page.
	PageID         string
	IsModification bool

	// GenerationID is assigned when empty.
	GenerationID string
}

// SavedPage identifies a page persisted during the run.
type SavedPage struct {
	PageID     string `json:"pageId"`
	PageName   string `json:"pageName"`
	PreviewURL string `json:"previewUrl"`
}

// Result summarizes a run.
type Result struct {
	GenerationID string        `json:"generationId"`
	ProjectID    string        `json:"projectId,omitempty"`
	Strategy     plan.Strategy `json:"strategy,omitempty"`
	State        State         `json:"state"`
	Pages        []SavedPage   `json:"pages"`
	Retries      int           `json:"retries"`
	Warnings     []string      `json:"warnings,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Controller executes generation plans. It is safe for concurrent use; each
// Run keeps its state on its own stack.
type Controller struct {
	client   llm.Client
	planner  *plan.Planner
	prompts  *prompts.Set
	sites    *site.Manager
	gen      config.GenerationConfig
	policy   retry.Policy
	journal  journal.Journal
	recorder metrics.Recorder
	logger   *slog.Logger
	registry *Registry

	drainTimeout time.Duration
	drains       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetryPolicy sets the per-unit retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithJournal records run events.
func WithJournal(j journal.Journal) Option {
	return func(c *Controller) {
		if j != nil {
			c.journal = j
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegistry shares a registry with the cancel endpoint.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithDrainTimeout bounds background draining of abandoned calls.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// New builds a Controller.
func New(client llm.Client, planner *plan.Planner, set *prompts.Set, sites *site.Manager, gen config.GenerationConfig, opts ...Option) *Controller {
	c := &Controller{
		client:       client,
		planner:      planner,
		prompts:      set,
		sites:        sites,
		gen:          gen,
		policy:       retry.DefaultPolicy(),
		journal:      journal.Noop{},
		recorder:     metrics.NoopRecorder{},
		logger:       slog.Default(),
		registry:     NewRegistry(),
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the active-generation registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Wait blocks until background drains have finished.
func (c *Controller) Wait() { c.drains.Wait() }

// Run executes req and streams progress to sink. The returned Result is
// always non-nil. A canceled run returns a canceled or disconnected error
// alongside State == StateCanceled.
func (c *Controller) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	start := time.Now()
	genID := req.GenerationID
	if genID == "" {
		genID = uuid.NewString()
	}
	sig := NewSignal(ctx)
	defer c.registry.Register(genID, sig)()

	r := &run{
		c:    c,
		ctx:  ctx,
		sig:  sig,
		sink: sink,
		log:  c.logger.With(logfields.GenerationID(genID)),
		res:  &Result{GenerationID: genID, Pages: []SavedPage{}},
	}

	err := r.execute(req)
	return r.finish(start, err)
}

// run is the state of one Run.
type run struct {
	c    *Controller
	ctx  context.Context
	sig  *Signal
	sink Sink
	log  *slog.Logger
	res  *Result
	plan *plan.Plan
}

func (r *run) execute(req Request) error {
	if req.IsModification {
		return r.modify(req)
	}

	p, err := r.resolvePlan(req)
	if err != nil {
		return err
	}
	r.plan = p
	r.res.ProjectID = p.ProjectID
	r.res.Strategy = p.Strategy
	r.log = r.log.With(logfields.ProjectID(p.ProjectID), logfields.Strategy(string(p.Strategy)))

	r.emit(stream.Event{Type: stream.EventPlan, Total: len(p.Stages), Data: p})
	for _, w := range p.Warnings {
		r.announce(w)
	}
	r.record(journal.KindPlanned, p, map[string]string{"strategy": string(p.Strategy)})
	r.log.Info("Generation planned", slog.Int("units", len(p.Units)), slog.Int("stages", len(p.Stages)))

	switch p.Strategy {
	case plan.StrategyMulti:
		return r.runMulti(req)
	case plan.StrategyLong:
		return r.runProgressive(req, prompts.Section)
	case plan.StrategyHierarchical:
		return r.runProgressive(req, prompts.Layer)
	case plan.StrategyTwoStage:
		return r.runTwoStage()
	default:
		return r.runSingle()
	}
}

// resolvePlan fills resumption inputs from a stored project and asks the
// planner.
func (r *run) resolvePlan(req Request) (*plan.Plan, error) {
	preq := plan.Request{Prompt: req.Prompt, Strategy: req.Strategy, Pages: req.Pages, ProjectID: req.ProjectID}
	// A single regenerated page only makes sense inside an existing project.
	if req.TargetPage != "" && req.ProjectID == "" {
		return nil, errors.ValidationError("target page requires a project id").
			WithContext("target_page", req.TargetPage).Build()
	}
	if req.ProjectID != "" && (req.TargetPage != "" || req.StageIndex > 0) {
		project, err := r.c.sites.GetProject(r.ctx, req.ProjectID)
		switch {
		case err != nil && req.TargetPage != "":
			return nil, err
		case err == nil:
			if preq.Strategy == "" {
				preq.Strategy = string(project.GenerationType)
			}
			if s, _ := plan.ParseStrategy(preq.Strategy); s == plan.StrategyMulti && len(preq.Pages) == 0 {
				preq.Pages = project.PlannedPages
			}
		case !errors.HasCategory(err, errors.CategoryNotFound):
			return nil, err
		}
	}
	if req.TargetPage != "" && preq.Strategy == "" {
		preq.Strategy = string(plan.StrategyMulti)
	}

	p, err := r.c.planner.Plan(r.ctx, preq)
	if err != nil {
		if r.sig.Canceled() {
			return nil, r.canceledErr()
		}
		return nil, err
	}
	return p, nil
}

// finish classifies the outcome, records it and returns the result.
func (r *run) finish(start time.Time, err error) (*Result, error) {
	r.res.Duration = time.Since(start)
	if r.plan != nil {
		r.res.Warnings = r.plan.Warnings
	}

	kind := journal.KindCompleted
	switch {
	case err == nil:
		r.res.State = StateCompleted
	case r.sig.Canceled() || errors.HasCategory(err, errors.CategoryCanceled) || errors.HasCategory(err, errors.CategoryDisconnected):
		r.res.State = StateCanceled
		kind = journal.KindCanceled
	default:
		r.res.State = StateFailed
		kind = journal.KindFailed
	}

	strategy := string(r.res.Strategy)
	if strategy == "" {
		strategy = "unplanned"
	}
	r.c.recorder.ObserveGenerationDuration(strategy, r.res.Duration)
	r.c.recorder.IncGenerationOutcome(string(r.res.State))

	meta := map[string]string{"state": string(r.res.State)}
	if err != nil {
		meta["error"] = err.Error()
	}
	r.record(kind, r.res, meta)

	attrs := []any{
		slog.String("state", string(r.res.State)),
		slog.Int("pages", len(r.res.Pages)),
		slog.Int("retries", r.res.Retries),
		logfields.DurationMS(float64(r.res.Duration.Milliseconds())),
	}
	switch r.res.State {
	case StateCompleted:
		r.log.Info("Generation finished", attrs...)
	case StateCanceled:
		r.log.Info("Generation canceled", append(attrs, slog.String("reason", r.sig.Reason()))...)
	default:
		r.log.Error("Generation failed", append(attrs, logfields.Error(err))...)
	}
	return r.res, err
}

// stage runs one plan stage with its bookkeeping.
func (r *run) stage(index int, fn func() error) error {
	if r.sig.Canceled() {
		return r.canceledErr()
	}
	desc := r.plan.Stages[index]
	r.plan.CurrentStage = index
	r.emit(stream.Event{Type: stream.EventStage, Stage: desc.Name, Index: index + 1, Total: len(r.plan.Stages)})
	r.record(journal.KindStage, desc, map[string]string{"stage": desc.Name})

	label := stageLabel(desc.Name)
	t0 := time.Now()
	err := fn()
	r.c.recorder.ObserveStageDuration(label, time.Since(t0))
	switch {
	case err == nil:
		r.c.recorder.IncStageResult(label, metrics.ResultSuccess)
	case r.sig.Canceled():
		r.c.recorder.IncStageResult(label, metrics.ResultCanceled)
	default:
		r.c.recorder.IncStageResult(label, metrics.ResultFatal)
	}
	return err
}

// save persists a unit unless the run was canceled.
func (r *run) save(req site.SaveRequest) error {
	if r.sig.Canceled() {
		return r.canceledErr()
	}
	if r.plan != nil && !req.IsModification {
		req.ProjectID = r.plan.ProjectID
		req.PlannedPages = r.plan.PlannedPages()
		req.GenerationType = r.plan.Strategy.GenerationType()
		req.ProjectName = r.plan.Name
		req.ProjectDescription = r.plan.Description
		req.DesignSystem = r.plan.DesignSystem
	}

	res, err := r.c.sites.Save(r.ctx, req)
	if err != nil {
		return err
	}
	saved := SavedPage{PageID: res.Page.ID, PageName: res.Page.PageName, PreviewURL: res.PreviewURL}
	r.res.Pages = append(r.res.Pages, saved)
	if r.res.ProjectID == "" {
		r.res.ProjectID = res.Page.ProjectID
	}

	r.emit(stream.Event{Type: stream.EventSaved, Unit: saved.PageName, Data: saved})
	for _, w := range res.Rewrite.Warnings {
		r.warn(w)
	}
	r.record(journal.KindSaved, saved, map[string]string{"page_name": saved.PageName})
	return nil
}

func (r *run) emit(ev stream.Event) {
	ev.GenerationID = r.res.GenerationID
	if err := r.sink.Event(ev); err != nil {
		r.sig.Cancel("client disconnected")
	}
}

// warn records a run-time warning on the plan and announces it.
func (r *run) warn(msg string) {
	if r.plan != nil {
		r.plan.Warn(msg)
	}
	r.announce(msg)
}

func (r *run) announce(msg string) {
	r.emit(stream.Event{Type: stream.EventWarning, Message: msg})
	r.record(journal.KindWarning, nil, map[string]string{"message": msg})
}

// record appends to the journal. It outlives request cancellation so
// canceled runs are still recorded.
func (r *run) record(kind journal.Kind, payload any, meta map[string]string) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			r.log.Warn("Journal payload not encodable", logfields.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := r.c.journal.Append(ctx, r.res.GenerationID, kind, data, meta); err != nil {
		r.log.Warn("Journal append failed", logfields.Error(err))
	}
}

func (r *run) canceledErr() error {
	return errors.CanceledError("generation canceled").
		WithContext("generation_id", r.res.GenerationID).
		WithContext("reason", r.sig.Reason()).
		Build()
}

// stageLabel trims per-unit stage names ("page:about") to their kind.
func stageLabel(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
