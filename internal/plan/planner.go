package plan

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/extract"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/llm"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
)

// Request carries the caller's planning inputs.
type Request struct {
	Prompt    string
	Strategy  string
	Pages     []string
	ProjectID string
}

// Planner turns a request into a normalized Plan.
type Planner struct {
	client    llm.Client
	prompts   *prompts.Set
	model     string
	maxTokens int
	policy    retry.Policy
	logger    *slog.Logger
	recorder  metrics.Recorder
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) PlannerOption {
	return func(p *Planner) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithRetryPolicy sets the retry policy for the planning call.
func WithRetryPolicy(pol retry.Policy) PlannerOption {
	return func(p *Planner) { p.policy = pol }
}

// NewPlanner builds a Planner that infers plans with model.
func NewPlanner(client llm.Client, set *prompts.Set, model string, opts ...PlannerOption) *Planner {
	p := &Planner{
		client:    client,
		prompts:   set,
		model:     model,
		maxTokens: 2000,
		policy:    retry.DefaultPolicy(),
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan resolves the strategy and units for req. Parse failures of the
// planning response fall back to Default with a warning and are never
// returned as errors. Only cancellation and invalid caller input are.
func (pl *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	var explicit Strategy
	if req.Strategy != "" {
		s, ok := ParseStrategy(req.Strategy)
		if !ok {
			return nil, errors.ValidationError("unknown strategy").WithContext("strategy", req.Strategy).Build()
		}
		explicit = s
	}

	if p, ok := fromCaller(req, explicit); ok {
		if err := Normalize(p); err != nil {
			return nil, err
		}
		return p, nil
	}

	text, err := pl.ask(ctx, req.Prompt)
	if err != nil {
		if ctx.Err() != nil || errors.HasCategory(err, errors.CategoryCanceled) {
			return nil, err
		}
		pl.logger.Warn("Planning call failed, using default plan", logfields.Error(err))
		pl.recorder.IncPlanFallback("provider")
		return pl.fallback(req, explicit, "planning call failed: "+err.Error()), nil
	}

	p, perr := parse(text)
	if perr != nil {
		pl.logger.Warn("Planning response unusable, using default plan",
			logfields.Error(perr), slog.Int("response_len", len(text)))
		pl.recorder.IncPlanFallback("unparseable")
		return pl.fallback(req, explicit, perr.Error()), nil
	}
	p.Prompt = req.Prompt
	p.ProjectID = req.ProjectID
	if explicit != "" {
		p.Strategy = explicit
	}
	if err := Normalize(p); err != nil {
		pl.logger.Warn("Planned units rejected, using default plan", logfields.Error(err))
		pl.recorder.IncPlanFallback("invalid")
		return pl.fallback(req, explicit, err.Error()), nil
	}
	return p, nil
}

// fromCaller builds a plan without a model call when the request already
// determines it.
func fromCaller(req Request, s Strategy) (*Plan, bool) {
	switch {
	case s == StrategySingle || s == StrategyTwoStage:
	case (s == StrategyMulti || s == StrategyLong || s == StrategyHierarchical) && len(req.Pages) > 0:
	case s == "" && len(req.Pages) > 1:
		s = StrategyMulti
	default:
		return nil, false
	}
	p := &Plan{Prompt: req.Prompt, Strategy: s, ProjectID: req.ProjectID}
	for _, name := range req.Pages {
		p.Units = append(p.Units, Unit{Name: name, Title: titleFor(name)})
	}
	return p, true
}

func (pl *Planner) fallback(req Request, explicit Strategy, reason string) *Plan {
	p := Default(req.Prompt)
	p.ProjectID = req.ProjectID
	if explicit != "" && explicit != StrategySingle {
		p.Strategy = explicit
		p.Units = nil
		if explicit == StrategyMulti {
			for _, name := range req.Pages {
				p.Units = append(p.Units, Unit{Name: name, Title: titleFor(name)})
			}
		}
		p.Stages = nil
	}
	if err := Normalize(p); err != nil {
		p = Default(req.Prompt)
		p.ProjectID = req.ProjectID
		_ = Normalize(p)
	}
	p.Warn("default plan used: " + reason)
	return p
}

func (pl *Planner) ask(ctx context.Context, prompt string) (string, error) {
	instruction, err := pl.prompts.Render(prompts.Planning, prompts.Data{Prompt: prompt})
	if err != nil {
		return "", err
	}
	var text string
	_, err = pl.policy.Do(ctx, func(ctx context.Context, _ int) error {
		s, err := pl.client.Create(ctx, llm.Request{
			Model:       pl.model,
			Messages:    llm.UserPrompt(instruction),
			MaxTokens:   pl.maxTokens,
			Temperature: 0.2,
		})
		if err != nil {
			return err
		}
		text, err = s.Collect()
		return err
	}, func(int, error, time.Duration) { pl.recorder.IncRetry("planning") })
	return text, err
}

type rawUnit struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts either an object or a bare page-name string.
func (u *rawUnit) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		u.Name = name
		return nil
	}
	type plain rawUnit
	return json.Unmarshal(b, (*plain)(u))
}

type rawPlan struct {
	Strategy     string         `json:"strategy"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Units        []rawUnit      `json:"units"`
	Pages        []rawUnit      `json:"pages"`
	Sections     []rawUnit      `json:"sections"`
	Layers       []rawUnit      `json:"layers"`
	DesignSystem map[string]any `json:"designSystem"`
}

var errNoStrategy = stderrors.New("planning response names no strategy")

func parse(text string) (*Plan, error) {
	res := extract.JSON(text)
	if !res.OK() {
		return nil, errors.WrapError(res.Err, errors.CategoryPlanParse, "planning response contains no JSON").Warning().Build()
	}

	var raw rawPlan
	if strings.HasPrefix(strings.TrimSpace(string(res.Value)), "[") {
		if err := json.Unmarshal(res.Value, &raw.Units); err != nil {
			return nil, errors.WrapError(err, errors.CategoryPlanParse, "planning array is not a unit list").Warning().Build()
		}
		raw.Strategy = string(StrategyMulti)
		if len(raw.Units) <= 1 {
			raw.Strategy = string(StrategySingle)
		}
	} else if err := json.Unmarshal(res.Value, &raw); err != nil {
		return nil, errors.WrapError(err, errors.CategoryPlanParse, "planning object has unexpected shape").Warning().Build()
	}

	strategy, ok := ParseStrategy(raw.Strategy)
	if !ok {
		return nil, errors.WrapError(errNoStrategy, errors.CategoryPlanParse, "planning response unusable").
			Warning().
			WithContext("strategy", raw.Strategy).
			Build()
	}
	p := &Plan{
		Strategy:     strategy,
		Name:         raw.Name,
		Description:  raw.Description,
		DesignSystem: raw.DesignSystem,
	}
	units := raw.Units
	for _, alt := range [][]rawUnit{raw.Pages, raw.Sections, raw.Layers} {
		if len(units) == 0 {
			units = alt
		}
	}
	for _, u := range units {
		p.Units = append(p.Units, Unit{Name: u.Name, Title: firstNonEmpty(u.Title, titleFor(u.Name)), Description: u.Description})
	}
	return p, nil
}

func titleFor(name string) string {
	n := strings.NewReplacer("-", " ", "_", " ").Replace(Slugify(name))
	if n == "" {
		return ""
	}
	if strings.EqualFold(n, "index") {
		return "Home"
	}
	return strings.ToUpper(n[:1]) + n[1:]
}
