// Package plan models a generation plan and derives it from a request.
package plan

import (
	"strings"

	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// Strategy selects how a request is decomposed into generation calls.
type Strategy string

const (
	StrategySingle       Strategy = "single"
	StrategyMulti        Strategy = "multi"
	StrategyLong         Strategy = "long"
	StrategyHierarchical Strategy = "hierarchical"
	StrategyTwoStage     Strategy = "two_stage"
)

var strategies = map[string]Strategy{
	"single":       StrategySingle,
	"multi":        StrategyMulti,
	"multi_page":   StrategyMulti,
	"multipage":    StrategyMulti,
	"long":         StrategyLong,
	"long_form":    StrategyLong,
	"hierarchical": StrategyHierarchical,
	"two_stage":    StrategyTwoStage,
	"twostage":     StrategyTwoStage,
	"two-stage":    StrategyTwoStage,
}

// ParseStrategy maps loose spellings onto a Strategy.
func ParseStrategy(raw string) (Strategy, bool) {
	s, ok := strategies[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// GenerationType is the persisted project type for the strategy.
func (s Strategy) GenerationType() model.GenerationType {
	switch s {
	case StrategyMulti:
		return model.GenerationMulti
	case StrategyLong:
		return model.GenerationLong
	case StrategyHierarchical:
		return model.GenerationHierarchical
	default:
		return model.GenerationSingle
	}
}

// UnitKind is what a unit produces.
type UnitKind string

const (
	KindPage      UnitKind = "page"
	KindSection   UnitKind = "section"
	KindLayer     UnitKind = "layer"
	KindComponent UnitKind = "component"
)

// Unit is one generated piece of the plan.
type Unit struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Kind        UnitKind `json:"kind"`
	IsMain      bool     `json:"isMain,omitempty"`
}

// Stage names of the four-stage pipeline.
const (
	StageGenerate     = "generate"
	StageNeeds        = "needs"
	StageArchitecture = "architecture"
	StageComponents   = "components"
	StageAssembly     = "assembly"
)

// StageDescriptor is one ordered step of the plan. Unit indexes Units for
// per-unit stages and is -1 otherwise.
type StageDescriptor struct {
	Name     string `json:"name"`
	Unit     int    `json:"unit"`
	Streamed bool   `json:"streamed"`
}

// Plan is the transient controller state of one generation.
type Plan struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"projectId"`
	Prompt       string            `json:"-"`
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	Strategy     Strategy          `json:"strategy"`
	Units        []Unit            `json:"units"`
	Stages       []StageDescriptor `json:"stages"`
	CurrentStage int               `json:"currentStage"`
	Artifacts    map[string]string `json:"-"`
	DesignSystem map[string]any    `json:"designSystem,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Retries      int               `json:"retries"`
}

// Warn records a non-fatal planning or generation issue.
func (p *Plan) Warn(msg string) {
	p.Warnings = append(p.Warnings, msg)
}

// SetArtifact stores the output of a stage.
func (p *Plan) SetArtifact(stage, value string) {
	if p.Artifacts == nil {
		p.Artifacts = make(map[string]string)
	}
	p.Artifacts[stage] = value
}

// PlannedPages returns the page names a project built from this plan links to.
func (p *Plan) PlannedPages() []string {
	if p.Strategy != StrategyMulti {
		return []string{model.IndexPage}
	}
	names := make([]string, 0, len(p.Units))
	for _, u := range p.Units {
		names = append(names, u.Name)
	}
	return names
}

// Unit returns the named unit.
func (p *Plan) Unit(name string) (Unit, bool) {
	for _, u := range p.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Default is the single-page plan used when no usable plan can be derived.
func Default(prompt string) *Plan {
	p := &Plan{
		Prompt:   prompt,
		Strategy: StrategySingle,
		Units:    []Unit{{Name: model.IndexPage, Title: "Home", Kind: KindPage, IsMain: true}},
	}
	_ = Normalize(p)
	return p
}
