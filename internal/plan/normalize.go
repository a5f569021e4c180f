package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
)

var (
	slugInvalid = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
	docSuffix   = regexp.MustCompile(`(?i)\.html?$`)
	folder      = cases.Fold()
)

// DefaultLayers are the hierarchical layers used when a plan names none.
var DefaultLayers = []Unit{
	{Name: "structure", Title: "Structure", Description: "Semantic HTML structure with all content in place and minimal styling.", Kind: KindLayer},
	{Name: "style", Title: "Visual style", Description: "Complete visual design: layout, color, typography and responsive behavior.", Kind: KindLayer},
	{Name: "interaction", Title: "Interaction", Description: "JavaScript interactions, animations and accessibility refinements.", Kind: KindLayer},
}

// Slugify reduces name to [A-Za-z0-9_-]. A trailing .html/.htm is dropped.
func Slugify(name string) string {
	s := strings.TrimSpace(name)
	s = docSuffix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// FoldedDuplicates returns names that collide with an earlier one after case
// folding.
func FoldedDuplicates(names []string) []string {
	seen := make(map[string]bool, len(names))
	var dups []string
	for _, n := range names {
		key := folder.String(n)
		if seen[key] {
			dups = append(dups, n)
			continue
		}
		seen[key] = true
	}
	return dups
}

// Normalize validates p and brings it into canonical shape: slugged unit
// names, strategy-specific unit lists, stage descriptors and IDs. Multi-page
// plans always start with the "index" main page.
func Normalize(p *Plan) error {
	if _, ok := ParseStrategy(string(p.Strategy)); !ok {
		return errors.ValidationError(fmt.Sprintf("unknown strategy %q", p.Strategy)).Build()
	}
	p.Strategy, _ = ParseStrategy(string(p.Strategy))

	switch p.Strategy {
	case StrategySingle, StrategyTwoStage:
		u := Unit{Name: model.IndexPage, Title: "Home", Kind: KindPage, IsMain: true}
		if len(p.Units) > 0 {
			u.Title = firstNonEmpty(p.Units[0].Title, u.Title)
			u.Description = p.Units[0].Description
		}
		p.Units = []Unit{u}
	case StrategyMulti:
		p.normalizeMulti()
	case StrategyLong:
		p.normalizeKind(KindSection, "section")
		if len(p.Units) == 0 {
			p.Units = []Unit{{Name: "content", Title: "Content", Kind: KindSection}}
		}
	case StrategyHierarchical:
		p.normalizeKind(KindLayer, "layer")
		if len(p.Units) == 0 {
			p.Units = append([]Unit(nil), DefaultLayers...)
		}
	}

	names := make([]string, len(p.Units))
	for i, u := range p.Units {
		names[i] = u.Name
	}
	if dups := FoldedDuplicates(names); len(dups) > 0 {
		return errors.ValidationError("plan contains unit names that differ only by case").
			WithContext("duplicates", strings.Join(dups, ",")).
			Build()
	}

	p.Stages = buildStages(p)
	if p.CurrentStage < 0 || p.CurrentStage > len(p.Stages) {
		p.CurrentStage = 0
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ProjectID == "" {
		p.ProjectID = uuid.NewString()
	}
	return nil
}

func (p *Plan) normalizeMulti() {
	units := make([]Unit, 0, len(p.Units)+1)
	for i, u := range p.Units {
		u.Kind = KindPage
		u.Name = Slugify(u.Name)
		if u.Name == "" {
			u.Name = Slugify(u.Title)
		}
		if u.Name == "" {
			u.Name = fmt.Sprintf("page-%d", i+1)
		}
		u.IsMain = false
		if i > 0 && strings.EqualFold(u.Name, model.IndexPage) {
			p.Warn(fmt.Sprintf("dropped duplicate index page at position %d", i+1))
			continue
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		units = append(units, Unit{Title: "Home", Kind: KindPage})
	}
	if units[0].Name != model.IndexPage {
		if units[0].Name != "" && !strings.EqualFold(units[0].Name, model.IndexPage) {
			p.Warn(fmt.Sprintf("first page %q pinned to %q", units[0].Name, model.IndexPage))
		}
		units[0].Name = model.IndexPage
	}
	units[0].IsMain = true
	units[0].Title = firstNonEmpty(units[0].Title, "Home")
	p.Units = units
}

func (p *Plan) normalizeKind(kind UnitKind, prefix string) {
	units := make([]Unit, 0, len(p.Units))
	for i, u := range p.Units {
		u.Kind = kind
		u.IsMain = false
		u.Name = Slugify(u.Name)
		if u.Name == "" {
			u.Name = Slugify(u.Title)
		}
		if u.Name == "" {
			u.Name = fmt.Sprintf("%s-%d", prefix, i+1)
		}
		u.Title = firstNonEmpty(u.Title, u.Name)
		units = append(units, u)
	}
	p.Units = units
}

func buildStages(p *Plan) []StageDescriptor {
	switch p.Strategy {
	case StrategyTwoStage:
		return []StageDescriptor{
			{Name: StageNeeds, Unit: -1},
			{Name: StageArchitecture, Unit: -1},
			{Name: StageComponents, Unit: -1},
			{Name: StageAssembly, Unit: 0, Streamed: true},
		}
	case StrategySingle:
		return []StageDescriptor{{Name: StageGenerate, Unit: 0, Streamed: true}}
	default:
		stages := make([]StageDescriptor, len(p.Units))
		for i, u := range p.Units {
			stages[i] = StageDescriptor{Name: string(u.Kind) + ":" + u.Name, Unit: i, Streamed: true}
		}
		return stages
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
