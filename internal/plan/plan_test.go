package plan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"About Us":       "About-Us",
		"contact.html":   "contact",
		"  our--team!! ": "our-team",
		"FAQ_2024":       "FAQ_2024",
		"???":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestMultiPagePinning(t *testing.T) {
	proposals := [][]string{
		{"home", "about", "contact"},
		{"about", "index", "contact"},
		{"Index", "pricing"},
		{"index"},
		{},
		{"Landing Page", "index", "Blog"},
	}
	for _, names := range proposals {
		t.Run(fmt.Sprint(names), func(t *testing.T) {
			p := &Plan{Strategy: StrategyMulti}
			for _, n := range names {
				p.Units = append(p.Units, Unit{Name: n})
			}
			require.NoError(t, Normalize(p))
			require.NotEmpty(t, p.Units)
			assert.Equal(t, model.IndexPage, p.Units[0].Name)
			assert.True(t, p.Units[0].IsMain)
			for _, u := range p.Units[1:] {
				assert.NotEqual(t, model.IndexPage, u.Name)
				assert.False(t, u.IsMain)
			}
			assert.Len(t, p.Stages, len(p.Units))
		})
	}
}

func TestNormalizeDropsLaterIndexWithWarning(t *testing.T) {
	p := &Plan{Strategy: StrategyMulti, Units: []Unit{{Name: "home"}, {Name: "about"}, {Name: "index"}}}
	require.NoError(t, Normalize(p))
	assert.Equal(t, []string{"index", "about"}, p.PlannedPages())
	assert.Len(t, p.Warnings, 2)
}

func TestNormalizeRejectsFoldedDuplicates(t *testing.T) {
	p := &Plan{Strategy: StrategyMulti, Units: []Unit{{Name: "index"}, {Name: "About"}, {Name: "about"}}}
	err := Normalize(p)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestNormalizeStrategies(t *testing.T) {
	single := &Plan{Strategy: "single", Units: []Unit{{Name: "landing", Title: "Landing"}}}
	require.NoError(t, Normalize(single))
	assert.Equal(t, []Unit{{Name: "index", Title: "Landing", Kind: KindPage, IsMain: true}}, single.Units)
	assert.Equal(t, []StageDescriptor{{Name: StageGenerate, Unit: 0, Streamed: true}}, single.Stages)

	two := &Plan{Strategy: "two-stage"}
	require.NoError(t, Normalize(two))
	assert.Equal(t, StrategyTwoStage, two.Strategy)
	require.Len(t, two.Stages, 4)
	assert.Equal(t, StageAssembly, two.Stages[3].Name)
	assert.True(t, two.Stages[3].Streamed)
	assert.False(t, two.Stages[0].Streamed)

	hier := &Plan{Strategy: StrategyHierarchical}
	require.NoError(t, Normalize(hier))
	assert.Len(t, hier.Units, len(DefaultLayers))
	assert.Equal(t, "layer:structure", hier.Stages[0].Name)

	long := &Plan{Strategy: StrategyLong, Units: []Unit{{Title: "Intro"}, {Title: "Menu"}}}
	require.NoError(t, Normalize(long))
	assert.Equal(t, "Intro", long.Units[0].Name)
	assert.Equal(t, KindSection, long.Units[1].Kind)
	assert.Equal(t, []string{"index"}, long.PlannedPages())
	assert.NotEmpty(t, long.ID)
	assert.NotEmpty(t, long.ProjectID)

	assert.Error(t, Normalize(&Plan{Strategy: "bogus"}))
}

func TestDefaultPlan(t *testing.T) {
	p := Default("make a site")
	assert.Equal(t, StrategySingle, p.Strategy)
	assert.Equal(t, []string{"index"}, p.PlannedPages())
	assert.Equal(t, "make a site", p.Prompt)
	assert.Equal(t, model.GenerationSingle, p.Strategy.GenerationType())
}

func TestStrategyGenerationType(t *testing.T) {
	assert.Equal(t, model.GenerationSingle, StrategyTwoStage.GenerationType())
	assert.Equal(t, model.GenerationMulti, StrategyMulti.GenerationType())
	assert.Equal(t, model.GenerationLong, StrategyLong.GenerationType())
	assert.Equal(t, model.GenerationHierarchical, StrategyHierarchical.GenerationType())
}

func TestParseRawShapes(t *testing.T) {
	p, err := parse("Sure!\n```json\n{\"strategy\":\"multi\",\"name\":\"Bakery\",\"pages\":[\"home\",{\"name\":\"menu\",\"title\":\"Our Menu\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, StrategyMulti, p.Strategy)
	assert.Equal(t, "Bakery", p.Name)
	require.Len(t, p.Units, 2)
	assert.Equal(t, "Our Menu", p.Units[1].Title)

	p, err = parse(`["index","about","contact"]`)
	require.NoError(t, err)
	assert.Equal(t, StrategyMulti, p.Strategy)
	assert.Len(t, p.Units, 3)

	_, err = parse(`{"strategy":"quantum"}`)
	assert.True(t, errors.HasCategory(err, errors.CategoryPlanParse))
}
