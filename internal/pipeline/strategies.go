package pipeline

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/pagesmith/internal/extract"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/plan"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/site"
	"git.home.luguber.info/inful/pagesmith/internal/stream"
)

// referenceLimit caps the first-page markup attached to later page prompts.
const referenceLimit = 12000

var needsMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// defaultComponents is used when the architecture response is unusable.
var defaultComponents = []prompts.ComponentSpec{
	{Name: "header", Purpose: "Site header with branding and primary navigation"},
	{Name: "main", Purpose: "Main content answering the request"},
	{Name: "footer", Purpose: "Footer with secondary links and contact details"},
}

func (r *run) runSingle() error {
	return r.stage(0, func() error {
		u := r.plan.Units[0]
		text, err := r.render(prompts.Single, prompts.Data{Prompt: r.plan.Prompt, Unit: unitData(u)})
		if err != nil {
			return err
		}
		markup, err := r.streamUnit(unitCall{stage: r.plan.Stages[0].Name, unit: u.Name, index: 1, total: 1, instruction: text, maxTokens: r.c.gen.MaxTokens})
		if err != nil {
			return err
		}
		return r.save(site.SaveRequest{PageName: model.IndexPage, Prompt: r.plan.Prompt, HTML: markup})
	})
}

// modify rewrites an existing page in place.
func (r *run) modify(req Request) error {
	page, err := r.c.sites.GetPage(r.ctx, req.PageID)
	if err != nil {
		return err
	}
	r.plan = plan.Default(req.Prompt)
	r.plan.ProjectID = page.ProjectID
	r.res.ProjectID = page.ProjectID
	r.res.Strategy = r.plan.Strategy
	r.emit(stream.Event{Type: stream.EventPlan, Total: 1, Data: r.plan})

	return r.stage(0, func() error {
		text, err := r.render(prompts.Modify, prompts.Data{Prompt: req.Prompt, Previous: page.HTML})
		if err != nil {
			return err
		}
		markup, err := r.streamUnit(unitCall{stage: "modify", unit: page.PageName, index: 1, total: 1, instruction: text, maxTokens: r.c.gen.MaxTokens})
		if err != nil {
			return err
		}
		return r.save(site.SaveRequest{IsModification: true, PageID: page.ID, Prompt: req.Prompt, Plan: "modify", HTML: markup})
	})
}

func (r *run) runMulti(req Request) error {
	p := r.plan
	target := strings.TrimSpace(req.TargetPage)
	if target != "" {
		if _, ok := p.Unit(target); !ok {
			return errors.ValidationError(fmt.Sprintf("target page %q is not planned", target)).
				WithContext("planned_pages", p.PlannedPages()).Build()
		}
	}

	var reference string
	if target != "" && target != model.IndexPage {
		if first, err := r.c.sites.PageByName(r.ctx, p.ProjectID, model.IndexPage); err == nil {
			reference = first.HTML
		}
	}

	total := len(p.Units)
	for i, u := range p.Units {
		if target != "" && u.Name != target {
			continue
		}
		err := r.stage(i, func() error {
			data := prompts.Data{Prompt: p.Prompt, Unit: unitData(u), Nav: navFor(p, u.Name), Index: i + 1, Total: total}
			if i > 0 {
				data.Reference = excerpt(reference, referenceLimit)
			}
			text, err := r.render(prompts.MultiPage, data)
			if err != nil {
				return err
			}
			markup, err := r.streamUnit(unitCall{stage: p.Stages[i].Name, unit: u.Name, index: i + 1, total: total, instruction: text, maxTokens: r.c.gen.MaxTokens})
			if err != nil {
				return err
			}
			if i == 0 {
				reference = markup
			}
			return r.save(site.SaveRequest{PageName: u.Name, Prompt: p.Prompt, HTML: markup})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runProgressive drives long-form sections and hierarchical layers: every
// unit returns the whole document so far, which is saved as the index page.
func (r *run) runProgressive(req Request, tmpl prompts.Name) error {
	p := r.plan
	total := len(p.Units)
	start := req.StageIndex
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	acc := req.Accumulated
	if start > 0 && acc == "" {
		if stored, err := r.c.sites.PageByName(r.ctx, p.ProjectID, model.IndexPage); err == nil {
			acc = stored.HTML
		} else {
			r.warn(fmt.Sprintf("resuming at stage %d without accumulated markup", start+1))
		}
	}
	if start == total && total > 0 {
		r.warn("all stages already completed")
	}

	for i := start; i < total; i++ {
		u := p.Units[i]
		err := r.stage(i, func() error {
			data := prompts.Data{Prompt: p.Prompt, Unit: unitData(u), Index: i + 1, Total: total}
			if tmpl == prompts.Layer {
				data.Previous = acc
			} else {
				data.Accumulated = acc
			}
			text, err := r.render(tmpl, data)
			if err != nil {
				return err
			}
			markup, err := r.streamUnit(unitCall{stage: p.Stages[i].Name, unit: u.Name, index: i + 1, total: total, instruction: text, maxTokens: r.c.gen.MaxTokens})
			if err != nil {
				return err
			}
			acc = markup
			return r.save(site.SaveRequest{
				PageName:      model.IndexPage,
				Prompt:        p.Prompt,
				HTML:          markup,
				SectionIndex:  i + 1,
				TotalSections: total,
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runTwoStage runs needs → architecture → components → assembly.
func (r *run) runTwoStage() error {
	p := r.plan
	b := r.c.gen.Budgets
	var (
		needs      string
		components []prompts.ComponentSpec
	)

	steps := []func() error{
		func() error {
			text, err := r.render(prompts.Needs, prompts.Data{Prompt: p.Prompt})
			if err != nil {
				return err
			}
			needs, err = r.complete(unitCall{stage: plan.StageNeeds, unit: plan.StageNeeds, instruction: text, maxTokens: b.Needs})
			if err != nil {
				return err
			}
			r.emit(stream.Event{Type: stream.EventStage, Stage: plan.StageNeeds, Message: "needs analysis ready",
				Data: map[string]string{"markdown": needs, "html": renderMarkdown(needs)}})
			return nil
		},
		func() error {
			text, err := r.render(prompts.Architecture, prompts.Data{Prompt: p.Prompt, Needs: needs})
			if err != nil {
				return err
			}
			out, err := r.complete(unitCall{stage: plan.StageArchitecture, unit: plan.StageArchitecture, instruction: text, maxTokens: b.Architecture})
			if err != nil {
				return err
			}
			var perr error
			components, perr = parseComponents(out)
			if perr != nil {
				r.c.recorder.IncPlanFallback("architecture")
				r.warn("architecture response unusable, default components used: " + perr.Error())
				components = append([]prompts.ComponentSpec(nil), defaultComponents...)
			}
			r.emit(stream.Event{Type: stream.EventStage, Stage: plan.StageArchitecture, Message: "architecture ready", Data: components})
			return nil
		},
		func() error {
			for i := range components {
				comp := &components[i]
				text, err := r.render(prompts.Component, prompts.Data{Prompt: p.Prompt, Needs: needs, Component: *comp})
				if err != nil {
					return err
				}
				markup, err := r.complete(unitCall{stage: plan.StageComponents, unit: comp.Name, index: i + 1, total: len(components), instruction: text, maxTokens: b.Component})
				if err != nil {
					if r.sig.Canceled() || errors.HasCategory(err, errors.CategoryCanceled) {
						return err
					}
					r.warn(fmt.Sprintf("component %q failed, placeholder used: %v", comp.Name, err))
					markup = placeholderComponent(*comp)
				}
				comp.Markup = markup
				r.emit(stream.Event{Type: stream.EventUnitDone, Stage: plan.StageComponents, Unit: comp.Name, Index: i + 1, Total: len(components),
					Data: map[string]int{"length": len(markup)}})
			}
			return nil
		},
		func() error {
			text, err := r.render(prompts.Assembly, prompts.Data{Prompt: p.Prompt, Needs: needs, Components: components})
			if err != nil {
				return err
			}
			markup, err := r.streamUnit(unitCall{stage: plan.StageAssembly, unit: model.IndexPage, index: 1, total: 1, instruction: text, maxTokens: b.Assembly})
			if err != nil {
				return err
			}
			return r.save(site.SaveRequest{PageName: model.IndexPage, Prompt: p.Prompt, HTML: markup})
		},
	}

	for i, step := range steps {
		if err := r.stage(i, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) render(name prompts.Name, data prompts.Data) (string, error) {
	text, err := r.c.prompts.Render(name, data)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryInternal, "render prompt").
			WithContext("template", string(name)).Build()
	}
	return text, nil
}

func parseComponents(text string) ([]prompts.ComponentSpec, error) {
	res := extract.JSON(text)
	if !res.OK() {
		return nil, res.Err
	}
	var comps []prompts.ComponentSpec
	if strings.HasPrefix(strings.TrimSpace(string(res.Value)), "[") {
		if err := res.Decode(&comps); err != nil {
			return nil, err
		}
	} else {
		var body struct {
			Components []prompts.ComponentSpec `json:"components"`
		}
		if err := res.Decode(&body); err != nil {
			return nil, err
		}
		comps = body.Components
	}

	out := comps[:0]
	for _, c := range comps {
		c.Name = plan.Slugify(c.Name)
		if c.Name != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, extract.ErrNoJSON
	}
	return out, nil
}

func placeholderComponent(c prompts.ComponentSpec) string {
	return fmt.Sprintf(`<section data-component="%s" class="component-placeholder"><p>%s</p></section>`,
		html.EscapeString(c.Name), html.EscapeString(c.Purpose))
}

func renderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := needsMarkdown.Convert([]byte(md), &buf); err != nil {
		return "<pre>" + html.EscapeString(md) + "</pre>"
	}
	return buf.String()
}

func navFor(p *plan.Plan, current string) []prompts.NavLink {
	links := make([]prompts.NavLink, 0, len(p.Units))
	for _, u := range p.Units {
		links = append(links, prompts.NavLink{
			Name:   u.Name,
			Title:  u.Title,
			URL:    model.CanonicalPath(p.ProjectID, u.Name),
			Active: u.Name == current,
		})
	}
	return links
}

func unitData(u plan.Unit) prompts.Unit {
	return prompts.Unit{Name: u.Name, Title: u.Title, Description: u.Description}
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.ToValidUTF8(s[:limit], "")
}
