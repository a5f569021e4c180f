// Package model defines the persisted Page and Project aggregates.
package model

import (
	"strings"
	"time"
)

// IndexPage is the reserved name of every project's entry page.
const IndexPage = "index"

// PageType distinguishes the entry page from sub-pages.
type PageType string

const (
	PageTypeMain PageType = "main"
	PageTypeSub  PageType = "sub"
)

// GenerationType is the persisted form of a generation strategy.
type GenerationType string

const (
	GenerationSingle       GenerationType = "single"
	GenerationMulti        GenerationType = "multi"
	GenerationLong         GenerationType = "long"
	GenerationHierarchical GenerationType = "hierarchical"
)

// HistoryEntry records one modification applied to a page.
type HistoryEntry struct {
	Request   string    `json:"request" bson:"request"`
	Plan      string    `json:"plan,omitempty" bson:"plan,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Page is one generated document.
type Page struct {
	ID                  string         `json:"id" bson:"_id"`
	HTML                string         `json:"html" bson:"html"`
	OriginalHTML        string         `json:"originalHtml" bson:"original_html"`
	Prompt              string         `json:"prompt" bson:"prompt"`
	OriginalPrompt      string         `json:"originalPrompt,omitempty" bson:"original_prompt,omitempty"`
	IsModification      bool           `json:"isModification" bson:"is_modification"`
	ProjectID           string         `json:"projectId,omitempty" bson:"project_id,omitempty"`
	PageName            string         `json:"pageName" bson:"page_name"`
	PageType            PageType       `json:"pageType" bson:"page_type"`
	SectionIndex        int            `json:"sectionIndex,omitempty" bson:"section_index,omitempty"`
	TotalSections       int            `json:"totalSections,omitempty" bson:"total_sections,omitempty"`
	ModificationHistory []HistoryEntry `json:"modificationHistory,omitempty" bson:"modification_history,omitempty"`
	CreatedAt           time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt           time.Time      `json:"updatedAt" bson:"updated_at"`
}

// PageRef is a project's descriptor of one of its pages. PageID is empty for
// legacy rows written before pages carried their own identifier.
type PageRef struct {
	PageID     string `json:"pageId,omitempty" bson:"page_id,omitempty"`
	PageName   string `json:"pageName" bson:"page_name"`
	IsMainPage bool   `json:"isMainPage" bson:"is_main_page"`
}

// Project is a generated site.
type Project struct {
	ID             string         `json:"id" bson:"_id"`
	Name           string         `json:"name" bson:"name"`
	Description    string         `json:"description,omitempty" bson:"description,omitempty"`
	GenerationType GenerationType `json:"generationType" bson:"generation_type"`
	Pages          []PageRef      `json:"pages" bson:"pages"`
	PlannedPages   []string       `json:"plannedPages" bson:"planned_pages"`
	DesignSystem   map[string]any `json:"designSystem,omitempty" bson:"design_system,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" bson:"updated_at"`
}

// IsPlanned reports whether name is one of the project's planned pages.
func (p *Project) IsPlanned(name string) bool {
	for _, n := range p.PlannedPages {
		if n == name {
			return true
		}
	}
	return false
}

// FindRef returns the descriptor whose PageName matches name exactly.
func (p *Project) FindRef(name string) (PageRef, bool) {
	for _, r := range p.Pages {
		if r.PageName == name {
			return r, true
		}
	}
	return PageRef{}, false
}

// UpsertRef replaces the descriptor named ref.PageName, or appends it.
func (p *Project) UpsertRef(ref PageRef) {
	for i, r := range p.Pages {
		if r.PageName == ref.PageName {
			p.Pages[i] = ref
			return
		}
	}
	p.Pages = append(p.Pages, ref)
}

// CanonicalPath returns the canonical preview address of pageName within projectID.
func CanonicalPath(projectID, pageName string) string {
	if pageName == "" || strings.EqualFold(pageName, IndexPage) {
		return "/preview/" + projectID
	}
	return "/preview/" + projectID + "/" + pageName
}

// TypeFor returns the PageType implied by a page name.
func TypeFor(pageName string) PageType {
	if pageName == IndexPage {
		return PageTypeMain
	}
	return PageTypeSub
}

// Clone returns a deep copy of the page.
func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	c := *p
	c.ModificationHistory = append([]HistoryEntry(nil), p.ModificationHistory...)
	return &c
}

// Clone returns a deep copy of the project. DesignSystem values are shared.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Pages = append([]PageRef(nil), p.Pages...)
	c.PlannedPages = append([]string(nil), p.PlannedPages...)
	if p.DesignSystem != nil {
		c.DesignSystem = make(map[string]any, len(p.DesignSystem))
		for k, v := range p.DesignSystem {
			c.DesignSystem[k] = v
		}
	}
	return &c
}
