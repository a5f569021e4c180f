// Package linkaudit inspects stored pages for intra-site links that do not
// resolve to a planned page. It only reads markup; rewriting lives in the
// rewrite package.
package linkaudit

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// Status classifies an extracted link.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusExternal   Status = "external"
	StatusIgnored    Status = "ignored"
)

// Link represents an extracted link from page markup.
type Link struct {
	URL       string `json:"url"`
	Text      string `json:"text,omitempty"`
	Tag       string `json:"tag"`
	Attribute string `json:"attribute"`
	Status    Status `json:"status"`
	// Target is the planned page a resolved link points at.
	Target string `json:"target,omitempty"`
}

// Report is the audit of a single page.
type Report struct {
	PageName   string `json:"pageName"`
	Links      []Link `json:"links"`
	Unresolved []Link `json:"unresolved"`
}

// OK reports whether every intra-site link resolved.
func (r Report) OK() bool { return len(r.Unresolved) == 0 }

// Audit extracts navigational and asset references from markup and checks
// intra-site navigation against the planned page names of projectID.
func Audit(markup, projectID, pageName string, planned []string) (Report, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return Report{}, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").
			WithContext("page_name", pageName).Build()
	}

	c := checker{
		root:    model.CanonicalPath(projectID, model.IndexPage),
		planned: make(map[string]bool, len(planned)),
	}
	for _, n := range planned {
		c.planned[n] = true
	}

	rep := Report{PageName: pageName, Links: []Link{}, Unresolved: []Link{}}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if l, ok := c.extract(n); ok {
				rep.Links = append(rep.Links, l)
				if l.Status == StatusUnresolved {
					rep.Unresolved = append(rep.Unresolved, l)
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return rep, nil
}

// AuditPages audits every page of a project.
func AuditPages(project *model.Project, pages []*model.Page) ([]Report, error) {
	reports := make([]Report, 0, len(pages))
	for _, p := range pages {
		rep, err := Audit(p.HTML, project.ID, p.PageName, project.PlannedPages)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

type checker struct {
	root    string
	planned map[string]bool
}

func (c checker) extract(n *html.Node) (Link, bool) {
	switch n.Data {
	case "a", "area":
		href := getAttr(n, "href")
		if href == "" {
			return Link{}, false
		}
		l := Link{URL: href, Text: extractText(n), Tag: n.Data, Attribute: "href"}
		l.Status, l.Target = c.classify(href)
		return l, true
	case "img", "script":
		src := getAttr(n, "src")
		if src == "" {
			return Link{}, false
		}
		l := Link{URL: src, Text: getAttr(n, "alt"), Tag: n.Data, Attribute: "src", Status: StatusExternal}
		if isLocalAsset(src) {
			l.Status = StatusUnresolved
		}
		return l, true
	case "link":
		href := getAttr(n, "href")
		if href == "" {
			return Link{}, false
		}
		return Link{URL: href, Text: getAttr(n, "rel"), Tag: "link", Attribute: "href", Status: StatusExternal}, true
	}
	return Link{}, false
}

// classify decides whether a navigational href is a canonical link to a
// planned page.
func (c checker) classify(href string) (Status, string) {
	ref := strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(ref, "#"),
		strings.HasPrefix(ref, "mailto:"),
		strings.HasPrefix(ref, "tel:"),
		strings.HasPrefix(ref, "javascript:"),
		strings.HasPrefix(ref, "data:"):
		return StatusIgnored, ""
	}

	u, err := url.Parse(ref)
	if err != nil {
		return StatusUnresolved, ""
	}
	if u.Scheme != "" || u.Host != "" {
		return StatusExternal, ""
	}

	p := u.Path
	if p == c.root || p == c.root+"/" {
		return StatusResolved, model.IndexPage
	}
	if rest, ok := strings.CutPrefix(p, c.root+"/"); ok && !strings.Contains(rest, "/") && c.planned[rest] {
		return StatusResolved, rest
	}
	if strings.HasPrefix(p, "/preview/") && !strings.HasPrefix(p, c.root) {
		// Another project's preview.
		return StatusExternal, ""
	}
	return StatusUnresolved, ""
}

func isLocalAsset(src string) bool {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(src), "./"), "/")
	return strings.HasPrefix(s, "local-assets/")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(extractText(c))
	}
	return strings.TrimSpace(text.String())
}
