package rewrite

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"git.home.luguber.info/inful/pagesmith/internal/model"
)

// Rule names a rewrite rule for reporting and metrics.
type Rule string

const (
	RuleMalformedIndex Rule = "malformed_index"
	RuleKnownSuffix    Rule = "known_suffix"
	RuleHome           Rule = "home"
	RuleBareName       Rule = "bare_name"
	RuleNavScript      Rule = "nav_script"
	RuleAsset          Rule = "asset_placeholder"
)

var (
	schemeRE     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
	docSuffixRE  = regexp.MustCompile(`(?i)^(.+)\.html?$`)
	homeTokens   = map[string]bool{".": true, "./": true, "/": true, "index": true, "./index": true}
	folder       = cases.Fold()
	indexFoldKey = folder.String(model.IndexPage)
)

// nameIndex maps case-folded page names to their declared spelling.
type nameIndex struct {
	byFold     map[string]string
	duplicates []string
}

func newNameIndex(known []string) nameIndex {
	idx := nameIndex{byFold: make(map[string]string, len(known))}
	for _, name := range known {
		if name == "" {
			continue
		}
		key := folder.String(name)
		if prev, ok := idx.byFold[key]; ok {
			if prev != name {
				idx.duplicates = append(idx.duplicates, name)
			}
			continue
		}
		idx.byFold[key] = name
	}
	return idx
}

func (n nameIndex) lookup(name string) (string, bool) {
	declared, ok := n.byFold[folder.String(name)]
	return declared, ok
}

// target holds the per-call context of one Rewrite invocation.
type target struct {
	projectID string
	root      string
	names     nameIndex
}

func newTarget(projectID string, known []string) target {
	return target{
		projectID: projectID,
		root:      model.CanonicalPath(projectID, model.IndexPage),
		names:     newNameIndex(known),
	}
}

func (t target) canonical(declared string) string {
	if folder.String(declared) == indexFoldKey {
		return t.root
	}
	return model.CanonicalPath(t.projectID, declared)
}

// splitSuffix separates a reference into path and its ?query/#fragment tail.
func splitSuffix(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

func isExcluded(ref string) bool {
	switch {
	case ref == "":
		return true
	case strings.HasPrefix(ref, "#"):
		return true
	case strings.HasPrefix(ref, "//"):
		return true
	case schemeRE.MatchString(ref):
		// covers http:, https:, mailto:, tel:, javascript:, data:
		return true
	}
	return false
}

// isCanonical reports whether p is /preview/{pid} or /preview/{pid}/{name}
// where name is a single extension-less segment.
func (t target) isCanonical(p string) bool {
	if p == t.root {
		return true
	}
	rest, ok := strings.CutPrefix(p, t.root+"/")
	if !ok || rest == "" {
		return false
	}
	return !strings.ContainsAny(rest, "/.")
}

// resolve applies rules 1-4 to a single reference. It returns the new value
// and the rule that fired, or ok=false when the reference is left alone.
func (t target) resolve(ref string) (out string, rule Rule, ok bool) {
	trimmed := strings.TrimSpace(ref)
	if isExcluded(trimmed) {
		return ref, "", false
	}
	p, suffix := splitSuffix(trimmed)

	// Rule 1
	if rest, found := strings.CutPrefix(p, t.root+"/"); found {
		stem := rest
		if m := docSuffixRE.FindStringSubmatch(rest); m != nil {
			stem = m[1]
		}
		if folder.String(stem) == indexFoldKey {
			return t.root + suffix, RuleMalformedIndex, true
		}
	}
	if t.isCanonical(p) {
		return ref, "", false
	}

	// Rule 2
	if m := docSuffixRE.FindStringSubmatch(path.Base(p)); m != nil && !strings.HasSuffix(p, "/") {
		stem := m[1]
		if folder.String(stem) == indexFoldKey {
			return t.root + suffix, RuleKnownSuffix, true
		}
		if declared, found := t.names.lookup(stem); found {
			return t.canonical(declared) + suffix, RuleKnownSuffix, true
		}
		return ref, "", false
	}

	// Rule 3
	if homeTokens[strings.ToLower(p)] {
		return t.root + suffix, RuleHome, true
	}

	// Rule 4
	if suffix == "" && !strings.ContainsAny(p, "/:") {
		if declared, found := t.names.lookup(p); found {
			return t.canonical(declared), RuleBareName, true
		}
	}
	return ref, "", false
}

// placeholderFor maps a local asset reference to a placeholder image URL.
func placeholderFor(ref, assetPrefix string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	trimmed = strings.TrimPrefix(trimmed, "./")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if assetPrefix == "" || !strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(assetPrefix)) {
		return ref, false
	}
	p, _ := splitSuffix(trimmed)
	file := strings.ToLower(path.Base(p))
	stem := strings.TrimSuffix(file, path.Ext(file))
	if stem == "" || stem == "." || stem == "/" {
		stem = "image"
	}
	seed := url.PathEscape(stem)

	switch {
	case strings.Contains(file, "logo"):
		return "https://placehold.co/200x80?text=" + url.QueryEscape(labelFor(stem)), true
	case strings.Contains(file, "hero") || strings.Contains(file, "banner"):
		return "https://picsum.photos/seed/" + seed + "/1600/900", true
	case strings.Contains(file, "avatar") || strings.Contains(file, "profile") || strings.Contains(file, "team"):
		return "https://i.pravatar.cc/150?u=" + url.QueryEscape(stem), true
	default:
		return "https://picsum.photos/seed/" + seed + "/800/600", true
	}
}

func labelFor(stem string) string {
	label := strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	label = strings.TrimSpace(label)
	if label == "" {
		return "Logo"
	}
	return label
}
