package rewrite

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
)

// DefaultAssetPrefix is the reserved directory for images the generator
// references but never produces.
const DefaultAssetPrefix = "local-assets/"

var (
	hrefAttrRE = regexp.MustCompile(`(?i)(\shref\s*=\s*)(?:"([^"]*)"|'([^']*)')`)
	navAssign  = regexp.MustCompile(`((?:window\.|document\.|\b)location(?:\.href)?\s*=\s*)(?:"([^"]*)"|'([^']*)')`)
	navCall    = regexp.MustCompile(`(\blocation\.(?:assign|replace)\(\s*)(?:"([^"]*)"|'([^']*)')`)
	imgTagRE   = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	imgSrcRE   = regexp.MustCompile(`(?i)(\s(?:data-)?src\s*=\s*)(?:"([^"]*)"|'([^']*)')`)
)

// Report describes what a rewrite changed.
type Report struct {
	Hits     map[Rule]int
	Warnings []string
}

// Total returns the number of rewritten references.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Hits {
		n += c
	}
	return n
}

func (r *Report) hit(rule Rule) {
	if r.Hits == nil {
		r.Hits = make(map[Rule]int)
	}
	r.Hits[rule]++
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Rewriter applies the rewrite rules. The zero value is not usable; use New.
type Rewriter struct {
	assetPrefix string
	logger      *slog.Logger
	recorder    metrics.Recorder
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithAssetPrefix overrides the local asset directory.
func WithAssetPrefix(prefix string) Option {
	return func(r *Rewriter) {
		r.assetPrefix = strings.TrimPrefix(strings.TrimPrefix(prefix, "./"), "/")
	}
}

// WithLogger sets the logger used for input warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder reports rule hits to a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Rewriter) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// New builds a Rewriter.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{
		assetPrefix: DefaultAssetPrefix,
		logger:      slog.Default(),
		recorder:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRewriter = New()

// Rewrite rewrites html with a default Rewriter.
func Rewrite(html, projectID, currentPageName string, knownPageNames []string) string {
	return defaultRewriter.Rewrite(html, projectID, currentPageName, knownPageNames)
}

// Rewrite normalizes references in html. Invalid input is returned unchanged.
func (r *Rewriter) Rewrite(html, projectID, currentPageName string, knownPageNames []string) string {
	out, _ := r.RewriteReport(html, projectID, currentPageName, knownPageNames)
	return out
}

// RewriteReport is Rewrite plus a Report of per-rule hits and warnings.
func (r *Rewriter) RewriteReport(html, projectID, currentPageName string, knownPageNames []string) (out string, rep Report) {
	defer func() {
		if p := recover(); p != nil {
			out = html
			rep = Report{}
			rep.warn("rewrite aborted: %v", p)
			r.logWarnings(rep, projectID, currentPageName)
		}
	}()

	switch {
	case strings.TrimSpace(projectID) == "":
		rep.warn("empty project id, markup left unchanged")
	case html == "":
		rep.warn("empty markup")
	case !utf8.ValidString(html):
		rep.warn("markup is not valid UTF-8, left unchanged")
	}
	if len(rep.Warnings) > 0 {
		r.logWarnings(rep, projectID, currentPageName)
		return html, rep
	}

	t := newTarget(projectID, knownPageNames)
	if len(t.names.duplicates) > 0 {
		sort.Strings(t.names.duplicates)
		rep.warn("page names collide case-insensitively, first declaration kept: %s", strings.Join(t.names.duplicates, ", "))
	}

	out = replaceQuoted(hrefAttrRE, html, func(v string) string {
		nv, rule, ok := t.resolve(v)
		if ok {
			rep.hit(rule)
		}
		return nv
	})
	navFn := func(v string) string {
		nv, _, ok := t.resolve(v)
		if ok {
			rep.hit(RuleNavScript)
		}
		return nv
	}
	out = replaceQuoted(navAssign, out, navFn)
	out = replaceQuoted(navCall, out, navFn)
	out = imgTagRE.ReplaceAllStringFunc(out, func(tag string) string {
		return replaceQuoted(imgSrcRE, tag, func(v string) string {
			nv, ok := placeholderFor(v, r.assetPrefix)
			if ok {
				rep.hit(RuleAsset)
			}
			return nv
		})
	})

	for rule, n := range rep.Hits {
		r.recorder.AddRewriteHits(string(rule), n)
	}
	r.logWarnings(rep, projectID, currentPageName)
	return out, rep
}

func (r *Rewriter) logWarnings(rep Report, projectID, pageName string) {
	for _, w := range rep.Warnings {
		r.logger.Warn("Rewrite warning",
			slog.String("warning", w),
			logfields.ProjectID(projectID),
			logfields.PageName(pageName))
	}
}

// replaceQuoted rewrites the quoted value captured by re. The pattern must
// capture the prefix in group 1 and a double- or single-quoted value in
// groups 2 and 3. The original quote style is kept.
func replaceQuoted(re *regexp.Regexp, s string, fn func(string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		quote, vs, ve := `"`, m[4], m[5]
		if vs < 0 {
			quote, vs, ve = `'`, m[6], m[7]
		}
		value := s[vs:ve]
		replaced := fn(value)
		if replaced == value {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(s[m[2]:m[3]])
		b.WriteString(quote)
		b.WriteString(replaced)
		b.WriteString(quote)
		last = m[1]
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}
