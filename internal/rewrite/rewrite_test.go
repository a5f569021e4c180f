package rewrite

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var known = []string{"index", "about", "contact"}

func TestScenarioAboutPage(t *testing.T) {
	in := `<nav><a href="contact.html">Contact</a> <a href="./">Home</a> <a href="https://example.com">Ext</a> <a href="#top">Top</a></nav>`
	got := Rewrite(in, "P1", "about", known)

	want := `<nav><a href="/preview/P1/contact">Contact</a> <a href="/preview/P1">Home</a> <a href="https://example.com">Ext</a> <a href="#top">Top</a></nav>`
	assert.Equal(t, want, got)
}

func TestRewriteRules(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		rule Rule
	}{
		{"malformed index", `<a href="/preview/P1/index">`, `<a href="/preview/P1">`, RuleMalformedIndex},
		{"malformed index html", `<a href="/preview/P1/index.html#x">`, `<a href="/preview/P1#x">`, RuleMalformedIndex},
		{"known suffix", `<a href="about.html">`, `<a href="/preview/P1/about">`, RuleKnownSuffix},
		{"known suffix htm uppercase", `<a href="ABOUT.HTM">`, `<a href="/preview/P1/about">`, RuleKnownSuffix},
		{"known suffix keeps query and fragment", `<a href="contact.html?x=1#form">`, `<a href="/preview/P1/contact?x=1#form">`, RuleKnownSuffix},
		{"known suffix nested path", `<a href="pages/about.html">`, `<a href="/preview/P1/about">`, RuleKnownSuffix},
		{"index html to root", `<a href="index.html">`, `<a href="/preview/P1">`, RuleKnownSuffix},
		{"dot", `<a href=".">`, `<a href="/preview/P1">`, RuleHome},
		{"slash", `<a href="/">`, `<a href="/preview/P1">`, RuleHome},
		{"index token", `<a href="Index">`, `<a href="/preview/P1">`, RuleHome},
		{"dot index", `<a href="./index">`, `<a href="/preview/P1">`, RuleHome},
		{"bare name", `<a href="contact">`, `<a href="/preview/P1/contact">`, RuleBareName},
		{"bare name case folded", `<a href="CONTACT">`, `<a href="/preview/P1/contact">`, RuleBareName},
		{"single quotes", `<a href='about.html'>`, `<a href='/preview/P1/about'>`, RuleKnownSuffix},
		{"onclick assignment", `<button onclick="window.location.href='about.html'">`, `<button onclick="window.location.href='/preview/P1/about'">`, RuleNavScript},
		{"script location", `<script>document.location = "contact";</script>`, `<script>document.location = "/preview/P1/contact";</script>`, RuleNavScript},
		{"bare location", `<script>location='about'</script>`, `<script>location='/preview/P1/about'</script>`, RuleNavScript},
		{"location assign", `<script>location.assign('about.html')</script>`, `<script>location.assign('/preview/P1/about')</script>`, RuleNavScript},
		{"location replace home", `<script>location.replace("./")</script>`, `<script>location.replace("/preview/P1")</script>`, RuleNavScript},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rep := New().RewriteReport(tc.in, "P1", "index", known)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, 1, rep.Hits[tc.rule], "hits: %v", rep.Hits)
		})
	}
}

func TestDeclaredCasingPreserved(t *testing.T) {
	got := Rewrite(`<a href="ourteam.html">Team</a><a href="OURTEAM">x</a>`, "P1", "index", []string{"index", "OurTeam"})
	assert.Equal(t, `<a href="/preview/P1/OurTeam">Team</a><a href="/preview/P1/OurTeam">x</a>`, got)
}

func TestNonInterference(t *testing.T) {
	inputs := []string{
		`<a href="https://example.com/about.html">`,
		`<a href="//cdn.example.com/contact">`,
		`<a href="#contact">`,
		`<a href="mailto:hi@example.com">`,
		`<a href="tel:+100">`,
		`<a href="javascript:void(0)">`,
		`<a href="data:text/html,about">`,
		`<a href="/preview/P1">`,
		`<a href="/preview/P1/about">`,
		`<a href="/preview/P1/contact#form">`,
		`<a href="unknown.html">`,
		`<a href="about#team">`,
		`<a href="/about">`,
		`<link rel="stylesheet" href="styles.css">`,
		`<img src="images/photo.jpg">`,
		`<p>about.html and contact are just words</p>`,
		`<script>var target = "about.html";</script>`,
		`<script>geolocation = 'about';</script>`,
		`<script>var mylocation = "contact";</script>`,
		`<script>geolocation.assign('about')</script>`,
	}
	for _, in := range inputs {
		got, rep := New().RewriteReport(in, "P1", "index", known)
		assert.Equal(t, in, got, "input must be byte-identical")
		assert.Zero(t, rep.Total(), in)
	}
}

func TestIdempotence(t *testing.T) {
	refs := []string{
		"about.html", "contact.htm", "index.html", "./", ".", "/", "index", "./index",
		"about", "CONTACT", "https://x.io", "#top", "/preview/P1/index", "/preview/P1/about.html",
		"unknown.html", "mailto:a@b.c", "contact.html?q=1#f", "/preview/P1",
	}
	for i, ref := range refs {
		for j, other := range refs {
			html := fmt.Sprintf(`<a href="%s">a</a><button onclick="location.href='%s'">b</button><img src="local-assets/team-%d.png">`, ref, other, i+j)
			once := Rewrite(html, "P1", "about", known)
			twice := Rewrite(once, "P1", "about", known)
			require.Equal(t, once, twice, "input %q", html)
		}
	}
}

func TestCoverageOfKnownNames(t *testing.T) {
	for _, name := range known {
		for _, variant := range []string{name, strings.ToUpper(name), name + ".html", strings.ToUpper(name[:1]) + name[1:] + ".htm"} {
			got := Rewrite(`<a href="`+variant+`">`, "P9", "index", known)
			want := "/preview/P9/" + name
			if name == "index" {
				want = "/preview/P9"
			}
			assert.Equal(t, `<a href="`+want+`">`, got, variant)
		}
	}
}

func TestAssetPlaceholders(t *testing.T) {
	cases := map[string]string{
		`<img src="local-assets/logo.png">`:             `<img src="https://placehold.co/200x80?text=logo">`,
		`<img alt="x" src="/local-assets/hero-bg.jpg">`: `<img alt="x" src="https://picsum.photos/seed/hero-bg/1600/900">`,
		`<img data-src="./local-assets/banner.webp">`:   `<img data-src="https://picsum.photos/seed/banner/1600/900">`,
		`<img src='local-assets/team_jane.jpg'>`:        `<img src='https://i.pravatar.cc/150?u=team_jane'>`,
		`<img src="local-assets/cake.jpg">`:             `<img src="https://picsum.photos/seed/cake/800/600">`,
	}
	for in, want := range cases {
		got, rep := New().RewriteReport(in, "P1", "index", known)
		assert.Equal(t, want, got)
		assert.Equal(t, 1, rep.Hits[RuleAsset])
	}
}

func TestCustomAssetPrefix(t *testing.T) {
	r := New(WithAssetPrefix("/static/gen/"))
	got := r.Rewrite(`<img src="static/gen/avatar.png"><img src="local-assets/x.png">`, "P1", "index", known)
	assert.Equal(t, `<img src="https://i.pravatar.cc/150?u=avatar"><img src="local-assets/x.png">`, got)
}

func TestInvalidInputReturnedUnchanged(t *testing.T) {
	var buf bytes.Buffer
	r := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	in := `<a href="about.html">`
	got, rep := r.RewriteReport(in, "", "index", known)
	assert.Equal(t, in, got)
	assert.NotEmpty(t, rep.Warnings)

	bad := "<a href=\"about.html\">\xff"
	got, rep = r.RewriteReport(bad, "P1", "index", known)
	assert.Equal(t, bad, got)
	assert.NotEmpty(t, rep.Warnings)

	got, rep = r.RewriteReport("", "P1", "index", known)
	assert.Empty(t, got)
	assert.NotEmpty(t, rep.Warnings)

	assert.Contains(t, buf.String(), "Rewrite warning")
}

func TestDuplicateFoldedNamesKeepFirst(t *testing.T) {
	got, rep := New().RewriteReport(`<a href="about.html">`, "P1", "index", []string{"index", "About", "about"})
	assert.Equal(t, `<a href="/preview/P1/About">`, got)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "about")
}
