package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, page string) *Result {
	t.Helper()
	res, err := New(DefaultRules(), nil).Extract([]byte(page), "https://docs.example.com/guide/intro")
	require.NoError(t, err)
	return res
}

func TestExtractPrefersMain(t *testing.T) {
	res := extract(t, `<html><head><title>Intro | Example Docs</title></head><body>
<nav><a href="/guide/other">Other</a></nav>
<div class="content"><p>not this</p></div>
<main><h1>Intro</h1><p>Body text</p></main>
<footer>Copyright</footer>
</body></html>`)

	assert.Equal(t, "main", res.Matched)
	assert.Equal(t, "Intro", res.Title)
	assert.Equal(t, "Intro | Example Docs", res.RawTitle)
	assert.Contains(t, res.Content.Text(), "Body text")
	assert.NotContains(t, res.Content.Text(), "not this")
	assert.False(t, res.Empty)
}

func TestExtractCandidateOrder(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		matched string
	}{
		{"documentation class", `<div class="sidebar">x</div><div class="documentation">Docs</div>`, "div.documentation"},
		{"content id", `<div id="content">Docs</div>`, "div#content"},
		{"role main", `<div role="main">Docs</div>`, `div[role="main"]`},
		{"class token", `<div class="my-doc-body">Docs</div>`, "class-token"},
		{"body", `<p>Docs paragraph</p>`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := extract(t, "<html><body>"+tt.body+"</body></html>")
			assert.Equal(t, tt.matched, res.Matched)
			assert.Contains(t, res.Content.Text(), "Doc")
		})
	}
}

func TestExtractRemovesDenylist(t *testing.T) {
	res := extract(t, `<html><body><article>
<script>var x = 1;</script>
<div class="cookie-notice">We use cookies</div>
<p hidden>secret</p>
<span aria-hidden="true">icon</span>
<div style="display:none">stash</div>
<div style="color: red; display: none">ghost</div>
<p style="visibility: hidden">phantom</p>
<p>Visible</p>
</article></body></html>`)

	text := res.Content.Text()
	assert.Contains(t, text, "Visible")
	for _, noise := range []string{"var x", "cookies", "secret", "icon", "stash", "ghost", "phantom"} {
		assert.NotContains(t, text, noise)
	}
}

func TestExtractNavAndFooterOnly(t *testing.T) {
	res := extract(t, `<html><head><title>Lonely</title></head><body>
<nav><a href="/a">A</a></nav><footer>Footer</footer></body></html>`)

	assert.True(t, res.Empty)
	assert.Equal(t, "# Lonely\n\nNo main content could be extracted from this page.", NoContentMarkdown(res.Title))
}

func TestExtractDiscoversLinksFromFullPage(t *testing.T) {
	res := extract(t, `<html><body>
<nav><a href="/guide/setup">Setup</a><a href="../api/">API</a></nav>
<main>
  <a href="usage#section">Usage</a>
  <a href="usage">Usage again</a>
  <a href="#top">Top</a>
  <a href="mailto:team@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="https://other.example.org/x">External</a>
</main>
</body></html>`)

	assert.Equal(t, []string{
		"https://docs.example.com/guide/setup",
		"https://docs.example.com/api/",
		"https://docs.example.com/guide/usage",
		"https://other.example.org/x",
	}, res.Links)
}

func TestEffectiveTitle(t *testing.T) {
	tests := map[string]string{
		"":                           UntitledPage,
		"  Getting Started  ":        "Getting Started",
		"Install | Project - Docs":   "Install",
		"Install - Project":          "Install",
		"Multi\n  line   title":      "Multi line title",
		"Hyphenated-word - Site":     "Hyphenated-word",
	}
	for raw, want := range tests {
		assert.Equal(t, want, EffectiveTitle(raw), raw)
	}
}

func TestFallbackText(t *testing.T) {
	page := []byte(`<html><head><title>T</title><style>p{}</style></head>
<body><p>First   paragraph</p><script>ignored()</script><p>Second</p></body></html>`)

	assert.NotEmpty(t, FallbackText(page))

	text := tidy(walkText(page))

	assert.Contains(t, text, "First paragraph")
	assert.Contains(t, text, "Second")
	assert.NotContains(t, text, "ignored")
}
