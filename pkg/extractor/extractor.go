// Package extractor locates the main content of a documentation page and
// discovers the links it contains.
package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// UntitledPage is the title used when a page has no <title>.
const UntitledPage = "Untitled Page"

// Rules is the data driving extraction. Denylist selectors are removed from
// the document; Candidates are tried in order for the content root; a div
// whose class contains one of FallbackClassTokens is used next and <body> last.
type Rules struct {
	Denylist            []string
	Candidates          []string
	FallbackClassTokens []string
}

// DefaultRules returns the built-in noise denylist and documentation selectors.
func DefaultRules() Rules {
	return Rules{
		Denylist: []string{
			"script", "style", "iframe", "nav", "footer", "header",
			"aside", "noscript", "meta", "button", "svg", "canvas",
			`[aria-hidden="true"]`, "[hidden]",
			`[style*="display:none"]`, `[style*="display: none"]`,
			`[style*="visibility:hidden"]`, `[style*="visibility: hidden"]`,
			".navigation", ".sidebar", ".menu",
			".ads", ".banner", ".cookie-notice", ".social-links",
		},
		Candidates: []string{
			"main",
			"article",
			"div.content",
			"div.documentation",
			"div.document",
			"div.docs-content",
			"div.doc-content",
			"div#content",
			"div#documentation",
			"div#main-content",
			"div#docs-content",
			"div.sphinx-content",
			"div.md-content",
			"div.page-inner",
			"div.markdown-section",
			"div.section",
			"div.post-content",
			"div.container",
			"div.wrapper",
			"div.entry-content",
			`div[role="main"]`,
		},
		FallbackClassTokens: []string{"content", "doc"},
	}
}

// Result is the outcome of extracting one page.
type Result struct {
	// Document is the parsed page with denylisted elements removed.
	Document *goquery.Document
	// Content is the selected content root, a node inside Document.
	Content *goquery.Selection
	// Title is the effective title: the <title> text cut at its first separator.
	Title string
	// RawTitle is the <title> text as written.
	RawTitle string
	// Links are the absolute http(s) links of the full page in document order,
	// deduplicated, fragments removed.
	Links []string
	// Matched names the rule that selected Content.
	Matched string
	// Empty is set when the content root holds no text and no images.
	Empty bool
}

// Extractor applies Rules to HTML documents.
type Extractor struct {
	rules  Rules
	logger *slog.Logger
}

// New creates an Extractor.
func New(rules Rules, logger *slog.Logger) *Extractor {
	return &Extractor{rules: rules, logger: logging.OrDiscard(logger)}
}

// Extract parses body and selects its main content. pageURL is used to resolve
// relative links and should be the final URL after redirects.
func (e *Extractor) Extract(body []byte, pageURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	raw := strings.TrimSpace(doc.Find("title").First().Text())
	res := &Result{
		Document: doc,
		RawTitle: raw,
		Title:    EffectiveTitle(raw),
	}

	if base, err := url.Parse(pageURL); err == nil {
		res.Links = DiscoverLinks(doc, base)
	}

	for _, sel := range e.rules.Denylist {
		doc.Find(sel).Remove()
	}

	res.Content, res.Matched = e.contentRoot(doc)
	if res.Content == nil || res.Content.Length() == 0 {
		res.Content = doc.Selection
		res.Matched = "document"
	}
	res.Empty = strings.TrimSpace(res.Content.Text()) == "" && res.Content.Find("img").Length() == 0

	e.logger.Debug("extracted content", "url", pageURL, "matched", res.Matched, "links", len(res.Links), "empty", res.Empty)
	return res, nil
}

func (e *Extractor) contentRoot(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range e.rules.Candidates {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found, sel
		}
	}

	var match *goquery.Selection
	doc.Find("div[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class := strings.ToLower(s.AttrOr("class", ""))
		for _, token := range e.rules.FallbackClassTokens {
			if strings.Contains(class, token) {
				match = s
				return false
			}
		}
		return true
	})
	if match != nil {
		return match, "class-token"
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body, "body"
	}
	return nil, ""
}

// EffectiveTitle trims raw and keeps only the part before the first " | " or,
// failing that, the first " - ". An empty title becomes UntitledPage.
func EffectiveTitle(raw string) string {
	title := strings.Join(strings.Fields(raw), " ")
	if title == "" {
		return UntitledPage
	}
	if before, _, ok := strings.Cut(title, " | "); ok {
		title = strings.TrimSpace(before)
	} else if before, _, ok := strings.Cut(title, " - "); ok {
		title = strings.TrimSpace(before)
	}
	if title == "" {
		return UntitledPage
	}
	return title
}

// DiscoverLinks returns the absolute links of every <a href> in doc.
func DiscoverLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := utils.ResolveReference(base, href)
		if !ok {
			return
		}
		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links
}

// NoContentMarkdown is the document emitted for a page without extractable content.
func NoContentMarkdown(title string) string {
	return "# " + title + "\n\nNo main content could be extracted from this page."
}
