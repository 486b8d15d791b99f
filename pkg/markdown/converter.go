// Package markdown converts extracted HTML content into Markdown documents.
package markdown

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

// Options tunes the generated Markdown.
type Options struct {
	// IgnoreLinks renders anchors as their text.
	IgnoreLinks bool
	// IgnoreImages drops images.
	IgnoreImages bool
	// DashUnorderedList uses "-" instead of "*" for bullets.
	DashUnorderedList bool
	// SkipInternalLinks renders links to the same host, root-relative links
	// and relative links as plain text.
	SkipInternalLinks bool
	// BodyWidth wraps prose lines at the given column. 0 disables wrapping.
	BodyWidth int
	// IncludeFrontmatter prefixes documents with a YAML block.
	IncludeFrontmatter bool
}

// Converter rewrites an HTML subtree into Markdown. A Converter holds no
// per-document state and is safe for concurrent use.
type Converter struct {
	opts   Options
	logger *slog.Logger
}

// NewConverter creates a Converter.
func NewConverter(opts Options, logger *slog.Logger) *Converter {
	return &Converter{opts: opts, logger: logging.OrDiscard(logger)}
}

// Options returns the converter's options.
func (c *Converter) Options() Options { return c.opts }

// pass rewrites matching elements of the tree in place.
type pass struct {
	name     string
	selector string
	// skipInPre leaves elements inside <pre> untouched.
	skipInPre bool
	rewrite   func(c *Converter, n *html.Node, page *url.URL)
}

// passes run in order; each one sees the output of the passes before it.
var passes = []pass{
	{name: "headings", selector: "h1, h2, h3, h4, h5, h6", skipInPre: true, rewrite: (*Converter).heading},
	{name: "links", selector: "a[href]", skipInPre: true, rewrite: (*Converter).link},
	{name: "images", selector: "img", skipInPre: true, rewrite: (*Converter).image},
	{name: "code", selector: "pre, code", rewrite: (*Converter).code},
	{name: "emphasis", selector: "em, i, strong, b, s, strike, del", skipInPre: true, rewrite: (*Converter).emphasis},
	{name: "lists", selector: "ul, ol", rewrite: (*Converter).list},
	{name: "tables", selector: "table", rewrite: (*Converter).table},
	{name: "blockquotes", selector: "blockquote", rewrite: (*Converter).blockquote},
	{name: "rules", selector: "hr", rewrite: (*Converter).rule},
}

// Convert renders root as Markdown. root is modified. pageURL resolves
// internal links when SkipInternalLinks is set and may be empty. A panic
// during conversion is returned as a ParseDegraded error.
func (c *Converter) Convert(root *html.Node, pageURL string) (md string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewCrawlError(models.KindParseDegraded, pageURL, "conversion panicked", fmt.Errorf("%v", r))
		}
	}()
	if root == nil {
		return "", models.NewCrawlError(models.KindParseDegraded, pageURL, "no content node", nil)
	}

	page, _ := url.Parse(pageURL)
	for _, p := range passes {
		// Innermost matches first, so nested elements are already Markdown
		// when their ancestors are rendered.
		nodes := goquery.NewDocumentFromNode(root).Find(p.selector).Nodes
		for i := len(nodes) - 1; i >= 0; i-- {
			n := nodes[i]
			if n.Parent == nil || (p.skipInPre && insidePre(n)) {
				continue
			}
			p.rewrite(c, n, page)
		}
	}

	return c.postProcess(flatten(root)), nil
}

func (c *Converter) heading(n *html.Node, _ *url.URL) {
	level := int(n.Data[1] - '0')
	text := inlineText(n)
	if text == "" {
		remove(n)
		return
	}
	replace(n, block(strings.Repeat("#", level)+" "+text))
}

var bracketEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func (c *Converter) link(n *html.Node, page *url.URL) {
	href := strings.TrimSpace(attr(n, "href"))
	text := inlineText(n)

	if text == "" && hasDescendant(n, "img") {
		// Left in place so the image pass renders the image itself.
		return
	}
	if c.opts.IgnoreLinks || (c.opts.SkipInternalLinks && isInternal(href, page)) {
		replaceInline(n, text)
		return
	}
	replaceInline(n, "["+bracketEscaper.Replace(text)+"]("+href+")")
}

var altEscaper = strings.NewReplacer("[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`)

func (c *Converter) image(n *html.Node, _ *url.URL) {
	src := strings.TrimSpace(attr(n, "src"))
	if c.opts.IgnoreImages || src == "" {
		remove(n)
		return
	}
	alt := strings.TrimSpace(attr(n, "alt"))
	if alt == "" {
		alt = strings.TrimSpace(attr(n, "title"))
	}
	if alt == "" {
		alt = "Image"
	}
	replace(n, inline("!["+altEscaper.Replace(alt)+"]("+src+")"))
}

func (c *Converter) code(n *html.Node, _ *url.URL) {
	if n.Data == "code" {
		if insidePre(n) {
			return
		}
		text := rawText(n)
		if strings.TrimSpace(text) == "" {
			remove(n)
			return
		}
		fence := "`"
		if strings.Contains(text, "`") {
			fence = "``"
			text = " " + text + " "
		}
		replace(n, inline(fence+text+fence))
		return
	}

	lang := ""
	if code := firstChildElement(n, "code"); code != nil {
		lang = languageOf(code)
	}
	if lang == "" {
		lang = languageOf(n)
	}
	text := strings.Trim(rawText(n), "\n")
	fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
	replace(n, block(fence+lang+"\n"+text+"\n"+fence))
}

func longestRun(s string, b byte) int {
	longest, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] != b {
			cur = 0
			continue
		}
		cur++
		longest = max(longest, cur)
	}
	return longest
}

func languageOf(n *html.Node) string {
	for _, cls := range strings.Fields(attr(n, "class")) {
		for _, prefix := range []string{"language-", "lang-"} {
			if lang, ok := strings.CutPrefix(cls, prefix); ok && lang != "" {
				return lang
			}
		}
	}
	return ""
}

func (c *Converter) emphasis(n *html.Node, _ *url.URL) {
	text := inlineText(n)
	if text == "" {
		unwrap(n)
		return
	}
	var mark string
	switch n.Data {
	case "em", "i":
		mark = "*"
	case "strong", "b":
		mark = "**"
	default:
		mark = "~~"
	}
	replaceInline(n, mark+text+mark)
}

func (c *Converter) list(n *html.Node, _ *url.URL) {
	ordered := n.Data == "ol"
	number := 1
	if ordered {
		if start, err := strconv.Atoi(strings.TrimSpace(attr(n, "start"))); err == nil {
			number = start
		}
	}
	bullet := "*"
	if c.opts.DashUnorderedList {
		bullet = "-"
	}

	var items []string
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		lines := nonEmptyLines(flatten(li))
		if len(lines) == 0 {
			continue
		}
		marker := bullet + " "
		if ordered {
			marker = strconv.Itoa(number) + ". "
			number++
		}
		indent := strings.Repeat(" ", len(marker))
		items = append(items, marker+lines[0])
		for _, line := range lines[1:] {
			items = append(items, indent+line)
		}
	}
	if len(items) == 0 {
		remove(n)
		return
	}
	replace(n, block(strings.Join(items, "\n")))
}

var pipeEscaper = strings.NewReplacer("|", `\|`)

func (c *Converter) table(n *html.Node, _ *url.URL) {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for ch := p.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type != html.ElementNode {
				continue
			}
			switch ch.Data {
			case "thead", "tbody", "tfoot":
				walk(ch)
			case "tr":
				var cells []string
				for cell := ch.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.Data == "td" || cell.Data == "th") {
						text := strings.Join(nonEmptyLines(flatten(cell)), " ")
						cells = append(cells, pipeEscaper.Replace(text))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			}
		}
	}
	walk(n)
	if len(rows) == 0 {
		remove(n)
		return
	}

	// The first row is the header: <thead> rows come first in document order,
	// and a table without one still needs a separator after its first row.
	cols := len(rows[0])
	lines := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		for len(row) < cols {
			row = append(row, "")
		}
		lines = append(lines, "| "+strings.Join(row, " | ")+" |")
		if i == 0 {
			lines = append(lines, "|"+strings.Repeat(" --- |", cols))
		}
	}
	replace(n, block(strings.Join(lines, "\n")))
}

func (c *Converter) blockquote(n *html.Node, _ *url.URL) {
	text := strings.TrimSpace(flatten(n))
	if text == "" {
		remove(n)
		return
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	replace(n, block(strings.Join(lines, "\n")))
}

func (c *Converter) rule(n *html.Node, _ *url.URL) {
	replace(n, block("---"))
}

func isInternal(href string, page *url.URL) bool {
	ref, err := url.Parse(href)
	if err != nil {
		return false
	}
	if !ref.IsAbs() {
		return ref.Host == ""
	}
	return page != nil && strings.EqualFold(ref.Host, page.Host)
}

var trailingSpace = regexp.MustCompile(`[ \t]+\n`)

// nonEmptyLines splits rendered Markdown into its non-blank lines.
func nonEmptyLines(s string) []string {
	s = trailingSpace.ReplaceAllString(s, "\n")
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
