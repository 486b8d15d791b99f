package markdown

import (
	"strings"

	"golang.org/x/net/html"
)

// Rewritten elements become raw nodes holding Markdown. Block output is
// wrapped in newlines so flatten can separate it from surrounding text.

func inline(md string) *html.Node {
	return &html.Node{Type: html.RawNode, Data: md}
}

func block(md string) *html.Node {
	return &html.Node{Type: html.RawNode, Data: "\n" + md + "\n"}
}

func isBlockRaw(n *html.Node) bool {
	return n.Type == html.RawNode && strings.HasPrefix(n.Data, "\n") && strings.HasSuffix(n.Data, "\n")
}

func replace(old, repl *html.Node) {
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
}

// replaceInline swaps n for md and keeps any whitespace that sat just inside
// n's tags, so the words around n stay apart.
func replaceInline(n *html.Node, md string) {
	if n.Parent == nil {
		return
	}
	s := inlineRaw(n)
	if s != "" && s[0] == ' ' {
		n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: " "}, n)
	}
	if s != "" && s[len(s)-1] == ' ' {
		n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: " "}, n.NextSibling)
	}
	replace(n, inline(md))
}

func remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// unwrap replaces n by its children.
func unwrap(n *html.Node) {
	if n.Parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		n.Parent.InsertBefore(c, n)
		c = next
	}
	n.Parent.RemoveChild(n)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func insidePre(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "pre" {
			return true
		}
	}
	return false
}

func hasDescendant(n *html.Node, tag string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return true
		}
		if hasDescendant(c, tag) {
			return true
		}
	}
	return false
}

func firstChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

func skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "head", "title", "noscript", "template":
		return true
	}
	return false
}

// inlineText renders n's content on one line: text whitespace collapsed,
// Markdown from earlier passes kept.
func inlineText(n *html.Node) string {
	return strings.Join(strings.Fields(inlineRaw(n)), " ")
}

// inlineRaw is inlineText before the outer whitespace is trimmed.
func inlineRaw(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case skipped(c):
			case c.Type == html.TextNode:
				b.WriteString(collapseSpace(c.Data))
			case c.Type == html.RawNode:
				b.WriteString(strings.ReplaceAll(strings.Trim(c.Data, "\n"), "\n", " "))
			case c.Type == html.ElementNode && c.Data == "br":
				b.WriteByte(' ')
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

// rawText returns the text of n with whitespace preserved.
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode, c.Type == html.RawNode:
				b.WriteString(c.Data)
			case c.Type == html.ElementNode && c.Data == "br":
				b.WriteByte('\n')
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "aside": true, "nav": true,
	"figure": true, "figcaption": true, "address": true, "details": true, "summary": true,
	"form": true, "fieldset": true, "dl": true, "dt": true, "dd": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "body": true,
}

// textWriter accumulates flattened Markdown, keeping paragraphs separated by
// exactly one blank line.
type textWriter struct {
	buf []byte
}

func (w *textWriter) atLineStart() bool {
	return len(w.buf) == 0 || w.buf[len(w.buf)-1] == '\n'
}

func (w *textWriter) trimTrailingSpace() {
	for len(w.buf) > 0 && (w.buf[len(w.buf)-1] == ' ' || w.buf[len(w.buf)-1] == '\t') {
		w.buf = w.buf[:len(w.buf)-1]
	}
}

func (w *textWriter) ensureBlankLine() {
	w.trimTrailingSpace()
	n := len(w.buf)
	switch {
	case n == 0, n >= 2 && w.buf[n-1] == '\n' && w.buf[n-2] == '\n':
	case w.buf[n-1] == '\n':
		w.buf = append(w.buf, '\n')
	default:
		w.buf = append(w.buf, '\n', '\n')
	}
}

func (w *textWriter) text(s string) {
	s = collapseSpace(s)
	if w.atLineStart() {
		s = strings.TrimLeft(s, " ")
	}
	w.buf = append(w.buf, s...)
}

func (w *textWriter) newline() {
	w.trimTrailingSpace()
	w.buf = append(w.buf, '\n')
}

func (w *textWriter) raw(n *html.Node) {
	if isBlockRaw(n) {
		w.ensureBlankLine()
		w.buf = append(w.buf, strings.Trim(n.Data, "\n")...)
		w.ensureBlankLine()
		return
	}
	w.buf = append(w.buf, n.Data...)
}

func (w *textWriter) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case skipped(c):
		case c.Type == html.TextNode:
			w.text(c.Data)
		case c.Type == html.RawNode:
			w.raw(c)
		case c.Type == html.ElementNode && c.Data == "br":
			w.newline()
		case c.Type == html.ElementNode && blockElements[c.Data]:
			w.ensureBlankLine()
			w.walk(c)
			w.ensureBlankLine()
		default:
			w.walk(c)
		}
	}
}

// flatten renders the subtree below n as Markdown text.
func flatten(n *html.Node) string {
	var w textWriter
	if n.Type == html.RawNode {
		w.raw(n)
	} else {
		w.walk(n)
	}
	return string(w.buf)
}
