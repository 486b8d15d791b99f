// Package sitemap expands sitemap and sitemap-index documents into page URLs.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// DefaultMaxDepth bounds sitemap-index nesting.
const DefaultMaxDepth = 5

// TextLoader fetches a document decoded to UTF-8.
type TextLoader interface {
	LoadText(ctx context.Context, rawURL string) (string, error)
}

// Entry is one page listed in a sitemap.
type Entry struct {
	URL     string
	LastMod string
}

type document struct {
	XMLName  xml.Name
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Location string `xml:"loc"`
	LastMod  string `xml:"lastmod"`
}

// Resolver walks sitemap trees.
type Resolver struct {
	loader   TextLoader
	maxDepth int
	logger   *slog.Logger
}

// NewResolver builds a Resolver. maxDepth <= 0 selects DefaultMaxDepth.
func NewResolver(loader TextLoader, maxDepth int, logger *slog.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{loader: loader, maxDepth: maxDepth, logger: logging.OrDiscard(logger)}
}

// IsSitemapURL reports whether rawURL's path ends in .xml or mentions "sitemap".
func IsSitemapURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".xml") || strings.Contains(p, "sitemap")
}

// Resolve returns the page URLs reachable from the sitemap at seed, in document
// order and without duplicates. The sequence fetches lazily and can be ranged
// over once. Nested sitemaps deeper than the resolver's limit, sitemaps already
// visited and documents that fail to load or parse are skipped.
func (r *Resolver) Resolve(ctx context.Context, seed string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		w := &walk{
			r:       r,
			ctx:     ctx,
			yield:   yield,
			visited: make(map[string]bool),
			emitted: make(map[string]bool),
		}
		w.visit(seed, 0)
	}
}

type walk struct {
	r       *Resolver
	ctx     context.Context
	yield   func(Entry) bool
	visited map[string]bool
	emitted map[string]bool
	stopped bool
}

func (w *walk) visit(sitemapURL string, depth int) {
	if w.stopped || w.ctx.Err() != nil {
		w.stopped = true
		return
	}
	logger := w.r.logger.With("sitemap", sitemapURL, "depth", depth)
	if depth > w.r.maxDepth {
		logger.Warn("sitemap nesting too deep, skipping branch")
		return
	}
	key, err := utils.NormalizeURL(sitemapURL)
	if err != nil {
		logger.Warn("invalid sitemap URL", "error", err)
		return
	}
	if w.visited[key] {
		logger.Debug("sitemap already visited")
		return
	}
	w.visited[key] = true

	text, err := w.r.loader.LoadText(w.ctx, sitemapURL)
	if err != nil {
		logger.Warn("failed to fetch sitemap", "error", err)
		return
	}
	doc, err := parse([]byte(text))
	if err != nil {
		logger.Warn("failed to parse sitemap", "error", err)
		return
	}

	if len(doc.Sitemaps) > 0 {
		logger.Debug("sitemap index", "children", len(doc.Sitemaps))
		for _, child := range doc.Sitemaps {
			loc := strings.TrimSpace(child.Location)
			if loc == "" {
				continue
			}
			w.visit(w.resolve(sitemapURL, loc), depth+1)
			if w.stopped {
				return
			}
		}
	}

	for _, entry := range doc.URLs {
		loc := strings.TrimSpace(entry.Location)
		if loc == "" {
			continue
		}
		loc = w.resolve(sitemapURL, loc)
		if w.emitted[loc] {
			continue
		}
		w.emitted[loc] = true
		if !w.yield(Entry{URL: loc, LastMod: strings.TrimSpace(entry.LastMod)}) {
			w.stopped = true
			return
		}
	}
}

func (w *walk) resolve(base, loc string) string {
	b, err := url.Parse(base)
	if err != nil {
		return loc
	}
	ref, err := b.Parse(loc)
	if err != nil {
		return loc
	}
	return ref.String()
}

// parse decodes a <urlset> or <sitemapindex> document. The input must already
// be UTF-8; any encoding named in the XML declaration is ignored.
func parse(data []byte) (*document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}
	switch doc.XMLName.Local {
	case "urlset", "sitemapindex":
		return &doc, nil
	default:
		return nil, fmt.Errorf("decode sitemap: unexpected root element <%s>", doc.XMLName.Local)
	}
}
