package crawler

import (
	"context"
	"iter"

	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/sitemap"
)

// Crawler defines the interface for documentation crawls
type Crawler interface {
	// Crawl runs until the frontier drains, max pages is reached or ctx is
	// cancelled
	Crawl(ctx context.Context) (*models.CrawlResult, error)

	// Stats returns a snapshot of the running counters
	Stats() models.CrawlStats
}

// PageFetcher downloads one HTML page
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error)
}

// PageRenderer converts a fetched page into Markdown
type PageRenderer interface {
	Render(body []byte, pageURL string) *models.ExtractedDocument
}

// Saver stores converted documents
type Saver interface {
	Save(ctx context.Context, path string, content []byte) error
}

// SitemapSource expands a sitemap seed into page URLs
type SitemapSource interface {
	Resolve(ctx context.Context, seed string) iter.Seq[sitemap.Entry]
}

// Dependencies are the collaborators an Engine drives
type Dependencies struct {
	Fetcher  PageFetcher
	Renderer PageRenderer
	Saver    Saver
	// Sitemaps is optional; without it sitemap seeds are fetched as pages
	Sitemaps SitemapSource
}

// Callbacks are invoked synchronously from the worker that handled the page.
// Panics are recovered and logged.
type Callbacks struct {
	// OnPageCrawled runs after a page is saved, with the crawled-page count
	OnPageCrawled func(url string, pagesCrawled int64)
	// OnError runs after a page fails
	OnError func(url string, err error)
}

// Options contains configuration for the crawler
type Options struct {
	MaxPages       int         // Stop after this many saved pages, 0 for no limit
	Workers        int         // Concurrent fetch workers
	Scope          ScopePolicy // Which discovered links are followed
	SingleFile     bool        // Combine all pages into one document
	SingleFileName string      // Name of the combined document
	ProgressEvery  int         // Log stats every N crawled pages
}

// DefaultSingleFileName is the combined document written in single-file mode
const DefaultSingleFileName = "documentation.md"

// DefaultOptions returns a sequential, path-scoped crawl without a page limit
func DefaultOptions() Options {
	return Options{
		Workers:        1,
		Scope:          ScopePath,
		SingleFileName: DefaultSingleFileName,
		ProgressEvery:  10,
	}
}
