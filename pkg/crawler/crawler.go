// Package crawler drives a documentation crawl: it owns the frontier, applies
// the scope policy and hands each fetched page to the renderer and the saver.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/sitemap"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// Engine is the crawl loop. It is single-use: call Crawl once.
type Engine struct {
	seed     *url.URL
	seedURL  string
	seedKey  string
	basePath string
	scope    *scope

	deps   Dependencies
	opts   Options
	cb     Callbacks
	logger *slog.Logger

	frontier *frontier
	started  time.Time

	pagesCrawled atomic.Int64
	pagesFailed  atomic.Int64
	pagesSkipped atomic.Int64
	bytes        atomic.Int64

	mu       sync.Mutex
	pages    []models.PageResult
	failures []models.Failure
	combined strings.Builder
}

var _ Crawler = (*Engine)(nil)

// New validates the seed and builds an Engine. Fetcher, Renderer and Saver
// are required.
func New(seed string, deps Dependencies, opts Options, cb Callbacks, logger *slog.Logger) (*Engine, error) {
	if err := config.ValidateSeedURL(seed); err != nil {
		return nil, models.NewCrawlError(models.KindInvalidInput, seed, "invalid seed url", err)
	}
	if deps.Fetcher == nil || deps.Renderer == nil || deps.Saver == nil {
		return nil, models.NewCrawlError(models.KindInvalidInput, seed, "fetcher, renderer and saver are required", nil)
	}
	policy, err := ParseScopePolicy(string(opts.Scope))
	if err != nil {
		return nil, err
	}
	opts.Scope = policy
	if opts.MaxPages < 0 {
		return nil, models.NewCrawlError(models.KindInvalidInput, seed, "max pages must be non-negative", nil)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SingleFileName == "" {
		opts.SingleFileName = DefaultSingleFileName
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10
	}

	u, _ := url.Parse(seed)
	u.Fragment = ""
	u.RawFragment = ""
	key, err := utils.NormalizeURL(u.String())
	if err != nil {
		return nil, models.NewCrawlError(models.KindInvalidInput, seed, "invalid seed url", err)
	}

	return &Engine{
		seed:     u,
		seedURL:  u.String(),
		seedKey:  key,
		basePath: utils.BasePath(u.Path),
		scope:    newScope(policy, u),
		deps:     deps,
		opts:     opts,
		cb:       cb,
		logger:   logging.OrDiscard(logger).With("component", "crawler"),
		frontier: newFrontier(opts.MaxPages),
	}, nil
}

// Stats returns the current counters.
func (e *Engine) Stats() models.CrawlStats {
	s := models.CrawlStats{
		PagesCrawled:    e.pagesCrawled.Load(),
		PagesFailed:     e.pagesFailed.Load(),
		PagesSkipped:    e.pagesSkipped.Load(),
		URLsVisited:     int64(e.frontier.visitedCount()),
		BytesDownloaded: e.bytes.Load(),
	}
	if !e.started.IsZero() {
		s.Elapsed = time.Since(e.started)
	}
	return s
}

// Crawl seeds the frontier and runs the workers until the frontier drains,
// the page limit is reached or ctx is cancelled. Per-page failures are
// recorded in the result; the returned error is non-nil only when the
// single-file document could not be saved.
func (e *Engine) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	e.started = time.Now()
	stop := e.frontier.watch(ctx)
	defer stop()

	e.logger.Info("starting crawl",
		"seed", e.seedURL,
		"scope", e.opts.Scope,
		"max_pages", e.opts.MaxPages,
		"workers", e.opts.Workers,
		"single_file", e.opts.SingleFile)

	if e.opts.SingleFile {
		fmt.Fprintf(&e.combined, "# Documentation Crawl\nStarted: %s\nRoot: %s\n\n",
			e.started.Format(time.DateTime), e.seedURL)
	}

	e.seedFrontier(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for range e.opts.Workers {
		g.Go(func() error {
			for {
				item, ok := e.frontier.pop(gctx)
				if !ok {
					return nil
				}
				e.process(gctx, item)
			}
		})
	}
	_ = g.Wait()

	var saveErr error
	if e.opts.SingleFile {
		saveErr = e.saveCombined(ctx)
	}

	result := e.result(ctx.Err() != nil)
	e.logger.Info("crawl finished",
		"pages_crawled", result.Stats.PagesCrawled,
		"pages_failed", result.Stats.PagesFailed,
		"pages_skipped", result.Stats.PagesSkipped,
		"pages_per_min", fmt.Sprintf("%.1f", result.PagesPerMinute()),
		"mb_downloaded", fmt.Sprintf("%.2f", float64(result.Stats.BytesDownloaded)/(1024*1024)),
		"elapsed", result.Stats.Elapsed.Round(time.Millisecond),
		"cancelled", result.Cancelled)
	return result, saveErr
}

// seedFrontier enqueues the seed, or the pages listed by the seed when it is
// a sitemap. Sitemap entries are trusted and skip the scope filter.
func (e *Engine) seedFrontier(ctx context.Context) {
	if e.deps.Sitemaps == nil || !sitemap.IsSitemapURL(e.seedURL) {
		e.frontier.push(models.FrontierEntry{URL: e.seedURL}, e.seedKey)
		return
	}

	queued := 0
	for entry := range e.deps.Sitemaps.Resolve(ctx, e.seedURL) {
		u, err := url.Parse(entry.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		key, err := utils.NormalizeURL(entry.URL)
		if err != nil {
			continue
		}
		if e.frontier.push(models.FrontierEntry{URL: entry.URL}, key) {
			queued++
		}
	}
	if queued == 0 {
		e.logger.Warn("sitemap yielded no URLs", "sitemap", e.seedURL)
		return
	}
	e.logger.Info("seeded from sitemap", "sitemap", e.seedURL, "urls", queued)
}

func (e *Engine) process(ctx context.Context, item frontierItem) {
	start := time.Now()
	page := models.PageResult{URL: item.entry.URL}

	res, err := e.deps.Fetcher.Fetch(ctx, item.entry.URL)
	if err != nil {
		e.fetchFailed(ctx, item, page, err, start)
		return
	}
	e.bytes.Add(res.WireBytes)
	page.StatusCode = res.StatusCode
	page.Bytes = res.WireBytes

	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = item.entry.URL
	}
	if finalKey, err := utils.NormalizeURL(finalURL); err == nil && finalKey != item.key {
		if item.key != e.seedKey && !e.inScope(finalURL) && e.inScope(item.entry.URL) {
			e.logger.Info("page skipped", "url", item.entry.URL, "reason", "redirect out of scope", "final_url", finalURL)
			e.pagesSkipped.Add(1)
			e.frontier.complete(item.key, models.OutcomeSkipped, "redirect out of scope", false)
			return
		}
		if !e.frontier.claim(finalURL, finalKey) {
			e.logger.Debug("redirect target already visited", "url", item.entry.URL, "final_url", finalURL)
			e.pagesSkipped.Add(1)
			e.frontier.complete(item.key, models.OutcomeSkipped, "redirect to visited "+finalURL, false)
			return
		}
		e.frontier.annotate(finalKey, models.OutcomeFetched, "redirected from "+item.entry.URL)
	}

	doc := e.deps.Renderer.Render(res.Body, finalURL)
	if doc.Degraded {
		e.logger.Warn("page converted with fallback", "url", finalURL)
	}
	e.enqueueLinks(finalURL, doc.DiscoveredLinks, item.entry.Depth+1)

	path := utils.FilePathForURL(finalURL, e.basePath)
	if e.opts.SingleFile {
		e.mu.Lock()
		fmt.Fprintf(&e.combined, "\n\n---\n\n# Source: %s\n\n%s", finalURL, doc.Markdown)
		e.mu.Unlock()
		path = e.opts.SingleFileName
	} else if err := e.deps.Saver.Save(ctx, path, []byte(doc.Markdown)); err != nil {
		e.pageFailed(item, page, models.NewCrawlError(models.KindStorageFailed, finalURL, "save "+path, err), start)
		return
	}

	page.Success = true
	page.FilePath = path
	page.Duration = time.Since(start)
	e.record(page, nil)

	crawled := e.pagesCrawled.Add(1)
	e.frontier.complete(item.key, models.OutcomeFetched, "", true)
	e.logger.Debug("page crawled", "url", finalURL, "path", path, "depth", item.entry.Depth, "links", len(doc.DiscoveredLinks))

	if e.cb.OnPageCrawled != nil {
		e.notify("OnPageCrawled", func() { e.cb.OnPageCrawled(finalURL, crawled) })
	}
	if crawled%int64(e.opts.ProgressEvery) == 0 {
		s := e.Stats()
		e.logger.Info("crawl progress",
			"pages_crawled", s.PagesCrawled,
			"pages_failed", s.PagesFailed,
			"queued", e.frontier.pending(),
			"pages_per_min", fmt.Sprintf("%.1f", float64(s.PagesCrawled)/max(s.Elapsed.Minutes(), 1e-9)))
	}
}

// fetchFailed sorts a fetch error into skipped, cancelled or failed.
func (e *Engine) fetchFailed(ctx context.Context, item frontierItem, page models.PageResult, err error, start time.Time) {
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		e.frontier.complete(item.key, models.OutcomeSkipped, "cancelled", false)
	case errors.Is(err, models.ErrPolicyDenied), errors.Is(err, models.ErrContentRejected):
		e.pagesSkipped.Add(1)
		reason := reasonOf(err)
		e.logger.Info("page skipped", "url", item.entry.URL, "reason", reason)
		e.frontier.complete(item.key, models.OutcomeSkipped, reason, false)
	default:
		e.pageFailed(item, page, err, start)
	}
}

func (e *Engine) pageFailed(item frontierItem, page models.PageResult, err error, start time.Time) {
	e.pagesFailed.Add(1)
	reason := reasonOf(err)
	page.Error = err.Error()
	page.Duration = time.Since(start)
	e.record(page, &models.Failure{URL: item.entry.URL, Kind: models.KindOf(err), Reason: reason})
	e.frontier.complete(item.key, models.OutcomeFailed, reason, false)
	e.logger.Warn("page failed", "url", item.entry.URL, "kind", models.KindOf(err), "error", err)

	if e.cb.OnError != nil {
		e.notify("OnError", func() { e.cb.OnError(item.entry.URL, err) })
	}
}

func reasonOf(err error) string {
	var ce *models.CrawlError
	if errors.As(err, &ce) && ce.Reason != "" {
		if ce.Err != nil && ce.Err.Error() != ce.Reason {
			return ce.Reason + ": " + ce.Err.Error()
		}
		return ce.Reason
	}
	return err.Error()
}

func (e *Engine) inScope(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && e.scope.allows(u)
}

func (e *Engine) enqueueLinks(pageURL string, links []string, depth int) {
	queued := 0
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		u.Fragment = ""
		u.RawFragment = ""
		if !e.scope.allows(u) {
			continue
		}
		key, err := utils.NormalizeURL(u.String())
		if err != nil {
			continue
		}
		if e.frontier.push(models.FrontierEntry{URL: u.String(), Depth: depth}, key) {
			queued++
		}
	}
	if queued > 0 {
		e.logger.Debug("queued links", "url", pageURL, "count", queued)
	}
}

func (e *Engine) record(page models.PageResult, failure *models.Failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages = append(e.pages, page)
	if failure != nil {
		e.failures = append(e.failures, *failure)
	}
}

func (e *Engine) notify(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

// saveCombined writes the single-file document. It runs after cancellation
// too so a partial crawl keeps its output.
func (e *Engine) saveCombined(ctx context.Context) error {
	e.mu.Lock()
	content := []byte(e.combined.String())
	e.mu.Unlock()

	err := e.deps.Saver.Save(context.WithoutCancel(ctx), e.opts.SingleFileName, content)
	if err == nil {
		e.logger.Info("saved combined document", "path", e.opts.SingleFileName, "bytes", len(content))
		return nil
	}
	cerr := models.NewCrawlError(models.KindStorageFailed, e.seedURL, "save "+e.opts.SingleFileName, err)
	e.mu.Lock()
	e.failures = append(e.failures, models.Failure{URL: e.seedURL, Kind: models.KindStorageFailed, Reason: reasonOf(cerr)})
	e.mu.Unlock()
	e.logger.Error("failed to save combined document", "path", e.opts.SingleFileName, "error", err)
	return cerr
}

func (e *Engine) result(cancelled bool) *models.CrawlResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &models.CrawlResult{
		SeedURL:   e.seedURL,
		Stats:     e.Stats(),
		StartTime: e.started,
		EndTime:   time.Now(),
		Pages:     append([]models.PageResult(nil), e.pages...),
		Failures:  append([]models.Failure(nil), e.failures...),
		Visited:   e.frontier.records(),
		Cancelled: cancelled,
	}
}
