package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

func page(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s | Docs</title></head><body><nav><a href=\"/docs/\">Home</a></nav><main><h2>%s</h2><p>Content of %s.</p>", title, title, title)
	for _, l := range links {
		fmt.Fprintf(&b, "<p><a href=%q>%s</a></p>", l, l)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

// site serves fixed pages and records every request.
type site struct {
	srv    *httptest.Server
	pages  map[string]string
	robots string
	extra  map[string]http.HandlerFunc

	mu    sync.Mutex
	hits  map[string]int
	times []time.Time
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{pages: pages, extra: map[string]http.HandlerFunc{}, hits: map[string]int{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.times = append(s.times, time.Now())
		s.mu.Unlock()

		if h, ok := s.extra[r.URL.Path]; ok {
			h(w, r)
			return
		}
		if r.URL.Path == "/robots.txt" && s.robots != "" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(s.robots))
			return
		}
		body, ok := s.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) url(path string) string { return s.srv.URL + path }

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func threePageSite(t *testing.T) *site {
	return newSite(t, map[string]string{
		"/docs/":   page("Home", "/docs/a", "/docs/b#install", "/other/x", "mailto:team@example.com", "/docs/logo.png"),
		"/docs/a":  page("Alpha", "/docs/", "/docs/b"),
		"/docs/b":  page("Beta"),
		"/other/x": page("Elsewhere"),
	})
}

type memSaver struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]bool
}

func newMemSaver() *memSaver {
	return &memSaver{files: map[string]string{}, fail: map[string]bool{}}
}

func (m *memSaver) Save(_ context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[path] {
		return errors.New("disk full")
	}
	m.files[path] = string(content)
	return nil
}

func (m *memSaver) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		out = append(out, p)
	}
	return out
}

func testConfig(seed string) *config.Config {
	cfg := config.Default()
	cfg.URL = seed
	cfg.Crawler.Delay = 0
	cfg.Crawler.Timeout = 5 * time.Second
	cfg.Crawler.MaxRetries = 1
	cfg.Crawler.RetryInitialDelay = time.Millisecond
	return cfg
}

func crawl(t *testing.T, cfg *config.Config, saver Saver, cb Callbacks) *models.CrawlResult {
	t.Helper()
	e, err := NewFromConfig(cfg, saver, cb, nil)
	require.NoError(t, err)
	res, err := e.Crawl(context.Background())
	require.NoError(t, err)
	return res
}

func TestNewRejectsInvalidSeed(t *testing.T) {
	deps := Dependencies{Fetcher: stubFetcher{}, Renderer: NewRenderer(config.MarkdownConfig{}, nil), Saver: newMemSaver()}
	for _, seed := range []string{"", "not-a-url", "ftp://example.com/docs", "https://"} {
		t.Run(seed, func(t *testing.T) {
			e, err := New(seed, deps, DefaultOptions(), Callbacks{}, nil)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	_, err := New("https://example.com/docs/", deps, Options{Scope: "galaxy"}, Callbacks{}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) (*models.FetchResult, error) {
	return nil, errors.New("unused")
}

func TestCrawlThreePageSite(t *testing.T) {
	s := threePageSite(t)
	saver := newMemSaver()

	res := crawl(t, testConfig(s.url("/docs/")), saver, Callbacks{})

	assert.Equal(t, int64(3), res.Stats.PagesCrawled)
	assert.Equal(t, int64(0), res.Stats.PagesFailed)
	assert.Equal(t, int64(3), res.Stats.URLsVisited)
	assert.Positive(t, res.Stats.BytesDownloaded)
	assert.False(t, res.Cancelled)
	assert.ElementsMatch(t, []string{"index.md", "a.md", "b.md"}, saver.paths())
	assert.Equal(t, 0, s.hitCount("/other/x"), "out of scope")
	assert.Equal(t, 1, s.hitCount("/docs/b"), "fragment variants are one URL")
	assert.Equal(t, 0, s.hitCount("/docs/logo.png"))

	assert.True(t, strings.HasPrefix(saver.files["a.md"], "# Alpha\n\n## Alpha"))
	assert.NotContains(t, saver.files["a.md"], "Home", "navigation stripped")
	assert.Len(t, res.Pages, 3)
	for _, p := range res.Pages {
		assert.True(t, p.Success)
		assert.Equal(t, http.StatusOK, p.StatusCode)
	}
	assert.Equal(t, float64(100), res.SuccessRate())
}

func TestCrawlScopePolicies(t *testing.T) {
	s := threePageSite(t)

	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.Scope = "host"
	saver := newMemSaver()
	res := crawl(t, cfg, saver, Callbacks{})

	assert.Equal(t, int64(4), res.Stats.PagesCrawled)
	assert.Contains(t, saver.paths(), "other/x.md")
}

func TestCrawlRespectsRobots(t *testing.T) {
	s := threePageSite(t)
	s.robots = "User-agent: *\nDisallow: /docs/b\n"
	saver := newMemSaver()

	res := crawl(t, testConfig(s.url("/docs/")), saver, Callbacks{})

	assert.Equal(t, int64(2), res.Stats.PagesCrawled)
	assert.Equal(t, int64(1), res.Stats.PagesSkipped)
	assert.Equal(t, int64(0), res.Stats.PagesFailed)
	assert.Equal(t, 0, s.hitCount("/docs/b"), "no request for a disallowed page")
	assert.Equal(t, 1, s.hitCount("/robots.txt"), "robots.txt fetched once per host")

	var skipped []models.VisitedRecord
	for _, v := range res.Visited {
		if v.Outcome == models.OutcomeSkipped {
			skipped = append(skipped, v)
		}
	}
	require.Len(t, skipped, 1)
	assert.Equal(t, s.url("/docs/b"), skipped[0].URL)
	assert.Equal(t, "robots-disallowed", skipped[0].Reason)
}

func TestCrawlRespectsRobotsDisabled(t *testing.T) {
	s := threePageSite(t)
	s.robots = "User-agent: *\nDisallow: /\n"
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.RespectRobots = false

	res := crawl(t, cfg, newMemSaver(), Callbacks{})

	assert.Equal(t, int64(3), res.Stats.PagesCrawled)
	assert.Equal(t, 0, s.hitCount("/robots.txt"))
}

func TestCrawlRateLimited(t *testing.T) {
	s := threePageSite(t)
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.Delay = 100 * time.Millisecond

	start := time.Now()
	res := crawl(t, cfg, newMemSaver(), Callbacks{})
	elapsed := time.Since(start)

	require.Equal(t, int64(3), res.Stats.PagesCrawled)
	// robots.txt plus three pages
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.times, 4)
	for i := 1; i < len(s.times); i++ {
		assert.GreaterOrEqual(t, s.times[i].Sub(s.times[i-1]), 80*time.Millisecond)
	}
}

func TestCrawlCrawlDelayFromRobots(t *testing.T) {
	s := threePageSite(t)
	s.robots = "User-agent: *\nCrawl-delay: 0.2\n"

	start := time.Now()
	res := crawl(t, testConfig(s.url("/docs/")), newMemSaver(), Callbacks{})

	require.Equal(t, int64(3), res.Stats.PagesCrawled)
	// two intervals between the three page requests
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func fanOutSite(t *testing.T, n int, interlinked bool) *site {
	pages := map[string]string{}
	var all []string
	for i := range n {
		all = append(all, fmt.Sprintf("/docs/p%d", i))
	}
	pages["/docs/"] = page("Index", all...)
	for i, p := range all {
		var links []string
		if interlinked {
			links = append(links, all...)
			links = append(links, "/docs/", fmt.Sprintf("/docs/p%d/", i))
		}
		pages[p] = page(fmt.Sprintf("Page %d", i), links...)
	}
	return newSite(t, pages)
}

func TestCrawlMaxPagesIsExact(t *testing.T) {
	s := fanOutSite(t, 10, false)
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.MaxPages = 3
	cfg.Crawler.Workers = 4
	saver := newMemSaver()

	res := crawl(t, cfg, saver, Callbacks{})

	assert.Equal(t, int64(3), res.Stats.PagesCrawled)
	assert.Len(t, saver.paths(), 3)

	fetched := 0
	for i := range 10 {
		fetched += s.hitCount(fmt.Sprintf("/docs/p%d", i))
	}
	assert.Equal(t, 2, fetched)
}

func TestCrawlConcurrentWorkersVisitOnce(t *testing.T) {
	s := fanOutSite(t, 12, true)
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.Workers = 8
	cfg.Crawler.RespectRobots = false

	res := crawl(t, cfg, newMemSaver(), Callbacks{})

	assert.Equal(t, int64(13), res.Stats.PagesCrawled)
	assert.Equal(t, int64(13), res.Stats.URLsVisited)
	assert.Len(t, res.Visited, 13)
	assert.Equal(t, 1, s.hitCount("/docs/"))
	for i := range 12 {
		assert.Equal(t, 1, s.hitCount(fmt.Sprintf("/docs/p%d", i)), "page %d", i)
	}
}

func TestCrawlFollowsRedirectOnce(t *testing.T) {
	s := newSite(t, map[string]string{
		"/docs/":  page("Home", "/docs/old", "/docs/a"),
		"/docs/a": page("Alpha"),
	})
	s.extra["/docs/old"] = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/a", http.StatusMovedPermanently)
	}
	saver := newMemSaver()

	res := crawl(t, testConfig(s.url("/docs/")), saver, Callbacks{})

	assert.Equal(t, int64(2), res.Stats.PagesCrawled)
	assert.Equal(t, 1, s.hitCount("/docs/a"))
	assert.ElementsMatch(t, []string{"index.md", "a.md"}, saver.paths())
}

func TestCrawlSkipsRedirectOutOfScope(t *testing.T) {
	s := newSite(t, map[string]string{
		"/docs/":  page("Home", "/docs/moved"),
		"/blog/x": page("Blog"),
	})
	s.extra["/docs/moved"] = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/blog/x", http.StatusFound)
	}
	saver := newMemSaver()

	res := crawl(t, testConfig(s.url("/docs/")), saver, Callbacks{})

	assert.Equal(t, int64(1), res.Stats.PagesCrawled)
	assert.Equal(t, int64(1), res.Stats.PagesSkipped)
	assert.Equal(t, []string{"index.md"}, saver.paths())

	var reasons []string
	for _, v := range res.Visited {
		if v.Outcome == models.OutcomeSkipped {
			reasons = append(reasons, v.Reason)
		}
	}
	assert.Equal(t, []string{"redirect out of scope"}, reasons)
}

func TestCrawlSingleFile(t *testing.T) {
	s := threePageSite(t)
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.SingleFile = true
	saver := newMemSaver()

	res := crawl(t, cfg, saver, Callbacks{})

	require.Equal(t, int64(3), res.Stats.PagesCrawled)
	assert.Equal(t, []string{DefaultSingleFileName}, saver.paths())

	doc := saver.files[DefaultSingleFileName]
	assert.True(t, strings.HasPrefix(doc, "# Documentation Crawl\nStarted: "))
	assert.Contains(t, doc, "\nRoot: "+s.url("/docs/")+"\n\n")
	assert.Contains(t, doc, "\n\n---\n\n# Source: "+s.url("/docs/a")+"\n\n# Alpha")
	assert.Equal(t, 3, strings.Count(doc, "# Source: "))
}

func TestCrawlSingleFileSaveFailure(t *testing.T) {
	s := threePageSite(t)
	cfg := testConfig(s.url("/docs/"))
	cfg.Crawler.SingleFile = true
	saver := newMemSaver()
	saver.fail[DefaultSingleFileName] = true

	e, err := NewFromConfig(cfg, saver, Callbacks{}, nil)
	require.NoError(t, err)
	res, err := e.Crawl(context.Background())

	assert.ErrorIs(t, err, models.ErrStorageFailed)
	require.NotNil(t, res)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, models.KindStorageFailed, res.Failures[0].Kind)
}

func TestCrawlSitemapSeed(t *testing.T) {
	s := threePageSite(t)
	s.extra["/sitemap.xml"] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/docs/a</loc></url>
  <url><loc>%[1]s/docs/b</loc><lastmod>2024-01-01</lastmod></url>
</urlset>`, s.srv.URL)
	}
	cfg := testConfig(s.url("/sitemap.xml"))
	cfg.Crawler.Scope = "host"
	saver := newMemSaver()

	res := crawl(t, cfg, saver, Callbacks{})

	assert.Equal(t, 1, s.hitCount("/sitemap.xml"))
	assert.Contains(t, saver.paths(), "docs/a.md")
	assert.Contains(t, saver.paths(), "docs/b.md")
	for _, v := range res.Visited {
		assert.NotEqual(t, s.url("/sitemap.xml"), v.URL, "sitemap is not crawled as a page")
	}
}

func TestCrawlStorageFailureContinues(t *testing.T) {
	s := threePageSite(t)
	saver := newMemSaver()
	saver.fail["a.md"] = true

	var failedURLs []string
	var mu sync.Mutex
	cb := Callbacks{OnError: func(url string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failedURLs = append(failedURLs, url)
		assert.ErrorIs(t, err, models.ErrStorageFailed)
	}}

	res := crawl(t, testConfig(s.url("/docs/")), saver, cb)

	assert.Equal(t, int64(2), res.Stats.PagesCrawled)
	assert.Equal(t, int64(1), res.Stats.PagesFailed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, models.KindStorageFailed, res.Failures[0].Kind)
	assert.Equal(t, []string{s.url("/docs/a")}, failedURLs)
}

func TestCrawlCallbacks(t *testing.T) {
	s := newSite(t, map[string]string{
		"/docs/":  page("Home", "/docs/a", "/docs/missing"),
		"/docs/a": page("Alpha"),
	})

	var crawled []int64
	cb := Callbacks{
		OnPageCrawled: func(_ string, n int64) { crawled = append(crawled, n) },
		OnError:       func(string, error) { panic("callback bug") },
	}

	res := crawl(t, testConfig(s.url("/docs/")), newMemSaver(), cb)

	assert.Equal(t, []int64{1, 2}, crawled)
	assert.Equal(t, int64(1), res.Stats.PagesFailed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, s.url("/docs/missing"), res.Failures[0].URL)
	assert.Equal(t, 1, s.hitCount("/docs/missing"), "404 is not retried")
}

func TestCrawlCancellation(t *testing.T) {
	s := threePageSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	cb := Callbacks{OnPageCrawled: func(string, int64) {
		calls.Add(1)
		cancel()
	}}
	e, err := NewFromConfig(testConfig(s.url("/docs/")), newMemSaver(), cb, nil)
	require.NoError(t, err)

	res, err := e.Crawl(ctx)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, int64(1), res.Stats.PagesCrawled)
	assert.Equal(t, int64(0), res.Stats.PagesFailed)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, s.hitCount("/docs/a"))
}

func TestScopeAllows(t *testing.T) {
	seed := mustParse(t, "https://docs.example.com/guide/intro.html")
	tests := []struct {
		policy ScopePolicy
		url    string
		want   bool
	}{
		{ScopePath, "https://docs.example.com/guide/setup", true},
		{ScopePath, "https://docs.example.com/guide", true},
		{ScopePath, "https://docs.example.com/guidebook", false},
		{ScopePath, "https://docs.example.com/blog/post", false},
		{ScopePath, "https://api.example.com/guide/setup", false},
		{ScopeHost, "https://docs.example.com/blog/post", true},
		{ScopeHost, "https://api.example.com/guide", false},
		{ScopeDomain, "https://api.example.com/ref", true},
		{ScopeDomain, "https://example.org/guide", false},
		{ScopeDomain, "ftp://docs.example.com/guide/file", false},
		{ScopeHost, "https://docs.example.com/guide/manual.pdf", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy)+" "+tt.url, func(t *testing.T) {
			s := newScope(tt.policy, seed)
			assert.Equal(t, tt.want, s.allows(mustParse(t, tt.url)))
		})
	}
}

func TestParseScopePolicy(t *testing.T) {
	p, err := ParseScopePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ScopePath, p)

	p, err = ParseScopePolicy(" Domain ")
	require.NoError(t, err)
	assert.Equal(t, ScopeDomain, p)

	_, err = ParseScopePolicy("world")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
