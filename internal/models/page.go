package models

import (
	"fmt"
	"time"
)

// FrontierEntry is a URL waiting in the crawl queue
type FrontierEntry struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Outcome describes what happened to a visited URL
type Outcome string

const (
	OutcomeFetched Outcome = "fetched"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// VisitedRecord is the single record kept for each canonical URL taken off the frontier
type VisitedRecord struct {
	URL     string  `json:"url"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// FetchResult is a successfully downloaded HTML response
type FetchResult struct {
	StatusCode  int    `json:"status_code"`
	FinalURL    string `json:"final_url"`
	Body        []byte `json:"-"`
	ContentType string `json:"content_type"`
	Encoding    string `json:"encoding"`
	// WireBytes is the number of bytes read from the network before charset decoding.
	WireBytes int64 `json:"wire_bytes"`
}

// ExtractedDocument is the Markdown rendering of one crawled page
type ExtractedDocument struct {
	Title           string   `json:"title"`
	Markdown        string   `json:"markdown"`
	SourceURL       string   `json:"source_url"`
	DiscoveredLinks []string `json:"discovered_links"`
	Degraded        bool     `json:"degraded"`
}

// CrawlStats is a point-in-time copy of the crawl counters
type CrawlStats struct {
	PagesCrawled    int64         `json:"pages_crawled"`
	PagesFailed     int64         `json:"pages_failed"`
	PagesSkipped    int64         `json:"pages_skipped"`
	URLsVisited     int64         `json:"urls_visited"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	Elapsed         time.Duration `json:"elapsed"`
}

// PageResult records the processing of a single URL
type PageResult struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code"`
	Success    bool          `json:"success"`
	FilePath   string        `json:"file_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Bytes      int64         `json:"bytes_downloaded"`
	Duration   time.Duration `json:"processing_time"`
}

// Failure keeps the URL and a readable reason for post-run reporting
type Failure struct {
	URL    string `json:"url"`
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// CrawlResult contains the results of a crawl operation
type CrawlResult struct {
	SeedURL   string          `json:"seed_url"`
	Stats     CrawlStats      `json:"stats"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Pages     []PageResult    `json:"page_results"`
	Failures  []Failure       `json:"failures"`
	Visited   []VisitedRecord `json:"visited"`
	Cancelled bool            `json:"cancelled"`
}

// SuccessRate returns crawled pages as a percentage of crawled plus failed pages.
func (r *CrawlResult) SuccessRate() float64 {
	total := r.Stats.PagesCrawled + r.Stats.PagesFailed
	if total == 0 {
		return 0
	}
	return float64(r.Stats.PagesCrawled) / float64(total) * 100
}

// PagesPerMinute returns the crawl throughput.
func (r *CrawlResult) PagesPerMinute() float64 {
	if r.Stats.Elapsed <= 0 {
		return 0
	}
	return float64(r.Stats.PagesCrawled) / r.Stats.Elapsed.Minutes()
}

// Summary renders a short human-readable overview.
func (r *CrawlResult) Summary() string {
	return fmt.Sprintf("Crawl Summary:\n"+
		"  Pages crawled: %d\n"+
		"  Pages failed: %d\n"+
		"  Pages skipped: %d\n"+
		"  URLs visited: %d\n"+
		"  Bytes downloaded: %.2f MB\n"+
		"  Success rate: %.1f%%\n"+
		"  Speed: %.1f pages/min\n"+
		"  Elapsed time: %.1f minutes",
		r.Stats.PagesCrawled,
		r.Stats.PagesFailed,
		r.Stats.PagesSkipped,
		r.Stats.URLsVisited,
		float64(r.Stats.BytesDownloaded)/(1024*1024),
		r.SuccessRate(),
		r.PagesPerMinute(),
		r.Stats.Elapsed.Minutes(),
	)
}
