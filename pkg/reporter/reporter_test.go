package reporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/docsmith/internal/models"
)

func sampleResult() *models.CrawlResult {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.CrawlResult{
		SeedURL:   "https://docs.example.com/guide/",
		StartTime: start,
		EndTime:   start.Add(2 * time.Minute),
		Stats: models.CrawlStats{
			PagesCrawled:    3,
			PagesFailed:     1,
			URLsVisited:     4,
			BytesDownloaded: 2 * 1024 * 1024,
			Elapsed:         2 * time.Minute,
		},
		Pages: []models.PageResult{
			{URL: "https://docs.example.com/guide/", StatusCode: 200, Success: true, FilePath: "index.md"},
			{URL: "https://docs.example.com/guide/<b>", StatusCode: 0, Error: "fetch failed"},
		},
		Failures: []models.Failure{
			{URL: "https://docs.example.com/guide/<b>", Kind: models.KindPageFailed, Reason: "HTTP 404 Not Found"},
		},
	}
}

func fixedReporter() *Reporter {
	return &Reporter{now: func() time.Time { return time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC) }}
}

func TestGenerateJSON(t *testing.T) {
	out, err := fixedReporter().Generate(sampleResult(), "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "https://docs.example.com/guide/", decoded["seed_url"])
	assert.Equal(t, 75.0, decoded["success_rate"])
	assert.Equal(t, 1.5, decoded["pages_per_minute"])

	stats := decoded["stats"].(map[string]any)
	assert.Equal(t, 3.0, stats["pages_crawled"])
}

func TestGenerateMarkdown(t *testing.T) {
	out, err := fixedReporter().Generate(sampleResult(), "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# Crawl Report")
	assert.Contains(t, out, "## Statistics")
	assert.Contains(t, out, "Pages crawled")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "page_failed")
	assert.Contains(t, out, "`index.md`")
}

func TestGenerateHTMLEscapes(t *testing.T) {
	out, err := fixedReporter().Generate(sampleResult(), "html")
	require.NoError(t, err)

	assert.Contains(t, out, "Crawl Report for https://docs.example.com/guide/")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "/guide/&lt;b&gt;")
	assert.NotContains(t, out, "/guide/<b>")
}

func TestGenerateErrors(t *testing.T) {
	_, err := New().Generate(sampleResult(), "pdf")
	assert.Error(t, err)

	_, err = New().Generate(nil, "json")
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "crawl.json")
	require.NoError(t, New().WriteFile(path, sampleResult(), "json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pages_crawled": 3`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
