package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/amosWeiskopf/docsmith/internal/models"
)

// Formats lists the supported report formats
var Formats = []string{"json", "markdown", "html"}

// Reporter handles report generation in various formats
type Reporter struct {
	now func() time.Time
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{now: time.Now}
}

// Generate renders result in the given format
func (r *Reporter) Generate(result *models.CrawlResult, format string) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no crawl result to report")
	}
	switch format {
	case "json":
		return r.generateJSON(result)
	case "html":
		return r.generateHTML(result)
	case "markdown", "md":
		return r.generateMarkdown(result)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteFile renders result and writes it to path, creating parent directories.
func (r *Reporter) WriteFile(path string, result *models.CrawlResult, format string) error {
	out, err := r.Generate(result, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

type jsonReport struct {
	GeneratedAt    time.Time `json:"generated_at"`
	SuccessRate    float64   `json:"success_rate"`
	PagesPerMinute float64   `json:"pages_per_minute"`
	*models.CrawlResult
}

// generateJSON creates a JSON formatted report
func (r *Reporter) generateJSON(result *models.CrawlResult) (string, error) {
	data, err := json.MarshalIndent(jsonReport{
		GeneratedAt:    r.now(),
		SuccessRate:    result.SuccessRate(),
		PagesPerMinute: result.PagesPerMinute(),
		CrawlResult:    result,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Crawl Report - {{.Result.SeedURL}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .stat-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 1rem;
        }
        .stat {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .stat-value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .stat-label {
            color: #666;
            font-size: 0.9rem;
        }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.4rem; border-bottom: 1px solid #eee; }
        .failed { color: #dc3545; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Crawl Report for {{.Result.SeedURL}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 15:04"}}{{if .Result.Cancelled}} (cancelled, partial results){{end}}</p>
    </div>
    <div class="card">
        <div class="stat-grid">
            <div class="stat"><div class="stat-value">{{.Result.Stats.PagesCrawled}}</div><div class="stat-label">Pages crawled</div></div>
            <div class="stat"><div class="stat-value">{{.Result.Stats.PagesFailed}}</div><div class="stat-label">Pages failed</div></div>
            <div class="stat"><div class="stat-value">{{.Result.Stats.PagesSkipped}}</div><div class="stat-label">Pages skipped</div></div>
            <div class="stat"><div class="stat-value">{{printf "%.1f" .SuccessRate}}%</div><div class="stat-label">Success rate</div></div>
            <div class="stat"><div class="stat-value">{{printf "%.1f" .PagesPerMinute}}</div><div class="stat-label">Pages / min</div></div>
            <div class="stat"><div class="stat-value">{{printf "%.2f" .Megabytes}}</div><div class="stat-label">MB downloaded</div></div>
        </div>
    </div>
    {{if .Result.Failures}}
    <div class="card">
        <h2>Failures</h2>
        <table>
            <tr><th>URL</th><th>Kind</th><th>Reason</th></tr>
            {{range .Result.Failures}}
            <tr class="failed"><td>{{.URL}}</td><td>{{.Kind}}</td><td>{{.Reason}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}
    {{if .Result.Pages}}
    <div class="card">
        <h2>Pages</h2>
        <table>
            <tr><th>URL</th><th>Status</th><th>File</th><th>Time</th></tr>
            {{range .Result.Pages}}
            <tr{{if not .Success}} class="failed"{{end}}><td>{{.URL}}</td><td>{{.StatusCode}}</td><td>{{.FilePath}}</td><td>{{.Duration}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}
</body>
</html>`

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// generateHTML creates an HTML formatted report
func (r *Reporter) generateHTML(result *models.CrawlResult) (string, error) {
	data := struct {
		Result         *models.CrawlResult
		GeneratedAt    time.Time
		SuccessRate    float64
		PagesPerMinute float64
		Megabytes      float64
	}{
		Result:         result,
		GeneratedAt:    r.now(),
		SuccessRate:    result.SuccessRate(),
		PagesPerMinute: result.PagesPerMinute(),
		Megabytes:      float64(result.Stats.BytesDownloaded) / (1024 * 1024),
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// generateMarkdown creates a Markdown formatted report
func (r *Reporter) generateMarkdown(result *models.CrawlResult) (string, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", result.SeedURL},
			{"Started", result.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", result.Stats.Elapsed.Round(time.Second).String()},
			{"Status", status(result)},
		},
	})
	md.PlainText("")

	md.H2("Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Pages crawled", strconv.FormatInt(result.Stats.PagesCrawled, 10)},
			{"Pages failed", strconv.FormatInt(result.Stats.PagesFailed, 10)},
			{"Pages skipped", strconv.FormatInt(result.Stats.PagesSkipped, 10)},
			{"URLs visited", strconv.FormatInt(result.Stats.URLsVisited, 10)},
			{"MB downloaded", fmt.Sprintf("%.2f", float64(result.Stats.BytesDownloaded)/(1024*1024))},
			{"Success rate", fmt.Sprintf("%.1f%%", result.SuccessRate())},
			{"Pages per minute", fmt.Sprintf("%.1f", result.PagesPerMinute())},
		},
	})
	md.PlainText("")

	switch {
	case result.Cancelled:
		md.Warningf("The crawl was cancelled after %d page(s); results are partial.", result.Stats.PagesCrawled)
	case len(result.Failures) > 0:
		md.Importantf("%d page(s) failed. See the failures below.", len(result.Failures))
	default:
		md.Tip("All fetched pages were converted and saved.")
	}
	md.PlainText("")

	md.H2("Failures")
	md.PlainText("")
	if len(result.Failures) == 0 {
		md.PlainText("No failures.")
	} else {
		rows := make([][]string, len(result.Failures))
		for i, f := range result.Failures {
			rows[i] = []string{f.URL, string(f.Kind), truncate(f.Reason, 80)}
		}
		md.Table(markdown.TableSet{Header: []string{"URL", "Kind", "Reason"}, Rows: rows})
	}
	md.PlainText("")

	var saved []string
	for _, p := range result.Pages {
		if p.Success {
			saved = append(saved, fmt.Sprintf("%s → `%s`", p.URL, p.FilePath))
		}
	}
	if len(saved) > 0 {
		md.H2("Saved Pages")
		md.PlainText("")
		md.BulletList(saved...)
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainTextf("*Generated %s*", r.now().Format("2006-01-02 15:04:05 MST"))

	if err := md.Build(); err != nil {
		return "", fmt.Errorf("failed to build markdown: %w", err)
	}
	return buf.String(), nil
}

func status(result *models.CrawlResult) string {
	if result.Cancelled {
		return "Cancelled (partial results)"
	}
	return "Complete"
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
