package markdown

import (
	"log/slog"
	"time"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/extractor"
)

// Renderer turns a fetched HTML page into an ExtractedDocument.
type Renderer struct {
	extractor *extractor.Extractor
	converter *Converter
	now       func() time.Time
	logger    *slog.Logger
}

// NewRenderer combines an extractor and a converter.
func NewRenderer(ext *extractor.Extractor, conv *Converter, logger *slog.Logger) *Renderer {
	return &Renderer{
		extractor: ext,
		converter: conv,
		now:       time.Now,
		logger:    logging.OrDiscard(logger),
	}
}

// Render extracts and converts body. pageURL is the page's final URL. Render
// never fails: a page whose conversion breaks is rendered as its title plus
// plain text and marked Degraded.
func (r *Renderer) Render(body []byte, pageURL string) *models.ExtractedDocument {
	doc := &models.ExtractedDocument{SourceURL: pageURL, Title: extractor.UntitledPage}

	res, err := r.extractor.Extract(body, pageURL)
	var md string
	switch {
	case err != nil:
		md = r.degrade(doc, body, err)
	case res.Empty:
		doc.Title = res.Title
		doc.DiscoveredLinks = res.Links
		md = extractor.NoContentMarkdown(res.Title)
	default:
		doc.Title = res.Title
		doc.DiscoveredLinks = res.Links
		md, err = r.converter.Convert(res.Content.Get(0), pageURL)
		if err != nil {
			md = r.degrade(doc, body, err)
		}
	}

	composed, err := Compose(doc.Title, pageURL, md, r.converter.opts.IncludeFrontmatter, r.now())
	if err != nil {
		r.logger.Warn("frontmatter skipped", "url", pageURL, "error", err)
		composed = WithTitle(doc.Title, md)
	}
	doc.Markdown = composed
	return doc
}

func (r *Renderer) degrade(doc *models.ExtractedDocument, body []byte, err error) string {
	r.logger.Warn("conversion degraded, using plain text", "url", doc.SourceURL, "error", err)
	doc.Degraded = true
	return extractor.FallbackText(body)
}
