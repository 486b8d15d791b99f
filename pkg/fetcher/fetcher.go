// Package fetcher downloads HTML pages subject to robots rules, per-domain
// rate limits and a bounded retry policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/retry"
)

// Gate decides whether a URL may be fetched.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Fetcher turns a URL into a FetchResult or a classified error.
type Fetcher struct {
	client *Client
	gate   Gate
	policy retry.Policy
	logger *slog.Logger
}

// New builds a Fetcher. gate may be nil to skip robots checks.
func New(client *Client, gate Gate, policy retry.Policy, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		gate:   gate,
		policy: policy,
		logger: logging.OrDiscard(logger),
	}
}

// Fetch downloads rawURL. Failures are *models.CrawlError values of kind
// PolicyDenied, ContentRejected, TransientFetch, InvalidInput or PageFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, models.NewCrawlError(models.KindInvalidInput, rawURL, "malformed URL", err)
	}
	if f.gate != nil && !f.gate.Allowed(ctx, rawURL) {
		return nil, models.NewCrawlError(models.KindPolicyDenied, rawURL, "robots-disallowed", nil)
	}

	var result *models.FetchResult
	start := time.Now()
	err = f.policy.Do(ctx, f.logger.With("url", rawURL), func(attempt int) error {
		res, err := f.attempt(ctx, u)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}

	f.logger.Debug("fetched page", "url", rawURL, "status", result.StatusCode, "bytes", len(result.Body), "elapsed", time.Since(start))
	return result, nil
}

func (f *Fetcher) attempt(ctx context.Context, u *url.URL) (*models.FetchResult, error) {
	resp, err := f.client.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &models.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !IsHTMLContentType(contentType) {
		return nil, models.NewCrawlError(models.KindContentRejected, u.String(), fmt.Sprintf("non-HTML content type %q", contentType), nil)
	}
	if resp.ContentLength > f.client.maxBytes {
		return nil, fmt.Errorf("%w: content-length %d exceeds %d bytes", models.ErrContentTooLarge, resp.ContentLength, f.client.maxBytes)
	}

	raw, wire, err := f.client.readBody(resp)
	if err != nil {
		return nil, err
	}
	body, encoding := DecodeHTML(raw, contentType)

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &models.FetchResult{
		StatusCode:  resp.StatusCode,
		FinalURL:    finalURL,
		Body:        body,
		ContentType: contentType,
		Encoding:    encoding,
		WireBytes:   wire,
	}, nil
}

// IsHTMLContentType reports whether the media type is text/html or
// application/xhtml+xml. A missing header is treated as HTML.
func IsHTMLContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// classify attaches rawURL to err and gives unclassified failures a Kind.
// Context errors pass through untouched.
func classify(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}

	var ce *models.CrawlError
	if errors.As(err, &ce) {
		if ce.URL == "" {
			ce.URL = rawURL
		}
		return ce
	}

	var statusErr *models.HTTPStatusError
	if errors.As(err, &statusErr) {
		return models.NewCrawlError(models.KindPageFailed, rawURL, statusErr.Error(), err)
	}
	if errors.Is(err, models.ErrContentTooLarge) {
		return models.NewCrawlError(models.KindContentRejected, rawURL, "content too large", err)
	}
	return models.NewCrawlError(models.KindPageFailed, rawURL, "fetch failed", err)
}
