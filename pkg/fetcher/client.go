package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxContentLength = 10 * 1024 * 1024
	DefaultUserAgent        = "Mozilla/5.0 (compatible; docsmith/1.0)"
)

// Limiter gates requests per domain.
type Limiter interface {
	Wait(ctx context.Context, domain string) error
}

// ClientOptions configures the HTTP layer.
type ClientOptions struct {
	UserAgent        string
	Timeout          time.Duration
	MaxContentLength int64
	// Transport overrides the default pooled transport (tests).
	Transport http.RoundTripper
}

// Client issues rate-limited GET requests with a reused connection pool and a
// hard cap on body size. It performs no robots check and no retries.
type Client struct {
	http      *http.Client
	limiter   Limiter
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

// NewClient builds a Client. limiter may be nil.
func NewClient(opts ClientOptions, limiter Limiter, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       30 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}

	jar, _ := cookiejar.New(nil)
	return &Client{
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout, Jar: jar},
		limiter:   limiter,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxContentLength,
		logger:    logging.OrDiscard(logger),
	}
}

// UserAgent returns the User-Agent header sent with every request.
func (c *Client) UserAgent() string { return c.userAgent }

// MaxContentLength returns the body size limit in bytes.
func (c *Client) MaxContentLength() int64 { return c.maxBytes }

func (c *Client) wait(ctx context.Context, u *url.URL) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, u.Hostname())
}

// do waits for the domain's turn and sends a GET. The caller closes the body.
func (c *Client) do(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := c.wait(ctx, u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, models.NewCrawlError(models.KindInvalidInput, u.String(), "build request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", u, err)
	}
	return resp, nil
}

// Load fetches rawURL and returns its body. Non-2xx statuses are reported as
// *models.HTTPStatusError.
func (c *Client) Load(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, models.NewCrawlError(models.KindInvalidInput, rawURL, "malformed URL", err)
	}
	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &models.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	body, _, err := c.readBody(resp)
	return body, err
}

// LoadText fetches rawURL and decodes it as UTF-8, falling back to Latin-1.
func (c *Client) LoadText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.Load(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return DecodeText(body), nil
}

// readBody decompresses and reads the body, failing with ErrContentTooLarge as
// soon as more than maxBytes have been read. It returns the decoded body and
// the number of bytes received on the wire.
func (c *Client) readBody(resp *http.Response) ([]byte, int64, error) {
	wire := &countingReader{r: resp.Body}
	reader := io.Reader(wire)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(wire)
		if err != nil {
			return nil, wire.n, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(wire)
	case "deflate":
		fl := flate.NewReader(wire)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBytes+1))
	if err != nil {
		return nil, wire.n, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, wire.n, fmt.Errorf("%w: body exceeds %d bytes", models.ErrContentTooLarge, c.maxBytes)
	}
	return body, wire.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
