// Package robots caches robots.txt rules per host and answers whether a URL may
// be crawled.
package robots

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

// TextLoader fetches a text resource. It must not consult the Gate itself.
type TextLoader interface {
	LoadText(ctx context.Context, rawURL string) (string, error)
}

// CrawlDelayFunc receives the Crawl-delay a host declared for all agents.
type CrawlDelayFunc func(host string, delay time.Duration)

// Gate answers robots.txt queries. Rules for a host are fetched at most once;
// concurrent first queries for the same host wait for a single fetch.
type Gate struct {
	loader     TextLoader
	onDelay    CrawlDelayFunc
	enabled    bool
	logger     *slog.Logger
	mu         sync.Mutex
	hosts      map[string]*hostRules
	timeoutCap time.Duration
}

type hostRules struct {
	once  sync.Once
	group *robotstxt.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithCrawlDelay registers fn to receive each host's declared Crawl-delay.
func WithCrawlDelay(fn CrawlDelayFunc) Option {
	return func(g *Gate) { g.onDelay = fn }
}

// WithLogger sets the gate's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = logging.OrDiscard(l) }
}

// Disabled makes every query succeed without fetching anything.
func Disabled() Option {
	return func(g *Gate) { g.enabled = false }
}

// NewGate builds a Gate that loads robots.txt through loader.
func NewGate(loader TextLoader, opts ...Option) *Gate {
	g := &Gate{
		loader:     loader,
		enabled:    true,
		logger:     logging.OrDiscard(nil),
		hosts:      make(map[string]*hostRules),
		timeoutCap: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allowed reports whether rawURL may be fetched under the "*" user-agent group.
// Unreachable or unparseable robots.txt files allow everything.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	if !g.enabled {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	group := g.rules(ctx, u)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay declared for rawURL's host, loading the
// rules when needed.
func (g *Gate) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	if !g.enabled {
		return 0
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0
	}
	if group := g.rules(ctx, u); group != nil {
		return group.CrawlDelay
	}
	return 0
}

func (g *Gate) rules(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	g.mu.Lock()
	hr, ok := g.hosts[key]
	if !ok {
		hr = &hostRules{}
		g.hosts[key] = hr
	}
	g.mu.Unlock()

	hr.once.Do(func() {
		hr.group = g.load(ctx, key, u.Hostname())
	})
	return hr.group
}

func (g *Gate) load(ctx context.Context, origin, host string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeoutCap)
	defer cancel()

	text, err := g.loader.LoadText(ctx, robotsURL)
	if err != nil {
		var statusErr *models.HTTPStatusError
		if errors.As(err, &statusErr) {
			g.logger.Debug("no robots.txt", "host", host, "status", statusErr.StatusCode)
		} else {
			g.logger.Warn("could not fetch robots.txt, allowing all", "host", host, "error", err)
		}
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(http.StatusOK, []byte(text))
	if err != nil {
		g.logger.Warn("could not parse robots.txt, allowing all", "host", host, "error", err)
		return nil
	}
	group := data.FindGroup("*")
	if group == nil {
		return nil
	}
	if group.CrawlDelay > 0 {
		g.logger.Info("robots.txt crawl-delay", "host", host, "delay", group.CrawlDelay)
		if g.onDelay != nil {
			g.onDelay(host, group.CrawlDelay)
		}
	}
	return group
}
