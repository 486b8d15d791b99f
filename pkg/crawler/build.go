package crawler

import (
	"log/slog"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/pkg/extractor"
	"github.com/amosWeiskopf/docsmith/pkg/fetcher"
	"github.com/amosWeiskopf/docsmith/pkg/markdown"
	"github.com/amosWeiskopf/docsmith/pkg/ratelimit"
	"github.com/amosWeiskopf/docsmith/pkg/retry"
	"github.com/amosWeiskopf/docsmith/pkg/robots"
	"github.com/amosWeiskopf/docsmith/pkg/sitemap"
)

// NewFromConfig wires the rate limiter, HTTP client, robots gate, retry policy,
// sitemap resolver, extractor and converter described by cfg around saver.
func NewFromConfig(cfg *config.Config, saver Saver, cb Callbacks, logger *slog.Logger) (*Engine, error) {
	logger = logging.OrDiscard(logger)
	cc := cfg.Crawler

	limiter := ratelimit.New(cc.Delay, cc.RequestsPerSecond, logger.With("component", "ratelimit"))
	client := fetcher.NewClient(fetcher.ClientOptions{
		UserAgent:        cc.UserAgent,
		Timeout:          cc.Timeout,
		MaxContentLength: cc.MaxContentLength,
	}, limiter, logger.With("component", "http"))

	gateOpts := []robots.Option{
		robots.WithCrawlDelay(limiter.SetCrawlDelay),
		robots.WithLogger(logger.With("component", "robots")),
	}
	if !cc.RespectRobots {
		gateOpts = append(gateOpts, robots.Disabled())
	}
	gate := robots.NewGate(client, gateOpts...)

	policy := retry.Policy{
		MaxRetries:   cc.MaxRetries,
		InitialDelay: cc.RetryInitialDelay,
		MaxDelay:     retry.DefaultMaxDelay,
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = retry.DefaultInitialDelay
	}

	deps := Dependencies{
		Fetcher:  fetcher.New(client, gate, policy, logger.With("component", "fetcher")),
		Renderer: NewRenderer(cfg.Markdown, logger),
		Saver:    saver,
		Sitemaps: sitemap.NewResolver(client, cc.SitemapMaxDepth, logger.With("component", "sitemap")),
	}

	opts := DefaultOptions()
	opts.MaxPages = cc.MaxPages
	opts.Workers = cc.Workers
	opts.Scope = ScopePolicy(cc.Scope)
	opts.SingleFile = cc.SingleFile

	return New(cfg.URL, deps, opts, cb, logger)
}

// NewRenderer builds the default extractor and a converter configured by mc.
func NewRenderer(mc config.MarkdownConfig, logger *slog.Logger) *markdown.Renderer {
	logger = logging.OrDiscard(logger)
	ext := extractor.New(extractor.DefaultRules(), logger.With("component", "extractor"))
	conv := markdown.NewConverter(markdown.Options{
		IgnoreLinks:        mc.IgnoreLinks,
		IgnoreImages:       mc.IgnoreImages,
		DashUnorderedList:  mc.DashUnorderedList,
		SkipInternalLinks:  mc.SkipInternalLinks,
		BodyWidth:          mc.BodyWidth,
		IncludeFrontmatter: mc.IncludeFrontmatter,
	}, logger.With("component", "markdown"))
	return markdown.NewRenderer(ext, conv, logger.With("component", "renderer"))
}
