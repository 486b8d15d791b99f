package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/crawler"
	"github.com/amosWeiskopf/docsmith/pkg/fetcher"
	"github.com/amosWeiskopf/docsmith/pkg/ratelimit"
	"github.com/amosWeiskopf/docsmith/pkg/reporter"
	"github.com/amosWeiskopf/docsmith/pkg/sitemap"
	"github.com/amosWeiskopf/docsmith/pkg/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "docsmith",
	Short: "DocSmith - documentation crawler and Markdown converter",
	Long: `DocSmith crawls a documentation site from a seed URL or sitemap, politely
(robots.txt, per-domain delays, bounded retries), and saves every page as clean Markdown.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads configuration for cmd and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, io.Closer, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [URL]",
	Short: "Crawl a documentation site and save it as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		cfg.URL = args[0]
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		store, err := storage.Open(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		cb := crawler.Callbacks{
			OnPageCrawled: func(url string, n int64) {
				fmt.Fprintf(out, "[%d] %s\n", n, url)
			},
		}
		c, err := crawler.NewFromConfig(cfg, store, cb, logger)
		if err != nil {
			return fmt.Errorf("failed to create crawler: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, crawlErr := c.Crawl(ctx)
		if result != nil {
			fmt.Fprintln(out, result.Summary())
			fmt.Fprintf(out, "Output: %s\n", store.Location())

			if cfg.Report.Format != "" {
				if err := writeReport(out, cfg.Report, result); err != nil {
					return err
				}
			}
		}
		if crawlErr != nil {
			return fmt.Errorf("crawl failed: %w", crawlErr)
		}
		return nil
	},
}

func writeReport(out io.Writer, rc config.ReportConfig, result *models.CrawlResult) error {
	r := reporter.New()
	if rc.Output == "" {
		report, err := r.Generate(result, rc.Format)
		if err != nil {
			return fmt.Errorf("report generation failed: %w", err)
		}
		fmt.Fprintln(out, report)
		return nil
	}
	if err := r.WriteFile(rc.Output, result, rc.Format); err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}
	fmt.Fprintf(out, "Report saved to %s\n", rc.Output)
	return nil
}

var convertCmd = &cobra.Command{
	Use:   "convert [FILE|-]",
	Short: "Convert a local HTML document to Markdown on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		var body []byte
		if args[0] == "-" {
			body, err = io.ReadAll(cmd.InOrStdin())
		} else {
			body, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		pageURL, _ := cmd.Flags().GetString("url")
		html, _ := fetcher.DecodeHTML(body, "")
		doc := crawler.NewRenderer(cfg.Markdown, logger).Render(html, pageURL)
		fmt.Fprintln(cmd.OutOrStdout(), doc.Markdown)
		return nil
	},
}

var sitemapCmd = &cobra.Command{
	Use:   "sitemap [URL]",
	Short: "List the page URLs reachable from a sitemap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := config.ValidateSeedURL(args[0]); err != nil {
			return err
		}

		cc := cfg.Crawler
		limiter := ratelimit.New(cc.Delay, cc.RequestsPerSecond, logger)
		client := fetcher.NewClient(fetcher.ClientOptions{
			UserAgent:        cc.UserAgent,
			Timeout:          cc.Timeout,
			MaxContentLength: cc.MaxContentLength,
		}, limiter, logger)
		resolver := sitemap.NewResolver(client, cc.SitemapMaxDepth, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		n := 0
		for entry := range resolver.Resolve(ctx, args[0]) {
			n++
			if entry.LastMod != "" {
				fmt.Fprintf(out, "%s\t%s\n", entry.URL, entry.LastMod)
				continue
			}
			fmt.Fprintln(out, entry.URL)
		}
		logger.Info("sitemap resolved", "sitemap", args[0], "urls", n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
	},
}

func init() {
	// Crawl command flags
	f := crawlCmd.Flags()
	f.StringP("output", "o", "downloaded_docs", "Output directory (or database directory)")
	f.String("storage", "local", "Storage backend (local, sqlite)")
	f.String("sqlite-file", "docsmith.db", "SQLite database file, relative to the output directory")
	f.Duration("delay", config.Default().Crawler.Delay, "Minimum delay between requests to one domain")
	f.Int("max-pages", 0, "Maximum pages to crawl (0 = unlimited)")
	f.Duration("timeout", fetcher.DefaultTimeout, "Request timeout")
	f.Int64("max-content-length", fetcher.DefaultMaxContentLength, "Maximum page size in bytes")
	f.Int("workers", 1, "Concurrent fetch workers")
	f.String("user-agent", fetcher.DefaultUserAgent, "User-Agent header")
	f.Bool("respect-robots", true, "Honour robots.txt rules and Crawl-delay")
	f.String("scope", string(crawler.ScopePath), "Link scope (path, host, domain)")
	f.Float64("rps", 0, "Global requests-per-second cap (0 = off)")
	f.Int("max-retries", 3, "Retries for transient fetch failures")
	f.Bool("single-file", false, "Combine all pages into "+crawler.DefaultSingleFileName)
	f.String("report-format", "", "Write a crawl report (json, markdown, html)")
	f.String("report-output", "", "Report file (default stdout)")
	addMarkdownFlags(crawlCmd)

	// Convert command flags
	convertCmd.Flags().String("url", "", "Page URL used to resolve relative links")
	addMarkdownFlags(convertCmd)

	// Sitemap command flags
	sitemapCmd.Flags().Duration("delay", config.Default().Crawler.Delay, "Minimum delay between requests")
	sitemapCmd.Flags().Duration("timeout", fetcher.DefaultTimeout, "Request timeout")

	rootCmd.AddCommand(crawlCmd, convertCmd, sitemapCmd, versionCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "stderr", "Log destination (stderr, stdout or a file path)")
}

func addMarkdownFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("ignore-links", false, "Render links as plain text")
	f.Bool("ignore-images", false, "Drop images")
	f.Bool("dash-lists", false, "Use '-' for unordered list items")
	f.Bool("skip-internal-links", false, "Render same-site links as plain text")
	f.Int("body-width", 0, "Wrap prose at this column (0 = off)")
	f.Bool("frontmatter", false, "Prepend YAML frontmatter")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
