package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Seed URL, normally supplied as a command argument
	URL string `mapstructure:"url"`

	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// Markdown conversion options
	Markdown MarkdownConfig `mapstructure:"markdown"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Post-run report
	Report ReportConfig `mapstructure:"report"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	Delay             time.Duration `mapstructure:"delay"`
	MaxPages          int           `mapstructure:"max_pages"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxContentLength  int64         `mapstructure:"max_content_length"`
	Workers           int           `mapstructure:"workers"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Scope             string        `mapstructure:"scope"` // "path", "host" or "domain"
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	SitemapMaxDepth   int           `mapstructure:"sitemap_max_depth"`
	SingleFile        bool          `mapstructure:"single_file"`
}

// MarkdownConfig holds Markdown processor overrides
type MarkdownConfig struct {
	IgnoreLinks        bool `mapstructure:"ignore_links"`
	IgnoreImages       bool `mapstructure:"ignore_images"`
	DashUnorderedList  bool `mapstructure:"dash_unordered_list"`
	SkipInternalLinks  bool `mapstructure:"skip_internal_links"`
	BodyWidth          int  `mapstructure:"body_width"`
	IncludeFrontmatter bool `mapstructure:"include_frontmatter"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type       string `mapstructure:"type"` // "local" or "sqlite"
	Path       string `mapstructure:"path"`
	SQLiteFile string `mapstructure:"sqlite_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

// ReportConfig selects the optional post-run report
type ReportConfig struct {
	Format string `mapstructure:"format"` // "", "json", "markdown" or "html"
	Output string `mapstructure:"output"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"output":              "storage.path",
	"storage":             "storage.type",
	"sqlite-file":         "storage.sqlite_file",
	"delay":               "crawler.delay",
	"max-pages":           "crawler.max_pages",
	"timeout":             "crawler.timeout",
	"max-content-length":  "crawler.max_content_length",
	"workers":             "crawler.workers",
	"user-agent":          "crawler.user_agent",
	"respect-robots":      "crawler.respect_robots",
	"scope":               "crawler.scope",
	"rps":                 "crawler.requests_per_second",
	"max-retries":         "crawler.max_retries",
	"single-file":         "crawler.single_file",
	"ignore-links":        "markdown.ignore_links",
	"ignore-images":       "markdown.ignore_images",
	"dash-lists":          "markdown.dash_unordered_list",
	"skip-internal-links": "markdown.skip_internal_links",
	"body-width":          "markdown.body_width",
	"frontmatter":         "markdown.include_frontmatter",
	"log-level":           "logging.level",
	"log-format":          "logging.format",
	"log-file":            "logging.output_path",
	"report-format":       "report.format",
	"report-output":       "report.output",
}

// Load reads configuration from defaults, an optional YAML file, DOCSMITH_* environment
// variables and any flags in fs, in increasing order of precedence.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("docsmith")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "docsmith"))
	}

	setDefaults(v)
	bindEnvVars(v)
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &config, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Crawler defaults
	v.SetDefault("crawler.delay", "1s")
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.timeout", "10s")
	v.SetDefault("crawler.max_content_length", 10*1024*1024)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; docsmith/1.0)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.scope", "path")
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_initial_delay", "1s")
	v.SetDefault("crawler.sitemap_max_depth", 5)
	v.SetDefault("crawler.single_file", false)

	// Markdown defaults
	v.SetDefault("markdown.ignore_links", false)
	v.SetDefault("markdown.ignore_images", false)
	v.SetDefault("markdown.dash_unordered_list", false)
	v.SetDefault("markdown.skip_internal_links", false)
	v.SetDefault("markdown.body_width", 0)
	v.SetDefault("markdown.include_frontmatter", false)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "downloaded_docs")
	v.SetDefault("storage.sqlite_file", "docsmith.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stderr")

	v.SetDefault("report.format", "")
	v.SetDefault("report.output", "")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("DOCSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.URL != "" {
		if err := ValidateSeedURL(c.URL); err != nil {
			return err
		}
	}
	if c.Crawler.Delay < 0 {
		return fmt.Errorf("crawler.delay must be non-negative")
	}
	if c.Crawler.Timeout <= 0 {
		return fmt.Errorf("crawler.timeout must be positive")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be non-negative")
	}
	if c.Crawler.MaxContentLength <= 0 {
		return fmt.Errorf("crawler.max_content_length must be positive")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be non-negative")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be non-negative")
	}
	switch c.Crawler.Scope {
	case "path", "host", "domain":
	default:
		return fmt.Errorf("crawler.scope must be one of path, host, domain; got %q", c.Crawler.Scope)
	}
	switch c.Storage.Type {
	case "local", "sqlite":
	default:
		return fmt.Errorf("storage.type must be local or sqlite; got %q", c.Storage.Type)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format)
	}
	switch c.Report.Format {
	case "", "json", "markdown", "html":
	default:
		return fmt.Errorf("report.format must be json, markdown or html; got %q", c.Report.Format)
	}
	return nil
}

// ValidateSeedURL checks that raw is an absolute http or https URL.
func ValidateSeedURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url must be a non-empty string")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be a valid HTTP or HTTPS URL")
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
