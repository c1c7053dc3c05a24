// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/flare-crawler/internal/ingest"
	"github.com/JakeFAU/flare-crawler/internal/navigator"
	"github.com/JakeFAU/flare-crawler/internal/parser"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Target  TargetConfig  `mapstructure:"target"`
	Browser BrowserConfig `mapstructure:"browser"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	DB      DBConfig      `mapstructure:"db"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TargetConfig locates the query form and its results table.
type TargetConfig struct {
	URL             string `mapstructure:"url"`
	SearchSelector  string `mapstructure:"search_selector"`
	ResultsSelector string `mapstructure:"results_selector"`
	NextSelector    string `mapstructure:"next_selector"`
	RowSelector     string `mapstructure:"row_selector"`
}

// BrowserConfig selects and tunes the browser driver.
type BrowserConfig struct {
	Driver       string        `mapstructure:"driver"`
	Headless     bool          `mapstructure:"headless"`
	UserAgent    string        `mapstructure:"user_agent"`
	RemoteURL    string        `mapstructure:"remote_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// CrawlerConfig governs the pagination loop.
type CrawlerConfig struct {
	PageInterval  time.Duration `mapstructure:"page_interval"`
	MaxPages      int           `mapstructure:"max_pages"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// IngestConfig tunes entity reconciliation.
type IngestConfig struct {
	PlaceholderCoordinates string `mapstructure:"placeholder_coordinates"`
	CacheSize              int    `mapstructure:"cache_size"`
}

// ArchiveConfig sets where raw results pages are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds where run summaries are published.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("target.url", navigator.DefaultURL)
	v.SetDefault("target.search_selector", navigator.DefaultSearchSelector)
	v.SetDefault("target.results_selector", navigator.DefaultResultsSelector)
	v.SetDefault("target.next_selector", navigator.DefaultNextSelector)
	v.SetDefault("target.row_selector", parser.DefaultRowSelector)
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.timeout", navigator.DefaultTimeout)
	v.SetDefault("browser.settle_delay", navigator.DefaultSettleDelay)
	v.SetDefault("browser.poll_interval", navigator.DefaultPollInterval)
	v.SetDefault("crawler.page_interval", "0s")
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.notify_timeout", "10s")
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("ingest.placeholder_coordinates", ingest.DefaultPlaceholderCoordinates)
	v.SetDefault("ingest.cache_size", 1024)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url must be set")
	}
	switch c.Browser.Driver {
	case "chromedp", "rod":
	default:
		return fmt.Errorf("browser.driver must be chromedp or rod, got %q", c.Browser.Driver)
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be > 0")
	}
	if c.Browser.SettleDelay < 0 {
		return fmt.Errorf("browser.settle_delay must be >= 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.PageInterval < 0 {
		return fmt.Errorf("crawler.page_interval must be >= 0")
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("db.provider must be postgres or memory, got %q", c.DB.Provider)
	}
	if c.Ingest.CacheSize <= 0 {
		return fmt.Errorf("ingest.cache_size must be > 0")
	}
	switch c.Archive.Provider {
	case "none":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be none, local or gcs, got %q", c.Archive.Provider)
	}
	switch c.Notify.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicName == "" {
			return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("notify.provider must be none, memory or pubsub, got %q", c.Notify.Provider)
	}
	return nil
}
