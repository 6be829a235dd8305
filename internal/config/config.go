// Package config loads and validates ingestion configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Processor string         `mapstructure:"processor"`
	Sources   []string       `mapstructure:"sources"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Scraper   ScraperConfig  `mapstructure:"scraper"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Ops       OpsConfig      `mapstructure:"ops"`
}

// PipelineConfig governs chunking and session behavior.
type PipelineConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	Limit          int           `mapstructure:"limit"`
	Debug          bool          `mapstructure:"debug"`
	SuppressOutput bool          `mapstructure:"suppress_output"`
}

// ScraperConfig configures the colly scraping sessions.
type ScraperConfig struct {
	URLTemplate       string        `mapstructure:"url_template"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	ItemSelector      string        `mapstructure:"item_selector"`
	TextSelector      string        `mapstructure:"text_selector"`
	NextSelector      string        `mapstructure:"next_selector"`
}

// StorageConfig points at the gRPC storage service. Load switches to dry run
// when Host is empty or Port is zero.
type StorageConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	DryRun      bool          `mapstructure:"dry_run"`
	Attempts    uint          `mapstructure:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// OpsConfig controls the optional health and metrics listener.
type OpsConfig struct {
	// Addr is the listen address; empty disables the listener.
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"processor":     "processor",
	"sources":       "sources",
	"limit":         "pipeline.limit",
	"debug":         "pipeline.debug",
	"chunk-size":    "pipeline.chunk_size",
	"poll-timeout":  "pipeline.poll_timeout",
	"storage-host":  "storage.host",
	"storage-port":  "storage.port",
	"dry-run":       "storage.dry_run",
	"ops-addr":      "ops.addr",
	"log-level":     "logging.level",
	"development":   "logging.development",
	"url-template":  "scraper.url_template",
	"requests-rate": "scraper.requests_per_second",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// The storage endpoint also honors the variables the storage service publishes.
	if err := v.BindEnv("storage.host", "INGEST_STORAGE_HOST", "GRPC_STORAGE_SERVICE_HOST"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("storage.port", "INGEST_STORAGE_PORT", "GRPC_STORAGE_PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

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
	cfg.Sources = splitSources(cfg.Sources)
	// No storage endpoint means there is nowhere to stream to: run dry.
	if strings.TrimSpace(cfg.Storage.Host) == "" || cfg.Storage.Port == 0 {
		cfg.Storage.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("processor", "concurrent")
	v.SetDefault("sources", []string{})
	v.SetDefault("pipeline.chunk_size", 20)
	v.SetDefault("pipeline.poll_timeout", time.Second)
	v.SetDefault("pipeline.limit", 100)
	v.SetDefault("pipeline.debug", false)
	v.SetDefault("pipeline.suppress_output", true)
	v.SetDefault("scraper.url_template", "http://localhost:8080/u/%s")
	v.SetDefault("scraper.user_agent", "scrape-ingest/0.1")
	v.SetDefault("scraper.request_timeout", 15*time.Second)
	v.SetDefault("scraper.requests_per_second", 2.0)
	v.SetDefault("scraper.item_selector", "article[data-id]")
	v.SetDefault("scraper.text_selector", ".text")
	v.SetDefault("scraper.next_selector", "a.next[href]")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 50052)
	v.SetDefault("storage.dry_run", false)
	v.SetDefault("storage.attempts", 1)
	v.SetDefault("storage.retry_delay", 500*time.Millisecond)
	v.SetDefault("storage.call_timeout", time.Duration(0))
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("ops.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Processor != "concurrent" && c.Processor != "sequential" {
		return fmt.Errorf("processor must be concurrent or sequential, got %q", c.Processor)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must not be empty")
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be > 0")
	}
	if c.Pipeline.PollTimeout <= 0 {
		return fmt.Errorf("pipeline.poll_timeout must be > 0")
	}
	if c.Pipeline.Limit < 0 {
		return fmt.Errorf("pipeline.limit must be >= 0")
	}
	if !strings.Contains(c.Scraper.URLTemplate, "%s") {
		return fmt.Errorf("scraper.url_template must contain %%s")
	}
	if c.Storage.DryRun {
		return nil
	}
	if c.Storage.Host == "" {
		return fmt.Errorf("storage.host must be set unless storage.dry_run is enabled")
	}
	if c.Storage.Port <= 0 || c.Storage.Port > 65535 {
		return fmt.Errorf("storage.port must be between 1 and 65535")
	}
	if c.Storage.Attempts == 0 {
		return fmt.Errorf("storage.attempts must be > 0")
	}
	return nil
}

// splitSources accepts comma-separated entries and drops blanks.
func splitSources(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
