package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
processor: sequential
sources: [alice, bob]
pipeline:
  chunk_size: 50
  poll_timeout: 250ms
  limit: 10
  debug: true
scraper:
  url_template: https://example.com/u/%s
  requests_per_second: 0.5
storage:
  host: storage.internal
  port: 6000
  attempts: 3
logging:
  development: true
  level: debug
ops:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Equal(t, "sequential", cfg.Processor)
	require.Equal(t, []string{"alice", "bob"}, cfg.Sources)
	require.Equal(t, 50, cfg.Pipeline.ChunkSize)
	require.Equal(t, 250*time.Millisecond, cfg.Pipeline.PollTimeout)
	require.Equal(t, 10, cfg.Pipeline.Limit)
	require.True(t, cfg.Pipeline.Debug)
	require.Equal(t, "https://example.com/u/%s", cfg.Scraper.URLTemplate)
	require.InDelta(t, 0.5, cfg.Scraper.RequestsPerSecond, 1e-9)
	require.Equal(t, "storage.internal", cfg.Storage.Host)
	require.Equal(t, 6000, cfg.Storage.Port)
	require.Equal(t, uint(3), cfg.Storage.Attempts)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, ":9090", cfg.Ops.Addr)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--sources", "alice"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, "concurrent", cfg.Processor)
	require.Equal(t, 20, cfg.Pipeline.ChunkSize)
	require.Equal(t, time.Second, cfg.Pipeline.PollTimeout)
	require.Equal(t, 100, cfg.Pipeline.Limit)
	require.True(t, cfg.Pipeline.SuppressOutput)
	require.Equal(t, "localhost", cfg.Storage.Host)
	require.Equal(t, 50052, cfg.Storage.Port)
	require.Equal(t, uint(1), cfg.Storage.Attempts)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Empty(t, cfg.Ops.Addr)
}

func TestLoadFlagsOverride(t *testing.T) {
	t.Parallel()

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{
		"-u", "alice,bob", "-u", "carol",
		"--chunk-size", "5",
		"--poll-timeout", "50ms",
		"--storage-port", "7000",
		"--dry-run",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "carol"}, cfg.Sources)
	require.Equal(t, 5, cfg.Pipeline.ChunkSize)
	require.Equal(t, 50*time.Millisecond, cfg.Pipeline.PollTimeout)
	require.Equal(t, 7000, cfg.Storage.Port)
	require.True(t, cfg.Storage.DryRun)
}

func TestLoadStorageEnvironment(t *testing.T) {
	t.Setenv("GRPC_STORAGE_SERVICE_HOST", "storage.svc")
	t.Setenv("GRPC_STORAGE_PORT", "51000")
	t.Setenv("INGEST_SOURCES", "alice,bob")
	t.Setenv("INGEST_PIPELINE_CHUNK_SIZE", "7")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "storage.svc", cfg.Storage.Host)
	require.Equal(t, 51000, cfg.Storage.Port)
	require.Equal(t, []string{"alice", "bob"}, cfg.Sources)
	require.Equal(t, 7, cfg.Pipeline.ChunkSize)
}

func TestLoadPrefixedStorageEnvironmentWins(t *testing.T) {
	t.Setenv("GRPC_STORAGE_SERVICE_HOST", "storage.svc")
	t.Setenv("INGEST_STORAGE_HOST", "override.svc")
	t.Setenv("INGEST_SOURCES", "alice")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "override.svc", cfg.Storage.Host)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "read config"))
}

func TestLoadWithoutStorageEndpointRunsDry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"empty host", []string{"--sources", "alice", "--storage-host", ""}},
		{"zero port", []string{"--sources", "alice", "--storage-port", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flags := testFlags()
			require.NoError(t, flags.Parse(tt.args))

			cfg, err := Load("", flags)
			require.NoError(t, err)
			require.True(t, cfg.Storage.DryRun)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Processor: "concurrent",
			Sources:   []string{"alice"},
			Pipeline:  PipelineConfig{ChunkSize: 20, PollTimeout: time.Second, Limit: 100},
			Scraper:   ScraperConfig{URLTemplate: "http://x/%s"},
			Storage:   StorageConfig{Host: "localhost", Port: 50052, Attempts: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"processor", func(c *Config) { c.Processor = "threads" }, "processor must be"},
		{"sources", func(c *Config) { c.Sources = nil }, "sources must not be empty"},
		{"chunk size", func(c *Config) { c.Pipeline.ChunkSize = 0 }, "pipeline.chunk_size must be > 0"},
		{"poll timeout", func(c *Config) { c.Pipeline.PollTimeout = 0 }, "pipeline.poll_timeout must be > 0"},
		{"limit", func(c *Config) { c.Pipeline.Limit = -1 }, "pipeline.limit must be >= 0"},
		{"template", func(c *Config) { c.Scraper.URLTemplate = "http://x/" }, "scraper.url_template"},
		{"host", func(c *Config) { c.Storage.Host = "" }, "storage.host must be set"},
		{"port", func(c *Config) { c.Storage.Port = 70000 }, "storage.port must be between"},
		{"attempts", func(c *Config) { c.Storage.Attempts = 0 }, "storage.attempts must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mut(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	dry := valid()
	dry.Storage = StorageConfig{DryRun: true}
	require.NoError(t, dry.Validate())
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSliceP("sources", "u", nil, "")
	flags.IntP("limit", "l", 100, "")
	flags.Int("chunk-size", 20, "")
	flags.Duration("poll-timeout", time.Second, "")
	flags.String("storage-host", "localhost", "")
	flags.Int("storage-port", 50052, "")
	flags.Bool("dry-run", false, "")
	return flags
}
