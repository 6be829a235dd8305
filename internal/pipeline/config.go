package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Configuration errors returned by Config.Validate.
var (
	ErrInvalidChunkSize   = errors.New("chunk size must be > 0")
	ErrInvalidPollTimeout = errors.New("poll timeout must be > 0")
	ErrNoSources          = errors.New("at least one source is required")
	ErrInvalidProcessor   = errors.New("processor must be concurrent or sequential")
)

// Processor selects how sessions are run.
type Processor string

// Supported processors.
const (
	// ProcessorConcurrent runs every session at once against a shared queue.
	ProcessorConcurrent Processor = "concurrent"
	// ProcessorSequential runs sessions one by one and ships each in a single stream.
	ProcessorSequential Processor = "sequential"
)

// Config controls a pipeline run.
type Config struct {
	Processor   Processor
	ChunkSize   int
	PollTimeout time.Duration
	Sources     []string
	// Limit is passed to every session; 0 means unlimited.
	Limit          int
	Debug          bool
	SuppressOutput bool
}

// Validate checks the configuration and normalizes source names.
func (c *Config) Validate() error {
	if c.Processor == "" {
		c.Processor = ProcessorConcurrent
	}
	if c.Processor != ProcessorConcurrent && c.Processor != ProcessorSequential {
		return fmt.Errorf("%w: %q", ErrInvalidProcessor, c.Processor)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPollTimeout, c.PollTimeout)
	}
	sources := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return ErrNoSources
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", c.Limit)
	}
	c.Sources = sources
	return nil
}
