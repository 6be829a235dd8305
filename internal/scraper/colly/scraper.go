// Package collyscraper implements ingest.Scraper on top of gocolly. A session
// walks a source's listing pages and emits one item per matching element.
package collyscraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/logging"
	"github.com/JakeFAU/scrape-ingest/internal/policy/ratelimit"
)

// ErrInvalidTemplate is returned by New when the URL template has no %s placeholder.
var ErrInvalidTemplate = errors.New("url template must contain %s")

// Config controls collector behavior.
type Config struct {
	// URLTemplate builds a source's first page; %s is replaced by the escaped source id.
	URLTemplate       string
	UserAgent         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	ItemSelector      string
	TextSelector      string
	NextSelector      string
}

// Default selectors for the listing markup.
const (
	DefaultItemSelector = "article[data-id]"
	DefaultTextSelector = ".text"
	DefaultNextSelector = "a.next[href]"
)

// Scraper runs colly sessions. It is safe for concurrent use; each session
// gets its own collector while the rate limiter is shared.
type Scraper struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	transport http.RoundTripper
	logger    *zap.Logger
}

var _ ingest.Scraper = (*Scraper)(nil)

// New builds a Scraper.
func New(cfg Config, logger *zap.Logger) (*Scraper, error) {
	if !strings.Contains(cfg.URLTemplate, "%s") {
		return nil, ErrInvalidTemplate
	}
	if cfg.ItemSelector == "" {
		cfg.ItemSelector = DefaultItemSelector
	}
	if cfg.TextSelector == "" {
		cfg.TextSelector = DefaultTextSelector
	}
	if cfg.NextSelector == "" {
		cfg.NextSelector = DefaultNextSelector
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		cfg:       cfg,
		limiter:   ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSecond, DefaultBurst: 1}),
		transport: newHTTPTransport(),
		logger:    logger,
	}, nil
}

// SourceURL returns the first page for source.
func (s *Scraper) SourceURL(source string) string {
	return strings.ReplaceAll(s.cfg.URLTemplate, "%s", url.PathEscape(source))
}

// Search walks the source's pages until the limit is reached or no next link
// remains, pushing every item into sink.
func (s *Scraper) Search(ctx context.Context, cfg ingest.SessionConfig, sink ingest.Sink) error {
	logger := logging.FromContext(ctx, s.logger)
	sess := &session{limit: cfg.Limit, sink: sink, logger: logger}

	collector := s.buildCollector(ctx, cfg, logger)
	s.configureCollectorHooks(ctx, collector, sess)

	start := s.SourceURL(cfg.Source)
	logger.Debug("session start", zap.String("url", start), zap.Int("limit", cfg.Limit))
	if err := collector.Visit(start); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("colly session canceled: %w", ctx.Err())
		}
		return fmt.Errorf("colly visit failed: %w", err)
	}
	if err := sess.failure(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("colly session canceled: %w", ctx.Err())
	}
	logger.Debug("session done", zap.Int("items", sess.count), zap.Int("pages", sess.pages))
	return nil
}

func (s *Scraper) buildCollector(ctx context.Context, cfg ingest.SessionConfig, logger *zap.Logger) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.StdlibContext(ctx),
	}
	if cfg.Debug {
		opts = append(opts, colly.Debugger(&zapDebugger{logger: logger.Named("colly")}))
	}
	collector := colly.NewCollector(opts...)
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.RequestTimeout)
	collector.WithTransport(s.transport)
	return collector
}

func (s *Scraper) configureCollectorHooks(ctx context.Context, c *colly.Collector, sess *session) {
	c.OnRequest(func(r *colly.Request) {
		if sess.done() {
			r.Abort()
			return
		}
		if err := s.limiter.Wait(ctx, r.URL.String()); err != nil {
			r.Abort()
			return
		}
		sess.pages++
	})
	c.OnHTML(s.cfg.ItemSelector, func(e *colly.HTMLElement) {
		if sess.done() {
			return
		}
		sess.accept(ingest.RawItem{
			ID:         e.Attr("data-id"),
			DateTime:   e.Attr("data-datetime"),
			Timezone:   e.Attr("data-timezone"),
			Text:       strings.TrimSpace(e.ChildText(s.cfg.TextSelector)),
			AuthorID:   e.Attr("data-user-id"),
			AuthorName: e.Attr("data-user-name"),
		})
	})
	// Registered after the item hook so a page's items are counted before
	// deciding whether to follow its next link.
	c.OnHTML(s.cfg.NextSelector, func(e *colly.HTMLElement) {
		if sess.done() {
			return
		}
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		if err := e.Request.Visit(next); err != nil {
			sess.logger.Debug("next page not followed", zap.String("url", next), zap.Error(err))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		sess.fail(fmt.Errorf("fetch %s: %w", r.Request.URL, err))
	})
}

type session struct {
	mu     sync.Mutex
	limit  int
	count  int
	pages  int
	sink   ingest.Sink
	err    error
	logger *zap.Logger
}

func (s *session) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil || (s.limit > 0 && s.count >= s.limit)
}

func (s *session) accept(item ingest.RawItem) {
	if err := s.sink.Accept(item); err != nil {
		s.fail(err)
		return
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
