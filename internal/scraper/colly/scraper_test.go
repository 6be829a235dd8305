package collyscraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/logging"
)

// listingServer serves /u/<source>?page=N with perPage items per page and
// a next link until pages are exhausted.
func listingServer(t *testing.T, pages, perPage int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := strings.TrimPrefix(r.URL.Path, "/u/")
		if source == "missing" {
			http.NotFound(w, r)
			return
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			_, _ = fmt.Sscanf(p, "%d", &page)
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := range perPage {
			id := fmt.Sprintf("%s-%d-%d", source, page, i)
			fmt.Fprintf(&b,
				`<article data-id="%s" data-user-id="u1" data-user-name="%s" data-datetime="2024-03-01 12:33:19" data-timezone="+0200"><p class="text"> post %s </p></article>`,
				id, source, id)
		}
		if page < pages {
			fmt.Fprintf(&b, `<a class="next" href="/u/%s?page=%d">next</a>`, source, page+1)
		}
		b.WriteString("</body></html>")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchFollowsPages(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, 2, 3)
	s, err := New(Config{URLTemplate: srv.URL + "/u/%s"}, zap.NewNop())
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, s.Search(context.Background(), ingest.SessionConfig{Source: "alice"}, sink))

	items := sink.all()
	require.Len(t, items, 6)
	require.Equal(t, "alice-1-0", items[0].ID)
	require.Equal(t, "alice-2-2", items[5].ID)
	require.Equal(t, "post alice-1-0", items[0].Text)
	require.Equal(t, "u1", items[0].AuthorID)
	require.Equal(t, "alice", items[0].AuthorName)
	require.Equal(t, "2024-03-01 12:33:19", items[0].DateTime)
	require.Equal(t, "+0200", items[0].Timezone)
}

func TestSearchHonorsLimit(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, 10, 4)
	s, err := New(Config{URLTemplate: srv.URL + "/u/%s"}, zap.NewNop())
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, s.Search(context.Background(), ingest.SessionConfig{Source: "bob", Limit: 6}, sink))
	require.Len(t, sink.all(), 6)
}

func TestSearchReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, 1, 1)
	s, err := New(Config{URLTemplate: srv.URL + "/u/%s"}, zap.NewNop())
	require.NoError(t, err)

	err = s.Search(context.Background(), ingest.SessionConfig{Source: "missing"}, &recordingSink{})
	require.Error(t, err)
}

func TestSearchStopsOnSinkError(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, 3, 3)
	s, err := New(Config{URLTemplate: srv.URL + "/u/%s"}, zap.NewNop())
	require.NoError(t, err)

	boom := errors.New("queue closed")
	calls := 0
	sink := ingest.SinkFunc(func(ingest.RawItem) error {
		calls++
		return boom
	})
	err = s.Search(context.Background(), ingest.SessionConfig{Source: "carol"}, sink)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestSearchDebugLogsThroughContextLogger(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, 1, 1)
	s, err := New(Config{URLTemplate: srv.URL + "/u/%s"}, nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.WithContext(context.Background(), zap.New(core))
	require.NoError(t, s.Search(ctx, ingest.SessionConfig{Source: "dave", Debug: true}, &recordingSink{}))
	fromColly := logs.Filter(func(e observer.LoggedEntry) bool { return e.LoggerName == "colly" })
	require.Positive(t, fromColly.Len())
}

func TestNewRequiresPlaceholder(t *testing.T) {
	t.Parallel()

	_, err := New(Config{URLTemplate: "https://example.com/static"}, nil)
	require.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestSourceURLEscapes(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URLTemplate: "https://example.com/u/%s/posts"}, nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/u/a%20b/posts", s.SourceURL("a b"))
}

// --- fakes ---

type recordingSink struct {
	mu    sync.Mutex
	items []ingest.RawItem
}

func (r *recordingSink) Accept(item ingest.RawItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *recordingSink) all() []ingest.RawItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingest.RawItem(nil), r.items...)
}
