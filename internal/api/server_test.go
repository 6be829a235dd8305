package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/pipeline"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStatus{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{st: pipeline.Status{State: pipeline.StateIdle}}
	server := NewServer(status, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	status.st.State = pipeline.StateProducersRunning
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"producers_running"}`, rec.Body.String())
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	status := &fakeStatus{st: pipeline.Status{
		RunID:      "run-1",
		State:      pipeline.StateDraining,
		Processor:  "concurrent",
		Sources:    []string{"alice", "bob"},
		QueueDepth: 3,
	}}
	server := NewServer(status, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body["run_id"])
	require.Equal(t, "draining", body["state"])
	require.InDelta(t, 3, body["queue_depth"], 0)
}

func TestServer_NoPipeline(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStatus{}, zap.NewNop())
	// Hit a route first so the request counters have samples.
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, zap.NewNop())
	h := server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- fakes ---

type fakeStatus struct {
	st pipeline.Status
}

func (f *fakeStatus) Status() pipeline.Status {
	return f.st
}
