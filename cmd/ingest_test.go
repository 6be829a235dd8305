package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func listing(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := strings.TrimPrefix(r.URL.Path, "/u/")
		w.Header().Set("Content-Type", "text/html")
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := range 3 {
			fmt.Fprintf(&b,
				`<article data-id="%s-%d" data-user-id="1" data-user-name="%s" data-datetime="2024-03-01 12:00:00" data-timezone="UTC"><p class="text">hi</p></article>`,
				source, i, source)
		}
		b.WriteString("</body></html>")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestDryRun(t *testing.T) {
	srv := listing(t)
	cfgFile = ""

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"ingest", "--dry-run",
		"-u", "alice,bob",
		"--url-template", srv.URL + "/u/%s",
		"--poll-timeout", "10ms",
		"--requests-rate", "0",
		"--log-level", "error",
	})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "6 records in 1 chunks")
}

func TestIngestRequiresSources(t *testing.T) {
	cfgFile = ""

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"ingest", "--dry-run"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sources must not be empty")
}

func TestIngestRejectsBadLogLevel(t *testing.T) {
	cfgFile = ""

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"ingest", "--dry-run", "-u", "alice", "--log-level", "shout"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "init logger")
}

func TestIngestFlagsRegistered(t *testing.T) {
	cmd := newIngestCmd()
	for _, name := range []string{
		"processor", "sources", "limit", "debug", "chunk-size", "poll-timeout",
		"storage-host", "storage-port", "dry-run", "ops-addr",
	} {
		require.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	require.Equal(t, "u", cmd.Flags().Lookup("sources").Shorthand)
	require.Equal(t, "l", cmd.Flags().Lookup("limit").Shorthand)
}
