// Package storagetest provides an in-memory storage service for tests.
package storagetest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	grpcstorage "github.com/JakeFAU/scrape-ingest/internal/storage/grpc"
)

const bufSize = 1 << 20

// Recorder is a StorageServer that keeps every received stream in memory.
type Recorder struct {
	mu       sync.Mutex
	calls    [][]ingest.StoreRequest
	failures []error
}

var _ grpcstorage.StorageServer = (*Recorder)(nil)

// StoreRecordsStream implements grpcstorage.StorageServer.
func (r *Recorder) StoreRecordsStream(stream grpcstorage.StoreRecordsStreamServer) error {
	var batch []ingest.StoreRequest
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		batch = append(batch, *req)
	}

	r.mu.Lock()
	r.calls = append(r.calls, batch)
	var fail error
	if len(r.failures) > 0 {
		fail = r.failures[0]
		r.failures = r.failures[1:]
	}
	r.mu.Unlock()

	if fail != nil {
		return fail
	}
	n := int64(len(batch))
	return stream.SendAndClose(&ingest.StoreResponse{RecordsReceived: n, RecordsStored: n})
}

// FailNext makes the next len(errs) streams end with the given errors, in order.
func (r *Recorder) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, errs...)
}

// Calls returns a copy of every stream received so far, failed ones included.
func (r *Recorder) Calls() [][]ingest.StoreRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]ingest.StoreRequest, len(r.calls))
	for i, c := range r.calls {
		out[i] = append([]ingest.StoreRequest(nil), c...)
	}
	return out
}

// CallSizes returns the number of records in each received stream.
func (r *Recorder) CallSizes() []int {
	calls := r.Calls()
	sizes := make([]int, len(calls))
	for i, c := range calls {
		sizes[i] = len(c)
	}
	return sizes
}

// Records flattens every received record in arrival order.
func (r *Recorder) Records() []ingest.WireRecord {
	var out []ingest.WireRecord
	for _, c := range r.Calls() {
		for _, req := range c {
			out = append(out, req.Record)
		}
	}
	return out
}

// Start serves a Recorder over an in-memory listener and returns it with a
// connected client. Both are torn down when the test ends.
func Start(t testing.TB, cfg grpcstorage.Config) (*Recorder, *grpcstorage.Client) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer(grpcstorage.ServerCodec())
	rec := &Recorder{}
	grpcstorage.RegisterStorageServer(srv, rec)
	go func() {
		_ = srv.Serve(lis)
	}()

	cfg.Target = "passthrough:///bufnet"
	client, err := grpcstorage.Dial(cfg, zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial storage: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
	})
	return rec, client
}
