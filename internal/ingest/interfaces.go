package ingest

import (
	"context"
	"time"
)

// Sink accepts scraped items as a session discovers them.
type Sink interface {
	Accept(item RawItem) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(item RawItem) error

// Accept calls f(item).
func (f SinkFunc) Accept(item RawItem) error {
	return f(item)
}

// Scraper runs a scraping session to completion, pushing every result into sink.
type Scraper interface {
	Search(ctx context.Context, cfg SessionConfig, sink Sink) error
}

// Queue is the multi-producer, single-consumer channel between sessions and the consumer.
type Queue interface {
	Enqueue(ctx context.Context, item RawItem) error
	// Dequeue waits up to timeout for an item. A timeout is reported as ok == false
	// with a nil error; errors are reserved for cancellation and shutdown.
	Dequeue(ctx context.Context, timeout time.Duration) (item RawItem, ok bool, err error)
	TaskDone(n int)
	Size() int
}

// StorageClient streams a batch of store requests and returns the server's tally.
type StorageClient interface {
	StoreStream(ctx context.Context, requests []StoreRequest) (StoreResponse, error)
}

// Clock supplies timestamps for run reports.
type Clock interface {
	Now() time.Time
}
