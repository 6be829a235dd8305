// Package grpcstorage delivers record chunks to the storage service over a
// client-streaming gRPC call.
package grpcstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
)

// Config controls the storage client.
type Config struct {
	Host string
	Port int
	// Target overrides Host and Port with a full gRPC target string.
	Target string
	// Attempts is the number of tries per chunk; values below 1 mean a single try.
	Attempts   uint
	RetryDelay time.Duration
	// CallTimeout bounds one stream, 0 leaves it to the caller's context.
	CallTimeout time.Duration
}

// Address returns the dial target.
func (c Config) Address() string {
	if c.Target != "" {
		return c.Target
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client streams store requests to the storage service.
type Client struct {
	conn   *grpc.ClientConn
	cfg    Config
	logger *zap.Logger
}

var _ ingest.StorageClient = (*Client)(nil)

// Dial creates a client connection for cfg. The connection is established
// lazily on the first call.
func Dial(cfg Config, logger *zap.Logger, extra ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
		grpc.WithChainStreamInterceptor(
			grpc_zap.StreamClientInterceptor(logger),
			grpc_prometheus.StreamClientInterceptor,
		),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Address(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client for %s: %w", cfg.Address(), err)
	}
	return New(conn, cfg, logger), nil
}

// New wraps an existing connection. The connection must force Codec.
func New(conn *grpc.ClientConn, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Client{conn: conn, cfg: cfg, logger: logger}
}

// StoreStream opens one client stream, sends every request in order, closes
// the send side and returns the single response.
func (c *Client) StoreStream(ctx context.Context, requests []ingest.StoreRequest) (ingest.StoreResponse, error) {
	var resp ingest.StoreResponse
	err := retry.Do(
		func() error {
			r, err := c.storeOnce(ctx, requests)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying store stream", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return ingest.StoreResponse{}, fmt.Errorf("store %d records: %w", len(requests), err)
	}
	return resp, nil
}

func (c *Client) storeOnce(ctx context.Context, requests []ingest.StoreRequest) (ingest.StoreResponse, error) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], storeMethod)
	if err != nil {
		return ingest.StoreResponse{}, fmt.Errorf("open stream: %w", err)
	}
	for i := range requests {
		if err := stream.SendMsg(&requests[i]); err != nil {
			// io.EOF means the server ended the stream; RecvMsg carries the status.
			if errors.Is(err, io.EOF) {
				break
			}
			return ingest.StoreResponse{}, fmt.Errorf("send record %d: %w", i, err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return ingest.StoreResponse{}, fmt.Errorf("close send: %w", err)
	}
	var resp ingest.StoreResponse
	if err := stream.RecvMsg(&resp); err != nil {
		return ingest.StoreResponse{}, fmt.Errorf("receive response: %w", err)
	}
	return resp, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close storage connection: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
