package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()
	// 10 RPS with burst 1: the first token is immediate, the next one ~100ms later.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_PerHost(t *testing.T) {
	t.Parallel()
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://one.example.com/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://two.example.com/"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, 2, l.Hosts())
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "http://127.0.0.1:8080/x"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit wait")
}

func TestHostOf(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", hostOf("https://example.com:8443/path"))
	require.Equal(t, "unknown", hostOf("::not a url"))
	require.Equal(t, "unknown", hostOf(""))
}
