package enrichment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

func TestClient_Get(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("body"))
	}))
	defer server.Close()

	client := NewClient(WithRateLimit(0), WithUserAgent("TestAgent/1.0"))

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Equal(t, "1", resp.Header.Get("X-Test"))
	assert.Equal(t, []byte("body"), resp.Body)
	assert.Equal(t, "TestAgent/1.0", userAgent)
}

func TestClient_DefaultUserAgent(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	_, err := NewClient(WithRateLimit(0)).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent(), userAgent)
	assert.Contains(t, userAgent, "Coverfetch/")
}

func TestClient_StatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := NewClient(WithRateLimit(0)).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestClient_Open(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("streamed"))
	}))
	defer server.Close()

	status, body, err := NewClient(WithRateLimit(0)).Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "streamed", string(data))
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := NewClient(WithRateLimit(0)).Get(context.Background(), addr)
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	_, err := NewClient(WithRateLimit(0), WithTimeout(50*time.Millisecond)).Get(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(10) // 10 requests per second = 100ms interval

	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}

	// Should take at least 200ms (2 intervals after first request)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 180*time.Millisecond)
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := newRateLimiter(0)
	start := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	limiter := newRateLimiter(1) // 1 request per second

	ctx, cancel := context.WithCancel(context.Background())

	// First request should succeed immediately
	require.NoError(t, limiter.Wait(ctx))

	// Cancel context
	cancel()

	// Second request should fail due to cancelled context
	assert.Error(t, limiter.Wait(ctx))
}

func bodyServer(size int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, size))
	}))
}

func TestClient_GetAcceptsBodyAtLimit(t *testing.T) {
	server := bodyServer(MaxResponseSize)
	defer server.Close()

	resp, err := NewClient(WithRateLimit(0)).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, MaxResponseSize)
}

func TestClient_GetRejectsOversizedBody(t *testing.T) {
	server := bodyServer(MaxResponseSize + 1)
	defer server.Close()

	resp, err := NewClient(WithRateLimit(0)).Get(context.Background(), server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, cover.ErrRemoteRejected)
}
