package hfapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vler0ux/modetrend/pkg/types"
)

// testRetryConfig keeps attempt bounds small and deterministic
func testRetryConfig() types.RetryConfig {
	return types.RetryConfig{
		MaxAttempts:          3,
		DelaySeconds:         5,
		WarmupBufferSeconds:  2,
		MaxWarmupWaitSeconds: 120,
	}
}

// newTestClient builds a client against a test server and records every
// sleep instead of actually waiting
func newTestClient(serverURL string, retry types.RetryConfig) (*Client, *[]time.Duration) {
	c := NewClientWithConfig(serverURL, "test-token", retry, 5*time.Second, nil)
	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func TestSegmentSuccessFirstAttempt(t *testing.T) {
	payload := []byte("fake-jpeg-bytes")
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization header = %q, want %q", got, "Bearer test-token")
		}
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("Content-Type = %q, want octet-stream", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(payload) {
			t.Errorf("request body = %q, want %q", body, payload)
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"label":"shirt","score":0.97}]`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	result, err := c.Segment(context.Background(), payload)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 HTTP call, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", *sleeps)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(result.Segments))
	}
	if result.Segments[0].Label != "shirt" {
		t.Errorf("label = %q, want shirt", result.Segments[0].Label)
	}
	if result.Segments[0].Score != 0.97 {
		t.Errorf("score = %v, want 0.97", result.Segments[0].Score)
	}
	if string(result.Raw) != `[{"label":"shirt","score":0.97}]` {
		t.Errorf("raw body not preserved: %s", result.Raw)
	}
}

func TestSegmentWarmupThenSuccess(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"estimated_time": 3}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"label":"dress","score":0.88}]`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	result, err := c.Segment(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}

	if calls != 2 {
		t.Errorf("expected 2 HTTP calls, got %d", calls)
	}
	// Reported 3s plus the 2s buffer
	if len(*sleeps) != 1 || (*sleeps)[0] != 5*time.Second {
		t.Errorf("expected one 5s sleep, got %v", *sleeps)
	}
	if len(result.Segments) != 1 || result.Segments[0].Label != "dress" {
		t.Errorf("unexpected result: %+v", result.Segments)
	}
}

func TestSegmentWarmupFallbackDelay(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`model loading`)) // not JSON
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	if _, err := c.Segment(context.Background(), []byte("img")); err != nil {
		t.Fatalf("Segment() error: %v", err)
	}

	// Configured 5s delay plus the 2s buffer
	if len(*sleeps) != 1 || (*sleeps)[0] != 7*time.Second {
		t.Errorf("expected one 7s sleep, got %v", *sleeps)
	}
}

func TestSegmentWarmupWaitClamped(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"estimated_time": 99999}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	retry := testRetryConfig()
	retry.MaxWarmupWaitSeconds = 10
	c, sleeps := newTestClient(server.URL, retry)

	if _, err := c.Segment(context.Background(), []byte("img")); err != nil {
		t.Fatalf("Segment() error: %v", err)
	}

	// Ceiling of 10s plus the 2s buffer, regardless of the server's claim
	if len(*sleeps) != 1 || (*sleeps)[0] != 12*time.Second {
		t.Errorf("expected one 12s sleep, got %v", *sleeps)
	}
}

func TestSegmentRateLimitedThenSuccess(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"label":"hat","score":0.5}]`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	result, err := c.Segment(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}

	if calls != 2 {
		t.Errorf("expected 2 HTTP calls, got %d", calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 5*time.Second {
		t.Errorf("expected one 5s sleep, got %v", *sleeps)
	}
	if len(result.Segments) != 1 {
		t.Errorf("unexpected result: %+v", result.Segments)
	}
}

func TestSegmentAuthErrorNotRetried(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	_, err := c.Segment(context.Background(), []byte("img"))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}

	if calls != 1 {
		t.Errorf("expected exactly 1 HTTP call, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", *sleeps)
	}
}

func TestSegmentRetriesExhausted(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`upstream exploded`))
	}))
	defer server.Close()

	c, sleeps := newTestClient(server.URL, testRetryConfig())

	_, err := c.Segment(context.Background(), []byte("img"))
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetriesExhaustedError, got %v", err)
	}

	if calls != 3 {
		t.Errorf("expected exactly 3 HTTP calls, got %d", calls)
	}
	if len(*sleeps) != 2 {
		t.Errorf("expected 2 sleeps between attempts, got %v", *sleeps)
	}
	for i, d := range *sleeps {
		if d != 5*time.Second {
			t.Errorf("sleep %d = %v, want 5s", i, d)
		}
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if exhausted.LastStatus != http.StatusInternalServerError {
		t.Errorf("LastStatus = %d, want 500", exhausted.LastStatus)
	}
	if exhausted.LastBody != "upstream exploded" {
		t.Errorf("LastBody = %q", exhausted.LastBody)
	}
}

func TestSegmentConnectivityErrorReturnedVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close() // all attempts now fail to connect

	retry := testRetryConfig()
	retry.MaxAttempts = 2
	c, sleeps := newTestClient(serverURL, retry)

	_, err := c.Segment(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected an error")
	}

	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("connectivity errors should be returned verbatim, got %v", err)
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		t.Errorf("connectivity error misclassified as auth error")
	}
	if len(*sleeps) != 1 {
		t.Errorf("expected 1 sleep between attempts, got %v", *sleeps)
	}
}

func TestSegmentTimeoutEscalates(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	retry := testRetryConfig()
	retry.MaxAttempts = 2
	c := NewClientWithConfig(server.URL, "test-token", retry, 50*time.Millisecond, nil)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err := c.Segment(context.Background(), []byte("img"))
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetriesExhaustedError, got %v", err)
	}
	if exhausted.Err == nil {
		t.Error("expected the timeout cause to be carried")
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}
	if len(sleeps) != 1 {
		t.Errorf("expected 1 sleep between attempts, got %v", sleeps)
	}
}

func TestSegmentContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClientWithConfig(server.URL, "test-token", testRetryConfig(), 5*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Segment(ctx, []byte("img"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	c := NewClientWithConfig("", "tok", types.RetryConfig{}, 0, nil)

	if c.endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want default", c.endpoint)
	}
	if c.retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", c.retry.MaxAttempts)
	}
	if c.retry.DelaySeconds != 5 {
		t.Errorf("DelaySeconds = %d, want 5", c.retry.DelaySeconds)
	}
	if c.httpClient.Timeout != DefaultRequestTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultRequestTimeout)
	}
}
