package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

func testRequest(n int) *v1.PutRumEventsRequest {
	events := make([]v1.Event, n)
	for i := range events {
		events[i] = v1.Event{
			ID:        "evt-" + string(rune('a'+i%26)) + strings.Repeat("x", i/26),
			Timestamp: epoch.Add(time.Duration(i) * time.Second),
			Type:      "aevon.rum.custom_event",
			Metadata:  `{"version":"1.0.0"}`,
			Details:   `{"i":` + strings.Repeat("1", 1+i%3) + `}`,
		}
	}
	return &v1.PutRumEventsRequest{Batch: v1.Batch{
		BatchID:           "batch-1",
		AppMonitorDetails: v1.AppMonitorDetails{ID: "app-1", Version: "1.0.0"},
		UserDetails:       v1.UserDetails{UserID: "user-1", SessionID: "session-1"},
		RumEvents:         events,
	}}
}

// statusSequence answers with codes in order, then 200 forever.
type statusSequence struct {
	mu       sync.Mutex
	codes    []int
	attempts atomic.Int32
	batchIDs []string
}

func (s *statusSequence) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.attempts.Add(1)

	var req v1.PutRumEventsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.batchIDs = append(s.batchIDs, req.Batch.BatchID)
	code := http.StatusOK
	if len(s.codes) > 0 {
		code, s.codes = s.codes[0], s.codes[1:]
	}
	s.mu.Unlock()

	w.WriteHeader(code)
}

func newTestSender(t *testing.T, url string, retries int, mutate func(*HTTPConfig)) *HTTPSender {
	t.Helper()
	cfg := HTTPConfig{
		Endpoint:       url,
		AppID:          "app-1",
		Retries:        retries,
		RetryBaseDelay: time.Millisecond,
		RequestTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewHTTPSender(cfg, nil, nil)
	require.NoError(t, err)
	return s
}

func TestHTTPSender_RetryBoundary(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		codes        []int
		wantAttempts int32
		wantErr      bool
	}{
		{name: "R failures then success", retries: 3, codes: []int{500, 500, 500}, wantAttempts: 4},
		{name: "too many failures", retries: 2, codes: []int{500, 502, 503, 504}, wantAttempts: 3, wantErr: true},
		{name: "429 is retried", retries: 1, codes: []int{429}, wantAttempts: 2},
		{name: "404 fails immediately", retries: 3, codes: []int{404}, wantAttempts: 1, wantErr: true},
		{name: "400 fails immediately", retries: 3, codes: []int{400}, wantAttempts: 1, wantErr: true},
		{name: "no retries configured", retries: 0, codes: []int{500}, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &statusSequence{codes: tt.codes}
			srv := httptest.NewServer(handler)
			defer srv.Close()

			err := newTestSender(t, srv.URL, tt.retries, nil).Send(context.Background(), testRequest(2))

			assert.Equal(t, tt.wantAttempts, handler.attempts.Load())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, id := range handler.batchIDs {
				assert.Equal(t, "batch-1", id, "retries must reuse the batch id")
			}
		})
	}
}

func TestHTTPSender_BackoffDoublesFromBaseDelay(t *testing.T) {
	const base = 50 * time.Millisecond

	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := newTestSender(t, srv.URL, 3, func(cfg *HTTPConfig) { cfg.RetryBaseDelay = base })
	require.Error(t, sender.Send(context.Background(), testRequest(1)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, arrivals, 4)

	// No jitter: each wait is base * 2^n, plus scheduling slack.
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		want := base << (i - 1)
		assert.GreaterOrEqual(t, gap, want, "gap %d", i)
		assert.Less(t, gap, want+want/2+20*time.Millisecond, "gap %d", i)
	}
}

func TestHTTPSender_PermanentFailureIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown application", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestSender(t, srv.URL, 3, nil).Send(context.Background(), testRequest(1))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.False(t, statusErr.Retryable())
	assert.Contains(t, statusErr.Body, "unknown application")
}

func TestHTTPSender_TimeoutIsRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSender(t, srv.URL, 1, func(cfg *HTTPConfig) { cfg.RequestTimeout = 50 * time.Millisecond })
	require.NoError(t, s.Send(context.Background(), testRequest(1)))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestHTTPSender_CancelledContextStopsRetrying(t *testing.T) {
	handler := &statusSequence{codes: []int{500, 500, 500, 500, 500}}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSender(t, srv.URL, 4, nil)
	require.Error(t, s.Send(ctx, testRequest(1)))
	assert.LessOrEqual(t, handler.attempts.Load(), int32(1))
}

func TestHTTPSender_WireFormat(t *testing.T) {
	var (
		gotPath        string
		gotContentType string
		gotBody        v1.PutRumEventsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := testRequest(3)
	require.NoError(t, newTestSender(t, srv.URL+"/collector", 0, nil).Send(context.Background(), req))

	assert.Equal(t, "/collector/appmonitors/app-1", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	if diff := cmp.Diff(*req, gotBody); diff != "" {
		t.Errorf("wire payload mismatch (-sent +received):\n%s", diff)
	}
}

func TestHTTPSender_CompressionThreshold(t *testing.T) {
	type received struct {
		encoding string
		body     []byte
	}
	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.encoding = r.Header.Get("Content-Encoding")
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	compressed := func(cfg *HTTPConfig) {
		cfg.Compression = Compression{Enabled: true, ThresholdBytes: 512}
	}

	t.Run("small body is sent as is", func(t *testing.T) {
		require.NoError(t, newTestSender(t, srv.URL, 0, compressed).Send(context.Background(), testRequest(1)))
		assert.Empty(t, got.encoding)
		assert.True(t, json.Valid(got.body))
	})

	t.Run("large body is gzipped", func(t *testing.T) {
		req := testRequest(40)
		require.NoError(t, newTestSender(t, srv.URL, 0, compressed).Send(context.Background(), req))
		require.Equal(t, "gzip", got.encoding)

		zr, err := gzip.NewReader(bytes.NewReader(got.body))
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)

		var decoded v1.PutRumEventsRequest
		require.NoError(t, json.Unmarshal(plain, &decoded))
		assert.Len(t, decoded.Batch.RumEvents, 40)
	})

	t.Run("disabled never compresses", func(t *testing.T) {
		require.NoError(t, newTestSender(t, srv.URL, 0, nil).Send(context.Background(), testRequest(40)))
		assert.Empty(t, got.encoding)
	})
}

func TestHTTPSender_SignsRequests(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signer := NewSigner("us-east-1", StaticCredentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}.Provider(), nil)
	s, err := NewHTTPSender(HTTPConfig{Endpoint: srv.URL, AppID: "app-1"}, nil, signer)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), testRequest(1)))

	auth := got.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 "), auth)
	assert.Contains(t, auth, "Credential=AKIDEXAMPLE/")
	assert.Contains(t, auth, "/us-east-1/rum/aws4_request")
	assert.NotEmpty(t, got.Get("X-Amz-Date"))
	assert.Len(t, got.Get(contentSHA256Header), 64)
}

func TestHTTPSender_SigningWithoutCredentialsIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer srv.Close()

	s, err := NewHTTPSender(HTTPConfig{Endpoint: srv.URL, AppID: "app-1", Retries: 3, RetryBaseDelay: time.Millisecond}, nil, NewSigner("us-east-1", nil, nil))
	require.NoError(t, err)

	err = s.Send(context.Background(), testRequest(1))
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Zero(t, attempts.Load())
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "https://dataplane.rum.us-east-1.amazonaws.com"},
		{raw: "http://localhost:8080/base"},
		{raw: "", wantErr: true},
		{raw: "localhost:8080", wantErr: true},
		{raw: "ftp://example.com", wantErr: true},
		{raw: "https://", wantErr: true},
		{raw: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseEndpoint(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHTTPSender_RejectsMalformedEndpoint(t *testing.T) {
	_, err := NewHTTPSender(HTTPConfig{Endpoint: "not a url", AppID: "app-1"}, nil, nil)
	require.Error(t, err)

	_, err = NewHTTPSender(HTTPConfig{Endpoint: "https://example.com"}, nil, nil)
	require.Error(t, err)
}
