package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetries        = 2
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRequestTimeout = 5 * time.Second

	maxErrorBody = 1 << 10
)

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("collector responded with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status may resolve on its own: 429 and 5xx.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ParseEndpoint validates a collector endpoint. Only absolute http and https
// URLs are accepted.
func ParseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	return u, nil
}

// appMonitorURL is the ingestion URL for appID under endpoint.
func appMonitorURL(endpoint *url.URL, appID string) string {
	return endpoint.JoinPath("appmonitors", appID).String()
}

// HTTPConfig configures the retrying transport.
type HTTPConfig struct {
	Endpoint       string
	AppID          string
	Retries        int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	Compression    Compression
}

// HTTPSender posts batches to the collector and retries transient failures
// with exponential backoff.
type HTTPSender struct {
	client      *http.Client
	url         string
	signer      *Signer
	retries     int
	baseDelay   time.Duration
	timeout     time.Duration
	compression Compression
}

// NewHTTPSender creates the retrying transport. signer may be nil to send
// unsigned requests.
func NewHTTPSender(cfg HTTPConfig, client *http.Client, signer *Signer) (*HTTPSender, error) {
	endpoint, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.AppID == "" {
		return nil, errors.New("application id is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTPSender{
		client:      client,
		url:         appMonitorURL(endpoint, cfg.AppID),
		signer:      signer,
		retries:     cfg.Retries,
		baseDelay:   cfg.RetryBaseDelay,
		timeout:     cfg.RequestTimeout,
		compression: cfg.Compression,
	}, nil
}

// Send delivers req, retrying network failures, 429 and 5xx responses up to
// the configured number of retries. Every attempt carries the same body and
// therefore the same batch id.
func (s *HTTPSender) Send(ctx context.Context, req *v1.PutRumEventsRequest) error {
	body, encoded, err := s.encode(req)
	if err != nil {
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := s.post(ctx, body, encoded)
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		if attempt <= s.retries {
			slog.Warn("[Dispatch] Send attempt failed, retrying",
				"batch_id", req.Batch.BatchID,
				"attempt", attempt,
				"error", err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("failed to send batch after %d attempt(s): %w", attempt, err)
	}
	return nil
}

// SendOnce delivers req with a single attempt.
func (s *HTTPSender) SendOnce(ctx context.Context, req *v1.PutRumEventsRequest) error {
	body, encoded, err := s.encode(req)
	if err != nil {
		return err
	}
	return s.post(ctx, body, encoded)
}

func (s *HTTPSender) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.baseDelay << 10
	b.MaxElapsedTime = 0
	return b
}

func (s *HTTPSender) encode(req *v1.PutRumEventsRequest) ([]byte, bool, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal batch: %w", err)
	}
	return s.compression.apply(raw)
}

func (s *HTTPSender) post(ctx context.Context, body []byte, gzipped bool) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if s.signer != nil {
		if err := s.signer.Sign(attemptCtx, req, body); err != nil {
			return backoff.Permanent(err)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
