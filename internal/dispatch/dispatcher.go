package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// BatchLimit is the maximum number of events sent in one request.
	BatchLimit = 100

	DefaultInterval = 5 * time.Second

	finalFlushTimeout = 10 * time.Second
)

// EventSource is the pending-event side of the cache.
type EventSource interface {
	PrepareBatch(max int) []v1.Event
	Remove(sent []v1.Event)
	AppMonitorDetails() v1.AppMonitorDetails
	UserDetails() v1.UserDetails
}

// Sender delivers one request.
type Sender interface {
	Send(ctx context.Context, req *v1.PutRumEventsRequest) error
}

// Fetcher is a retrying sender that can also make a single attempt.
type Fetcher interface {
	Sender
	SendOnce(ctx context.Context, req *v1.PutRumEventsRequest) error
}

// Config configures a Dispatcher.
type Config struct {
	// Interval between timer dispatches. Zero or negative disables the timer;
	// Start then only performs the final flush.
	Interval  time.Duration
	UseBeacon bool
	// BatchLimit caps events per request. Defaults to BatchLimit.
	BatchLimit int
	Signer     *Signer
}

// Dispatcher moves batches from the cache to the collector. Sends never
// overlap: every transport runs under one in-flight lock, and concurrent
// Dispatch calls coalesce into a single send.
type Dispatcher struct {
	source EventSource
	fetch  Fetcher
	beacon Sender
	signer *Signer
	cfg    Config

	enabled  atomic.Bool
	inflight sync.Mutex
	group    singleflight.Group
}

// NewDispatcher creates an enabled dispatcher. beacon may be nil, in which
// case the final flush uses a single fetch attempt.
func NewDispatcher(source EventSource, fetch Fetcher, beacon Sender, cfg Config) *Dispatcher {
	if source == nil {
		panic("dispatch: event source must not be nil")
	}
	if fetch == nil {
		panic("dispatch: fetch sender must not be nil")
	}
	if cfg.BatchLimit <= 0 || cfg.BatchLimit > BatchLimit {
		cfg.BatchLimit = BatchLimit
	}
	d := &Dispatcher{
		source: source,
		fetch:  fetch,
		beacon: beacon,
		signer: cfg.Signer,
		cfg:    cfg,
	}
	d.enabled.Store(true)
	return d
}

// Enable resumes dispatching.
func (d *Dispatcher) Enable() { d.enabled.Store(true) }

// Disable stops all dispatching. Events stay cached.
func (d *Dispatcher) Disable() { d.enabled.Store(false) }

// IsEnabled reports whether sends are allowed.
func (d *Dispatcher) IsEnabled() bool { return d.enabled.Load() }

// SetCredentialsProvider replaces the credentials used to sign requests.
func (d *Dispatcher) SetCredentialsProvider(provider aws.CredentialsProvider) {
	if d.signer == nil {
		slog.Warn("[Dispatch] Ignoring credentials, request signing is disabled")
		return
	}
	d.signer.SetCredentialsProvider(provider)
}

// Start dispatches on every tick until ctx is cancelled, then performs a
// final flush.
func (d *Dispatcher) Start(ctx context.Context) error {
	var tick <-chan time.Time
	if d.cfg.Interval > 0 {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	slog.Info("[Dispatch] Starting dispatch loop",
		"interval", d.cfg.Interval,
		"use_beacon", d.cfg.UseBeacon,
		"batch_limit", d.cfg.BatchLimit,
	)

	for {
		select {
		case <-tick:
			// Failures are logged by send; the batch stays cached for the next tick.
			_ = d.Dispatch(ctx)
		case <-ctx.Done():
			slog.Info("[Dispatch] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()

			d.PageHidden(shutdownCtx)
			slog.Info("[Dispatch] Final flush complete")
			return nil
		}
	}
}

// Dispatch sends one batch with the retrying transport. Calls made while a
// dispatch is already running share its result.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}
	_, err, _ := d.group.Do("dispatch", func() (any, error) {
		return nil, d.send(ctx, "fetch", d.fetch.Send)
	})
	return err
}

// DispatchBeacon sends one batch with the best-effort transport.
func (d *Dispatcher) DispatchBeacon(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}
	return d.send(ctx, "beacon", d.beaconSend())
}

// PageHidden performs the final flush when the host goes away. It uses the
// beacon when configured, otherwise a single fetch attempt. Errors are logged.
func (d *Dispatcher) PageHidden(ctx context.Context) {
	if !d.IsEnabled() {
		return
	}
	transport, send := "fetch_once", d.fetch.SendOnce
	if d.cfg.UseBeacon {
		transport, send = "beacon", d.beaconSend()
	}
	_ = d.send(ctx, transport, send)
}

func (d *Dispatcher) beaconSend() func(context.Context, *v1.PutRumEventsRequest) error {
	if d.beacon == nil {
		return d.fetch.SendOnce
	}
	return d.beacon.Send
}

func (d *Dispatcher) send(ctx context.Context, transport string, fn func(context.Context, *v1.PutRumEventsRequest) error) error {
	d.inflight.Lock()
	defer d.inflight.Unlock()

	events := d.source.PrepareBatch(d.cfg.BatchLimit)
	if len(events) == 0 {
		return nil
	}

	req := &v1.PutRumEventsRequest{Batch: v1.Batch{
		BatchID:           uuid.NewString(),
		AppMonitorDetails: d.source.AppMonitorDetails(),
		UserDetails:       d.source.UserDetails(),
		RumEvents:         events,
	}}

	start := time.Now()
	if err := fn(ctx, req); err != nil {
		slog.Error("[Dispatch] Failed to deliver batch",
			"batch_id", req.Batch.BatchID,
			"transport", transport,
			"event_count", len(events),
			"error", err)
		return fmt.Errorf("failed to dispatch batch %s: %w", req.Batch.BatchID, err)
	}

	d.source.Remove(events)
	slog.Debug("[Dispatch] Batch delivered",
		"batch_id", req.Batch.BatchID,
		"transport", transport,
		"event_count", len(events),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
