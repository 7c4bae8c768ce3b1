package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/eventstore"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/aevon-lab/aevon-rum/internal/session"
	"github.com/google/uuid"
)

const (
	// DefaultEventCacheSize bounds the pending events when no size is configured.
	DefaultEventCacheSize = 1000

	metadataVersion = "1.0.0"
)

// ErrInvalidAttribute is returned for custom session attributes that are
// empty, reserved, or not a string, number or boolean.
var ErrInvalidAttribute = errors.New("invalid session attribute")

var reservedAttributes = map[string]struct{}{
	"version":   {},
	"userId":    {},
	"sessionId": {},
	"pageId":    {},
}

// Config holds the cache and session settings.
type Config struct {
	Application       v1.AppMonitorDetails
	EventCacheSize    int
	SessionEventLimit int
	CandidateCapacity int
	Session           session.Config
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	clock       clock.Clock
	bus         *eventbus.Bus
	sessionOpts []session.Option
}

// WithClock replaces the wall clock for the cache and its session manager.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithEventBus publishes recorded events and session lifecycle on bus.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithSessionOptions forwards options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// Stats counts what happened to record calls.
type Stats struct {
	Recorded         int64
	DroppedUnsampled int64
	DroppedLimit     int64
	Evicted          int64
}

// Cache is the single gateway events pass through before dispatch. It owns
// the pending events and decides whether the current session records.
type Cache struct {
	cfg        Config
	clock      clock.Clock
	bus        *eventbus.Bus
	pages      *page.Tracker
	sessions   *session.Manager
	candidates *eventstore.Store[string, any]

	enabled atomic.Bool

	mu                sync.Mutex
	events            []v1.Event
	flushHook         func()
	sessionAttributes map[string]any

	recorded         atomic.Int64
	droppedUnsampled atomic.Int64
	droppedLimit     atomic.Int64
	evicted          atomic.Int64
}

// New creates an enabled cache together with its page tracker and session manager.
func New(cfg Config, opts ...Option) *Cache {
	o := options{clock: clock.Real}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.EventCacheSize <= 0 {
		cfg.EventCacheSize = DefaultEventCacheSize
	}

	c := &Cache{
		cfg:               cfg,
		clock:             o.clock,
		bus:               o.bus,
		pages:             page.NewTracker(o.clock),
		candidates:        eventstore.New[string, any](cfg.CandidateCapacity),
		sessionAttributes: make(map[string]any),
	}

	sessionOpts := []session.Option{session.WithClock(o.clock)}
	if o.bus != nil {
		sessionOpts = append(sessionOpts, session.WithEventBus(o.bus))
	}
	sessionOpts = append(sessionOpts, o.sessionOpts...)
	c.sessions = session.NewManager(cfg.Session, c.pages, c.recordSessionStart, sessionOpts...)

	c.enabled.Store(true)
	return c
}

// Enable resumes recording.
func (c *Cache) Enable() { c.enabled.Store(true) }

// Disable stops recording. Record calls become silent no-ops.
func (c *Cache) Disable() { c.enabled.Store(false) }

// IsEnabled reports whether record calls are accepted.
func (c *Cache) IsEnabled() bool { return c.enabled.Load() }

// Sessions exposes the session manager.
func (c *Cache) Sessions() *session.Manager { return c.sessions }

// Pages exposes the page tracker.
func (c *Cache) Pages() *page.Tracker { return c.pages }

// Session returns the current session without creating one.
func (c *Cache) Session() *session.Session { return c.sessions.Peek() }

// RecordEvent records one event for the current session. Events are dropped
// silently when the cache is disabled, the session is not sampled, or the
// session has reached its event limit.
func (c *Cache) RecordEvent(eventType string, data any) {
	if !c.IsEnabled() {
		return
	}

	c.sessions.GetSession()
	s := c.sessions.IncrementSessionEventCount()
	if !c.canRecord(s) {
		return
	}
	c.append(s, eventType, data)
}

// RecordPageView moves to the described page and records a page view when
// the page actually changed.
func (c *Cache) RecordPageView(in page.Input) {
	if !c.IsEnabled() {
		return
	}
	details, changed := c.pages.Visit(in)
	if !changed {
		return
	}
	c.RecordEvent(v1.PageViewEventType, details)
}

// RecordCandidate stores data under key for later correlation. Candidates do
// not count toward the session event limit.
func (c *Cache) RecordCandidate(key string, data any) {
	if !c.IsEnabled() {
		return
	}
	c.candidates.Put(key, data)
}

// Candidate returns the data stored under key by RecordCandidate.
func (c *Cache) Candidate(key string) (any, bool) {
	return c.candidates.Get(key)
}

// SetPluginFlushHook registers fn to run immediately before every dispatch
// snapshot, letting buffering plugins push their data into the cache first.
func (c *Cache) SetPluginFlushHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushHook = fn
}

// AddSessionAttributes merges custom attributes into the metadata of every
// subsequently recorded event.
func (c *Cache) AddSessionAttributes(attrs map[string]any) error {
	for k, v := range attrs {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidAttribute)
		}
		if _, reserved := reservedAttributes[k]; reserved {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidAttribute, k)
		}
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("%w: %q has unsupported type %T", ErrInvalidAttribute, k, v)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range attrs {
		c.sessionAttributes[k] = v
	}
	return nil
}

// PrepareBatch runs the plugin flush hook and returns a copy of up to max of
// the oldest pending events. The events stay cached until Remove is called.
func (c *Cache) PrepareBatch(max int) []v1.Event {
	c.mu.Lock()
	hook := c.flushHook
	c.mu.Unlock()

	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.events)
	if max > 0 && n > max {
		n = max
	}
	batch := make([]v1.Event, n)
	copy(batch, c.events[:n])
	return batch
}

// Remove drops exactly the given events from the pending set. Events
// recorded since the batch was prepared are kept.
func (c *Cache) Remove(sent []v1.Event) {
	if len(sent) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(sent))
	for _, evt := range sent {
		ids[evt.ID] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.events[:0]
	for _, evt := range c.events {
		if _, done := ids[evt.ID]; !done {
			kept = append(kept, evt)
		}
	}
	clear(c.events[len(kept):])
	c.events = kept
}

// Events returns a copy of all pending events, oldest first.
func (c *Cache) Events() []v1.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]v1.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Len returns the number of pending events.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// HasEvents reports whether anything is waiting for dispatch.
func (c *Cache) HasEvents() bool {
	return c.Len() > 0
}

// AppMonitorDetails identifies the application in dispatch requests.
func (c *Cache) AppMonitorDetails() v1.AppMonitorDetails {
	return c.cfg.Application
}

// UserDetails identifies the user and session in dispatch requests. Events
// still pending after their session expired are sent under that session's id.
func (c *Cache) UserDetails() v1.UserDetails {
	details := v1.UserDetails{UserID: c.sessions.UserID(), SessionID: session.NilUUID}
	if id := c.sessions.LastSessionID(); id != "" {
		details.SessionID = id
	}
	return details
}

// Stats returns the record counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Recorded:         c.recorded.Load(),
		DroppedUnsampled: c.droppedUnsampled.Load(),
		DroppedLimit:     c.droppedLimit.Load(),
		Evicted:          c.evicted.Load(),
	}
}

func (c *Cache) recordSessionStart(s *session.Session, eventType string, details any) {
	if !c.IsEnabled() || !c.canRecord(s) {
		return
	}
	c.append(s, eventType, details)
}

func (c *Cache) canRecord(s *session.Session) bool {
	if !s.Record {
		c.droppedUnsampled.Add(1)
		return false
	}
	if limit := c.cfg.SessionEventLimit; limit > 0 && s.EventCount > limit {
		c.droppedLimit.Add(1)
		return false
	}
	return true
}

func (c *Cache) append(s *session.Session, eventType string, data any) {
	details, err := marshalDetails(data)
	if err != nil {
		slog.Warn("[EventCache] Dropping event with unserializable details", "event_type", eventType, "error", err)
		return
	}
	metadata, err := c.metadata(s)
	if err != nil {
		slog.Warn("[EventCache] Dropping event with unserializable metadata", "event_type", eventType, "error", err)
		return
	}

	evt := v1.Event{
		ID:        uuid.NewString(),
		Timestamp: c.clock.Now(),
		Type:      eventType,
		Metadata:  metadata,
		Details:   details,
	}

	c.mu.Lock()
	if len(c.events) >= c.cfg.EventCacheSize {
		dropped := c.events[0]
		c.events = append(c.events[:0], c.events[1:]...)
		c.evicted.Add(1)
		slog.Debug("[EventCache] Cache full, evicted oldest event", "event_id", dropped.ID, "event_type", dropped.Type)
	}
	c.events = append(c.events, evt)
	c.mu.Unlock()

	c.recorded.Add(1)
	if c.bus != nil {
		c.bus.Dispatch(eventbus.TopicEventRecorded, evt)
	}
}

func (c *Cache) metadata(s *session.Session) (string, error) {
	meta := c.sessions.Attributes()

	c.mu.Lock()
	for k, v := range c.sessionAttributes {
		meta[k] = v
	}
	c.mu.Unlock()

	for k, v := range c.pages.Attributes() {
		meta[k] = v
	}
	meta["version"] = metadataVersion
	meta["sessionId"] = s.SessionID
	meta["userId"] = c.sessions.UserID()

	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func marshalDetails(data any) (string, error) {
	switch d := data.(type) {
	case nil:
		return "{}", nil
	case json.RawMessage:
		if !json.Valid(d) {
			return "", fmt.Errorf("details are not valid JSON")
		}
		return string(d), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
