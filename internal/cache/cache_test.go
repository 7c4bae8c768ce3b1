package cache

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/aevon-lab/aevon-rum/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customEventType = "aevon.rum.custom_event"

func newTestCache(t *testing.T, mutate func(*Config), opts ...Option) (*Cache, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC))
	cfg := Config{
		Application:    v1.AppMonitorDetails{ID: "app-1", Version: "1.0.0"},
		EventCacheSize: 100,
		Session: session.Config{
			AllowCookies:        true,
			SampleRate:          1,
			SessionLength:       30 * time.Minute,
			UserIDRetentionDays: 30,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithClock(clk), WithSessionOptions(session.WithCookieJar(session.NewMemoryJar(clk)))}, opts...)
	return New(cfg, opts...), clk
}

func typesOf(events []v1.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestCache_RecordEventAppendsWithSessionStart(t *testing.T) {
	c, clk := newTestCache(t, nil)

	c.RecordEvent(customEventType, map[string]any{"button": "buy"})

	events := c.Events()
	require.Equal(t, []string{v1.SessionStartEventType, customEventType}, typesOf(events))

	evt := events[1]
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, clk.Now(), evt.Timestamp)
	assert.JSONEq(t, `{"button":"buy"}`, evt.Details)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(evt.Metadata), &meta))
	assert.Equal(t, c.Session().SessionID, meta["sessionId"])
	assert.Equal(t, c.Sessions().UserID(), meta["userId"])
	assert.Equal(t, "1.0.0", meta["version"])
	assert.Equal(t, "web", meta["platformType"])
}

func TestCache_EventLimitEnforcement(t *testing.T) {
	const limit = 5
	c, _ := newTestCache(t, func(cfg *Config) { cfg.SessionEventLimit = limit })

	for i := 0; i < limit+3; i++ {
		c.RecordEvent(customEventType, map[string]any{"i": i})
	}

	require.Equal(t, limit, c.Len(), "pending events for the session must not exceed the limit")
	s := c.Session()
	assert.Equal(t, limit+4, s.EventCount, "dropped events still count toward the session")
	assert.Equal(t, int64(4), c.Stats().DroppedLimit)
}

func TestCache_UnlimitedWhenLimitIsZero(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) { cfg.SessionEventLimit = 0 })
	for i := 0; i < 50; i++ {
		c.RecordEvent(customEventType, nil)
	}
	assert.Equal(t, 51, c.Len())
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	const size = 4
	c, _ := newTestCache(t, func(cfg *Config) { cfg.EventCacheSize = size })

	for i := 0; i < size+1; i++ {
		c.RecordEvent(customEventType, map[string]any{"i": i})
	}

	events := c.Events()
	require.Len(t, events, size)
	// session start and event 0 have been evicted; events 1..4 remain in order.
	for i, evt := range events {
		assert.JSONEq(t, `{"i":`+string(rune('1'+i))+`}`, evt.Details)
	}
	assert.Equal(t, int64(2), c.Stats().Evicted)
}

func TestCache_UnsampledSessionDropsEverything(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) { cfg.Session.SampleRate = 0 })

	for i := 0; i < 25; i++ {
		c.RecordEvent(customEventType, nil)
		c.RecordPageView(page.Input{PageID: "/p" + string(rune('a'+i))})
	}

	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Sessions().IsSampled())
	assert.Positive(t, c.Stats().DroppedUnsampled)
}

func TestCache_DisabledIsNoOp(t *testing.T) {
	c, _ := newTestCache(t, nil)
	c.Disable()
	require.False(t, c.IsEnabled())

	c.RecordEvent(customEventType, nil)
	c.RecordPageView(page.Input{PageID: "/home"})
	c.RecordCandidate("k", 1)

	assert.Equal(t, 0, c.Len())
	_, ok := c.Candidate("k")
	assert.False(t, ok)
	assert.Nil(t, c.Pages().Page())

	c.Enable()
	c.RecordEvent(customEventType, nil)
	assert.Equal(t, 2, c.Len())
}

func TestCache_RecordPageView(t *testing.T) {
	c, _ := newTestCache(t, nil)

	c.RecordPageView(page.Input{PageID: "/home"})
	c.RecordPageView(page.Input{PageID: "/home"})
	c.RecordPageView(page.Input{PageID: "/cart"})

	events := c.Events()
	require.Equal(t, []string{v1.SessionStartEventType, v1.PageViewEventType, v1.PageViewEventType}, typesOf(events))

	var details page.ViewDetails
	require.NoError(t, json.Unmarshal([]byte(events[2].Details), &details))
	assert.Equal(t, "/cart", details.PageID)
	assert.Equal(t, "/home", details.ParentPageID)
	assert.Equal(t, 1, details.Interaction)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[2].Metadata), &meta))
	assert.Equal(t, "/cart", meta["pageId"])
}

func TestCache_CandidatesDoNotCountTowardLimit(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) { cfg.SessionEventLimit = 2 })
	for i := 0; i < 10; i++ {
		c.RecordCandidate("resource", i)
	}
	v, ok := c.Candidate("resource")
	require.True(t, ok)
	assert.Equal(t, 9, v)

	c.RecordEvent(customEventType, nil)
	assert.Equal(t, 2, c.Len())
}

func TestCache_PrepareBatchRunsFlushHookFirst(t *testing.T) {
	c, _ := newTestCache(t, nil)
	c.SetPluginFlushHook(func() {
		c.RecordEvent("aevon.rum.replay_event", map[string]any{"chunk": 1})
	})

	batch := c.PrepareBatch(100)
	require.Equal(t, []string{v1.SessionStartEventType, "aevon.rum.replay_event"}, typesOf(batch))
	assert.Equal(t, 2, c.Len(), "prepare must not remove events")
}

func TestCache_PrepareBatchHonoursMax(t *testing.T) {
	c, _ := newTestCache(t, nil)
	for i := 0; i < 9; i++ {
		c.RecordEvent(customEventType, nil)
	}
	assert.Len(t, c.PrepareBatch(4), 4)
	assert.Len(t, c.PrepareBatch(0), 10)
}

func TestCache_RemoveKeepsEventsRecordedMidFlight(t *testing.T) {
	c, _ := newTestCache(t, nil)
	c.RecordEvent(customEventType, map[string]any{"n": 1})
	batch := c.PrepareBatch(100)

	c.RecordEvent(customEventType, map[string]any{"n": 2})
	c.Remove(batch)

	remaining := c.Events()
	require.Len(t, remaining, 1)
	assert.JSONEq(t, `{"n":2}`, remaining[0].Details)
}

func TestCache_UnserializableDetailsAreDropped(t *testing.T) {
	c, _ := newTestCache(t, nil)
	require.NotPanics(t, func() {
		c.RecordEvent(customEventType, map[string]any{"bad": math.Inf(1)})
	})
	assert.Equal(t, []string{v1.SessionStartEventType}, typesOf(c.Events()))
}

func TestCache_RawJSONDetailsAreKeptVerbatim(t *testing.T) {
	c, _ := newTestCache(t, nil)
	c.RecordEvent(customEventType, json.RawMessage(`{"already":"encoded"}`))
	events := c.Events()
	assert.Equal(t, `{"already":"encoded"}`, events[len(events)-1].Details)
}

func TestCache_AddSessionAttributes(t *testing.T) {
	c, _ := newTestCache(t, nil)

	require.NoError(t, c.AddSessionAttributes(map[string]any{"tier": "gold", "beta": true}))
	require.ErrorIs(t, c.AddSessionAttributes(map[string]any{"sessionId": "x"}), ErrInvalidAttribute)
	require.ErrorIs(t, c.AddSessionAttributes(map[string]any{"nested": map[string]any{}}), ErrInvalidAttribute)
	require.ErrorIs(t, c.AddSessionAttributes(map[string]any{"": "x"}), ErrInvalidAttribute)

	c.RecordEvent(customEventType, nil)
	events := c.Events()
	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Metadata), &meta))
	assert.Equal(t, "gold", meta["tier"])
	assert.Equal(t, true, meta["beta"])
}

func TestCache_PublishesRecordedEvents(t *testing.T) {
	bus := eventbus.New()
	var seen []string
	bus.Subscribe(eventbus.TopicEventRecorded, func(p any) { seen = append(seen, p.(v1.Event).Type) })

	c, _ := newTestCache(t, nil, WithEventBus(bus))
	c.RecordEvent(customEventType, nil)

	assert.Equal(t, []string{v1.SessionStartEventType, customEventType}, seen)
}

func TestCache_UserDetails(t *testing.T) {
	c, _ := newTestCache(t, nil)
	before := c.UserDetails()
	assert.Equal(t, session.NilUUID, before.SessionID)

	c.RecordEvent(customEventType, nil)
	after := c.UserDetails()
	assert.Equal(t, c.Session().SessionID, after.SessionID)
	assert.Equal(t, c.Sessions().UserID(), after.UserID)
	assert.Equal(t, "app-1", c.AppMonitorDetails().ID)
}

func TestCache_UserDetailsKeepsExpiredSessionID(t *testing.T) {
	c, clk := newTestCache(t, nil)
	c.RecordEvent(customEventType, nil)
	recordedUnder := c.Session().SessionID

	clk.Advance(31 * time.Minute)
	require.Nil(t, c.Session(), "session has expired")

	details := c.UserDetails()
	assert.Equal(t, recordedUnder, details.SessionID)
	assert.Nil(t, c.Session(), "building user details must not create a session")
}
