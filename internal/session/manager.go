package session

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/google/uuid"
)

// NilUUID stands in for the user id when persistent identity is disabled.
var NilUUID = uuid.Nil.String()

// Session is a bounded period of activity sharing one sampling decision.
type Session struct {
	SessionID string
	// Record is decided once at creation and never re-evaluated.
	Record     bool
	EventCount int
	Page       *page.Page
}

func (s *Session) clone() *Session {
	cp := *s
	if s.Page != nil {
		p := *s.Page
		cp.Page = &p
	}
	return &cp
}

// Config holds the session and identity settings.
type Config struct {
	AllowCookies        bool
	SampleRate          float64
	SessionLength       time.Duration
	UserIDRetentionDays int
	CookieDomain        string
}

// RecordFunc receives the session-start event of a newly created session.
type RecordFunc func(s *Session, eventType string, details any)

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithCookieJar sets the persistence backend. Without one, cookies are
// treated as unsupported.
func WithCookieJar(jar CookieJar) Option {
	return func(m *Manager) { m.jar = jar }
}

// WithSampler replaces the random source used for the sampling draw.
func WithSampler(sample func() float64) Option {
	return func(m *Manager) { m.sample = sample }
}

// WithEventBus publishes session lifecycle topics on bus.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithEnvironment sets the host description used for attributes.
func WithEnvironment(env Environment) Option {
	return func(m *Manager) { m.env = env }
}

// Manager owns the user identity and the current session.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	env    Environment
	clock  clock.Clock
	jar    CookieJar
	bus    *eventbus.Bus
	pages  *page.Tracker
	record RecordFunc
	sample func() float64

	session    *Session
	expiresAt  time.Time
	lastID     string
	userID     string
	attributes map[string]any
}

// NewManager creates a session manager. record receives the session-start
// event of every new session.
func NewManager(cfg Config, pages *page.Tracker, record RecordFunc, opts ...Option) *Manager {
	if pages == nil {
		panic("session: page tracker must not be nil")
	}
	m := &Manager{
		cfg:    cfg,
		clock:  clock.Real,
		pages:  pages,
		record: record,
		sample: rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.SessionLength <= 0 {
		m.cfg.SessionLength = 30 * time.Minute
	}

	m.mu.Lock()
	m.initUserIDLocked(m.clock.Now())
	m.mu.Unlock()
	return m
}

// GetSession returns the current session, restoring it from its cookie or
// creating a new one when none is valid at the current time.
func (m *Manager) GetSession() *Session {
	m.mu.Lock()
	tr := m.ensureSessionLocked()
	s := m.session.clone()
	m.mu.Unlock()

	m.announce(tr, s)
	return s
}

// Peek returns the current session without creating one. It returns nil when
// there is no unexpired session in memory.
func (m *Manager) Peek() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.clock.Now().After(m.expiresAt) {
		return nil
	}
	return m.session.clone()
}

// LastSessionID returns the id of the current session, or of the most recent
// one when it has expired. It is empty before the first session exists.
func (m *Manager) LastSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID
}

// IncrementSessionEventCount counts one event against the session and slides
// its expiry forward by the session length. It returns the updated session.
func (m *Manager) IncrementSessionEventCount() *Session {
	m.mu.Lock()
	tr := m.ensureSessionLocked()
	m.session.EventCount++
	m.expiresAt = m.clock.Now().Add(m.cfg.SessionLength)
	m.storeSessionLocked()
	s := m.session.clone()
	m.mu.Unlock()

	m.announce(tr, s)
	return s
}

// ExpiresAt reports when the current session expires.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// IsSampled reports whether the current session records events.
func (m *Manager) IsSampled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.Record
}

// UserID returns the user identity, NilUUID when retention is disabled.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Attributes returns a copy of the attributes classified for the session.
func (m *Manager) Attributes() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	attrs := make(map[string]any, len(m.attributes))
	for k, v := range m.attributes {
		attrs[k] = v
	}
	return attrs
}

// SetAllowCookies toggles cookie persistence at runtime. Enabling writes the
// current identity and session out immediately.
func (m *Manager) SetAllowCookies(allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.AllowCookies = allow
	if !allow {
		return
	}
	m.initUserIDLocked(m.clock.Now())
	if m.session != nil {
		m.storeSessionLocked()
	}
}

type transition struct {
	created   bool
	expiredID string
}

func (m *Manager) ensureSessionLocked() transition {
	var t transition
	now := m.clock.Now()

	if m.session == nil && m.cookiesEnabled() {
		m.restoreLocked(now)
	}
	if m.session != nil && now.After(m.expiresAt) {
		t.expiredID = m.session.SessionID
		m.session = nil
	}
	if m.session == nil {
		m.createLocked(now)
		t.created = true
	}
	return t
}

func (m *Manager) restoreLocked(now time.Time) {
	value, ok := m.jar.Get(SessionCookieName)
	if !ok {
		return
	}

	s, expiresAt, err := decodeSession(value)
	if err != nil {
		slog.Debug("[Session] Discarding unreadable session cookie", "error", err)
		m.jar.Set(m.expiredCookie(SessionCookieName, now))
		return
	}
	if now.After(expiresAt) {
		return
	}

	m.session = s
	m.lastID = s.SessionID
	m.expiresAt = expiresAt
	m.attributes = collectAttributes(m.env)
	m.pages.ResumeSession(s.Page)
	slog.Debug("[Session] Restored session from cookie",
		"session_id", s.SessionID,
		"event_count", s.EventCount)
}

func (m *Manager) createLocked(now time.Time) {
	m.session = &Session{
		SessionID: uuid.NewString(),
		Record:    m.sample() < m.cfg.SampleRate,
		// The session-start event counts toward the session's event limit.
		EventCount: 1,
		Page:       m.pages.Page(),
	}
	m.lastID = m.session.SessionID
	m.expiresAt = now.Add(m.cfg.SessionLength)
	m.attributes = collectAttributes(m.env)
	m.initUserIDLocked(now)
	m.storeSessionLocked()

	slog.Debug("[Session] Created session",
		"session_id", m.session.SessionID,
		"record", m.session.Record,
		"expires_at", m.expiresAt)
}

func (m *Manager) announce(t transition, s *Session) {
	if t.expiredID != "" && m.bus != nil {
		m.bus.Dispatch(eventbus.TopicSessionExpired, t.expiredID)
	}
	if !t.created {
		return
	}
	if m.record != nil {
		m.record(s, v1.SessionStartEventType, map[string]any{"version": "1.0.0"})
	}
	if m.bus != nil {
		m.bus.Dispatch(eventbus.TopicSessionStart, s)
	}
}

func (m *Manager) initUserIDLocked(now time.Time) {
	if m.cfg.UserIDRetentionDays <= 0 {
		m.userID = NilUUID
		return
	}

	if m.userID == "" || m.userID == NilUUID {
		m.userID = ""
		if m.cookiesEnabled() {
			if value, ok := m.jar.Get(UserCookieName); ok {
				if _, err := uuid.Parse(value); err == nil {
					m.userID = value
				}
			}
		}
		if m.userID == "" {
			m.userID = uuid.NewString()
		}
	}

	if m.cookiesEnabled() {
		ttl := time.Duration(m.cfg.UserIDRetentionDays) * 24 * time.Hour
		m.jar.Set(m.cookie(UserCookieName, m.userID, now.Add(ttl)))
	}
}

func (m *Manager) storeSessionLocked() {
	if m.session == nil {
		return
	}
	if p := m.pages.Page(); p != nil {
		m.session.Page = p
	}
	if !m.cookiesEnabled() {
		return
	}

	value, err := encodeSession(m.session, m.expiresAt)
	if err != nil {
		slog.Warn("[Session] Failed to persist session", "error", err)
		return
	}
	m.jar.Set(m.cookie(SessionCookieName, value, m.expiresAt))
}

func (m *Manager) cookiesEnabled() bool {
	return m.cfg.AllowCookies && m.jar != nil
}

func (m *Manager) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		Expires:  expires,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (m *Manager) expiredCookie(name string, now time.Time) *http.Cookie {
	return m.cookie(name, "", now.Add(-time.Second))
}
