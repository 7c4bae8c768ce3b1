package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/google/uuid"
)

const (
	// SessionCookieName holds the base64 JSON encoded session.
	SessionCookieName = "aevon_s"
	// UserCookieName holds the raw user id.
	UserCookieName = "aevon_u"
)

// CookieJar is the persistence surface for identity and session state.
// A nil jar means the host has no cookie support; state is then kept in
// memory for the process lifetime.
type CookieJar interface {
	// Get returns the value of an unexpired cookie.
	Get(name string) (string, bool)
	// Set stores or replaces a cookie. A cookie whose expiry is in the past
	// removes the stored one.
	Set(cookie *http.Cookie)
}

// MemoryJar is an in-process CookieJar that honours cookie expiry.
type MemoryJar struct {
	mu      sync.Mutex
	clock   clock.Clock
	cookies map[string]*http.Cookie
}

// NewMemoryJar creates an empty jar reading expiry against clk.
func NewMemoryJar(clk clock.Clock) *MemoryJar {
	if clk == nil {
		clk = clock.Real
	}
	return &MemoryJar{clock: clk, cookies: make(map[string]*http.Cookie)}
}

// Get implements CookieJar.
func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cookies[name]
	if !ok {
		return "", false
	}
	if !c.Expires.IsZero() && !j.clock.Now().Before(c.Expires) {
		delete(j.cookies, name)
		return "", false
	}
	return c.Value, true
}

// Set implements CookieJar.
func (j *MemoryJar) Set(cookie *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if cookie.MaxAge < 0 || (!cookie.Expires.IsZero() && !j.clock.Now().Before(cookie.Expires)) {
		delete(j.cookies, cookie.Name)
		return
	}
	c := *cookie
	j.cookies[cookie.Name] = &c
}

// Cookie returns a copy of the stored cookie including its attributes.
func (j *MemoryJar) Cookie(name string) *http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cookies[name]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// persistedSessionVersion is bumped whenever persistedSession changes shape.
// Cookies carrying any other version are discarded.
const persistedSessionVersion = 1

var errMalformedSession = errors.New("malformed session cookie")

// persistedSession is the cookie schema.
type persistedSession struct {
	Version       int        `json:"v"`
	SessionID     string     `json:"sessionId"`
	Record        bool       `json:"record"`
	EventCount    int        `json:"eventCount"`
	Page          *page.Page `json:"page,omitempty"`
	ExpiresMillis int64      `json:"expires"`
}

func encodeSession(s *Session, expiresAt time.Time) (string, error) {
	data, err := json.Marshal(persistedSession{
		Version:       persistedSessionVersion,
		SessionID:     s.SessionID,
		Record:        s.Record,
		EventCount:    s.EventCount,
		Page:          s.Page,
		ExpiresMillis: expiresAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeSession(value string) (*Session, time.Time, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", errMalformedSession, err)
	}

	var ps persistedSession
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", errMalformedSession, err)
	}
	if ps.Version != persistedSessionVersion {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported version %d", errMalformedSession, ps.Version)
	}
	if _, err := uuid.Parse(ps.SessionID); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: invalid session id", errMalformedSession)
	}
	if ps.EventCount < 0 || ps.ExpiresMillis <= 0 {
		return nil, time.Time{}, errMalformedSession
	}

	return &Session{
		SessionID:  ps.SessionID,
		Record:     ps.Record,
		EventCount: ps.EventCount,
		Page:       ps.Page,
	}, time.UnixMilli(ps.ExpiresMillis), nil
}
