package page

import (
	"fmt"
	"sync"
	"time"

	"github.com/aevon-lab/aevon-rum/internal/clock"
)

// Page is the interaction context events are attributed to.
type Page struct {
	PageID       string `json:"pageId"`
	ParentPageID string `json:"parentPageId,omitempty"`
	Interaction  int    `json:"interaction"`
	// StartMillis is the epoch-milliseconds time the page view began.
	StartMillis int64 `json:"start"`
}

// Input describes a page view requested by the host or a plugin.
type Input struct {
	PageID         string         `json:"pageId"`
	PageTags       []string       `json:"pageTags,omitempty"`
	PageAttributes map[string]any `json:"pageAttributes,omitempty"`
}

// ViewDetails is the details payload of a page view event.
type ViewDetails struct {
	Version           string `json:"version"`
	PageID            string `json:"pageId"`
	ParentPageID      string `json:"parentPageId,omitempty"`
	Interaction       int    `json:"interaction"`
	PageInteractionID string `json:"pageInteractionId"`
	TimeOnParentPage  int64  `json:"timeOnParentPage,omitempty"`
}

// Tracker owns the current page and its interaction counter.
type Tracker struct {
	mu         sync.Mutex
	clock      clock.Clock
	current    *Page
	tags       []string
	attributes map[string]any
}

// NewTracker creates a tracker with no current page.
func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real
	}
	return &Tracker{clock: clk}
}

// Page returns a copy of the current page, or nil before the first view.
func (t *Tracker) Page() *Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	p := *t.current
	return &p
}

// ResumeSession continues the interaction sequence of a session restored
// from persisted state.
func (t *Tracker) ResumeSession(p *Page) {
	if p == nil || p.PageID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	resumed := *p
	t.current = &resumed
}

// Visit moves to the page described by in. It returns false when in names the
// page that is already current, in which case no page view is produced.
func (t *Tracker) Visit(in Input) (ViewDetails, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if in.PageID == "" {
		return ViewDetails{}, false
	}
	if t.current != nil && t.current.PageID == in.PageID {
		return ViewDetails{}, false
	}

	now := t.clock.Now()
	next := &Page{
		PageID:      in.PageID,
		StartMillis: now.UnixMilli(),
	}
	details := ViewDetails{Version: "1.0.0", PageID: in.PageID}

	if prev := t.current; prev != nil {
		next.ParentPageID = prev.PageID
		next.Interaction = prev.Interaction + 1
		details.ParentPageID = prev.PageID
		if prev.StartMillis > 0 {
			details.TimeOnParentPage = now.Sub(time.UnixMilli(prev.StartMillis)).Milliseconds()
		}
	}
	details.Interaction = next.Interaction
	details.PageInteractionID = fmt.Sprintf("%s-%d", next.PageID, next.Interaction)

	t.current = next
	t.tags = append([]string(nil), in.PageTags...)
	t.attributes = make(map[string]any, len(in.PageAttributes))
	for k, v := range in.PageAttributes {
		t.attributes[k] = v
	}
	return details, true
}

// Attributes returns page-scoped metadata merged into every event.
func (t *Tracker) Attributes() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	attrs := make(map[string]any, len(t.attributes)+4)
	for k, v := range t.attributes {
		attrs[k] = v
	}
	if t.current == nil {
		return attrs
	}
	attrs["pageId"] = t.current.PageID
	attrs["interaction"] = t.current.Interaction
	if t.current.ParentPageID != "" {
		attrs["parentPageId"] = t.current.ParentPageID
	}
	if len(t.tags) > 0 {
		attrs["pageTags"] = append([]string(nil), t.tags...)
	}
	return attrs
}
