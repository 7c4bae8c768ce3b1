package v1

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the pipeline itself. Plugin-produced types follow
// the same "aevon.rum.<name>_event" namespace.
const (
	SessionStartEventType = "aevon.rum.session_start_event"
	PageViewEventType     = "aevon.rum.page_view_event"
	ErrorEventType        = "aevon.rum.js_error_event"
)

// Event is one captured observation on its way to the collector.
// Metadata and Details are serialized JSON documents; the pipeline never
// interprets their contents after capture.
type Event struct {
	// ID is unique within a dispatch batch.
	ID string `json:"id"`

	// Timestamp is the capture time, not the send time. On the wire it is
	// encoded as integer epoch seconds.
	Timestamp time.Time `json:"-"`

	// Type is the namespaced event type, e.g. "aevon.rum.page_view_event".
	Type string `json:"type"`

	Metadata string `json:"metadata,omitempty"`
	Details  string `json:"details"`
}

type eventWire struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Metadata  string `json:"metadata,omitempty"`
	Details   string `json:"details"`
}

// MarshalJSON encodes the timestamp as epoch seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{
		ID:        e.ID,
		Timestamp: e.Timestamp.Unix(),
		Type:      e.Type,
		Metadata:  e.Metadata,
		Details:   e.Details,
	})
}

// UnmarshalJSON decodes the epoch-seconds timestamp.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Type = w.Type
	e.Metadata = w.Metadata
	e.Details = w.Details
	e.Timestamp = time.Unix(w.Timestamp, 0).UTC()
	return nil
}

// Validate ensures the event carries the attributes every collector requires.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Timestamp.IsZero() || e.Timestamp.Unix() <= 0 {
		return fmt.Errorf("timestamp is required")
	}
	if e.Details == "" {
		return fmt.Errorf("details is required")
	}
	return nil
}

// AppMonitorDetails identifies the instrumented application.
type AppMonitorDetails struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// UserDetails correlates a batch to a user and a session.
type UserDetails struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Batch is the unit of delivery. BatchID is stable across retries of the
// same logical send so the collector can de-duplicate.
type Batch struct {
	BatchID           string            `json:"batchId"`
	AppMonitorDetails AppMonitorDetails `json:"application"`
	UserDetails       UserDetails       `json:"user"`
	RumEvents         []Event           `json:"events"`
}

// PutRumEventsRequest is the request body sent by both transports.
type PutRumEventsRequest struct {
	Batch Batch `json:"batch"`
}

// Validate checks the batch envelope and every contained event.
func (b *Batch) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("batchId is required")
	}
	if b.AppMonitorDetails.ID == "" {
		return fmt.Errorf("application.id is required")
	}
	if b.UserDetails.SessionID == "" {
		return fmt.Errorf("user.sessionId is required")
	}
	if len(b.RumEvents) == 0 {
		return fmt.Errorf("events must not be empty")
	}

	seen := make(map[string]struct{}, len(b.RumEvents))
	for i := range b.RumEvents {
		evt := &b.RumEvents[i]
		if err := evt.Validate(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		if _, dup := seen[evt.ID]; dup {
			return fmt.Errorf("events[%d]: duplicate id %q", i, evt.ID)
		}
		seen[evt.ID] = struct{}{}
	}
	return nil
}
