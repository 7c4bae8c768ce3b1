package projection

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionSummaryRequest selects one session and the bucket granularity.
type SessionSummaryRequest struct {
	AppID       string
	SessionID   string
	Granularity string // default: "total"
}

// SummaryBucket counts the events of one window.
type SummaryBucket struct {
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	EventCount  int64            `json:"event_count"`
	ByType      map[string]int64 `json:"by_type"`
}

// SessionSummaryResponse is the rollup of one session's stored events.
type SessionSummaryResponse struct {
	AppID           string          `json:"app_id"`
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id"`
	Granularity     string          `json:"granularity"`
	FirstEventAt    time.Time       `json:"first_event_at"`
	LastEventAt     time.Time       `json:"last_event_at"`
	EventCount      int64           `json:"event_count"`
	PageViews       int64           `json:"page_views"`
	Errors          int64           `json:"errors"`
	Pages           []string        `json:"pages"`
	AvgTimeOnPageMs decimal.Decimal `json:"avg_time_on_page_ms"`
	Truncated       bool            `json:"truncated"`
	Buckets         []SummaryBucket `json:"buckets"`
}
