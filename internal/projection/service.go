package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/core/storage"
	"github.com/shopspring/decimal"
)

// maxSummaryEvents bounds how many stored events one summary reads.
const maxSummaryEvents = 10000

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid summary query")
	// ErrSessionNotFound is returned when no events were stored for the session.
	ErrSessionNotFound = errors.New("session not found")

	bucketSizes = map[string]time.Duration{
		"total": 0,
		"1m":    time.Minute,
		"1h":    time.Hour,
	}
)

// Service implements the read side of the collector: rollups over the
// stored events of a session.
type Service struct {
	store storage.BatchStore
}

func NewService(store storage.BatchStore) *Service {
	if store == nil {
		panic("projection: store must not be nil")
	}
	return &Service{store: store}
}

// pageViewDetails is the subset of page view details the summary reads.
type pageViewDetails struct {
	PageID           string `json:"pageId"`
	TimeOnParentPage int64  `json:"timeOnParentPage"`
}

// SummarizeSession rolls the stored events of one session up into totals
// and buckets of the requested granularity.
func (s *Service) SummarizeSession(ctx context.Context, req SessionSummaryRequest) (*SessionSummaryResponse, error) {
	if req.Granularity == "" {
		req.Granularity = "total"
	}
	bucketSize, ok := bucketSizes[req.Granularity]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported granularity %q", ErrInvalidQuery, req.Granularity)
	}

	events, err := s.store.ListSessionEvents(ctx, req.AppID, req.SessionID, maxSummaryEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrSessionNotFound
	}

	resp := &SessionSummaryResponse{
		AppID:           req.AppID,
		SessionID:       req.SessionID,
		UserID:          events[0].UserID,
		Granularity:     req.Granularity,
		FirstEventAt:    events[0].Event.Timestamp,
		LastEventAt:     events[0].Event.Timestamp,
		Pages:           []string{},
		AvgTimeOnPageMs: decimal.Zero,
		Truncated:       len(events) >= maxSummaryEvents,
	}

	seenPages := make(map[string]struct{})
	timeOnPage := decimal.Zero
	timedViews := int64(0)

	for _, stored := range events {
		evt := stored.Event
		resp.EventCount++
		if evt.Timestamp.Before(resp.FirstEventAt) {
			resp.FirstEventAt = evt.Timestamp
		}
		if evt.Timestamp.After(resp.LastEventAt) {
			resp.LastEventAt = evt.Timestamp
		}

		switch evt.Type {
		case v1.ErrorEventType:
			resp.Errors++
		case v1.PageViewEventType:
			resp.PageViews++
			var details pageViewDetails
			if err := json.Unmarshal([]byte(evt.Details), &details); err != nil {
				slog.Debug("[Projection] Skipping unreadable page view details", "event_id", evt.ID, "error", err)
				continue
			}
			if _, seen := seenPages[details.PageID]; !seen && details.PageID != "" {
				seenPages[details.PageID] = struct{}{}
				resp.Pages = append(resp.Pages, details.PageID)
			}
			if details.TimeOnParentPage > 0 {
				timeOnPage = timeOnPage.Add(decimal.NewFromInt(details.TimeOnParentPage))
				timedViews++
			}
		}
	}

	if timedViews > 0 {
		resp.AvgTimeOnPageMs = timeOnPage.Div(decimal.NewFromInt(timedViews)).Round(2)
	}
	resp.Buckets = rollup(events, bucketSize, resp.FirstEventAt, resp.LastEventAt)
	return resp, nil
}

// rollup counts events per window. A zero size yields one bucket spanning
// [first, last].
func rollup(events []storage.StoredEvent, size time.Duration, first, last time.Time) []SummaryBucket {
	if size <= 0 {
		b := SummaryBucket{WindowStart: first, WindowEnd: last, ByType: map[string]int64{}}
		for _, e := range events {
			b.EventCount++
			b.ByType[e.Event.Type]++
		}
		return []SummaryBucket{b}
	}

	byStart := make(map[time.Time]*SummaryBucket)
	for _, e := range events {
		start := e.Event.Timestamp.Truncate(size)
		b, ok := byStart[start]
		if !ok {
			b = &SummaryBucket{WindowStart: start, WindowEnd: start.Add(size), ByType: map[string]int64{}}
			byStart[start] = b
		}
		b.EventCount++
		b.ByType[e.Event.Type]++
	}

	buckets := make([]SummaryBucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WindowStart.Before(buckets[j].WindowStart)
	})
	return buckets
}
