// Package memory is the default in-process BatchStore of the collector.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/core/storage"
)

type batchKey struct {
	appID   string
	batchID string
}

type sessionKey struct {
	appID     string
	sessionID string
}

// Store keeps batches in memory. Contents are lost on restart.
type Store struct {
	mu       sync.RWMutex
	seq      int64
	batches  map[batchKey]struct{}
	sessions map[sessionKey][]storage.StoredEvent
}

var _ storage.BatchStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		batches:  make(map[batchKey]struct{}),
		sessions: make(map[sessionKey][]storage.StoredEvent),
	}
}

func (s *Store) SaveBatch(ctx context.Context, batch *v1.Batch, receivedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bk := batchKey{appID: batch.AppMonitorDetails.ID, batchID: batch.BatchID}
	sk := sessionKey{appID: batch.AppMonitorDetails.ID, sessionID: batch.UserDetails.SessionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[bk]; ok {
		return storage.ErrDuplicate
	}
	s.batches[bk] = struct{}{}

	for _, evt := range batch.RumEvents {
		s.seq++
		s.sessions[sk] = append(s.sessions[sk], storage.StoredEvent{
			Seq:        s.seq,
			AppID:      bk.appID,
			BatchID:    bk.batchID,
			SessionID:  sk.sessionID,
			UserID:     batch.UserDetails.UserID,
			ReceivedAt: receivedAt,
			Event:      evt,
		})
	}

	slog.Debug("[MemoryStore] Saved batch",
		"app_id", bk.appID,
		"batch_id", bk.batchID,
		"event_count", len(batch.RumEvents))
	return nil
}

func (s *Store) ListSessionEvents(ctx context.Context, appID, sessionID string, limit int) ([]storage.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.sessions[sessionKey{appID: appID, sessionID: sessionID}]
	if len(events) > limit {
		events = events[:limit]
	}
	out := make([]storage.StoredEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// BatchCount returns the number of distinct batches stored.
func (s *Store) BatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}
