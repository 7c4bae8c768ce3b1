package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
)

// ErrDuplicate is returned when a batch with the same (app_id, batch_id) was already stored.
var ErrDuplicate = errors.New("batch already exists")

// DefaultListLimit caps ListSessionEvents when the caller passes no limit.
const DefaultListLimit = 1000

// StoredEvent is one event as persisted by the collector, with the
// envelope fields of the batch it arrived in.
type StoredEvent struct {
	Seq        int64     `json:"seq"`
	AppID      string    `json:"appId"`
	BatchID    string    `json:"batchId"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	ReceivedAt time.Time `json:"receivedAt"`
	Event      v1.Event  `json:"event"`
}

// BatchStore persists delivered batches.
type BatchStore interface {
	// SaveBatch stores every event of batch atomically. A batch id already
	// stored for the same application returns ErrDuplicate and stores nothing.
	SaveBatch(ctx context.Context, batch *v1.Batch, receivedAt time.Time) error

	// ListSessionEvents returns the stored events of one session in arrival order.
	ListSessionEvents(ctx context.Context, appID, sessionID string, limit int) ([]StoredEvent, error)

	Ping(ctx context.Context) error
}
