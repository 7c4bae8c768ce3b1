package postgres

import (
	"database/sql"
	"fmt"

	"github.com/aevon-lab/aevon-rum/internal/core/storage"
)

// nullableText maps an empty metadata document to SQL NULL.
func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEventRow scans one rum_events row. Works for sql.Row and sql.Rows.
func scanEventRow(row scanner) (storage.StoredEvent, error) {
	var (
		evt      storage.StoredEvent
		metadata sql.NullString
	)

	err := row.Scan(
		&evt.Seq,
		&evt.AppID,
		&evt.BatchID,
		&evt.SessionID,
		&evt.UserID,
		&evt.Event.ID,
		&evt.Event.Type,
		&evt.Event.Timestamp,
		&metadata,
		&evt.Event.Details,
		&evt.ReceivedAt,
	)
	if err != nil {
		return storage.StoredEvent{}, fmt.Errorf("failed to scan event row: %w", err)
	}

	evt.Event.Metadata = metadata.String
	evt.Event.Timestamp = evt.Event.Timestamp.UTC()
	evt.ReceivedAt = evt.ReceivedAt.UTC()
	return evt, nil
}
