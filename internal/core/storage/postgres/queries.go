package postgres

// SQL queries for batch storage

const (
	// queryInsertBatch claims (app_id, batch_id). ON CONFLICT DO NOTHING
	// returns no rows (sql.ErrNoRows) for a batch already stored.
	queryInsertBatch = `
		INSERT INTO rum_batches (
			app_id, batch_id, app_version, user_id, session_id,
			event_count, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (app_id, batch_id) DO NOTHING
		RETURNING batch_id
	`

	queryInsertEvent = `
		INSERT INTO rum_events (
			app_id, batch_id, session_id, user_id, event_id, type,
			occurred_at, metadata, details, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// queryListSessionEvents returns one session's events in arrival order.
	queryListSessionEvents = `
		SELECT
			seq, app_id, batch_id, session_id, user_id, event_id, type,
			occurred_at, metadata, details, received_at
		FROM rum_events
		WHERE app_id = $1 AND session_id = $2
		ORDER BY seq ASC
		LIMIT $3
	`

	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'rum_events'
		)
	`
)
