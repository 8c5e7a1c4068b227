package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smaller-world/happytown.life/internal/migrations"
	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Database is the SQLite-backed store for webhook events and the
// group/user/message graph.
type Database struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies the
// schema.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.LoadSchema()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// RecordWebhookEvent appends an event to the idempotent log. The unique
// (event, provider_event_id) constraint resolves concurrent deliveries of
// the same event: exactly one insert wins and every other delivery observes
// OutcomeAlreadyRecorded. Recording has no side effects beyond the log row.
func (d *Database) RecordWebhookEvent(ctx context.Context, event, providerEventID string, timestamp time.Time, payload []byte) (models.RecordOutcome, error) {
	query := `
		INSERT OR IGNORE INTO webhook_events (id, event, provider_event_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := d.db.ExecContext(ctx, query, uuid.NewString(), event, providerEventID, timestamp.UTC(), string(payload))
	if err != nil {
		return models.OutcomeAlreadyRecorded, fmt.Errorf("failed to record webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.OutcomeAlreadyRecorded, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return models.OutcomeAlreadyRecorded, nil
	}
	return models.OutcomeStored, nil
}

// GetWebhookEvent fetches one log entry by its unique key.
func (d *Database) GetWebhookEvent(ctx context.Context, event, providerEventID string) (*models.WebhookEvent, error) {
	query := `
		SELECT id, event, provider_event_id, timestamp, payload, created_at
		FROM webhook_events
		WHERE event = ? AND provider_event_id = ?
	`

	var we models.WebhookEvent
	var payload string
	err := d.db.QueryRowContext(ctx, query, event, providerEventID).Scan(
		&we.ID, &we.Event, &we.ProviderEventID, &we.Timestamp, &payload, &we.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	we.Payload = []byte(payload)
	return &we, nil
}

// CountWebhookEvents returns the current size of the event log.
func (d *Database) CountWebhookEvents(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count webhook events: %w", err)
	}
	return count, nil
}

// TruncateWebhookEvents deletes everything older than the most recent keep
// entries by timestamp, returning the number of rows removed.
func (d *Database) TruncateWebhookEvents(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := d.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE id NOT IN (
			SELECT id FROM webhook_events
			ORDER BY timestamp DESC, created_at DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate webhook events: %w", err)
	}
	return res.RowsAffected()
}
