package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OutboxRecord struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	AvailableAt time.Time
	PublishedAt *time.Time
	Status      string // NEW, PUBLISHED
	DedupeKey   string
}

// OutboxSchema creates the job outbox owned by this service.
const OutboxSchema = `
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		event_type STRING NOT NULL,
		payload_json JSONB NOT NULL,
		status STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED')),
		dedupe_key STRING,
		available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		UNIQUE INDEX outbox_pending_dedupe (dedupe_key) WHERE status = 'NEW',
		INDEX outbox_due (status, available_at)
	)`

func (r *Repository) MigrateOutbox(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, OutboxSchema)
	return err
}

// InsertOutbox stores a job. A pending record with the same dedupe key absorbs the new one.
func (r *Repository) InsertOutbox(ctx context.Context, record OutboxRecord) error {
	var dedupe *string
	if record.DedupeKey != "" {
		dedupe = &record.DedupeKey
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox (id, event_type, payload_json, status, dedupe_key, available_at)
		VALUES ($1, $2, $3, 'NEW', $4, $5)
		ON CONFLICT (dedupe_key) WHERE status = 'NEW' DO NOTHING
	`, record.ID, record.EventType, record.Payload, dedupe, record.AvailableAt)
	return err
}

// ClaimDue locks up to limit due records for the lifetime of tx.
func (r *Repository) ClaimDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, payload_json, created_at, available_at, status, COALESCE(dedupe_key, '')
		FROM outbox WHERE status = 'NEW' AND available_at <= $1
		ORDER BY available_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.AvailableAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}
