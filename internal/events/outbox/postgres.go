package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"printhub/internal/events"
)

// PostgresStore implements Store on an outbox table. The relay polls
// unpublished rows and stamps them once the broker has acknowledged.
//
// Schema:
//
//	CREATE TABLE event_outbox (
//	    id           BIGSERIAL PRIMARY KEY,
//	    order_id     TEXT        NOT NULL,
//	    sequence     BIGINT      NOT NULL,
//	    kind         TEXT        NOT NULL,
//	    payload      JSONB       NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    published_at TIMESTAMPTZ,
//	    UNIQUE (order_id, sequence)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an outbox store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event events.LifecycleEvent) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}

	query := `
		INSERT INTO event_outbox (order_id, sequence, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, sequence) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		event.OrderID,
		event.Sequence,
		string(event.Kind),
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, payload
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		event, err := events.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode outbox payload %d: %w", id, err)
		}
		entries = append(entries, Entry{ID: id, Event: event})
	}
	return entries, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE event_outbox SET published_at = now() WHERE id = ANY($1)`
	_, err := s.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}
