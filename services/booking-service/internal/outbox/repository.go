package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert must run inside the transaction that performs the state change.
func Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, evt.Traceparent, evt.Tracestate)
	return err
}

// PublishPending locks a batch with SKIP LOCKED so several publishers can run side by side.
// Records are marked published only when publish succeeds.
func (r *Repository) PublishPending(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error) {
	var n int
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
				COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			var rec Record
			err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
				&rec.Payload, &rec.Traceparent, &rec.Tracestate, &rec.CreatedAt)
			return rec, err
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := publish(ctx, records); err != nil {
			return err
		}
		ids := make([]int64, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
			return err
		}
		n = len(records)
		return nil
	})
	return n, err
}
