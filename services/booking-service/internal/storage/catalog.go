package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// ApplyCatalog records the event in the inbox and applies it in the same transaction, so a
// failed apply is retried on redelivery instead of being swallowed as a duplicate.
func (s *Store) ApplyCatalog(ctx context.Context, eventID string, upd model.CatalogUpdate) (bool, error) {
	applied := false
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, 'business.catalog.updated.v1')
			ON CONFLICT (event_id) DO NOTHING
		`, eventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		var foreign bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM working_hours WHERE entity_id = $1 AND business_id <> $2)
		`, upd.EntityID, upd.BusinessID).Scan(&foreign); err != nil {
			return err
		}
		if foreign {
			return fmt.Errorf("%w: %s", model.ErrForeignEntity, upd.EntityID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE entity_id = $1 AND business_id = $2`, upd.EntityID, upd.BusinessID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, wh := range upd.WorkingHours {
			batch.Queue(`
				INSERT INTO working_hours (entity_id, business_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, $4::time, $5::time)
			`, upd.EntityID, upd.BusinessID, int(wh.DayOfWeek), wh.StartTime, wh.EndTime)
		}
		for _, svc := range upd.Services {
			batch.Queue(`
				INSERT INTO services (id, business_id, name, duration_minutes, price_cents, active)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					duration_minutes = EXCLUDED.duration_minutes,
					price_cents = EXCLUDED.price_cents,
					active = EXCLUDED.active,
					updated_at = now()
				WHERE services.business_id = EXCLUDED.business_id
			`, svc.ID, upd.BusinessID, svc.Name, svc.DurationMinutes, svc.PriceCents, svc.Active)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
