package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres schedule store. The exclusion constraint on appointments is the final
// arbiter of overlaps; the per-calendar advisory lock keeps check-then-insert serialized.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ availability.Store = (*Store)(nil)
	_ booking.Store      = (*Store)(nil)
	_ booking.Tx         = (*tx)(nil)
)

const appointmentColumns = `id::text, business_id, staff_id, service_id, client_id, start_time, end_time, status,
	duration_minutes, price_cents, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.BusinessID, &a.StaffID, &a.ServiceID, &a.ClientID, &a.StartTime, &a.EndTime, &status,
		&a.DurationMinutes, &a.PriceCents, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	a.Status = model.Status(status)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func workingHours(ctx context.Context, q querier, entityID string, day time.Weekday) (model.WorkingHours, bool, error) {
	wh := model.WorkingHours{EntityID: entityID, DayOfWeek: day}
	err := q.QueryRow(ctx, `
		SELECT business_id, start_time::text, end_time::text
		FROM working_hours
		WHERE entity_id = $1 AND day_of_week = $2
	`, entityID, int(day)).Scan(&wh.BusinessID, &wh.StartTime, &wh.EndTime)
	if IsNotFound(err) {
		return model.WorkingHours{}, false, nil
	}
	if err != nil {
		return model.WorkingHours{}, false, err
	}
	return wh, true, nil
}

func activeAppointments(ctx context.Context, q querier, entityID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE entity_id = $1
			AND status IN ('PENDING', 'CONFIRMED')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, entityID, from, to)
	if err != nil {
		return nil, classifyRead(err)
	}
	appts, err := collectAppointments(rows)
	return appts, classifyRead(err)
}

// Row level security or a missing grant surfaces as insufficient_privilege.
func classifyRead(err error) error {
	if err != nil && IsInsufficientPrivilege(err) {
		return &availability.DataUnavailableError{Err: err}
	}
	return err
}

func (s *Store) WorkingHours(ctx context.Context, entityID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return workingHours(ctx, s.pool, entityID, day)
}

func (s *Store) ActiveAppointments(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	return activeAppointments(ctx, s.pool, entityID, from, to)
}

func (s *Store) ListAppointments(ctx context.Context, q booking.ListQuery) ([]model.Appointment, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.BusinessID != "" {
		add("business_id = $%d", q.BusinessID)
	}
	if q.ClientID != "" {
		add("client_id = $%d", q.ClientID)
	}
	if !q.From.IsZero() {
		add("start_time >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("start_time < $%d", q.To)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY start_time, id LIMIT 500`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) WithEntityLock(ctx context.Context, entityID string, fn func(context.Context, booking.Tx) error) error {
	return s.pool.WithTx(ctx, func(pgTx pgx.Tx) error {
		if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "calendar:"+entityID); err != nil {
			return err
		}
		return fn(ctx, &tx{tx: pgTx})
	})
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, booking.Tx) error) error {
	return s.pool.WithTx(ctx, func(pgTx pgx.Tx) error {
		return fn(ctx, &tx{tx: pgTx})
	})
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) WorkingHours(ctx context.Context, entityID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return workingHours(ctx, t.tx, entityID, day)
}

func (t *tx) ActiveAppointments(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	return activeAppointments(ctx, t.tx, entityID, from, to)
}

func (t *tx) Service(ctx context.Context, serviceID string) (model.Service, error) {
	var svc model.Service
	err := t.tx.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1
	`, serviceID).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Active)
	if IsNotFound(err) {
		return model.Service{}, booking.ErrNotFound
	}
	return svc, err
}

func (t *tx) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if IsNotFound(err) {
		return model.Appointment{}, booking.ErrNotFound
	}
	return appt, err
}

func (t *tx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, staff_id, service_id, client_id, start_time, end_time, status, duration_minutes, price_cents, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text, created_at, updated_at
	`, appt.BusinessID, appt.StaffID, appt.ServiceID, appt.ClientID, appt.StartTime, appt.EndTime, string(appt.Status),
		appt.DurationMinutes, appt.PriceCents, appt.Notes).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if IsConflict(err) {
		return booking.ErrOverlap
	}
	return err
}

func (t *tx) UpdateStatus(ctx context.Context, id string, from, to model.Status) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns, id, string(from), string(to)))
	if IsNotFound(err) {
		return model.Appointment{}, booking.ErrStatusChanged
	}
	return appt, err
}

func (t *tx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}
