package booking

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned by InsertAppointment when the store itself rejects an overlapping active range.
	ErrOverlap = errors.New("appointment overlaps an active appointment")
	// ErrStatusChanged is returned by UpdateStatus when the stored status no longer equals from.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// Tx is one transaction's view of the schedule. Reads observe the transaction's own writes.
type Tx interface {
	availability.Store
	Service(ctx context.Context, serviceID string) (model.Service, error)
	// Appointment loads and locks the row for the rest of the transaction.
	Appointment(ctx context.Context, id string) (model.Appointment, error)
	// InsertAppointment assigns ID and timestamps.
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateStatus(ctx context.Context, id string, from, to model.Status) (model.Appointment, error)
	Enqueue(ctx context.Context, evt outbox.Event) error
}

type ListQuery struct {
	BusinessID string
	ClientID   string
	// Zero bounds are open. Rows are matched on StartTime in [From, To).
	From     time.Time
	To       time.Time
	Statuses []model.Status
}

type Store interface {
	// WithEntityLock runs fn in one transaction while holding the write lock for a calendar.
	// Commits when fn returns nil.
	WithEntityLock(ctx context.Context, entityID string, fn func(ctx context.Context, tx Tx) error) error
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ListAppointments orders by StartTime ascending.
	ListAppointments(ctx context.Context, q ListQuery) ([]model.Appointment, error)
}
