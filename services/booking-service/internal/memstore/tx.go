package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

type tx struct {
	s        *Store
	staged   map[string]model.Appointment
	inserted []string
	expect   map[string]model.Status
	events   []outbox.Event
}

var _ booking.Tx = (*tx)(nil)

func (t *tx) WorkingHours(ctx context.Context, entityID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return t.s.WorkingHours(ctx, entityID, day)
}

func (t *tx) ActiveAppointments(_ context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	if t.s.denyAppointments.Load() {
		return nil, &availability.DataUnavailableError{}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.activeLocked(entityID, from, to, t.staged), nil
}

func (t *tx) Service(_ context.Context, serviceID string) (model.Service, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	svc, ok := t.s.services[serviceID]
	if !ok {
		return model.Service{}, booking.ErrNotFound
	}
	return svc, nil
}

func (t *tx) Appointment(_ context.Context, id string) (model.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, nil
}

func (t *tx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	now := t.s.now()
	appt.ID = uuid.NewString()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.staged[appt.ID] = *appt
	t.inserted = append(t.inserted, appt.ID)
	return nil
}

func (t *tx) UpdateStatus(ctx context.Context, id string, from, to model.Status) (model.Appointment, error) {
	a, err := t.Appointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Status != from {
		return model.Appointment{}, booking.ErrStatusChanged
	}
	if _, staged := t.staged[id]; !staged {
		t.expect[id] = from
	}
	a.Status = to
	a.UpdatedAt = t.s.now()
	t.staged[id] = a
	return a, nil
}

func (t *tx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}
