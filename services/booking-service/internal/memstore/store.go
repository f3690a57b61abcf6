// Package memstore is an in-process schedule store for tests and single-node development.
// Writers on one calendar are serialized and every commit re-checks overlaps.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

type hoursKey struct {
	entityID string
	day      time.Weekday
}

type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	hours    map[hoursKey]model.WorkingHours
	services map[string]model.Service
	appts    map[string]model.Appointment
	events   []outbox.Record
	nextID   int64
	inbox    map[string]struct{}

	// Held for the whole transaction: one per calendar, plus one shared by status changes.
	lockMu      sync.Mutex
	entityLocks map[string]chan struct{}
	statusLock  chan struct{}
	publishLock chan struct{}

	denyAppointments atomic.Bool
}

func New() *Store {
	return &Store{
		now:         time.Now,
		hours:       map[hoursKey]model.WorkingHours{},
		services:    map[string]model.Service{},
		appts:       map[string]model.Appointment{},
		inbox:       map[string]struct{}{},
		entityLocks: map[string]chan struct{}{},
		statusLock:  make(chan struct{}, 1),
		publishLock: make(chan struct{}, 1),
	}
}

// DenyAppointmentReads makes appointment reads fail the way a caller without privileges would.
func (s *Store) DenyAppointmentReads(deny bool) { s.denyAppointments.Store(deny) }

func (s *Store) PutWorkingHours(wh model.WorkingHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[hoursKey{wh.EntityID, wh.DayOfWeek}] = wh
}

func (s *Store) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutAppointment stores appt as-is, bypassing overlap checks. It is meant for seeding.
func (s *Store) PutAppointment(appt model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	s.appts[appt.ID] = appt
	return appt
}

func (s *Store) WorkingHours(_ context.Context, entityID string, day time.Weekday) (model.WorkingHours, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wh, ok := s.hours[hoursKey{entityID, day}]
	return wh, ok, nil
}

func (s *Store) ActiveAppointments(_ context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	if s.denyAppointments.Load() {
		return nil, &availability.DataUnavailableError{Err: errors.New("permission denied for appointments")}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(entityID, from, to, nil), nil
}

// activeLocked merges committed rows with a transaction's staged rows. Caller holds mu.
func (s *Store) activeLocked(entityID string, from, to time.Time, staged map[string]model.Appointment) []model.Appointment {
	var out []model.Appointment
	seen := map[string]bool{}
	for id, a := range staged {
		seen[id] = true
		if a.EntityID() == entityID && a.Status.IsActive() && a.Overlaps(from, to) {
			out = append(out, a)
		}
	}
	for id, a := range s.appts {
		if seen[id] {
			continue
		}
		if a.EntityID() == entityID && a.Status.IsActive() && a.Overlaps(from, to) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (s *Store) ListAppointments(_ context.Context, q booking.ListQuery) ([]model.Appointment, error) {
	want := map[model.Status]bool{}
	for _, st := range q.Statuses {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.appts {
		switch {
		case q.BusinessID != "" && a.BusinessID != q.BusinessID:
		case q.ClientID != "" && a.ClientID != q.ClientID:
		case !q.From.IsZero() && a.StartTime.Before(q.From):
		case !q.To.IsZero() && !a.StartTime.Before(q.To):
		case len(want) > 0 && !want[a.Status]:
		default:
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

func (s *Store) entityLock(entityID string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.entityLocks[entityID]
	if !ok {
		l = make(chan struct{}, 1)
		s.entityLocks[entityID] = l
	}
	return l
}

func acquire(ctx context.Context, l chan struct{}) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) WithEntityLock(ctx context.Context, entityID string, fn func(context.Context, booking.Tx) error) error {
	l := s.entityLock(entityID)
	if err := acquire(ctx, l); err != nil {
		return err
	}
	defer func() { <-l }()
	return s.run(ctx, fn)
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, booking.Tx) error) error {
	if err := acquire(ctx, s.statusLock); err != nil {
		return err
	}
	defer func() { <-s.statusLock }()
	return s.run(ctx, fn)
}

func (s *Store) run(ctx context.Context, fn func(context.Context, booking.Tx) error) error {
	tx := &tx{s: s, staged: map[string]model.Appointment{}, expect: map[string]model.Status{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit is all-or-nothing: every check runs before anything is applied.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, want := range t.expect {
		if cur, ok := s.appts[id]; !ok || cur.Status != want {
			return booking.ErrStatusChanged
		}
	}
	for _, id := range t.inserted {
		a := t.staged[id]
		for _, other := range s.appts {
			if other.EntityID() == a.EntityID() && other.Status.IsActive() && other.Overlaps(a.StartTime, a.EndTime) {
				return booking.ErrOverlap
			}
		}
	}

	for id, a := range t.staged {
		s.appts[id] = a
	}
	for _, evt := range t.events {
		s.nextID++
		s.events = append(s.events, outbox.Record{ID: s.nextID, Event: evt, CreatedAt: s.now()})
	}
	return nil
}
