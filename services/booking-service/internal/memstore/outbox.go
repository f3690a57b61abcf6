package memstore

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

func (s *Store) PublishPending(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	if err := acquire(ctx, s.publishLock); err != nil {
		return 0, err
	}
	defer func() { <-s.publishLock }()

	s.mu.RLock()
	n := min(limit, len(s.events))
	batch := append([]outbox.Record(nil), s.events[:n]...)
	s.mu.RUnlock()
	if n == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.events = s.events[n:]
	s.mu.Unlock()
	return n, nil
}

// PendingEvents returns events not yet handed to the publisher.
func (s *Store) PendingEvents() []outbox.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Record(nil), s.events...)
}

// ApplyCatalog replaces the entity's weekly hours and upserts services. Redelivered event ids are skipped.
// An entity whose hours belong to another business is refused with model.ErrForeignEntity.
func (s *Store) ApplyCatalog(_ context.Context, eventID string, upd model.CatalogUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.inbox[eventID]; dup {
		return false, nil
	}
	for k, wh := range s.hours {
		if k.entityID == upd.EntityID && wh.BusinessID != upd.BusinessID {
			return false, fmt.Errorf("%w: %s", model.ErrForeignEntity, upd.EntityID)
		}
	}
	s.inbox[eventID] = struct{}{}

	for k := range s.hours {
		if k.entityID == upd.EntityID {
			delete(s.hours, k)
		}
	}
	for _, wh := range upd.WorkingHours {
		wh.EntityID = upd.EntityID
		wh.BusinessID = upd.BusinessID
		s.hours[hoursKey{wh.EntityID, wh.DayOfWeek}] = wh
	}
	for _, svc := range upd.Services {
		// Another business's service id is left untouched.
		if cur, ok := s.services[svc.ID]; ok && cur.BusinessID != upd.BusinessID {
			continue
		}
		svc.BusinessID = upd.BusinessID
		s.services[svc.ID] = svc
	}
	return true, nil
}
