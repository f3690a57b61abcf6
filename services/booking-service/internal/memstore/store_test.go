package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func appt(entity string, startHour, endHour int, st model.Status) model.Appointment {
	return model.Appointment{
		BusinessID: entity,
		StartTime:  day.Add(time.Duration(startHour) * time.Hour),
		EndTime:    day.Add(time.Duration(endHour) * time.Hour),
		Status:     st,
	}
}

func TestActiveAppointmentsOverlapWindow(t *testing.T) {
	s := New()
	s.PutAppointment(appt("biz", 9, 10, model.StatusPending))
	s.PutAppointment(appt("biz", 10, 11, model.StatusCancelled))
	s.PutAppointment(appt("biz", -1, 1, model.StatusConfirmed))
	s.PutAppointment(appt("biz", 24, 25, model.StatusConfirmed))
	s.PutAppointment(appt("other", 9, 10, model.StatusPending))

	got, err := s.ActiveAppointments(context.Background(), "biz", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ActiveAppointments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active appointments, got %d", len(got))
	}
	if !got[0].StartTime.Before(got[1].StartTime) {
		t.Fatal("expected ascending order")
	}

	s.DenyAppointmentReads(true)
	if _, err := s.ActiveAppointments(context.Background(), "biz", day, day.Add(24*time.Hour)); !availability.IsDataUnavailable(err) {
		t.Fatalf("expected DataUnavailableError, got %v", err)
	}
}

func TestCommitRejectsOverlap(t *testing.T) {
	s := New()
	s.PutAppointment(appt("biz", 9, 10, model.StatusPending))

	err := s.WithEntityLock(context.Background(), "biz", func(ctx context.Context, tx booking.Tx) error {
		a := appt("biz", 9, 10, model.StatusPending)
		return tx.InsertAppointment(ctx, &a)
	})
	if !errors.Is(err, booking.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}

	err = s.WithEntityLock(context.Background(), "biz", func(ctx context.Context, tx booking.Tx) error {
		a := appt("biz", 10, 11, model.StatusPending)
		return tx.InsertAppointment(ctx, &a)
	})
	if err != nil {
		t.Fatalf("adjacent insert should commit: %v", err)
	}
}

func TestRollbackOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.WithEntityLock(context.Background(), "biz", func(ctx context.Context, tx booking.Tx) error {
		a := appt("biz", 9, 10, model.StatusPending)
		if err := tx.InsertAppointment(ctx, &a); err != nil {
			return err
		}
		staged, err := tx.ActiveAppointments(ctx, "biz", day, day.Add(24*time.Hour))
		if err != nil || len(staged) != 1 {
			t.Fatalf("transaction should see its own insert, got %v (%v)", staged, err)
		}
		if err := tx.Enqueue(ctx, outbox.Event{EventType: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got, _ := s.ActiveAppointments(context.Background(), "biz", day, day.Add(24*time.Hour)); len(got) != 0 {
		t.Fatalf("rolled back insert is visible: %v", got)
	}
	if len(s.PendingEvents()) != 0 {
		t.Fatal("rolled back event is visible")
	}
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	s := New()
	a := s.PutAppointment(appt("biz", 9, 10, model.StatusPending))

	err := s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		_, err := tx.UpdateStatus(ctx, a.ID, model.StatusConfirmed, model.StatusCompleted)
		return err
	})
	if !errors.Is(err, booking.ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}

	err = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		_, err := tx.UpdateStatus(ctx, a.ID, model.StatusPending, model.StatusConfirmed)
		return err
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	list, _ := s.ListAppointments(context.Background(), booking.ListQuery{BusinessID: "biz", Statuses: []model.Status{model.StatusConfirmed}})
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("unexpected list %v", list)
	}
}

func TestPublishPending(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		_ = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
			return tx.Enqueue(ctx, outbox.Event{EventType: "booking.appointment.requested.v1"})
		})
	}

	failed := errors.New("kafka down")
	if _, err := s.PublishPending(context.Background(), 10, func(context.Context, []outbox.Record) error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(s.PendingEvents()) != 3 {
		t.Fatal("failed publish must keep events")
	}

	n, err := s.PublishPending(context.Background(), 2, func(_ context.Context, recs []outbox.Record) error {
		if recs[0].ID != 1 || recs[1].ID != 2 {
			t.Fatalf("unexpected batch order %v", recs)
		}
		return nil
	})
	if err != nil || n != 2 || len(s.PendingEvents()) != 1 {
		t.Fatalf("unexpected publish result n=%d err=%v pending=%d", n, err, len(s.PendingEvents()))
	}
}

func TestApplyCatalog(t *testing.T) {
	s := New()
	s.PutWorkingHours(model.WorkingHours{EntityID: "biz", BusinessID: "biz", DayOfWeek: time.Sunday, StartTime: "10:00", EndTime: "12:00"})

	upd := model.CatalogUpdate{
		BusinessID: "biz",
		EntityID:   "biz",
		WorkingHours: []model.WorkingHours{
			{DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "17:00"},
		},
		Services: []model.Service{{ID: "svc-1", DurationMinutes: 30, PriceCents: 2500, Active: true}},
	}
	applied, err := s.ApplyCatalog(context.Background(), "evt-1", upd)
	if err != nil || !applied {
		t.Fatalf("ApplyCatalog: %v %v", applied, err)
	}
	if applied, _ := s.ApplyCatalog(context.Background(), "evt-1", upd); applied {
		t.Fatal("duplicate event must be skipped")
	}
	if _, ok, _ := s.WorkingHours(context.Background(), "biz", time.Sunday); ok {
		t.Fatal("days missing from the update must become closed")
	}
	if wh, ok, _ := s.WorkingHours(context.Background(), "biz", time.Monday); !ok || wh.StartTime != "09:00" {
		t.Fatalf("unexpected monday hours %+v", wh)
	}
	err = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		svc, err := tx.Service(ctx, "svc-1")
		if err != nil || svc.BusinessID != "biz" {
			t.Fatalf("unexpected service %+v (%v)", svc, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
}

func TestApplyCatalogIsScopedByBusiness(t *testing.T) {
	s := New()
	s.PutWorkingHours(model.WorkingHours{EntityID: "staff-1", BusinessID: "biz-2", DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "12:00"})
	s.PutService(model.Service{ID: "cut", BusinessID: "biz-2", DurationMinutes: 60, PriceCents: 4000, Active: true})

	_, err := s.ApplyCatalog(context.Background(), "evt-1", model.CatalogUpdate{
		BusinessID:   "biz-1",
		EntityID:     "staff-1",
		WorkingHours: []model.WorkingHours{{DayOfWeek: time.Monday, StartTime: "06:00", EndTime: "07:00"}},
	})
	if !errors.Is(err, model.ErrForeignEntity) {
		t.Fatalf("expected ErrForeignEntity, got %v", err)
	}
	if wh, ok, _ := s.WorkingHours(context.Background(), "staff-1", time.Monday); !ok || wh.StartTime != "09:00" {
		t.Fatalf("foreign hours overwritten: %+v", wh)
	}

	applied, err := s.ApplyCatalog(context.Background(), "evt-2", model.CatalogUpdate{
		BusinessID: "biz-1",
		EntityID:   "biz-1",
		Services:   []model.Service{{ID: "cut", DurationMinutes: 15, PriceCents: 1, Active: true}},
	})
	if err != nil || !applied {
		t.Fatalf("ApplyCatalog: %v %v", applied, err)
	}
	err = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		svc, err := tx.Service(ctx, "cut")
		if err != nil || svc.BusinessID != "biz-2" || svc.PriceCents != 4000 {
			t.Fatalf("foreign service overwritten: %+v (%v)", svc, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
}
