package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var (
	monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	owner  = model.Actor{Kind: model.ActorBusiness, ID: "owner-1", BusinessID: "biz-1"}
	alice  = model.Actor{Kind: model.ActorClient, ID: "alice"}
	bob    = model.Actor{Kind: model.ActorClient, ID: "bob"}
)

func at(h int) time.Time { return monday.Add(time.Duration(h) * time.Hour) }

type fixture struct {
	store *memstore.Store
	svc   *booking.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutWorkingHours(model.WorkingHours{EntityID: "biz-1", BusinessID: "biz-1", DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "17:00"})
	st.PutWorkingHours(model.WorkingHours{EntityID: "staff-1", BusinessID: "biz-1", DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "11:00"})
	st.PutWorkingHours(model.WorkingHours{EntityID: "staff-x", BusinessID: "biz-2", DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "12:00"})
	st.PutService(model.Service{ID: "cut", BusinessID: "biz-1", DurationMinutes: 60, PriceCents: 3000, Active: true})
	st.PutService(model.Service{ID: "retired", BusinessID: "biz-1", DurationMinutes: 60, Active: false})
	st.PutService(model.Service{ID: "foreign", BusinessID: "biz-2", DurationMinutes: 60, Active: true})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{store: st, now: monday.Add(-24 * time.Hour)}
	avail := availability.NewService(st, time.UTC, logger)
	f.svc = booking.NewService(st, avail, logger, booking.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) book(t *testing.T, client model.Actor, staff string, start time.Time) model.Appointment {
	t.Helper()
	appt, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{
		BusinessID: "biz-1", StaffID: staff, ServiceID: "cut", ClientID: client.ID, Start: start,
	})
	if err != nil {
		t.Fatalf("CreateAppointment(%s): %v", start, err)
	}
	return appt
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, alice, "", at(11))

	if appt.ID == "" || appt.Status != model.StatusPending {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if !appt.EndTime.Equal(at(12)) || appt.DurationMinutes != 60 || appt.PriceCents != 3000 {
		t.Fatalf("service snapshot missing: %+v", appt)
	}

	events := f.store.PendingEvents()
	if len(events) != 1 || events[0].EventType != "booking.appointment.requested.v1" || events[0].AggregateID != appt.ID {
		t.Fatalf("unexpected events %+v", events)
	}
	var payload map[string]any
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil || payload["status"] != "PENDING" {
		t.Fatalf("unexpected payload %s (%v)", events[0].Payload, err)
	}

	_, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{
		BusinessID: "biz-1", ServiceID: "cut", ClientID: bob.ID, Start: at(11),
	})
	if !booking.IsSlotNoLongerAvailable(err) {
		t.Fatalf("expected SlotNoLongerAvailableError, got %v", err)
	}
	if len(f.store.PendingEvents()) != 1 {
		t.Fatal("rejected booking must not write")
	}
}

func TestCreateAppointmentRejections(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		req  booking.CreateRequest
		want error
	}{
		{"missing client", booking.CreateRequest{BusinessID: "biz-1", ServiceID: "cut", Start: at(9)}, booking.ErrInvalidRequest},
		{"missing service", booking.CreateRequest{BusinessID: "biz-1", ClientID: "alice", Start: at(9)}, booking.ErrInvalidRequest},
		{"unknown service", booking.CreateRequest{BusinessID: "biz-1", ServiceID: "nope", ClientID: "alice", Start: at(9)}, booking.ErrInvalidService},
		{"inactive service", booking.CreateRequest{BusinessID: "biz-1", ServiceID: "retired", ClientID: "alice", Start: at(9)}, booking.ErrInvalidService},
		{"other business", booking.CreateRequest{BusinessID: "biz-1", ServiceID: "foreign", ClientID: "alice", Start: at(9)}, booking.ErrInvalidService},
	}
	for _, tc := range cases {
		if _, err := f.svc.CreateAppointment(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	for _, start := range []time.Time{at(8), at(16).Add(30 * time.Minute), at(9).Add(15 * time.Minute), monday.AddDate(0, 0, 1).Add(10 * time.Hour)} {
		_, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{BusinessID: "biz-1", ServiceID: "cut", ClientID: "alice", Start: start})
		if !booking.IsSlotNoLongerAvailable(err) {
			t.Fatalf("start %s: expected SlotNoLongerAvailableError, got %v", start, err)
		}
	}

	f.now = at(12)
	if _, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{BusinessID: "biz-1", ServiceID: "cut", ClientID: "alice", Start: at(10)}); !errors.Is(err, booking.ErrInPast) {
		t.Fatalf("expected ErrInPast, got %v", err)
	}
}

func TestStaffCalendarIsSeparate(t *testing.T) {
	f := newFixture(t)
	f.book(t, alice, "", at(9))
	staffAppt := f.book(t, bob, "staff-1", at(9))
	if staffAppt.EntityID() != "staff-1" {
		t.Fatalf("unexpected entity %q", staffAppt.EntityID())
	}
	if _, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{
		BusinessID: "biz-1", StaffID: "staff-1", ServiceID: "cut", ClientID: "carol", Start: at(9),
	}); !booking.IsSlotNoLongerAvailable(err) {
		t.Fatalf("expected staff slot to be taken, got %v", err)
	}
}

func TestStaffOfAnotherBusinessIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{
		BusinessID: "biz-1", StaffID: "staff-x", ServiceID: "cut", ClientID: "alice", Start: at(9),
	})
	if !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(f.store.PendingEvents()) != 0 {
		t.Fatal("rejected booking must not emit events")
	}

	avail := availability.NewService(f.store, time.UTC, nil)
	res, err := avail.GetAvailability(context.Background(), availability.Query{EntityID: "staff-x", Date: monday, DurationMinutes: 60})
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(res.Slots) != 3 || !res.Contains(at(9)) {
		t.Fatalf("staff-x calendar must be untouched, got %v", res.Slots)
	}
}

func TestBookingRefusedWhenAppointmentsUnreadable(t *testing.T) {
	f := newFixture(t)
	f.store.DenyAppointmentReads(true)
	_, err := f.svc.CreateAppointment(context.Background(), booking.CreateRequest{BusinessID: "biz-1", ServiceID: "cut", ClientID: "alice", Start: at(9)})
	if !booking.IsSlotNoLongerAvailable(err) {
		t.Fatalf("booking must never commit against unfiltered slots, got %v", err)
	}
}

func TestConcurrentBookingsForLastSlot(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		// Leave only the 10:00 slot on the staff calendar.
		f.book(t, alice, "staff-1", at(9))

		const callers = 8
		var wg sync.WaitGroup
		errs := make([]error, callers)
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.CreateAppointment(context.Background(), booking.CreateRequest{
					BusinessID: "biz-1", StaffID: "staff-1", ServiceID: "cut", ClientID: "client", Start: at(10),
				})
			}(i)
		}
		close(start)
		wg.Wait()

		ok := 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case booking.IsSlotNoLongerAvailable(err):
			default:
				t.Fatalf("unexpected error %v", err)
			}
		}
		if ok != 1 {
			t.Fatalf("round %d: expected exactly one success, got %d", round, ok)
		}
		list, _ := f.store.ActiveAppointments(context.Background(), "staff-1", monday, monday.Add(24*time.Hour))
		if len(list) != 2 {
			t.Fatalf("round %d: expected 2 active appointments, got %d", round, len(list))
		}
	}
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, alice, "", at(9))
	ctx := context.Background()

	var invalid *lifecycle.InvalidTransitionError
	if _, err := f.svc.Transition(ctx, appt.ID, model.StatusCompleted, owner); !errors.As(err, &invalid) {
		t.Fatalf("PENDING -> COMPLETED: expected InvalidTransitionError, got %v", err)
	}
	list, _ := f.store.ListAppointments(ctx, booking.ListQuery{BusinessID: "biz-1"})
	if list[0].Status != model.StatusPending {
		t.Fatalf("failed transition mutated status to %s", list[0].Status)
	}

	confirmed, err := f.svc.Transition(ctx, appt.ID, model.StatusConfirmed, owner)
	if err != nil || confirmed.Status != model.StatusConfirmed {
		t.Fatalf("confirm: %+v %v", confirmed, err)
	}
	events := f.store.PendingEvents()
	if last := events[len(events)-1]; last.EventType != "booking.appointment.confirmed.v1" {
		t.Fatalf("expected confirmed event, got %s", last.EventType)
	}

	if _, err := f.svc.Transition(ctx, appt.ID, model.StatusCancelled, bob); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Fatalf("foreign client cancel: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, appt.ID, model.StatusCancelled, model.Actor{Kind: model.ActorBusiness, ID: "x", BusinessID: "biz-2"}); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("other business: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, "missing", model.StatusCancelled, owner); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("missing appointment: expected ErrNotFound, got %v", err)
	}

	cancelled, err := f.svc.Transition(ctx, appt.ID, model.StatusCancelled, alice)
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("client cancel: %+v %v", cancelled, err)
	}
	if _, err := f.svc.Transition(ctx, appt.ID, model.StatusConfirmed, owner); !errors.As(err, &invalid) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}

	// The cancelled slot is offered again.
	f.book(t, bob, "", at(9))
}

func TestBusinessDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, alice, "", at(9))
	b := f.book(t, bob, "", at(10))
	c := f.book(t, alice, "", at(11))
	f.book(t, bob, "", at(12))
	if _, err := f.svc.Transition(ctx, a.ID, model.StatusConfirmed, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Transition(ctx, b.ID, model.StatusConfirmed, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Transition(ctx, b.ID, model.StatusCompleted, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Transition(ctx, c.ID, model.StatusCancelled, owner); err != nil {
		t.Fatal(err)
	}

	view, err := f.svc.BusinessDay(ctx, owner, monday.Add(15*time.Hour), booking.DayAll)
	if err != nil {
		t.Fatalf("BusinessDay: %v", err)
	}
	want := booking.DayStats{Total: 3, Pending: 1, Confirmed: 1, Completed: 1, RevenueCents: 6000}
	if view.Stats != want || view.Date != "2024-03-04" {
		t.Fatalf("unexpected view %+v", view)
	}

	pending, err := f.svc.BusinessDay(ctx, owner, monday, booking.DayPending)
	if err != nil || len(pending.Appointments) != 1 || pending.Stats.RevenueCents != 0 {
		t.Fatalf("unexpected pending view %+v (%v)", pending, err)
	}

	if _, err := f.svc.BusinessDay(ctx, alice, monday, booking.DayAll); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Fatalf("client must not read the business calendar, got %v", err)
	}
	other, err := f.svc.BusinessDay(ctx, model.Actor{Kind: model.ActorBusiness, ID: "x", BusinessID: "biz-2"}, monday, booking.DayAll)
	if err != nil || len(other.Appointments) != 0 {
		t.Fatalf("other business sees %d appointments (%v)", len(other.Appointments), err)
	}
}

func TestClientAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.book(t, alice, "", at(9))
	late := f.book(t, alice, "", at(14))
	f.book(t, bob, "", at(15))
	if _, err := f.svc.Transition(ctx, early.ID, model.StatusCancelled, alice); err != nil {
		t.Fatal(err)
	}

	upcoming, err := f.svc.ClientAppointments(ctx, alice, booking.ClientUpcoming)
	if err != nil || len(upcoming) != 1 || upcoming[0].ID != late.ID {
		t.Fatalf("unexpected upcoming %+v (%v)", upcoming, err)
	}
	past, err := f.svc.ClientAppointments(ctx, alice, booking.ClientPast)
	if err != nil || len(past) != 1 || past[0].ID != early.ID {
		t.Fatalf("unexpected past %+v (%v)", past, err)
	}

	f.now = at(16)
	if upcoming, _ := f.svc.ClientAppointments(ctx, alice, booking.ClientUpcoming); len(upcoming) != 0 {
		t.Fatalf("started appointments are not upcoming, got %d", len(upcoming))
	}
	if _, err := f.svc.ClientAppointments(ctx, owner, booking.ClientUpcoming); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestParseFilters(t *testing.T) {
	if f, err := booking.ParseDayFilter(""); err != nil || f != booking.DayAll {
		t.Fatalf("unexpected default day filter %q %v", f, err)
	}
	if _, err := booking.ParseDayFilter("cancelled"); !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if f, err := booking.ParseClientFilter("past"); err != nil || f != booking.ClientPast {
		t.Fatalf("unexpected client filter %q %v", f, err)
	}
}
