package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type DayFilter string

const (
	DayAll       DayFilter = "all"
	DayPending   DayFilter = "pending"
	DayConfirmed DayFilter = "confirmed"
)

func ParseDayFilter(s string) (DayFilter, error) {
	switch f := DayFilter(s); f {
	case "":
		return DayAll, nil
	case DayAll, DayPending, DayConfirmed:
		return f, nil
	}
	return "", fmt.Errorf("%w: filter must be all, pending or confirmed", ErrInvalidRequest)
}

// "all" leaves out cancelled and no-show appointments.
func (f DayFilter) statuses() []model.Status {
	switch f {
	case DayPending:
		return []model.Status{model.StatusPending}
	case DayConfirmed:
		return []model.Status{model.StatusConfirmed}
	}
	return []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCompleted}
}

type DayStats struct {
	Total     int
	Pending   int
	Confirmed int
	Completed int
	// RevenueCents sums confirmed and completed appointments.
	RevenueCents int64
}

type DayView struct {
	Date         string
	Filter       DayFilter
	Appointments []model.Appointment
	Stats        DayStats
}

// BusinessDay lists one local day of the actor's business calendar. Stats cover the filtered list.
func (s *Service) BusinessDay(ctx context.Context, actor model.Actor, date time.Time, filter DayFilter) (DayView, error) {
	if !actor.IsBusiness() {
		return DayView{}, lifecycle.ErrForbidden
	}
	y, m, d := date.Date()
	from, to := availability.DayBounds(time.Date(y, m, d, 0, 0, 0, 0, s.avail.Location()))
	appts, err := s.store.ListAppointments(ctx, ListQuery{
		BusinessID: actor.BusinessID,
		From:       from,
		To:         to,
		Statuses:   filter.statuses(),
	})
	if err != nil {
		return DayView{}, err
	}
	return DayView{Date: from.Format(time.DateOnly), Filter: filter, Appointments: appts, Stats: dayStats(appts)}, nil
}

func dayStats(appts []model.Appointment) DayStats {
	st := DayStats{Total: len(appts)}
	for _, a := range appts {
		switch a.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusConfirmed:
			st.Confirmed++
			st.RevenueCents += a.PriceCents
		case model.StatusCompleted:
			st.Completed++
			st.RevenueCents += a.PriceCents
		}
	}
	return st
}

type ClientFilter string

const (
	ClientUpcoming ClientFilter = "upcoming"
	ClientPast     ClientFilter = "past"
)

func ParseClientFilter(s string) (ClientFilter, error) {
	switch f := ClientFilter(s); f {
	case "":
		return ClientUpcoming, nil
	case ClientUpcoming, ClientPast:
		return f, nil
	}
	return "", fmt.Errorf("%w: filter must be upcoming or past", ErrInvalidRequest)
}

// ClientAppointments lists the actor's own bookings. Upcoming means active and not yet started;
// past means finished in any terminal status.
func (s *Service) ClientAppointments(ctx context.Context, actor model.Actor, filter ClientFilter) ([]model.Appointment, error) {
	if !actor.IsClient() {
		return nil, lifecycle.ErrForbidden
	}
	q := ListQuery{ClientID: actor.ID}
	switch filter {
	case ClientPast:
		q.Statuses = []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow}
	default:
		q.From = s.now()
		q.Statuses = []model.Status{model.StatusPending, model.StatusConfirmed}
	}
	return s.store.ListAppointments(ctx, q)
}
