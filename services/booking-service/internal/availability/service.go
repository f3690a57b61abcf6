package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the read side of the schedule the service needs.
type Store interface {
	// WorkingHours returns ok=false when the entity is closed on that weekday.
	WorkingHours(ctx context.Context, entityID string, day time.Weekday) (model.WorkingHours, bool, error)
	// ActiveAppointments returns PENDING and CONFIRMED appointments overlapping [from, to).
	// A *DataUnavailableError means the caller cannot read them.
	ActiveAppointments(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error)
}

type Source string

const (
	SourceValidated Source = "validated"
	SourceFallback  Source = "fallback"
)

// Branch records which path produced a result.
type Branch string

const (
	BranchNoWorkingHours          Branch = "no_working_hours"
	BranchInvalidWorkingHours     Branch = "invalid_working_hours"
	BranchAppointmentsUnavailable Branch = "appointments_unavailable"
	BranchFiltered                Branch = "filtered"
	BranchUnfiltered              Branch = "unfiltered"
)

// MaxDurationMinutes is one day. No slot can be longer than the working window it sits in.
const MaxDurationMinutes = 24 * 60

type Query struct {
	EntityID        string
	Date            time.Time
	DurationMinutes int
}

type Diagnostics struct {
	Branch            Branch
	Date              string
	DayOfWeek         time.Weekday
	WorkingHours      *model.WorkingHours
	AppointmentsCount int
}

// Reason is the user-facing explanation for an empty or degraded result, or "" on the normal path.
func (d Diagnostics) Reason() string {
	switch d.Branch {
	case BranchNoWorkingHours, BranchInvalidWorkingHours, BranchAppointmentsUnavailable:
		return string(d.Branch)
	case BranchUnfiltered:
		return string(BranchAppointmentsUnavailable)
	}
	return ""
}

// Result is either Validated (checked against bookings) or Fallback (working hours only).
type Result struct {
	Slots       []time.Time
	Source      Source
	Diagnostics Diagnostics
}

func (r Result) Validated() bool { return r.Source == SourceValidated }

type Service struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
	tracer trace.Tracer
}

func NewService(store Store, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, loc: loc, logger: logger, tracer: otel.Tracer("booking-service/availability")}
}

// WithStore returns a copy reading through st, typically a transaction's view of the schedule.
func (s *Service) WithStore(st Store) *Service {
	cp := *s
	cp.store = st
	return &cp
}

func (s *Service) Location() *time.Location { return s.loc }

// ParseDate reads a YYYY-MM-DD calendar day in the service's location.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidQuery)
	}
	return d, nil
}

// GetAvailability never returns unfiltered slots. When appointments cannot be read the
// result is empty with reason appointments_unavailable. Only storage failures are returned as errors.
func (s *Service) GetAvailability(ctx context.Context, q Query) (Result, error) {
	return s.compute(ctx, q, false)
}

// GetDegradedAvailability behaves like GetAvailability but, when appointments cannot be read,
// returns the working-hours grid tagged Fallback instead of an empty list.
func (s *Service) GetDegradedAvailability(ctx context.Context, q Query) (Result, error) {
	return s.compute(ctx, q, true)
}

func (s *Service) compute(ctx context.Context, q Query, degraded bool) (Result, error) {
	if strings.TrimSpace(q.EntityID) == "" {
		return Result{}, fmt.Errorf("%w: entity_id is required", ErrInvalidQuery)
	}
	if q.DurationMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: duration must be a positive number of minutes", ErrInvalidQuery)
	}
	if q.DurationMinutes > MaxDurationMinutes {
		return Result{}, fmt.Errorf("%w: duration must not exceed %d minutes", ErrInvalidQuery, MaxDurationMinutes)
	}

	ctx, span := s.tracer.Start(ctx, "availability.compute", trace.WithAttributes(
		attribute.String("entity_id", q.EntityID),
		attribute.Int("duration_minutes", q.DurationMinutes),
		attribute.Bool("degraded", degraded),
	))
	defer span.End()

	y, m, d := q.Date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	duration := time.Duration(q.DurationMinutes) * time.Minute
	res := Result{
		Source:      SourceValidated,
		Diagnostics: Diagnostics{Date: day.Format(time.DateOnly), DayOfWeek: day.Weekday()},
	}
	defer func() { span.SetAttributes(attribute.String("branch", string(res.Diagnostics.Branch))) }()

	wh, ok, err := s.store.WorkingHours(ctx, q.EntityID, day.Weekday())
	if err != nil {
		span.SetStatus(codes.Error, "working hours lookup failed")
		return Result{}, fmt.Errorf("load working hours: %w", err)
	}
	if !ok {
		res.Diagnostics.Branch = BranchNoWorkingHours
		return res, nil
	}
	res.Diagnostics.WorkingHours = &wh

	window, err := WindowOn(day, wh)
	if err != nil {
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			return Result{}, err
		}
		s.logger.WarnContext(ctx, "invalid working hours, treating day as closed",
			"entity_id", q.EntityID, "day_of_week", int(day.Weekday()), "err", err)
		res.Diagnostics.Branch = BranchInvalidWorkingHours
		return res, nil
	}
	grid := GenerateSlots(window, duration)

	from, to := DayBounds(day)
	appts, err := s.store.ActiveAppointments(ctx, q.EntityID, from, to)
	if err != nil {
		if !IsDataUnavailable(err) {
			span.SetStatus(codes.Error, "appointments lookup failed")
			return Result{}, fmt.Errorf("load appointments: %w", err)
		}
		s.logger.WarnContext(ctx, "appointments unavailable", "entity_id", q.EntityID, "degraded", degraded, "err", err)
		if degraded {
			res.Source = SourceFallback
			res.Slots = grid
			res.Diagnostics.Branch = BranchUnfiltered
			return res, nil
		}
		res.Diagnostics.Branch = BranchAppointmentsUnavailable
		return res, nil
	}

	res.Slots = FilterOverlapping(grid, duration, appts)
	res.Diagnostics.Branch = BranchFiltered
	res.Diagnostics.AppointmentsCount = len(appts)
	return res, nil
}

// Contains reports whether start is one of the offered slots.
func (r Result) Contains(start time.Time) bool {
	for _, s := range r.Slots {
		if s.Equal(start) {
			return true
		}
	}
	return false
}
