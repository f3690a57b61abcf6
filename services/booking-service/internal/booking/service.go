package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	store  Store
	avail  *availability.Service
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Service)

// WithClock overrides time.Now for the past-booking check.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, avail *availability.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, avail: avail, logger: logger, now: time.Now, tracer: otel.Tracer("booking-service/booking")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location is the wall-clock zone used for calendar days.
func (s *Service) Location() *time.Location { return s.avail.Location() }

type CreateRequest struct {
	BusinessID string
	// StaffID selects a staff calendar. Empty books against the business calendar.
	StaffID   string
	ServiceID string
	ClientID  string
	Start     time.Time
	Notes     string
}

func (r CreateRequest) entityID() string {
	if r.StaffID != "" {
		return r.StaffID
	}
	return r.BusinessID
}

// CreateAppointment re-checks availability under the calendar's write lock and inserts a
// PENDING appointment only when the requested start is still offered.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	switch {
	case req.BusinessID == "" || req.ServiceID == "":
		return model.Appointment{}, fmt.Errorf("%w: business_id and service_id are required", ErrInvalidRequest)
	case req.ClientID == "":
		return model.Appointment{}, fmt.Errorf("%w: client identity is required", ErrInvalidRequest)
	case req.Start.IsZero():
		return model.Appointment{}, fmt.Errorf("%w: start_time is required", ErrInvalidRequest)
	}
	start := req.Start.In(s.avail.Location())
	if start.Before(s.now()) {
		return model.Appointment{}, ErrInPast
	}
	entityID := req.entityID()

	ctx, span := s.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("entity_id", entityID),
		attribute.String("service_id", req.ServiceID),
	))
	defer span.End()

	var created model.Appointment
	err := s.store.WithEntityLock(ctx, entityID, func(ctx context.Context, tx Tx) error {
		svc, err := tx.Service(ctx, req.ServiceID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown service", ErrInvalidService)
		}
		if err != nil {
			return err
		}
		if svc.BusinessID != req.BusinessID || !svc.Active || svc.DurationMinutes <= 0 {
			return fmt.Errorf("%w: service %s is not offered by this business", ErrInvalidService, svc.ID)
		}
		wh, ok, err := tx.WorkingHours(ctx, entityID, start.Weekday())
		if err != nil {
			return err
		}
		if ok && wh.BusinessID != req.BusinessID {
			return fmt.Errorf("%w: calendar %s does not belong to business %s", ErrInvalidRequest, entityID, req.BusinessID)
		}

		res, err := s.avail.WithStore(tx).GetAvailability(ctx, availability.Query{
			EntityID:        entityID,
			Date:            start,
			DurationMinutes: svc.DurationMinutes,
		})
		if err != nil {
			return err
		}
		if !res.Validated() || !res.Contains(start) {
			return &SlotNoLongerAvailableError{EntityID: entityID, Start: start}
		}

		appt := model.Appointment{
			BusinessID:      req.BusinessID,
			StaffID:         req.StaffID,
			ServiceID:       svc.ID,
			ClientID:        req.ClientID,
			StartTime:       start,
			EndTime:         start.Add(svc.Duration()),
			Status:          model.StatusPending,
			DurationMinutes: svc.DurationMinutes,
			PriceCents:      svc.PriceCents,
			Notes:           strings.TrimSpace(req.Notes),
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, appt); err != nil {
			return err
		}
		created = appt
		return nil
	})
	if errors.Is(err, ErrOverlap) {
		// The store is the final arbiter; its conflict may surface on insert or on commit.
		err = &SlotNoLongerAvailableError{EntityID: entityID, Start: start}
	}
	if err != nil {
		span.RecordError(err)
		if IsSlotNoLongerAvailable(err) {
			s.logger.InfoContext(ctx, "booking rejected, slot taken", "entity_id", entityID, "start", start.Format(time.RFC3339))
		}
		return model.Appointment{}, err
	}
	s.logger.InfoContext(ctx, "appointment requested",
		"appointment_id", created.ID, "entity_id", entityID, "start", start.Format(time.RFC3339))
	return created, nil
}

// Transition applies one state machine edge. Entering CONFIRMED emits the event that drives the
// client notification; delivery happens after commit and cannot undo the change.
func (s *Service) Transition(ctx context.Context, appointmentID string, to model.Status, actor model.Actor) (model.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment_id is required", ErrInvalidRequest)
	}
	ctx, span := s.tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("appointment_id", appointmentID),
		attribute.String("to", string(to)),
	))
	defer span.End()

	var from model.Status
	var updated model.Appointment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.Appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		// Hide other tenants' appointments behind not found.
		if actor.IsBusiness() && actor.BusinessID != appt.BusinessID {
			return ErrNotFound
		}
		if err := lifecycle.Authorize(appt, to, actor); err != nil {
			return err
		}
		from = appt.Status
		updated, err = tx.UpdateStatus(ctx, appt.ID, appt.Status, to)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, tx, updated)
	})
	if errors.Is(err, ErrStatusChanged) {
		err = &lifecycle.InvalidTransitionError{From: from, To: to}
	}
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	s.logger.InfoContext(ctx, "appointment status changed",
		"appointment_id", updated.ID, "from", string(from), "to", string(to), "actor", string(actor.Kind))
	return updated, nil
}

type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	BusinessID    string    `json:"business_id"`
	StaffID       string    `json:"staff_id,omitempty"`
	ServiceID     string    `json:"service_id"`
	ClientID      string    `json:"client_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	PriceCents    int64     `json:"price_cents"`
	Notes         string    `json:"notes,omitempty"`
}

func (s *Service) enqueue(ctx context.Context, tx Tx, appt model.Appointment) error {
	eventType := lifecycle.EventType(appt.Status)
	if eventType == "" {
		return nil
	}
	evt, err := outbox.NewEvent(ctx, "appointment", appt.ID, eventType, appointmentEvent{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		StaffID:       appt.StaffID,
		ServiceID:     appt.ServiceID,
		ClientID:      appt.ClientID,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Status:        string(appt.Status),
		PriceCents:    appt.PriceCents,
		Notes:         appt.Notes,
	})
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, evt)
}
