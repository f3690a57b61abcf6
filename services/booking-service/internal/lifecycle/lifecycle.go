// Package lifecycle holds the appointment state machine and who may drive it.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var ErrForbidden = errors.New("actor may not change this appointment")

type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

// NO_SHOW has no inbound edge: it is terminal and never entered here.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled},
}

func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Allowed lists the statuses reachable from from, in a stable order.
func Allowed(from model.Status) []model.Status {
	return append([]model.Status(nil), transitions[from]...)
}

// Authorize checks both the edge and the actor. Business actors may drive any edge on their
// own calendar. Clients may only cancel their own appointment while it is still active.
func Authorize(appt model.Appointment, to model.Status, actor model.Actor) error {
	switch {
	case actor.IsBusiness():
		if actor.BusinessID != appt.BusinessID {
			return ErrForbidden
		}
	case actor.IsClient():
		if actor.ID != appt.ClientID || to != model.StatusCancelled {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	if !CanTransition(appt.Status, to) {
		return &InvalidTransitionError{From: appt.Status, To: to}
	}
	return nil
}

// EventType names the outbox event emitted when an appointment enters status.
func EventType(status model.Status) string {
	switch status {
	case model.StatusPending:
		return "booking.appointment.requested.v1"
	case model.StatusConfirmed:
		return "booking.appointment.confirmed.v1"
	case model.StatusCancelled:
		return "booking.appointment.cancelled.v1"
	case model.StatusCompleted:
		return "booking.appointment.completed.v1"
	}
	return ""
}
