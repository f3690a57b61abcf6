package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
)

// writeDomainError maps service errors onto HTTP. Anything unrecognised is treated as the
// store being unreachable.
func writeDomainError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	var slotErr *booking.SlotNoLongerAvailableError
	var transErr *lifecycle.InvalidTransitionError
	switch {
	case errors.Is(err, availability.ErrInvalidQuery), errors.Is(err, booking.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.As(err, &slotErr):
		httpx.WriteError(w, http.StatusConflict, "slot_no_longer_available", err.Error())
	case errors.As(err, &transErr):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrInPast), errors.Is(err, booking.ErrInvalidService):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "unprocessable", err.Error())
	default:
		logger.ErrorContext(ctx, "request failed", "err", err, "request_id", httpx.RequestIDFromContext(ctx))
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "schedule store unavailable")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func errMissing(param string) error {
	return fmt.Errorf("%s is required", param)
}

func errBadParam(msg string) error {
	return errors.New(msg)
}
