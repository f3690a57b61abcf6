package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

type Deps struct {
	Availability *availability.Service
	Booking      *booking.Service
	Verifier     TokenVerifier
	// PublicLimit guards the unauthenticated routes. Nil disables limiting.
	PublicLimit httpx.Middleware
	Logger      *slog.Logger
}

func Register(mux *http.ServeMux, d Deps) {
	avail := NewAvailabilityHandler(d.Availability, d.Logger)
	appts := NewAppointmentHandler(d.Booking, d.Logger)
	authed := RequireActor(d.Verifier)

	mux.Handle("/api/v1/public/availability", httpx.Chain(http.HandlerFunc(avail.Get), d.PublicLimit))
	mux.Handle("/api/v1/public/availability/degraded", httpx.Chain(http.HandlerFunc(avail.Degraded), d.PublicLimit))
	mux.Handle("/api/v1/public/book", httpx.Chain(http.HandlerFunc(appts.Book), d.PublicLimit, authed))
	mux.Handle("/api/v1/appointments", httpx.Chain(http.HandlerFunc(appts.BusinessDay), authed))
	mux.Handle("/api/v1/appointments/status", httpx.Chain(http.HandlerFunc(appts.UpdateStatus), authed))
	mux.Handle("/api/v1/me/appointments", httpx.Chain(http.HandlerFunc(appts.Mine), authed))
}
