package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type AppointmentHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	BusinessID string `json:"business_id"`
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	Notes      string `json:"notes"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	BusinessID      string `json:"business_id"`
	StaffID         string `json:"staff_id,omitempty"`
	ServiceID       string `json:"service_id"`
	ClientID        string `json:"client_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type dayStats struct {
	Total        int   `json:"total"`
	Pending      int   `json:"pending"`
	Confirmed    int   `json:"confirmed"`
	Completed    int   `json:"completed"`
	RevenueCents int64 `json:"revenue_cents"`
}

type dayResponse struct {
	Date         string            `json:"date"`
	Filter       string            `json:"filter"`
	Appointments []appointmentItem `json:"appointments"`
	Stats        dayStats          `json:"stats"`
}

type listResponse struct {
	Appointments []appointmentItem `json:"appointments"`
}

// toItem renders times in loc so they match the offsets of the availability endpoint.
func toItem(a model.Appointment, loc *time.Location) appointmentItem {
	return appointmentItem{
		AppointmentID:   a.ID,
		BusinessID:      a.BusinessID,
		StaffID:         a.StaffID,
		ServiceID:       a.ServiceID,
		ClientID:        a.ClientID,
		StartTime:       a.StartTime.In(loc).Format(time.RFC3339),
		EndTime:         a.EndTime.In(loc).Format(time.RFC3339),
		Status:          string(a.Status),
		DurationMinutes: a.DurationMinutes,
		PriceCents:      a.PriceCents,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toItems(appts []model.Appointment, loc *time.Location) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a, loc))
	}
	return items
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Book creates a PENDING appointment for the authenticated client.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if !actor.IsClient() {
		writeDomainError(r.Context(), w, h.logger, lifecycle.ErrForbidden)
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "start_time must be RFC 3339")
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking.CreateRequest{
		BusinessID: req.BusinessID,
		StaffID:    req.StaffID,
		ServiceID:  req.ServiceID,
		ClientID:   actor.ID,
		Start:      start,
		Notes:      req.Notes,
	})
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toItem(appt, h.svc.Location()))
}

// UpdateStatus moves an appointment along the lifecycle. Clients may only cancel their own.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, _ := ActorFromContext(r.Context())

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	appt, err := h.svc.Transition(r.Context(), strings.TrimSpace(req.AppointmentID), to, actor)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItem(appt, h.svc.Location()))
}

// BusinessDay lists ?date=YYYY-MM-DD (default today) with ?filter=all|pending|confirmed.
func (h *AppointmentHandler) BusinessDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	q := r.URL.Query()

	filter, err := booking.ParseDayFilter(strings.TrimSpace(q.Get("filter")))
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	loc := h.svc.Location()
	date := time.Now().In(loc)
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err = time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
	}

	view, err := h.svc.BusinessDay(r.Context(), actor, date, filter)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dayResponse{
		Date:         view.Date,
		Filter:       string(view.Filter),
		Appointments: toItems(view.Appointments, loc),
		Stats: dayStats{
			Total:        view.Stats.Total,
			Pending:      view.Stats.Pending,
			Confirmed:    view.Stats.Confirmed,
			Completed:    view.Stats.Completed,
			RevenueCents: view.Stats.RevenueCents,
		},
	})
}

// Mine lists the authenticated client's appointments with ?filter=upcoming|past.
func (h *AppointmentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	filter, err := booking.ParseClientFilter(strings.TrimSpace(r.URL.Query().Get("filter")))
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	appts, err := h.svc.ClientAppointments(r.Context(), actor, filter)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: toItems(appts, h.svc.Location())})
}
