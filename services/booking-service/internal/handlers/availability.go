package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
)

const fallbackWarning = "These times are based on working hours only and may not reflect existing bookings."

type AvailabilityHandler struct {
	svc    *availability.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *availability.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type workingHoursMeta struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type availabilityMeta struct {
	Source            string            `json:"source"`
	Reason            string            `json:"reason,omitempty"`
	Date              string            `json:"date"`
	DayOfWeek         int               `json:"dayOfWeek"`
	WorkingHours      *workingHoursMeta `json:"workingHours,omitempty"`
	AppointmentsCount *int              `json:"appointmentsCount,omitempty"`
	Warning           string            `json:"warning,omitempty"`
}

type availabilityResponse struct {
	AvailableSlots []string          `json:"availableSlots"`
	Meta           *availabilityMeta `json:"meta,omitempty"`
}

// Get serves validated availability only.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.GetAvailability)
}

// Degraded is the explicit escape hatch for clients whose primary query failed.
// Its output always carries meta so the fallback label cannot be missed.
func (h *AvailabilityHandler) Degraded(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.GetDegradedAvailability)
}

type availabilityFunc func(ctx context.Context, q availability.Query) (availability.Result, error)

func (h *AvailabilityHandler) serve(w http.ResponseWriter, r *http.Request, get availabilityFunc) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q, debug, err := h.parseQuery(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := get(r.Context(), q)
	if err != nil {
		writeDomainError(r.Context(), w, h.logger, err)
		return
	}

	resp := availabilityResponse{AvailableSlots: make([]string, 0, len(res.Slots))}
	for _, s := range res.Slots {
		resp.AvailableSlots = append(resp.AvailableSlots, s.Format(time.RFC3339))
	}
	if debug || !res.Validated() {
		resp.Meta = buildMeta(res)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) parseQuery(r *http.Request) (availability.Query, bool, error) {
	v := r.URL.Query()
	entityID := strings.TrimSpace(v.Get("entity_id"))
	if entityID == "" {
		return availability.Query{}, false, errMissing("entity_id")
	}
	rawDate := strings.TrimSpace(v.Get("date"))
	if rawDate == "" {
		return availability.Query{}, false, errMissing("date")
	}
	date, err := h.svc.ParseDate(rawDate)
	if err != nil {
		return availability.Query{}, false, err
	}
	duration, err := strconv.Atoi(strings.TrimSpace(v.Get("duration")))
	if err != nil || duration <= 0 {
		return availability.Query{}, false, errBadParam("duration must be a positive number of minutes")
	}
	debug, _ := strconv.ParseBool(v.Get("debug"))
	return availability.Query{EntityID: entityID, Date: date, DurationMinutes: duration}, debug, nil
}

func buildMeta(res availability.Result) *availabilityMeta {
	d := res.Diagnostics
	m := &availabilityMeta{
		Source:    string(res.Source),
		Reason:    d.Reason(),
		Date:      d.Date,
		DayOfWeek: int(d.DayOfWeek),
	}
	if d.WorkingHours != nil {
		m.WorkingHours = &workingHoursMeta{
			DayOfWeek: int(d.WorkingHours.DayOfWeek),
			StartTime: d.WorkingHours.StartTime,
			EndTime:   d.WorkingHours.EndTime,
		}
	}
	if d.Branch == availability.BranchFiltered {
		n := d.AppointmentsCount
		m.AppointmentsCount = &n
	}
	if !res.Validated() {
		m.Warning = fallbackWarning
	}
	return m
}
