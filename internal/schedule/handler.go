package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veritahealth/clinic-platform/internal/tenancy"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// Handler exposes the availability query facade over HTTP. Booking
// writes live in the appointments package; these routes are read-only.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the availability HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("schedule: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the staff availability routes, mounted under a
// tenancy-guarded group.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{staffID}/availability", h.GetAvailability)
	r.Get("/{staffID}/availability/next", h.GetNextSlot)
	r.Get("/{staffID}/availability/summary", h.GetSummary)
	r.Get("/{staffID}/availability/check", h.QuickCheck)
	return r
}

// GetAvailability computes per-day availability for a date range.
// GET /api/staff/{staffID}/availability?start&end&duration[&hours_start&hours_end]
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, err := parseDate(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := parseDate(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
		return
	}
	req := AvailabilityRequest{
		ClinicID:  clinicID,
		StaffID:   staffID,
		StartDate: start,
		EndDate:   end,
	}
	if v := q.Get("duration"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		req.SlotDuration = d
	}
	if q.Get("hours_start") != "" || q.Get("hours_end") != "" {
		hs, err := ParseClock(q.Get("hours_start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hours_start")
			return
		}
		he, err := ParseClock(q.Get("hours_end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hours_end")
			return
		}
		req.Hours = &WorkingHours{StartMinutes: hs, EndMinutes: he}
	}

	days, err := h.service.ComputeAvailability(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "compute availability")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// GetNextSlot finds the first free slot on a date.
// GET /api/staff/{staffID}/availability/next?date&preferred&duration
func (h *Handler) GetNextSlot(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	var preferred *int
	if v := q.Get("preferred"); v != "" {
		min, err := ParseClock(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid preferred time, expected HH:MM")
			return
		}
		preferred = &min
	}
	duration := 0
	if v := q.Get("duration"); v != "" {
		if duration, err = parseDuration(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	slot, err := h.service.NextAvailableSlot(r.Context(), clinicID, staffID, date, preferred, duration)
	if err != nil {
		h.fail(w, r, err, "next available slot")
		return
	}
	// An empty day is a valid outcome, not an error.
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

// GetSummary reduces availability over a range to per-day slot lists.
// GET /api/staff/{staffID}/availability/summary?start&end&duration
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, err := parseDate(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := parseDate(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
		return
	}
	req := AvailabilityRequest{ClinicID: clinicID, StaffID: staffID, StartDate: start, EndDate: end}
	if v := q.Get("duration"); v != "" {
		if req.SlotDuration, err = parseDuration(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	summary, err := h.service.SummarizeRange(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "summarize range")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// QuickCheck tests one specific window.
// GET /api/staff/{staffID}/availability/check?date&start&end
func (h *Handler) QuickCheck(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	startMin, err := ParseClock(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time, expected HH:MM")
		return
	}
	endMin, err := ParseClock(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time, expected HH:MM")
		return
	}

	result, err := h.service.QuickCheck(r.Context(), clinicID, staffID, date, startMin, endMin)
	if err != nil {
		h.fail(w, r, err, "quick check")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (clinicID, staffID uuid.UUID, ok bool) {
	raw, present := tenancy.ClinicIDFromContext(r.Context())
	if !present {
		writeError(w, http.StatusBadRequest, "clinic id required")
		return uuid.Nil, uuid.Nil, false
	}
	clinicID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid clinic id")
		return uuid.Nil, uuid.Nil, false
	}
	staffID, err = uuid.Parse(chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid staff id")
		return uuid.Nil, uuid.Nil, false
	}
	return clinicID, staffID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidTimeFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSourceUnavailable):
		h.logger.Error("schedule source unavailable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "schedule source unavailable")
	default:
		h.logger.Error("availability request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parseDuration(s string) (int, error) {
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
