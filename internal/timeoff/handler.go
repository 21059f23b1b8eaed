package timeoff

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/internal/tenancy"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// Handler exposes the time-off lifecycle over HTTP: staff file ranges,
// managers approve or reject them, approved ranges can be cancelled.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

// NewHandler creates the time-off HTTP handler.
func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("timeoff: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes returns the time-off routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{rangeID}", h.Get)
	r.Post("/{rangeID}/approve", h.transition(schedule.TimeOffApproved))
	r.Post("/{rangeID}/reject", h.transition(schedule.TimeOffRejected))
	r.Post("/{rangeID}/cancel", h.transition(schedule.TimeOffCancelled))
	r.Delete("/{rangeID}", h.Delete)
	return r
}

type createRequest struct {
	StaffID          string `json:"staff_id"`
	Type             string `json:"type"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	IsRecurring      bool   `json:"is_recurring,omitempty"`
	RecurringDays    []int  `json:"recurring_days,omitempty"`
	RecurringEndDate string `json:"recurring_end_date,omitempty"`
}

type rangeResponse struct {
	ID               string `json:"id"`
	StaffID          string `json:"staff_id"`
	Type             string `json:"type"`
	Status           string `json:"status"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	IsRecurring      bool   `json:"is_recurring"`
	RecurringDays    []int  `json:"recurring_days,omitempty"`
	RecurringEndDate string `json:"recurring_end_date,omitempty"`
}

// Create files a new time-off range in pending status.
// POST /api/timeoff
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	staffID, err := uuid.Parse(body.StaffID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	rng := schedule.TimeOffRange{
		ClinicID:      clinicID,
		StaffID:       staffID,
		Type:          schedule.TimeOffType(body.Type),
		IsRecurring:   body.IsRecurring,
		RecurringDays: body.RecurringDays,
	}
	if rng.StartDate, err = time.Parse("2006-01-02", body.StartDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	if rng.EndDate, err = time.Parse("2006-01-02", body.EndDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return
	}
	if body.StartTime != "" || body.EndTime != "" {
		startMin, err := schedule.ParseClock(body.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time, expected HH:MM")
			return
		}
		endMin, err := schedule.ParseClock(body.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time, expected HH:MM")
			return
		}
		rng.StartMinutes, rng.EndMinutes = &startMin, &endMin
	}
	if body.RecurringEndDate != "" {
		if rng.RecurringEndDate, err = time.Parse("2006-01-02", body.RecurringEndDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid recurring_end_date, expected YYYY-MM-DD")
			return
		}
	}

	created, err := h.repo.Create(r.Context(), rng)
	if err != nil {
		h.fail(w, err, "create range")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(created))
}

// Get loads one range.
// GET /api/timeoff/{rangeID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	rangeID, err := uuid.Parse(chi.URLParam(r, "rangeID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range id")
		return
	}
	rng, err := h.repo.GetByID(r.Context(), clinicID, rangeID)
	if err != nil {
		h.fail(w, err, "get range")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rng))
}

func (h *Handler) transition(to schedule.TimeOffStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := h.clinic(w, r)
		if !ok {
			return
		}
		rangeID, err := uuid.Parse(chi.URLParam(r, "rangeID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid range id")
			return
		}
		if err := h.repo.Transition(r.Context(), clinicID, rangeID, to); err != nil {
			h.fail(w, err, "transition range")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(to)})
	}
}

// Delete soft-deletes a range.
// DELETE /api/timeoff/{rangeID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	rangeID, err := uuid.Parse(chi.URLParam(r, "rangeID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range id")
		return
	}
	if err := h.repo.SoftDelete(r.Context(), clinicID, rangeID); err != nil {
		h.fail(w, err, "delete range")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clinic(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, present := tenancy.ClinicIDFromContext(r.Context())
	if !present {
		writeError(w, http.StatusBadRequest, "clinic id required")
		return uuid.Nil, false
	}
	clinicID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid clinic id")
		return uuid.Nil, false
	}
	return clinicID, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRange), errors.Is(err, schedule.ErrInvalidTimeFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "time-off range not found")
	case errors.Is(err, ErrBadTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("time-off request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toResponse(r *schedule.TimeOffRange) rangeResponse {
	resp := rangeResponse{
		ID:            r.ID.String(),
		StaffID:       r.StaffID.String(),
		Type:          string(r.Type),
		Status:        string(r.Status),
		StartDate:     r.StartDate.Format("2006-01-02"),
		EndDate:       r.EndDate.Format("2006-01-02"),
		IsRecurring:   r.IsRecurring,
		RecurringDays: r.RecurringDays,
	}
	if r.StartMinutes != nil {
		resp.StartTime = schedule.FormatClock(*r.StartMinutes)
		resp.EndTime = schedule.FormatClock(*r.EndMinutes)
	}
	if r.IsRecurring {
		resp.RecurringEndDate = r.RecurringEndDate.Format("2006-01-02")
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
