package staff

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/internal/tenancy"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// Handler exposes working-pattern reads and writes over HTTP.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

// NewHandler creates the staff HTTP handler.
func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("staff: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

type workingDaysPayload struct {
	WorkingDays []int `json:"working_days"`
}

// GetWorkingDays returns the ISO weekday set the staff member works.
// GET /api/staff/{staffID}/working-days
func (h *Handler) GetWorkingDays(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	pattern, err := h.repo.WorkingDays(r.Context(), clinicID, staffID)
	if err != nil {
		h.fail(w, err, "get working days")
		return
	}
	days := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if pattern[d] {
			days = append(days, d)
		}
	}
	writeJSON(w, http.StatusOK, workingDaysPayload{WorkingDays: days})
}

// UpdateWorkingDays replaces the staff member's working pattern.
// PUT /api/staff/{staffID}/working-days
func (h *Handler) UpdateWorkingDays(w http.ResponseWriter, r *http.Request) {
	clinicID, staffID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var body workingDaysPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.repo.UpdateWorkingDays(r.Context(), clinicID, staffID, body.WorkingDays); err != nil {
		h.fail(w, err, "update working days")
		return
	}
	writeJSON(w, http.StatusOK, body)
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

func (h *Handler) fail(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "staff member not found")
	case errors.Is(err, schedule.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrSourceUnavailable):
		h.logger.Error("staff store unavailable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "staff store unavailable")
	default:
		h.logger.Error("staff request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
