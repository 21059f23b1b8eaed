package appointments

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

// Handler exposes slot reservation and reschedule over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the booking HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the appointment booking routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Reserve)
	r.Post("/{appointmentID}/reschedule", h.Reschedule)
	r.Post("/{appointmentID}/cancel", h.Cancel)
	return r
}

type reserveRequest struct {
	StaffID    string `json:"staff_id"`
	PatientRef string `json:"patient_ref"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Notes      string `json:"notes,omitempty"`
}

type appointmentResponse struct {
	ID         string `json:"id"`
	StaffID    string `json:"staff_id"`
	PatientRef string `json:"patient_ref"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Status     string `json:"status"`
}

// Reserve books an exact slot.
// POST /api/appointments
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	var body reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	staffID, err := uuid.Parse(body.StaffID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	startMin, err := schedule.ParseClock(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time, expected HH:MM")
		return
	}
	endMin, err := schedule.ParseClock(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time, expected HH:MM")
		return
	}

	appt, err := h.service.ReserveSlot(r.Context(), ReserveRequest{
		ClinicID:     clinicID,
		StaffID:      staffID,
		PatientRef:   body.PatientRef,
		Date:         date,
		StartMinutes: startMin,
		EndMinutes:   endMin,
		Notes:        body.Notes,
	})
	if err != nil {
		h.fail(w, err, "reserve slot")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

type rescheduleRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Reschedule supersedes an appointment with a new slot.
// POST /api/appointments/{appointmentID}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var body rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	startMin, err := schedule.ParseClock(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time, expected HH:MM")
		return
	}
	endMin, err := schedule.ParseClock(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time, expected HH:MM")
		return
	}

	appt, err := h.service.Reschedule(r.Context(), clinicID, apptID, date, startMin, endMin)
	if err != nil {
		h.fail(w, err, "reschedule")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Cancel releases a booked slot.
// POST /api/appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinic(w, r)
	if !ok {
		return
	}
	apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	if err := h.service.Cancel(r.Context(), clinicID, apptID); err != nil {
		h.fail(w, err, "cancel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": StatusCancelled})
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
	case errors.Is(err, ErrSlotConflict):
		// Expected outcome under concurrency; the caller decides
		// whether to pick another slot.
		writeError(w, http.StatusConflict, "slot already taken")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, schedule.ErrInvalidRange), errors.Is(err, schedule.ErrInvalidTimeFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("booking request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toResponse(a *Appointment) appointmentResponse {
	return appointmentResponse{
		ID:         a.ID.String(),
		StaffID:    a.StaffID.String(),
		PatientRef: a.PatientRef,
		Date:       a.Date.Format("2006-01-02"),
		Start:      schedule.FormatClock(a.StartMinutes),
		End:        schedule.FormatClock(a.EndMinutes),
		Status:     a.Status,
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
