package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veritahealth/clinic-platform/internal/appointments"
	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/internal/staff"
	"github.com/veritahealth/clinic-platform/internal/timeoff"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	AvailabilityHandler *schedule.Handler
	StaffHandler        *staff.Handler
	BookingHandler      *appointments.Handler
	TimeOffHandler      *timeoff.Handler
	MetricsHandler      http.Handler
}

// New creates the chi router with all routes configured. Everything
// under /api requires the clinic tenancy header.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(requestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(requireClinicID)
		// Roster routes are registered before the availability mount so
		// the specific pattern wins over the mount's wildcard.
		if cfg.StaffHandler != nil {
			api.Get("/staff/{staffID}/working-days", cfg.StaffHandler.GetWorkingDays)
			api.Put("/staff/{staffID}/working-days", cfg.StaffHandler.UpdateWorkingDays)
		}
		if cfg.AvailabilityHandler != nil {
			api.Mount("/staff", cfg.AvailabilityHandler.Routes())
		}
		if cfg.BookingHandler != nil {
			api.Mount("/appointments", cfg.BookingHandler.Routes())
		}
		if cfg.TimeOffHandler != nil {
			api.Mount("/timeoff", cfg.TimeOffHandler.Routes())
		}
	})

	return r
}
