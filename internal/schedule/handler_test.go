package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veritahealth/clinic-platform/internal/tenancy"
)

func newTestRouter(f *fakeSources) http.Handler {
	h := NewHandler(newTestService(f), nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithClinicID(req.Context(), uuid.NewString())
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Mount("/staff", h.Routes())
	return r
}

func TestHandlerGetAvailability(t *testing.T) {
	router := newTestRouter(&fakeSources{pattern: weekdays})
	staffID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+staffID+"/availability?start=2025-06-10&end=2025-06-10&duration=30", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200 (body: %s)", rec.Code, rec.Body)
	}
	var payload struct {
		Days []json.RawMessage `json:"days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Days) != 1 {
		t.Fatalf("got %d days, want 1", len(payload.Days))
	}
	var day struct {
		IsWorkingDay bool              `json:"is_working_day"`
		Slots        []json.RawMessage `json:"available_slots"`
	}
	if err := json.Unmarshal(payload.Days[0], &day); err != nil {
		t.Fatalf("decode day: %v", err)
	}
	if !day.IsWorkingDay || len(day.Slots) != 16 {
		t.Fatalf("day = working:%v slots:%d, want working:true slots:16", day.IsWorkingDay, len(day.Slots))
	}
}

func TestHandlerRejectsBadClock(t *testing.T) {
	router := newTestRouter(&fakeSources{pattern: weekdays})
	staffID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+staffID+"/availability/check?date=2025-06-10&start=9:00&end=10:00", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 for non-padded clock", rec.Code)
	}
}

func TestHandlerRejectsBadDate(t *testing.T) {
	router := newTestRouter(&fakeSources{pattern: weekdays})
	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+uuid.NewString()+"/availability?start=June-10&end=2025-06-10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 for bad date", rec.Code)
	}
}

func TestHandlerSourceUnavailableMapsTo503(t *testing.T) {
	router := newTestRouter(&fakeSources{
		pattern: weekdays,
		apptErr: fmt.Errorf("%w: db timeout", ErrSourceUnavailable),
	})
	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+uuid.NewString()+"/availability?start=2025-06-10&end=2025-06-10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}

func TestHandlerQuickCheck(t *testing.T) {
	router := newTestRouter(&fakeSources{
		pattern: weekdays,
		appts:   []AppointmentSlot{{Date: tuesday, StartMinutes: 600, EndMinutes: 630}},
	})
	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+uuid.NewString()+"/availability/check?date=2025-06-10&start=10:15&end=10:45", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200 (body: %s)", rec.Code, rec.Body)
	}
	var result struct {
		Available bool `json:"available"`
		Conflicts []struct {
			Type  string `json:"type"`
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Available {
		t.Fatal("expected unavailable")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Type != "appointment" ||
		result.Conflicts[0].Start != "10:00" || result.Conflicts[0].End != "10:30" {
		t.Fatalf("conflicts = %+v", result.Conflicts)
	}
}

func TestHandlerNextSlot(t *testing.T) {
	router := newTestRouter(&fakeSources{pattern: weekdays})
	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+uuid.NewString()+"/availability/next?date=2025-06-10&preferred=16:45&duration=30", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var payload struct {
		Slot *json.RawMessage `json:"slot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Slot != nil {
		t.Fatalf("slot = %s, want null past the last aligned start", *payload.Slot)
	}
}

func TestHandlerRequiresClinicContext(t *testing.T) {
	h := NewHandler(newTestService(&fakeSources{pattern: weekdays}), nil)
	r := chi.NewRouter()
	r.Mount("/staff", h.Routes())

	req := httptest.NewRequest(http.MethodGet,
		"/staff/"+uuid.NewString()+"/availability?start=2025-06-10&end=2025-06-10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(context.Background()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 without clinic context", rec.Code)
	}
}
