package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritahealth/clinic-platform/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger:         logging.New("error"),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestMetricsMounted(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAPIRequiresClinicHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/staff/abc/availability", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without %s", rec.Code, clinicHeader)
	}
}

func TestAPIPassesWithClinicHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/staff/abc/availability", nil)
	req.Header.Set(clinicHeader, "clinic-1")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	// No availability handler is mounted here; the tenancy gate letting
	// the request through shows up as a routing 404, not a 400.
	if rec.Code == http.StatusBadRequest {
		t.Fatalf("status = %d, tenancy middleware rejected a valid header", rec.Code)
	}
}

func TestBlankClinicHeaderRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/staff/abc/availability", nil)
	req.Header.Set(clinicHeader, "   ")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for blank header", rec.Code)
	}
}
