package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if r.LicenseOutcomesTotal == nil {
		t.Error("LicenseOutcomesTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestRecordLicenseOutcome(t *testing.T) {
	r := NewRegistry()
	r.RecordLicenseOutcome("activate", "success")
	r.RecordLicenseOutcome("activate", "success")
	r.RecordLicenseOutcome("activate", "ALREADY_ACTIVATED")

	if got := testutil.ToFloat64(r.LicenseOutcomesTotal.WithLabelValues("activate", "success")); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.LicenseOutcomesTotal.WithLabelValues("activate", "ALREADY_ACTIVATED")); got != 1 {
		t.Errorf("already activated = %v, want 1", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("POST", "/api/license/activate", "200", 15*time.Millisecond)

	if got := testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("POST", "/api/license/activate", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordLicenseIssued("purchase")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `licensed_licenses_issued_total{source="purchase"} 1`) {
		t.Errorf("metrics output missing issued counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected Go runtime collector output")
	}
}
