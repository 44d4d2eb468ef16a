package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store     *store.Store
	authSvc   *service.AuthService
	licenses  *service.LicenseService
	purchases *service.PurchaseService
	confirmer service.StaticConfirmer
	router    chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store, the
// services, and a Chi router with routes mounted (no auth middleware).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(store.Options{}) // in-memory SQLite
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := service.NewAuthService(st, testJWTSecret, time.Hour)
	licenses := service.NewLicenseService(st, logger)
	confirmer := service.StaticConfirmer{}
	purchases := service.NewPurchaseService(st, licenses, confirmer, logger)

	licHandler := NewLicenseHandler(licenses)
	purchaseHandler := NewPurchaseHandler(purchases)
	sysHandler := NewSystemHandler(licenses, purchases, authSvc)

	r := chi.NewRouter()
	r.Route("/api/license", func(r chi.Router) {
		r.Post("/activate", licHandler.Activate)
		r.Post("/validate", licHandler.Validate)
		r.Post("/deactivate", licHandler.Deactivate)
	})
	r.Get("/api/v1/purchase/status", purchaseHandler.Status)
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeSpec)
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Post("/admin/session", sysHandler.Login)
		r.Delete("/admin/session", sysHandler.Logout)

		r.Get("/license", sysHandler.ListLicenses)
		r.Post("/license", sysHandler.CreateLicense)
		r.Get("/license/{key}", sysHandler.GetLicense)
		r.Patch("/license/{key}", sysHandler.UpdateLicense)
		r.Post("/license/{key}/revoke", sysHandler.RevokeLicense)
		r.Post("/license/{key}/unrevoke", sysHandler.UnrevokeLicense)
		r.Delete("/license/{key}/activation/{machineID}", sysHandler.DeactivateMachine)

		r.Get("/purchase", sysHandler.ListPurchases)
		r.Post("/purchase", sysHandler.RecordPurchase)
		r.Post("/purchase/{sessionID}/complete", sysHandler.CompletePurchase)

		r.Get("/admin", sysHandler.ListAdmins)
		r.Post("/admin", sysHandler.CreateAdmin)
	})

	return &testEnv{
		store:     st,
		authSvc:   authSvc,
		licenses:  licenses,
		purchases: purchases,
		confirmer: confirmer,
		router:    r,
	}
}

// seedAdmin creates a default admin account and returns it.
func (e *testEnv) seedAdmin(t *testing.T) *model.Admin {
	t.Helper()
	admin, err := e.authSvc.CreateAdmin(context.Background(), "admin@example.com", "Test Admin", testPassword)
	if err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin
}

// seedLicense issues a license with the given seat count.
func (e *testEnv) seedLicense(t *testing.T, email string, maxActivations int) *model.License {
	t.Helper()
	lic, err := e.licenses.CreateLicense(context.Background(), service.CreateLicenseParams{
		Email:          email,
		MaxActivations: maxActivations,
	})
	if err != nil {
		t.Fatalf("seedLicense: %v", err)
	}
	return lic
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
