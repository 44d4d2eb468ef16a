package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
)

func activateJSON(t *testing.T, key, machine string) string {
	t.Helper()
	return toJSON(t, map[string]string{
		"license_key": key,
		"machine_id":  machine,
		"app_version": "2.4.1",
		"platform":    "macos",
	}).String()
}

func machineJSON(t *testing.T, key, machine string) string {
	t.Helper()
	return toJSON(t, map[string]string{
		"license_key": key,
		"machine_id":  machine,
	}).String()
}

// post sends a JSON string body to path.
func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, "POST", path, strings.NewReader(body))
}

// ---------------------------------------------------------------------------
// Activate
// ---------------------------------------------------------------------------

func TestActivate_Success(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, "buyer@example.com", 1)

	rr := env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-a"))
	assertStatus(t, rr, http.StatusOK)

	var resp model.ActivateResponse
	decodeJSON(t, rr, &resp)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.License == nil || resp.License.Email != "buyer@example.com" {
		t.Errorf("expected license email in response, got %+v", resp.License)
	}
	if resp.Error != "" || resp.Message != "" {
		t.Errorf("success body must not carry error fields: %+v", resp)
	}
}

func TestActivate_BodyShapeHasNoExtraFields(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, "buyer@example.com", 1)

	rr := env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-a"))
	want := `{"success":true,"license":{"email":"buyer@example.com"}}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestActivate_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	full := env.seedLicense(t, "full@example.com", 1)
	env.post(t, "/api/license/activate", activateJSON(t, full.Key, "machine-a"))

	revoked := env.seedLicense(t, "revoked@example.com", 1)
	if err := env.licenses.SetRevoked(ctx, revoked.Key, true); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	expired, err := env.licenses.CreateLicense(ctx, service.CreateLicenseParams{
		Email:     "expired@example.com",
		ExpiresAt: &past,
	})
	if err != nil {
		t.Fatalf("CreateLicense: %v", err)
	}

	tests := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{"missing fields", `{"license_key":"` + full.Key + `"}`, "INVALID_REQUEST", "Missing required fields"},
		{"invalid json", `{not json`, "INVALID_REQUEST", "Invalid JSON body"},
		{"bad key format", activateJSON(t, "not-a-key", "m"), "INVALID_KEY", "License key format is invalid"},
		{"unknown key", activateJSON(t, "00000000-0000-4000-8000-000000000000", "m"), "INVALID_KEY", "License key does not exist"},
		{"revoked", activateJSON(t, revoked.Key, "m"), "INVALID_KEY", "This license has been revoked"},
		{"expired", activateJSON(t, expired.Key, "m"), "EXPIRED", "This license has expired"},
		{"seat taken", activateJSON(t, full.Key, "machine-b"), "ALREADY_ACTIVATED", "This license is already activated on another machine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/license/activate", strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusOK)

			var resp model.ActivateResponse
			decodeJSON(t, rr, &resp)
			if resp.Success {
				t.Fatal("expected failure")
			}
			if resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
			if resp.Message != tt.message {
				t.Errorf("message = %q, want %q", resp.Message, tt.message)
			}
			if resp.License != nil {
				t.Errorf("failure must not disclose the license: %+v", resp.License)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, "buyer@example.com", 2)
	env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-a"))

	t.Run("active machine", func(t *testing.T) {
		rr := env.post(t, "/api/license/validate", machineJSON(t, lic.Key, "machine-a"))
		assertStatus(t, rr, http.StatusOK)
		if got := strings.TrimSpace(rr.Body.String()); got != `{"valid":true}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("other machine", func(t *testing.T) {
		rr := env.post(t, "/api/license/validate", machineJSON(t, lic.Key, "machine-b"))
		var resp model.ValidateResponse
		decodeJSON(t, rr, &resp)
		if resp.Valid || resp.Error != "NOT_ACTIVATED" {
			t.Errorf("expected NOT_ACTIVATED, got %+v", resp)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		if err := env.licenses.SetRevoked(context.Background(), lic.Key, true); err != nil {
			t.Fatalf("SetRevoked: %v", err)
		}
		t.Cleanup(func() { env.licenses.SetRevoked(context.Background(), lic.Key, false) })

		rr := env.post(t, "/api/license/validate", machineJSON(t, lic.Key, "machine-a"))
		var resp model.ValidateResponse
		decodeJSON(t, rr, &resp)
		if resp.Valid || resp.Error != "LICENSE_REVOKED" {
			t.Errorf("expected LICENSE_REVOKED, got %+v", resp)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rr := env.do(t, "POST", "/api/license/validate", strings.NewReader("[]"))
		assertStatus(t, rr, http.StatusOK)
		var resp model.ValidateResponse
		decodeJSON(t, rr, &resp)
		if resp.Valid || resp.Error != "INVALID_REQUEST" {
			t.Errorf("expected INVALID_REQUEST, got %+v", resp)
		}
	})
}

// ---------------------------------------------------------------------------
// Deactivate
// ---------------------------------------------------------------------------

func TestDeactivate(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, "buyer@example.com", 1)
	env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-a"))

	rr := env.post(t, "/api/license/deactivate", machineJSON(t, lic.Key, "machine-a"))
	assertStatus(t, rr, http.StatusOK)
	if got := strings.TrimSpace(rr.Body.String()); got != `{"success":true}` {
		t.Errorf("body = %s", got)
	}

	// Seat is free again for another machine.
	rr = env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-b"))
	var act model.ActivateResponse
	decodeJSON(t, rr, &act)
	if !act.Success {
		t.Errorf("expected seat to be reusable, got %+v", act)
	}

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"already inactive", toJSON(t, map[string]string{"license_key": lic.Key, "machine_id": "machine-a"}).String(), "No active activation found for this machine"},
		{"unknown key", toJSON(t, map[string]string{"license_key": "00000000-0000-4000-8000-000000000000", "machine_id": "m"}).String(), "License not found"},
		{"bad key", toJSON(t, map[string]string{"license_key": "xyz", "machine_id": "m"}).String(), "Invalid license key format"},
		{"missing fields", `{}`, "Missing required fields"},
		{"invalid json", `nope`, "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/license/deactivate", strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusOK)

			var resp map[string]interface{}
			decodeJSON(t, rr, &resp)
			if resp["success"] != false {
				t.Errorf("expected success=false, got %v", resp)
			}
			if resp["message"] != tt.message {
				t.Errorf("message = %v, want %q", resp["message"], tt.message)
			}
			if _, ok := resp["error"]; ok {
				t.Errorf("deactivate failures carry no error code: %v", resp)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Infrastructure failure
// ---------------------------------------------------------------------------

func TestLicensingEndpointsReportServerError(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, "buyer@example.com", 1)
	env.store.Close()

	rr := env.post(t, "/api/license/activate", activateJSON(t, lic.Key, "machine-a"))
	assertStatus(t, rr, http.StatusInternalServerError)
	var act model.ActivateResponse
	decodeJSON(t, rr, &act)
	if act.Success || act.Error != "SERVER_ERROR" {
		t.Errorf("expected SERVER_ERROR, got %+v", act)
	}

	rr = env.post(t, "/api/license/deactivate", machineJSON(t, lic.Key, "machine-a"))
	assertStatus(t, rr, http.StatusInternalServerError)
	var deact map[string]interface{}
	decodeJSON(t, rr, &deact)
	if deact["success"] != false || deact["message"] == "" {
		t.Errorf("unexpected body: %v", deact)
	}
}
