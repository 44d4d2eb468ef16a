package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

func TestPurchaseStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.purchases.RecordPending(ctx, "cs_paid", 4900, "usd"); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	if _, err := env.purchases.RecordPending(ctx, "cs_unpaid", 4900, "usd"); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	env.confirmer["cs_paid"] = service.PaymentStatus{Paid: true, Email: "buyer@example.com"}

	t.Run("missing session id", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/purchase/status", nil)
		assertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("unknown session", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/purchase/status?session_id=cs_nope", nil)
		assertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("unpaid stays pending", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/purchase/status?session_id=cs_unpaid", nil)
		assertStatus(t, rr, http.StatusOK)

		var resp model.PurchaseStatusResponse
		decodeJSON(t, rr, &resp)
		if resp.Status != model.PurchasePending || resp.LicenseKey != "" {
			t.Errorf("expected pending without key, got %+v", resp)
		}
	})

	t.Run("paid completes once", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/purchase/status?session_id=cs_paid", nil)
		assertStatus(t, rr, http.StatusOK)

		var first model.PurchaseStatusResponse
		decodeJSON(t, rr, &first)
		if first.Status != model.PurchaseCompleted || first.LicenseKey == "" {
			t.Fatalf("expected completed with key, got %+v", first)
		}
		if first.Email != "buyer@example.com" {
			t.Errorf("email = %q", first.Email)
		}

		rr = env.do(t, "GET", "/api/v1/purchase/status?session_id=cs_paid", nil)
		var second model.PurchaseStatusResponse
		decodeJSON(t, rr, &second)
		if second.LicenseKey != first.LicenseKey {
			t.Errorf("repeated status must return the same key: %q vs %q", second.LicenseKey, first.LicenseKey)
		}

		licenses, err := env.licenses.ListLicenses(ctx, store.LicenseFilter{})
		if err != nil {
			t.Fatalf("ListLicenses: %v", err)
		}
		if len(licenses) != 1 {
			t.Errorf("expected exactly one license minted, got %d", len(licenses))
		}
	})
}

func TestOpenAPIEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil)
	assertStatus(t, rr, http.StatusOK)

	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	servers, _ := doc["servers"].([]interface{})
	if len(servers) != 1 {
		t.Fatalf("expected one server, got %v", doc["servers"])
	}
	if url := servers[0].(map[string]interface{})["url"]; url != "http://example.com" {
		t.Errorf("server url = %v, want http://example.com", url)
	}
}
