package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
)

// PurchaseHandler serves the buyer-facing purchase status endpoint.
type PurchaseHandler struct {
	purchases *service.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchases *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// Status reports the state of a checkout, completing it through the bridge
// when the payment provider confirms it has been paid.
// GET /api/v1/purchase/status?session_id=...
func (h *PurchaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	p, lic, err := h.purchases.Status(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, "Purchase not found")
		case errors.Is(err, service.ErrMissingEmail):
			writeError(w, http.StatusUnprocessableEntity, "Payment confirmed but no customer email is known")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to check purchase status")
		}
		return
	}

	writeJSON(w, http.StatusOK, purchaseStatus(p, lic))
}

func purchaseStatus(p *model.Purchase, lic *model.License) model.PurchaseStatusResponse {
	resp := model.PurchaseStatusResponse{Status: p.Status, Email: p.CustomerEmail}
	if lic != nil {
		resp.Status = model.PurchaseCompleted
		resp.Email = lic.Email
		resp.LicenseKey = lic.Key
	}
	return resp
}
