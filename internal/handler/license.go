package handler

import (
	"net/http"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
)

const msgInvalidJSON = "Invalid JSON body"

// LicenseHandler serves the three endpoints called by the desktop client.
// They are unauthenticated: the license key and machine id are the only
// credentials. Request and policy failures are answered with HTTP 200 and a
// failure body; only infrastructure failures produce a 500. The service has
// already logged those with their cause.
type LicenseHandler struct {
	licenses *service.LicenseService
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(licenses *service.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// Activate binds a machine to a license.
// POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req service.ActivateParams
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, model.ActivateResponse{
			Error:   service.CodeInvalidRequest,
			Message: msgInvalidJSON,
		})
		return
	}

	lic, err := h.licenses.Activate(r.Context(), req)
	if err != nil {
		if le, ok := asLicenseError(err); ok {
			writeJSON(w, http.StatusOK, model.ActivateResponse{Error: le.Code, Message: le.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, model.ActivateResponse{
			Error:   codeServerError,
			Message: msgServerError,
		})
		return
	}

	writeJSON(w, http.StatusOK, model.ActivateResponse{
		Success: true,
		License: &model.LicenseInfo{Email: lic.Email},
	})
}

// Validate checks that a machine holds an active seat on a usable license.
// POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req service.MachineParams
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, model.ValidateResponse{
			Error:   service.CodeInvalidRequest,
			Message: msgInvalidJSON,
		})
		return
	}

	if err := h.licenses.Validate(r.Context(), req); err != nil {
		if le, ok := asLicenseError(err); ok {
			writeJSON(w, http.StatusOK, model.ValidateResponse{Error: le.Code, Message: le.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, model.ValidateResponse{
			Error:   codeServerError,
			Message: msgServerError,
		})
		return
	}

	writeJSON(w, http.StatusOK, model.ValidateResponse{Valid: true})
}

// Deactivate releases a machine's seat.
// POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req service.MachineParams
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, model.DeactivateResponse{Message: msgInvalidJSON})
		return
	}

	if err := h.licenses.Deactivate(r.Context(), req); err != nil {
		if le, ok := asLicenseError(err); ok {
			writeJSON(w, http.StatusOK, model.DeactivateResponse{Message: le.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, model.DeactivateResponse{Message: msgServerError})
		return
	}

	writeJSON(w, http.StatusOK, model.DeactivateResponse{Success: true})
}
