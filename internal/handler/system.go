package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// SystemHandler serves the staff API: sessions, license administration,
// purchases, and admin accounts.
type SystemHandler struct {
	licenses  *service.LicenseService
	purchases *service.PurchaseService
	authSvc   *service.AuthService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(licenses *service.LicenseService, purchases *service.PurchaseService, authSvc *service.AuthService) *SystemHandler {
	return &SystemHandler{
		licenses:  licenses,
		purchases: purchases,
		authSvc:   authSvc,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	AdminID   string `json:"admin_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates an admin user and returns a JWT session token.
// POST /api/v1/system/admin/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, admin, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, service.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "Account is disabled")
		default:
			writeError(w, http.StatusInternalServerError, "Authentication error")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(h.authSvc.TokenTTL().Seconds()),
		AdminID:   admin.ID,
		Email:     admin.Email,
		Name:      admin.Name,
	})
}

// Logout is a no-op on the server side since JWTs are stateless. Clients
// should discard their token.
// DELETE /api/v1/system/admin/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

// ---------------------------------------------------------------------------
// License administration
// ---------------------------------------------------------------------------

// ListLicenses returns licenses newest first with their seat usage.
// GET /api/v1/system/license?email=&limit=&offset=
func (h *SystemHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	f := store.LicenseFilter{
		Email:  strings.TrimSpace(r.URL.Query().Get("email")),
		Limit:  clampInt(queryInt(r, "limit", defaultPageSize), 1, maxPageSize),
		Offset: max(queryInt(r, "offset", 0), 0),
	}

	licenses, err := h.licenses.ListLicenses(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list licenses")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse[model.LicenseSummary]{
		Resource: licenses,
		Meta: model.ResponseMeta{
			Count:  len(licenses),
			Limit:  f.Limit,
			Offset: f.Offset,
		},
	})
}

// CreateLicense issues a new license.
// POST /api/v1/system/license
func (h *SystemHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLicenseParams
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	lic, err := h.licenses.CreateLicense(r.Context(), req)
	if err != nil {
		h.writeAdminError(w, err, "Failed to create license")
		return
	}
	writeJSON(w, http.StatusCreated, lic)
}

// GetLicense returns one license with every activation row.
// GET /api/v1/system/license/{key}
func (h *SystemHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	detail, err := h.licenses.GetLicense(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeAdminError(w, err, "Failed to get license")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateLicense changes email, seat count, expiry, or notes.
// PATCH /api/v1/system/license/{key}
func (h *SystemHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateLicenseParams
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	lic, err := h.licenses.UpdateLicense(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		h.writeAdminError(w, err, "Failed to update license")
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

// RevokeLicense marks a license revoked.
// POST /api/v1/system/license/{key}/revoke
func (h *SystemHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	h.setRevoked(w, r, true)
}

// UnrevokeLicense reinstates a revoked license.
// POST /api/v1/system/license/{key}/unrevoke
func (h *SystemHandler) UnrevokeLicense(w http.ResponseWriter, r *http.Request) {
	h.setRevoked(w, r, false)
}

func (h *SystemHandler) setRevoked(w http.ResponseWriter, r *http.Request, revoked bool) {
	key := chi.URLParam(r, "key")
	if err := h.licenses.SetRevoked(r.Context(), key, revoked); err != nil {
		h.writeAdminError(w, err, "Failed to update license")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"is_revoked": revoked,
	})
}

// DeactivateMachine frees the seat held by one machine.
// DELETE /api/v1/system/license/{key}/activation/{machineID}
func (h *SystemHandler) DeactivateMachine(w http.ResponseWriter, r *http.Request) {
	err := h.licenses.ForceDeactivate(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "machineID"))
	if err != nil {
		h.writeAdminError(w, err, "Failed to deactivate machine")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ---------------------------------------------------------------------------
// Purchases
// ---------------------------------------------------------------------------

// ListPurchases returns purchases newest first.
// GET /api/v1/system/purchase?limit=&offset=
func (h *SystemHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultPageSize), 1, maxPageSize)
	offset := max(queryInt(r, "offset", 0), 0)

	purchases, err := h.purchases.ListPurchases(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list purchases")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse[model.Purchase]{
		Resource: purchases,
		Meta:     model.ResponseMeta{Count: len(purchases), Limit: limit, Offset: offset},
	})
}

type recordPurchaseRequest struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
}

// RecordPurchase stores a pending checkout session.
// POST /api/v1/system/purchase
func (h *SystemHandler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.CheckoutSessionID) == "" {
		writeError(w, http.StatusBadRequest, "checkout_session_id is required")
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	p, err := h.purchases.RecordPending(r.Context(), req.CheckoutSessionID, req.Amount, req.Currency)
	if err != nil {
		if errors.Is(err, service.ErrPurchaseExists) {
			writeError(w, http.StatusConflict, "Purchase already recorded: "+req.CheckoutSessionID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record purchase")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type completePurchaseRequest struct {
	Email string `json:"email"`
}

type completePurchaseResponse struct {
	Purchase *model.Purchase `json:"purchase"`
	License  *model.License  `json:"license"`
}

// CompletePurchase applies an externally confirmed payment and returns the
// license linked to the purchase. Repeated calls return the same license.
// POST /api/v1/system/purchase/{sessionID}/complete
func (h *SystemHandler) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	var req completePurchaseRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	p, lic, err := h.purchases.Complete(r.Context(), chi.URLParam(r, "sessionID"), true, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, "Purchase not found")
		case errors.Is(err, service.ErrMissingEmail):
			writeError(w, http.StatusBadRequest, "email is required: the purchase has no customer email")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to complete purchase")
		}
		return
	}
	writeJSON(w, http.StatusOK, completePurchaseResponse{Purchase: p, License: lic})
}

// ---------------------------------------------------------------------------
// Admin accounts
// ---------------------------------------------------------------------------

// ListAdmins returns every staff account. Password hashes are never
// serialized.
// GET /api/v1/system/admin
func (h *SystemHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.authSvc.ListAdmins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list admins")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse[model.Admin]{
		Resource: admins,
		Meta:     model.ResponseMeta{Count: len(admins)},
	})
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateAdmin registers a new staff account.
// POST /api/v1/system/admin
func (h *SystemHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin, err := h.authSvc.CreateAdmin(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "Admin already exists: "+req.Email)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create admin")
		}
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// writeAdminError maps service errors onto the admin error envelope.
func (h *SystemHandler) writeAdminError(w http.ResponseWriter, err error, fallback string) {
	if le, ok := asLicenseError(err); ok {
		status := http.StatusBadRequest
		if le.Code == service.CodeInvalidKey || le.Code == service.CodeNotActivated {
			status = http.StatusNotFound
		}
		writeError(w, status, le.Message, map[string]interface{}{"code": le.Code})
		return
	}
	switch {
	case errors.Is(err, service.ErrLicenseNotFound):
		writeError(w, http.StatusNotFound, "License not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, fallback+": conflict")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

