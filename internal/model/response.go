package model

// ListResponse is the standard envelope for admin list endpoints.
type ListResponse[T any] struct {
	Resource []T          `json:"resource"`
	Meta     ResponseMeta `json:"meta"`
}

// ResponseMeta contains pagination information for list responses.
type ResponseMeta struct {
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse is the standard envelope for admin API error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ---------------------------------------------------------------------------
// Licensing endpoint bodies
// ---------------------------------------------------------------------------

// LicenseInfo is the subset of a license disclosed to an activating client.
type LicenseInfo struct {
	Email string `json:"email"`
}

// ActivateResponse is the body returned by the activate endpoint.
type ActivateResponse struct {
	Success bool         `json:"success"`
	License *LicenseInfo `json:"license,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ValidateResponse is the body returned by the validate endpoint.
type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeactivateResponse is the body returned by the deactivate endpoint. It has
// no error code, only a human readable message on failure.
type DeactivateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PurchaseStatusResponse reports the state of a checkout to the buyer.
type PurchaseStatusResponse struct {
	Status     string `json:"status"`
	Email      string `json:"email,omitempty"`
	LicenseKey string `json:"license_key,omitempty"`
}
