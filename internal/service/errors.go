package service

import "fmt"

// Error codes reported to licensing clients.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidKey       = "INVALID_KEY"
	CodeExpired          = "EXPIRED"
	CodeAlreadyActivated = "ALREADY_ACTIVATED"
	CodeLicenseRevoked   = "LICENSE_REVOKED"
	CodeNotActivated     = "NOT_ACTIVATED"
)

const (
	msgMissingFields    = "Missing required fields"
	msgInvalidKeyFormat = "License key format is invalid"
	msgKeyUnknown       = "License key does not exist"
	msgRevoked          = "This license has been revoked"
	msgExpired          = "This license has expired"
	msgSeatsTaken       = "This license is already activated on another machine"
	msgNotActivated     = "This license is not activated on this machine"
	msgLicenseNotFound  = "License not found"
	msgNoActiveSeat     = "No active activation found for this machine"
)

// LicenseError is a request or policy failure that the caller can act on.
// Any other error returned by the services is an infrastructure failure.
type LicenseError struct {
	Code    string
	Message string
}

func (e *LicenseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func licenseErr(code, message string) *LicenseError {
	return &LicenseError{Code: code, Message: message}
}
