package model

import "time"

// DefaultMaxActivations is the seat count given to licenses created without
// an explicit value.
const DefaultMaxActivations = 1

// License is a purchased right to run the desktop application on a bounded
// number of machines. The Key is a random (version 4) UUID in canonical form
// and never changes once issued.
type License struct {
	ID             string     `json:"id" db:"id"`
	Key            string     `json:"license_key" db:"license_key"`
	Email          string     `json:"email" db:"email"`
	IsRevoked      bool       `json:"is_revoked" db:"is_revoked"`
	MaxActivations int        `json:"max_activations" db:"max_activations"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Notes          string     `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the license carries an expiry strictly before now.
// Licenses without an expiry are perpetual.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// CanActivate reports whether another machine may take a seat given the
// number of currently active activations.
func (l *License) CanActivate(activeCount int) bool {
	return activeCount < l.MaxActivations
}

// LicenseSummary is a License plus its derived active seat count, as shown in
// administrative listings.
type LicenseSummary struct {
	License
	ActiveActivations int `json:"active_activations" db:"active_activations"`
}

// Activation binds one seat of a license to a machine. A (license, machine)
// pair has at most one row, which is toggled rather than recreated.
type Activation struct {
	ID              string     `json:"id" db:"id"`
	LicenseID       string     `json:"license_id" db:"license_id"`
	MachineID       string     `json:"machine_id" db:"machine_id"`
	AppVersion      string     `json:"app_version" db:"app_version"`
	Platform        string     `json:"platform" db:"platform"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	ActivatedAt     time.Time  `json:"activated_at" db:"activated_at"`
	LastValidatedAt time.Time  `json:"last_validated_at" db:"last_validated_at"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// LicenseDetail is a license with every activation row recorded against it.
type LicenseDetail struct {
	LicenseSummary
	Activations []Activation `json:"activations"`
}
