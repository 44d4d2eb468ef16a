package model

import "time"

// Purchase statuses.
const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
)

// Purchase records a one-time checkout with the payment provider. LicenseID
// is set exactly once, when the purchase is completed and a license minted.
type Purchase struct {
	ID                string    `json:"id" db:"id"`
	CheckoutSessionID string    `json:"checkout_session_id" db:"checkout_session_id"`
	Amount            int64     `json:"amount" db:"amount"` // minor units
	Currency          string    `json:"currency" db:"currency"`
	Status            string    `json:"status" db:"status"`
	CustomerEmail     string    `json:"customer_email,omitempty" db:"customer_email"`
	LicenseID         *string   `json:"license_id,omitempty" db:"license_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// IsCompleted reports whether the purchase has been paid for.
func (p *Purchase) IsCompleted() bool {
	return p.Status == PurchaseCompleted
}
