package service

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// PaymentStatus is the payment provider's view of a checkout session.
type PaymentStatus struct {
	Paid     bool
	Email    string
	Amount   int64
	Currency string
}

// PaymentConfirmer answers whether checkout session S has been paid.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, sessionID string) (PaymentStatus, error)
}

// StripeConfirmer confirms checkout sessions against the Stripe API.
type StripeConfirmer struct {
	api *client.API
}

func NewStripeConfirmer(secretKey string) *StripeConfirmer {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeConfirmer{api: api}
}

func (c *StripeConfirmer) Confirm(ctx context.Context, sessionID string) (PaymentStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("retrieve checkout session: %w", err)
	}

	email := sess.CustomerEmail
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email = sess.CustomerDetails.Email
	}
	return PaymentStatus{
		Paid:     sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Email:    email,
		Amount:   sess.AmountTotal,
		Currency: string(sess.Currency),
	}, nil
}

// StaticConfirmer answers from a fixed table. Unknown sessions are unpaid.
type StaticConfirmer map[string]PaymentStatus

func (c StaticConfirmer) Confirm(_ context.Context, sessionID string) (PaymentStatus, error) {
	return c[sessionID], nil
}
