package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/store"
)

var (
	// ErrPurchaseNotFound is returned for an unknown checkout session.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrPurchaseExists is returned when a checkout session is recorded twice.
	ErrPurchaseExists = errors.New("purchase already recorded")

	// ErrMissingEmail is returned when a paid purchase has no customer email
	// to issue the license to.
	ErrMissingEmail = errors.New("paid purchase has no customer email")
)

// PurchaseService records checkouts and turns completed ones into licenses.
type PurchaseService struct {
	store     *store.Store
	licenses  *LicenseService
	confirmer PaymentConfirmer
	logger    *slog.Logger
}

// NewPurchaseService wires the bridge. confirmer may be nil, in which case
// pending purchases are only completed through Complete.
func NewPurchaseService(st *store.Store, licenses *LicenseService, confirmer PaymentConfirmer, logger *slog.Logger) *PurchaseService {
	return &PurchaseService{
		store:     st,
		licenses:  licenses,
		confirmer: confirmer,
		logger:    logger,
	}
}

// RecordPending stores a newly created checkout session.
func (s *PurchaseService) RecordPending(ctx context.Context, sessionID string, amount int64, currency string) (*model.Purchase, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("checkout session id is required")
	}
	p := &model.Purchase{
		CheckoutSessionID: sessionID,
		Amount:            amount,
		Currency:          strings.ToLower(currency),
		Status:            model.PurchasePending,
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrPurchaseExists
		}
		return nil, err
	}
	return p, nil
}

// Complete applies an externally confirmed payment result to a purchase.
//
// When paid is false nothing changes. When the purchase already has a
// license, that license is returned and nothing changes, so repeated calls
// are safe. Otherwise a license with default policy is minted for email,
// linked to the purchase, and the purchase is marked completed, all in one
// transaction.
func (s *PurchaseService) Complete(ctx context.Context, sessionID string, paid bool, email string) (*model.Purchase, *model.License, error) {
	var (
		purchase *model.Purchase
		lic      *model.License
		minted   bool
	)
	err := s.store.WithPurchaseLock(ctx, sessionID, func(tx *store.Tx, p *model.Purchase) error {
		purchase = p
		if p.LicenseID != nil {
			existing, err := tx.GetLicense(ctx, *p.LicenseID)
			if err != nil {
				return fmt.Errorf("load purchase license: %w", err)
			}
			lic = existing
			return nil
		}
		if !paid {
			return nil
		}

		email = strings.TrimSpace(email)
		if email == "" {
			email = p.CustomerEmail
		}
		if email == "" {
			return ErrMissingEmail
		}

		lic = s.licenses.NewLicense(email)
		if err := tx.CreateLicense(ctx, lic); err != nil {
			return err
		}
		p.Status = model.PurchaseCompleted
		p.CustomerEmail = email
		p.LicenseID = &lic.ID
		minted = true
		return tx.SavePurchase(ctx, p)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if minted {
		s.licenses.recorder.RecordLicenseIssued("purchase")
		s.logger.Info("license issued for purchase", "session_id", sessionID, "license_key", lic.Key)
	}
	return purchase, lic, nil
}

// Status reports a purchase to the buyer. A pending purchase is first
// confirmed with the payment provider, and completed through the bridge if
// it has been paid.
func (s *PurchaseService) Status(ctx context.Context, sessionID string) (*model.Purchase, *model.License, error) {
	p, err := s.store.GetPurchaseBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrPurchaseNotFound
		}
		return nil, nil, err
	}

	if p.IsCompleted() || s.confirmer == nil {
		var lic *model.License
		if p.LicenseID != nil {
			if lic, err = s.store.GetLicense(ctx, *p.LicenseID); err != nil {
				return nil, nil, err
			}
		}
		return p, lic, nil
	}

	status, err := s.confirmer.Confirm(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("confirm payment: %w", err)
	}
	return s.Complete(ctx, sessionID, status.Paid, status.Email)
}

// ListPurchases returns purchases newest first.
func (s *PurchaseService) ListPurchases(ctx context.Context, limit, offset int) ([]model.Purchase, error) {
	return s.store.ListPurchases(ctx, limit, offset)
}
