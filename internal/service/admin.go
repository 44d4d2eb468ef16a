package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/store"
)

// ErrLicenseNotFound is returned by the staff operations for unknown keys.
var ErrLicenseNotFound = errors.New("license not found")

// CreateLicenseParams describes a license issued by staff.
type CreateLicenseParams struct {
	Email          string     `json:"email" validate:"required,email,max=254"`
	MaxActivations int        `json:"max_activations" validate:"gte=0"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Notes          string     `json:"notes"`
}

// UpdateLicenseParams changes policy fields of an existing license. Nil
// fields are left as they are; ClearExpiry makes the license perpetual.
type UpdateLicenseParams struct {
	Email          *string    `json:"email,omitempty" validate:"omitempty,email,max=254"`
	MaxActivations *int       `json:"max_activations,omitempty" validate:"omitempty,gte=1"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ClearExpiry    bool       `json:"clear_expiry,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// NewLicense builds an unsaved license for email with the configured
// defaults: not revoked, default seat count, no expiry.
func (s *LicenseService) NewLicense(email string) *model.License {
	return &model.License{
		Email:          strings.TrimSpace(email),
		MaxActivations: s.defaultMax,
	}
}

// CreateLicense issues a new license.
func (s *LicenseService) CreateLicense(ctx context.Context, p CreateLicenseParams) (*model.License, error) {
	p.Email = strings.TrimSpace(p.Email)
	if err := checkStruct(p); err != nil {
		return nil, err
	}
	lic := s.NewLicense(p.Email)
	if p.MaxActivations > 0 {
		lic.MaxActivations = p.MaxActivations
	}
	if p.ExpiresAt != nil {
		t := p.ExpiresAt.UTC()
		lic.ExpiresAt = &t
	}
	lic.Notes = p.Notes

	if err := s.store.CreateLicense(ctx, lic); err != nil {
		return nil, err
	}
	s.recorder.RecordLicenseIssued("admin")
	s.logger.Info("license created", "license_key", lic.Key, "max_activations", lic.MaxActivations)
	return lic, nil
}

// GetLicense returns a license with its activations. key may be in any
// textual UUID form.
func (s *LicenseService) GetLicense(ctx context.Context, key string) (*model.LicenseDetail, error) {
	canonical, ok := CanonicalKey(key)
	if !ok {
		return nil, ErrLicenseNotFound
	}
	detail, err := s.store.GetLicenseDetail(ctx, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLicenseNotFound
	}
	return detail, err
}

// ListLicenses returns licenses newest first.
func (s *LicenseService) ListLicenses(ctx context.Context, f store.LicenseFilter) ([]model.LicenseSummary, error) {
	return s.store.ListLicenses(ctx, f)
}

// UpdateLicense applies p to the license. Lowering MaxActivations below the
// number of machines currently active is refused so the seat limit holds
// at every instant; deactivate machines first.
func (s *LicenseService) UpdateLicense(ctx context.Context, key string, p UpdateLicenseParams) (*model.License, error) {
	canonical, ok := CanonicalKey(key)
	if !ok {
		return nil, ErrLicenseNotFound
	}
	if err := checkStruct(p); err != nil {
		return nil, err
	}

	var updated *model.License
	err := s.store.WithLicenseLock(ctx, canonical, func(tx *store.Tx, lic *model.License) error {
		if p.Email != nil {
			lic.Email = strings.TrimSpace(*p.Email)
		}
		if p.MaxActivations != nil {
			active, err := tx.CountActiveActivations(ctx, lic.ID, "")
			if err != nil {
				return err
			}
			if *p.MaxActivations < active {
				return licenseErr(CodeInvalidRequest,
					"max_activations is below the number of active machines")
			}
			lic.MaxActivations = *p.MaxActivations
		}
		switch {
		case p.ClearExpiry:
			lic.ExpiresAt = nil
		case p.ExpiresAt != nil:
			t := p.ExpiresAt.UTC()
			lic.ExpiresAt = &t
		}
		if p.Notes != nil {
			lic.Notes = *p.Notes
		}
		if err := tx.UpdateLicense(ctx, lic); err != nil {
			return err
		}
		updated = lic
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("license updated", "license_key", updated.Key)
	return updated, nil
}

// SetRevoked revokes or reinstates a license. Activation rows are left
// untouched; a revoked license simply fails activation and validation.
func (s *LicenseService) SetRevoked(ctx context.Context, key string, revoked bool) error {
	canonical, ok := CanonicalKey(key)
	if !ok {
		return ErrLicenseNotFound
	}
	if err := s.store.SetLicenseRevoked(ctx, canonical, revoked); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLicenseNotFound
		}
		return err
	}
	s.logger.Info("license revocation changed", "license_key", canonical, "revoked", revoked)
	return nil
}

// ForceDeactivate frees a machine's seat on behalf of the license holder.
// It follows the client deactivation rules but is recorded under its own
// operation label.
func (s *LicenseService) ForceDeactivate(ctx context.Context, key, machineID string) error {
	return s.deactivate(ctx, opForceDeactivate, MachineParams{LicenseKey: key, MachineID: machineID})
}
