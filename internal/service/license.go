package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/store"
)

// Policy is the standing of a license at a given instant, independent of
// any machine. Each operation maps it to its own error vocabulary.
type Policy int

const (
	PolicyOK Policy = iota
	PolicyRevoked
	PolicyExpired
)

func checkPolicy(lic *model.License, now time.Time) Policy {
	switch {
	case lic.IsRevoked:
		return PolicyRevoked
	case lic.IsExpired(now):
		return PolicyExpired
	}
	return PolicyOK
}

// Recorder receives the outcome of every licensing call and every license
// issued. The metrics registry implements it.
type Recorder interface {
	RecordLicenseOutcome(op, outcome string)
	RecordLicenseIssued(source string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLicenseOutcome(string, string) {}
func (nopRecorder) RecordLicenseIssued(string)          {}

// ActivateParams is the body of an activation request.
type ActivateParams struct {
	LicenseKey string `json:"license_key" validate:"required"`
	MachineID  string `json:"machine_id" validate:"required,max=64"`
	AppVersion string `json:"app_version" validate:"required,max=20"`
	Platform   string `json:"platform" validate:"required,max=20"`
}

// MachineParams identifies one machine's seat under a license. It is the
// body of validate and deactivate requests.
type MachineParams struct {
	LicenseKey string `json:"license_key" validate:"required"`
	MachineID  string `json:"machine_id" validate:"required,max=64"`
}

// LicenseService implements activation, validation, and deactivation of
// machine seats, plus the staff operations on licenses.
type LicenseService struct {
	store      *store.Store
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
	defaultMax int
}

// Option customizes a LicenseService.
type Option func(*LicenseService)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LicenseService) { s.now = now }
}

// WithRecorder reports call outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *LicenseService) { s.recorder = r }
}

// WithDefaultMaxActivations sets the seat count of licenses created without
// an explicit one.
func WithDefaultMaxActivations(n int) Option {
	return func(s *LicenseService) {
		if n > 0 {
			s.defaultMax = n
		}
	}
}

func NewLicenseService(st *store.Store, logger *slog.Logger, opts ...Option) *LicenseService {
	s := &LicenseService{
		store:      st,
		logger:     logger,
		recorder:   nopRecorder{},
		now:        time.Now,
		defaultMax: model.DefaultMaxActivations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	opActivate   = "activate"
	opValidate   = "validate"
	opDeactivate = "deactivate"
	// staff deactivations are counted apart from client calls
	opForceDeactivate = "force_deactivate"
)

// finish records the outcome of op and logs failures. It returns err so
// callers can `return s.finish(...)`.
func (s *LicenseService) finish(op string, err error, attrs ...any) error {
	if err == nil {
		s.recorder.RecordLicenseOutcome(op, "success")
		return nil
	}
	var le *LicenseError
	if errors.As(err, &le) {
		outcome := le.Code
		if outcome == "" {
			outcome = "failure"
		}
		s.recorder.RecordLicenseOutcome(op, outcome)
		s.logger.Debug("license "+op+" denied", append(attrs, "code", le.Code, "reason", le.Message)...)
		return err
	}
	s.recorder.RecordLicenseOutcome(op, "error")
	s.logger.Error("license "+op+" failed", append(attrs, "error", err)...)
	return fmt.Errorf("%s: %w", op, err)
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

// ---------------------------------------------------------------------------
// Client operations
// ---------------------------------------------------------------------------

// Activate takes (or refreshes) a seat for a machine. On success it returns
// the license so the caller can echo its email.
//
// The seat check and the row write happen while the license row is locked,
// so concurrent activations of one license never exceed MaxActivations.
// A machine that is already active is never blocked by its own seat.
func (s *LicenseService) Activate(ctx context.Context, p ActivateParams) (*model.License, error) {
	trimAll(&p.LicenseKey, &p.MachineID, &p.AppVersion, &p.Platform)
	attrs := []any{"license_key", p.LicenseKey, "machine_id", p.MachineID}

	if err := checkStruct(p); err != nil {
		return nil, s.finish(opActivate, err, attrs...)
	}
	key, ok := CanonicalKey(p.LicenseKey)
	if !ok {
		return nil, s.finish(opActivate, licenseErr(CodeInvalidKey, msgInvalidKeyFormat), attrs...)
	}

	now := s.now().UTC()
	var activated *model.License
	err := s.store.WithLicenseLock(ctx, key, func(tx *store.Tx, lic *model.License) error {
		switch checkPolicy(lic, now) {
		case PolicyRevoked:
			// Indistinguishable from an unknown key for unauthenticated callers.
			return licenseErr(CodeInvalidKey, msgRevoked)
		case PolicyExpired:
			return licenseErr(CodeExpired, msgExpired)
		}

		act, err := tx.FindActivation(ctx, lic.ID, p.MachineID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			active, err := tx.CountActiveActivations(ctx, lic.ID, "")
			if err != nil {
				return err
			}
			if !lic.CanActivate(active) {
				return licenseErr(CodeAlreadyActivated, msgSeatsTaken)
			}
			act = &model.Activation{
				LicenseID:       lic.ID,
				MachineID:       p.MachineID,
				AppVersion:      p.AppVersion,
				Platform:        p.Platform,
				IsActive:        true,
				ActivatedAt:     now,
				LastValidatedAt: now,
			}
			if err := tx.InsertActivation(ctx, act); err != nil {
				return err
			}

		case err != nil:
			return err

		default:
			if !act.IsActive {
				// Reactivation: count the other machines, never this row.
				active, err := tx.CountActiveActivations(ctx, lic.ID, act.ID)
				if err != nil {
					return err
				}
				if !lic.CanActivate(active) {
					return licenseErr(CodeAlreadyActivated, msgSeatsTaken)
				}
				act.IsActive = true
				act.DeactivatedAt = nil
			}
			act.AppVersion = p.AppVersion
			act.Platform = p.Platform
			act.LastValidatedAt = now
			if err := tx.SaveActivation(ctx, act); err != nil {
				return err
			}
		}

		activated = lic
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		err = licenseErr(CodeInvalidKey, msgKeyUnknown)
	}
	if err != nil {
		return nil, s.finish(opActivate, err, attrs...)
	}
	s.finish(opActivate, nil)
	s.logger.Info("license activated", attrs...)
	return activated, nil
}

// Validate confirms a machine still holds an active seat and refreshes its
// last-seen timestamp. It never changes activation state.
func (s *LicenseService) Validate(ctx context.Context, p MachineParams) error {
	trimAll(&p.LicenseKey, &p.MachineID)
	attrs := []any{"license_key", p.LicenseKey, "machine_id", p.MachineID}

	if err := checkStruct(p); err != nil {
		return s.finish(opValidate, err, attrs...)
	}
	key, ok := CanonicalKey(p.LicenseKey)
	if !ok {
		return s.finish(opValidate, licenseErr(CodeInvalidKey, msgInvalidKeyFormat), attrs...)
	}

	lic, err := s.store.GetLicenseByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = licenseErr(CodeInvalidKey, msgKeyUnknown)
		}
		return s.finish(opValidate, err, attrs...)
	}

	now := s.now().UTC()
	switch checkPolicy(lic, now) {
	case PolicyRevoked:
		return s.finish(opValidate, licenseErr(CodeLicenseRevoked, msgRevoked), attrs...)
	case PolicyExpired:
		return s.finish(opValidate, licenseErr(CodeExpired, msgExpired), attrs...)
	}

	touched, err := s.store.TouchActivation(ctx, lic.ID, p.MachineID, now)
	if err != nil {
		return s.finish(opValidate, err, attrs...)
	}
	if !touched {
		return s.finish(opValidate, licenseErr(CodeNotActivated, msgNotActivated), attrs...)
	}
	return s.finish(opValidate, nil)
}

// Deactivate releases a machine's seat. Revoked and expired licenses can
// still be deactivated; only key format and existence are checked.
func (s *LicenseService) Deactivate(ctx context.Context, p MachineParams) error {
	return s.deactivate(ctx, opDeactivate, p)
}

func (s *LicenseService) deactivate(ctx context.Context, op string, p MachineParams) error {
	trimAll(&p.LicenseKey, &p.MachineID)
	attrs := []any{"license_key", p.LicenseKey, "machine_id", p.MachineID}

	if err := checkStruct(p); err != nil {
		return s.finish(op, err, attrs...)
	}
	key, ok := CanonicalKey(p.LicenseKey)
	if !ok {
		return s.finish(op, licenseErr(CodeInvalidKey, "Invalid license key format"), attrs...)
	}

	lic, err := s.store.GetLicenseByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = licenseErr(CodeInvalidKey, msgLicenseNotFound)
		}
		return s.finish(op, err, attrs...)
	}

	released, err := s.store.DeactivateActivation(ctx, lic.ID, p.MachineID, s.now().UTC())
	if err != nil {
		return s.finish(op, err, attrs...)
	}
	if !released {
		return s.finish(op, licenseErr(CodeNotActivated, msgNoActiveSeat), attrs...)
	}
	s.logger.Info("license deactivated", append(attrs, "operation", op)...)
	return s.finish(op, nil)
}
