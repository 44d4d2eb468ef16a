package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trailtrack/licensed/internal/model"
)

// ---------------------------------------------------------------------------
// Activation ledger
// ---------------------------------------------------------------------------

// FindActivation returns the activation row for (licenseID, machineID)
// whether or not it is active.
func (t *Tx) FindActivation(ctx context.Context, licenseID, machineID string) (*model.Activation, error) {
	var a model.Activation
	query := t.tx.Rebind("SELECT * FROM license_activations WHERE license_id = ? AND machine_id = ?")
	if err := t.tx.GetContext(ctx, &a, query, licenseID, machineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find activation: %w", err)
	}
	return &a, nil
}

// CountActiveActivations counts the active rows of a license other than
// excludeID. Pass an empty excludeID to count every active row.
func (t *Tx) CountActiveActivations(ctx context.Context, licenseID, excludeID string) (int, error) {
	return countActive(ctx, t.tx, licenseID, excludeID)
}

// CountActiveActivations counts the active rows of a license.
func (s *Store) CountActiveActivations(ctx context.Context, licenseID string) (int, error) {
	return countActive(ctx, s.rdb, licenseID, "")
}

func countActive(ctx context.Context, q sqlx.ExtContext, licenseID, excludeID string) (int, error) {
	var n int
	query := q.Rebind(`SELECT COUNT(*) FROM license_activations
		WHERE license_id = ? AND is_active = TRUE AND id <> ?`)
	if err := sqlx.GetContext(ctx, q, &n, query, licenseID, excludeID); err != nil {
		return 0, fmt.Errorf("count active activations: %w", err)
	}
	return n, nil
}

// InsertActivation records the first activation of a machine under a
// license. ID is populated on a.
func (t *Tx) InsertActivation(ctx context.Context, a *model.Activation) error {
	a.ID = newID()

	const stmt = `INSERT INTO license_activations
		(id, license_id, machine_id, app_version, platform, is_active,
		 activated_at, last_validated_at, deactivated_at)
		VALUES
		(:id, :license_id, :machine_id, :app_version, :platform, :is_active,
		 :activated_at, :last_validated_at, :deactivated_at)`

	if _, err := t.tx.NamedExecContext(ctx, stmt, a); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

// SaveActivation writes back the mutable fields of an existing row.
// activated_at is never rewritten.
func (t *Tx) SaveActivation(ctx context.Context, a *model.Activation) error {
	const stmt = `UPDATE license_activations SET
		app_version = :app_version, platform = :platform, is_active = :is_active,
		last_validated_at = :last_validated_at, deactivated_at = :deactivated_at
		WHERE id = :id`

	result, err := t.tx.NamedExecContext(ctx, stmt, a)
	if err != nil {
		return fmt.Errorf("save activation: %w", err)
	}
	return expectRow(result, "save activation")
}

// ListActivations returns every activation row of a license, oldest first.
func (s *Store) ListActivations(ctx context.Context, licenseID string) ([]model.Activation, error) {
	activations := []model.Activation{}
	query := s.rdb.Rebind("SELECT * FROM license_activations WHERE license_id = ? ORDER BY activated_at, id")
	if err := s.rdb.SelectContext(ctx, &activations, query, licenseID); err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	return activations, nil
}

// TouchActivation refreshes last_validated_at on the active row for
// (licenseID, machineID). It reports false when no active row exists.
func (s *Store) TouchActivation(ctx context.Context, licenseID, machineID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE license_activations
		SET last_validated_at = ?
		WHERE license_id = ? AND machine_id = ? AND is_active = TRUE`),
		at.UTC(), licenseID, machineID)
	if err != nil {
		return false, fmt.Errorf("touch activation: %w", err)
	}
	return affectedOne(result, "touch activation")
}

// DeactivateActivation flips the active row for (licenseID, machineID) to
// inactive, freeing its seat. It reports false when no active row exists.
func (s *Store) DeactivateActivation(ctx context.Context, licenseID, machineID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE license_activations
		SET is_active = FALSE, deactivated_at = ?
		WHERE license_id = ? AND machine_id = ? AND is_active = TRUE`),
		at.UTC(), licenseID, machineID)
	if err != nil {
		return false, fmt.Errorf("deactivate activation: %w", err)
	}
	return affectedOne(result, "deactivate activation")
}

func affectedOne(result sql.Result, op string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}
