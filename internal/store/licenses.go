package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trailtrack/licensed/internal/model"
)

// ---------------------------------------------------------------------------
// License CRUD
// ---------------------------------------------------------------------------

const licenseColumns = `l.id, l.license_key, l.email, l.is_revoked, l.max_activations,
	l.expires_at, l.notes, l.created_at, l.updated_at`

// LicenseFilter narrows ListLicenses.
type LicenseFilter struct {
	Email  string // case-insensitive substring match
	Limit  int
	Offset int
}

// CreateLicense inserts a new license. ID, Key, CreatedAt, and UpdatedAt are
// populated on lic; MaxActivations defaults to model.DefaultMaxActivations.
func (s *Store) CreateLicense(ctx context.Context, lic *model.License) error {
	return insertLicense(ctx, s.db, lic)
}

// CreateLicense inserts a new license as part of the transaction.
func (t *Tx) CreateLicense(ctx context.Context, lic *model.License) error {
	return insertLicense(ctx, t.tx, lic)
}

func insertLicense(ctx context.Context, q sqlx.ExtContext, lic *model.License) error {
	now := time.Now().UTC()
	lic.ID = newID()
	if lic.Key == "" {
		lic.Key = uuid.NewString()
	}
	if lic.MaxActivations == 0 {
		lic.MaxActivations = model.DefaultMaxActivations
	}
	lic.CreatedAt = now
	lic.UpdatedAt = now

	const stmt = `INSERT INTO licenses
		(id, license_key, email, is_revoked, max_activations, expires_at, notes, created_at, updated_at)
		VALUES
		(:id, :license_key, :email, :is_revoked, :max_activations, :expires_at, :notes, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, q, stmt, lic); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

// GetLicenseByKey returns the license with the given canonical key.
func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	return getLicense(ctx, s.rdb, "l.license_key = ?", key)
}

// GetLicense returns the license with the given internal ID.
func (s *Store) GetLicense(ctx context.Context, id string) (*model.License, error) {
	return getLicense(ctx, s.rdb, "l.id = ?", id)
}

// GetLicense returns the license with the given internal ID.
func (t *Tx) GetLicense(ctx context.Context, id string) (*model.License, error) {
	return getLicense(ctx, t.tx, "l.id = ?", id)
}

func (t *Tx) lockLicense(ctx context.Context, key string) (*model.License, error) {
	return fetchLicense(ctx, t.tx, lockLicenseQuery(t.dialect), key)
}

// lockLicenseQuery selects a license by key and, outside SQLite, takes a
// row lock held until the transaction ends.
func lockLicenseQuery(d dialect) string {
	return d.rebind("SELECT " + licenseColumns + " FROM licenses l WHERE l.license_key = ?" + d.forUpdate)
}

func getLicense(ctx context.Context, q sqlx.ExtContext, where string, arg any) (*model.License, error) {
	return fetchLicense(ctx, q, q.Rebind("SELECT "+licenseColumns+" FROM licenses l WHERE "+where), arg)
}

func fetchLicense(ctx context.Context, q sqlx.ExtContext, query string, arg any) (*model.License, error) {
	var lic model.License
	if err := sqlx.GetContext(ctx, q, &lic, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &lic, nil
}

// ListLicenses returns licenses newest first, each with its active seat count.
func (s *Store) ListLicenses(ctx context.Context, f LicenseFilter) ([]model.LicenseSummary, error) {
	query := `SELECT ` + licenseColumns + `,
		(SELECT COUNT(*) FROM license_activations a
			WHERE a.license_id = l.id AND a.is_active = TRUE) AS active_activations
		FROM licenses l`
	var args []any
	if f.Email != "" {
		query += " WHERE LOWER(l.email) LIKE LOWER(?) ESCAPE '!'"
		args = append(args, "%"+escapeLike(f.Email)+"%")
	}
	query += " ORDER BY l.created_at DESC, l.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	licenses := []model.LicenseSummary{}
	if err := s.rdb.SelectContext(ctx, &licenses, s.rdb.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	return licenses, nil
}

// likeEscaper quotes LIKE wildcards with '!', which needs no special
// handling in any supported dialect's string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// GetLicenseDetail returns a license with its seat count and every
// activation row, oldest first.
func (s *Store) GetLicenseDetail(ctx context.Context, key string) (*model.LicenseDetail, error) {
	lic, err := s.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	activations, err := s.ListActivations(ctx, lic.ID)
	if err != nil {
		return nil, err
	}

	detail := &model.LicenseDetail{
		LicenseSummary: model.LicenseSummary{License: *lic},
		Activations:    activations,
	}
	for _, a := range activations {
		if a.IsActive {
			detail.ActiveActivations++
		}
	}
	return detail, nil
}

// UpdateLicense persists the mutable policy fields of lic (email, seat count,
// expiry, notes). Revocation has its own method.
func (s *Store) UpdateLicense(ctx context.Context, lic *model.License) error {
	return updateLicense(ctx, s.db, lic)
}

// UpdateLicense persists the mutable policy fields of lic as part of the
// transaction.
func (t *Tx) UpdateLicense(ctx context.Context, lic *model.License) error {
	return updateLicense(ctx, t.tx, lic)
}

func updateLicense(ctx context.Context, q sqlx.ExtContext, lic *model.License) error {
	lic.UpdatedAt = time.Now().UTC()

	const stmt = `UPDATE licenses SET
		email = :email, max_activations = :max_activations, expires_at = :expires_at,
		notes = :notes, updated_at = :updated_at
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, q, stmt, lic)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	return expectRow(result, "update license")
}

// SetLicenseRevoked sets or clears the revoked flag on the license with the
// given key.
func (s *Store) SetLicenseRevoked(ctx context.Context, key string, revoked bool) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE licenses SET is_revoked = ?, updated_at = ? WHERE license_key = ?"),
		revoked, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("set license revoked: %w", err)
	}
	return expectRow(result, "set license revoked")
}

// expectRow maps an update that touched nothing to ErrNotFound.
func expectRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// newID returns a time-ordered identifier for a new row.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
