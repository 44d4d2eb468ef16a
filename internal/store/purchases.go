package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trailtrack/licensed/internal/model"
)

// ---------------------------------------------------------------------------
// Purchases
// ---------------------------------------------------------------------------

// CreatePurchase records a checkout session. Status defaults to pending.
// ErrConflict is returned if the session is already recorded.
func (s *Store) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	now := time.Now().UTC()
	p.ID = newID()
	if p.Status == "" {
		p.Status = model.PurchasePending
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	const stmt = `INSERT INTO purchases
		(id, checkout_session_id, amount, currency, status, customer_email, license_id, created_at, updated_at)
		VALUES
		(:id, :checkout_session_id, :amount, :currency, :status, :customer_email, :license_id, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, stmt, p); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetPurchaseBySession returns the purchase for a checkout session.
func (s *Store) GetPurchaseBySession(ctx context.Context, sessionID string) (*model.Purchase, error) {
	var p model.Purchase
	query := s.rdb.Rebind("SELECT * FROM purchases WHERE checkout_session_id = ?")
	if err := s.rdb.GetContext(ctx, &p, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return &p, nil
}

// ListPurchases returns purchases newest first.
func (s *Store) ListPurchases(ctx context.Context, limit, offset int) ([]model.Purchase, error) {
	purchases := []model.Purchase{}
	query := s.rdb.Rebind("SELECT * FROM purchases ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	if err := s.rdb.SelectContext(ctx, &purchases, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

func (t *Tx) lockPurchase(ctx context.Context, sessionID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := t.tx.GetContext(ctx, &p, lockPurchaseQuery(t.dialect), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock purchase: %w", err)
	}
	return &p, nil
}

func lockPurchaseQuery(d dialect) string {
	return d.rebind("SELECT * FROM purchases WHERE checkout_session_id = ?" + d.forUpdate)
}

// SavePurchase writes back status, customer email, and license link.
func (t *Tx) SavePurchase(ctx context.Context, p *model.Purchase) error {
	p.UpdatedAt = time.Now().UTC()

	const stmt = `UPDATE purchases SET
		status = :status, customer_email = :customer_email, license_id = :license_id,
		updated_at = :updated_at
		WHERE id = :id`

	result, err := t.tx.NamedExecContext(ctx, stmt, p)
	if err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	return expectRow(result, "save purchase")
}
