package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/store"
)

func newPurchaseFixture(t *testing.T, confirmer PaymentConfirmer) (*PurchaseService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	licenses := NewLicenseService(st, logger, WithDefaultMaxActivations(2))
	return NewPurchaseService(st, licenses, confirmer, logger), st
}

func TestCompleteIsIdempotent(t *testing.T) {
	svc, st := newPurchaseFixture(t, nil)
	ctx := context.Background()

	_, err := svc.RecordPending(ctx, "cs_test_a", 4900, "USD")
	require.NoError(t, err)

	p1, lic1, err := svc.Complete(ctx, "cs_test_a", true, "buyer@example.com")
	require.NoError(t, err)
	require.NotNil(t, lic1)
	assert.Equal(t, model.PurchaseCompleted, p1.Status)
	assert.Equal(t, "buyer@example.com", p1.CustomerEmail)
	assert.Equal(t, 2, lic1.MaxActivations)
	assert.False(t, lic1.IsRevoked)
	assert.Nil(t, lic1.ExpiresAt)

	_, lic2, err := svc.Complete(ctx, "cs_test_a", true, "someone-else@example.com")
	require.NoError(t, err)
	assert.Equal(t, lic1.Key, lic2.Key)
	assert.Equal(t, "buyer@example.com", lic2.Email)

	all, err := st.ListLicenses(ctx, store.LicenseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompleteConcurrentCallsMintOneLicense(t *testing.T) {
	svc, st := newPurchaseFixture(t, nil)
	ctx := context.Background()

	_, err := svc.RecordPending(ctx, "cs_race", 900, "eur")
	require.NoError(t, err)

	keys := make([]string, 5)
	var g errgroup.Group
	for i := range keys {
		g.Go(func() error {
			_, lic, err := svc.Complete(ctx, "cs_race", true, "buyer@example.com")
			if err != nil {
				return err
			}
			keys[i] = lic.Key
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}

	all, err := st.ListLicenses(ctx, store.LicenseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompleteUnpaidLeavesPurchasePending(t *testing.T) {
	svc, st := newPurchaseFixture(t, nil)
	ctx := context.Background()

	_, err := svc.RecordPending(ctx, "cs_unpaid", 100, "usd")
	require.NoError(t, err)

	p, lic, err := svc.Complete(ctx, "cs_unpaid", false, "buyer@example.com")
	require.NoError(t, err)
	assert.Nil(t, lic)
	assert.Equal(t, model.PurchasePending, p.Status)

	all, err := st.ListLicenses(ctx, store.LicenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCompleteRequiresEmail(t *testing.T) {
	svc, _ := newPurchaseFixture(t, nil)
	ctx := context.Background()

	_, err := svc.RecordPending(ctx, "cs_noemail", 100, "usd")
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, "cs_noemail", true, "  ")
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestCompleteUnknownSession(t *testing.T) {
	svc, _ := newPurchaseFixture(t, nil)
	_, _, err := svc.Complete(context.Background(), "cs_missing", true, "a@b.c")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestRecordPendingDuplicate(t *testing.T) {
	svc, _ := newPurchaseFixture(t, nil)
	ctx := context.Background()

	p, err := svc.RecordPending(ctx, "cs_dup", 100, "")
	require.NoError(t, err)
	assert.Equal(t, "usd", p.Currency)

	_, err = svc.RecordPending(ctx, "cs_dup", 100, "usd")
	assert.ErrorIs(t, err, ErrPurchaseExists)
}

func TestStatusConfirmsPendingPurchase(t *testing.T) {
	confirmer := StaticConfirmer{
		"cs_paid": {Paid: true, Email: "paid@example.com"},
	}
	svc, _ := newPurchaseFixture(t, confirmer)
	ctx := context.Background()

	_, err := svc.RecordPending(ctx, "cs_paid", 4900, "usd")
	require.NoError(t, err)
	_, err = svc.RecordPending(ctx, "cs_waiting", 4900, "usd")
	require.NoError(t, err)

	p, lic, err := svc.Status(ctx, "cs_paid")
	require.NoError(t, err)
	require.NotNil(t, lic)
	assert.True(t, p.IsCompleted())
	assert.Equal(t, "paid@example.com", lic.Email)

	// A second status check returns the same license without re-confirming.
	_, again, err := svc.Status(ctx, "cs_paid")
	require.NoError(t, err)
	assert.Equal(t, lic.Key, again.Key)

	p, lic, err = svc.Status(ctx, "cs_waiting")
	require.NoError(t, err)
	assert.Nil(t, lic)
	assert.Equal(t, model.PurchasePending, p.Status)

	_, _, err = svc.Status(ctx, "cs_nope")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}
