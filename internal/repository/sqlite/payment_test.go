package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPaymentRequest(t *testing.T, db *DB, subjectID string) *model.PaymentRequest {
	t.Helper()
	pr := &model.PaymentRequest{
		SubjectID:       subjectID,
		ItemID:          "vip-month",
		ItemName:        "VIP (1 month)",
		AmountLocal:     decimal.RequireFromString("250.50"),
		AmountUSD:       decimal.RequireFromString("5.01"),
		Method:          model.MethodInstaPay,
		SenderReference: "01000000000",
		ProofURL:        "https://cdn.example.com/proof.png",
	}
	if err := db.CreatePaymentRequest(context.Background(), pr); err != nil {
		t.Fatalf("failed to create payment request: %v", err)
	}
	return pr
}

// =========================================================================
// PAYMENT REQUEST TESTS
// =========================================================================

func TestCreatePaymentRequest_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	p := createTestProfile(t, db, "p1")

	pr := createTestPaymentRequest(t, db, p.ID)

	got, err := db.GetPaymentRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)
	assert.True(t, decimal.RequireFromString("250.50").Equal(got.AmountLocal))
	assert.True(t, decimal.RequireFromString("5.01").Equal(got.AmountUSD))
	assert.Equal(t, model.MethodInstaPay, got.Method)
	assert.Nil(t, got.ReviewedAt)
}

func TestReviewPaymentRequest_RejectRecordsReason(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := createTestProfile(t, db, "p2")
	pr := createTestPaymentRequest(t, db, p.ID)

	require.NoError(t, db.ReviewPaymentRequest(ctx, pr.ID, model.PaymentRejected, "admin-1", "X", time.Now()))

	got, err := db.GetPaymentRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, got.Status)
	assert.Equal(t, "X", got.RejectionReason)
	assert.Equal(t, "admin-1", got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)
}

func TestReviewPaymentRequest_TerminalIsImmutable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := createTestProfile(t, db, "p3")
	pr := createTestPaymentRequest(t, db, p.ID)

	require.NoError(t, db.ReviewPaymentRequest(ctx, pr.ID, model.PaymentApproved, "admin-1", "", time.Now()))

	err := db.ReviewPaymentRequest(ctx, pr.ID, model.PaymentRejected, "admin-2", "late", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Contains(t, err.Error(), "already approved")

	err = db.ReviewPaymentRequest(ctx, "missing", model.PaymentApproved, "admin-1", "", time.Now())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestReviewPaymentRequest_ConcurrentApproveExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := createTestProfile(t, db, "p4")
	pr := createTestPaymentRequest(t, db, p.ID)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.ReviewPaymentRequest(ctx, pr.ID, model.PaymentApproved, "admin", "", time.Now())
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrConflict):
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
}

func TestListPaymentRequests_FiltersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestProfile(t, db, "alice")
	bob := createTestProfile(t, db, "bob")

	first := createTestPaymentRequest(t, db, alice.ID)
	time.Sleep(5 * time.Millisecond)
	second := createTestPaymentRequest(t, db, alice.ID)
	createTestPaymentRequest(t, db, bob.ID)
	require.NoError(t, db.ReviewPaymentRequest(ctx, first.ID, model.PaymentApproved, "admin", "", time.Now()))

	all, err := db.ListPaymentRequests(ctx, repository.LedgerFilter{SubjectID: alice.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	pending, err := db.ListPaymentRequests(ctx, repository.LedgerFilter{Status: string(model.PaymentPending)})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func newTestTransaction(id string) *model.PaymentTransaction {
	return &model.PaymentTransaction{
		ID:          id,
		SubjectID:   "subject-1",
		ItemID:      "vip-month",
		Provider:    "stripe",
		Amount:      decimal.RequireFromString("5.00"),
		Currency:    "usd",
		Status:      model.TransactionCompleted,
		RawMetadata: map[string]string{"event_id": "evt_1"},
	}
}

func TestInsertTransaction_DuplicateIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inserted, err := db.InsertTransaction(ctx, newTestTransaction("tx_123"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.InsertTransaction(ctx, newTestTransaction("tx_123"))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = db.InsertTransaction(ctx, newTestTransaction("tx_124"))
	require.NoError(t, err)
	assert.True(t, inserted)

	txs, err := db.ListTransactions(ctx, repository.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "evt_1", txs[0].RawMetadata["event_id"])
}

func TestInsertTransaction_ConcurrentDuplicatesCollapse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.InsertTransaction(ctx, newTestTransaction("tx_dup"))
			if err == nil && ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	txs, err := db.ListTransactions(ctx, repository.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// =========================================================================
// ITEM TESTS
// =========================================================================

func TestUpsertItem(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := &model.Item{ID: "vip", Name: "VIP", PriceUSD: decimal.RequireFromString("4.99"), Active: true}
	require.NoError(t, db.UpsertItem(ctx, item))

	item.Name = "VIP Plus"
	require.NoError(t, db.UpsertItem(ctx, item))

	got, err := db.GetItem(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, "VIP Plus", got.Name)
	assert.Equal(t, "4.99", got.PriceUSD.StringFixed(2))

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = db.GetItem(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(db.UpsertItem(ctx, &model.Item{}), apperror.ErrValidation))
}
