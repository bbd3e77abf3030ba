package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

// newTestStore connects to the database named by DATABASE_URL. The tests
// only run when RUN_PG_INTEGRATION=true so `go test ./...` stays hermetic.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("RUN_PG_INTEGRATION") != "true" {
		t.Skip("set RUN_PG_INTEGRATION=true and DATABASE_URL to run postgres tests")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func signIn(t *testing.T, s *Store) *model.Profile {
	t.Helper()
	p := &model.Profile{ExternalMessagingID: "it-" + xid.New().String(), Username: "it"}
	require.NoError(t, s.UpsertFromSignIn(context.Background(), p))
	return p
}

func TestActivationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := signIn(t, s)
	assert.False(t, p.Activated)

	err := s.SubmitActivation(ctx, p.ID, p.Version, model.ActivationFields{
		DisplayName: "Display",
		InGameName:  "IGN",
		Request:     model.ActivationRequest{CharacterName: "Char", Age: 30, SubmittedAt: time.Now()},
	})
	require.NoError(t, err)

	require.NoError(t, s.RejectActivation(ctx, p.ID, "X", time.Now()))
	assert.True(t, errors.Is(s.RejectActivation(ctx, p.ID, "Y", time.Now()), apperror.ErrConflict))

	require.NoError(t, s.ApproveActivation(ctx, p.ID, time.Now()))
	assert.True(t, errors.Is(s.ApproveActivation(ctx, p.ID, time.Now()), apperror.ErrConflict))

	got, err := s.GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Activated)
	assert.Nil(t, got.RejectedAt)
	require.NotNil(t, got.ActivationRequest)
	assert.Equal(t, "Char", got.ActivationRequest.CharacterName)
}

func TestPaymentRequestCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := signIn(t, s)

	pr := &model.PaymentRequest{
		SubjectID:       p.ID,
		ItemID:          "vip",
		ItemName:        "VIP",
		AmountLocal:     decimal.RequireFromString("250.00"),
		AmountUSD:       decimal.RequireFromString("5.00"),
		Method:          model.MethodWallet,
		SenderReference: "0100",
		ProofURL:        "https://example.com/p.png",
	}
	require.NoError(t, s.CreatePaymentRequest(ctx, pr))

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.ReviewPaymentRequest(ctx, pr.ID, model.PaymentApproved, "admin", "", time.Now())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, errors.Is(err, apperror.ErrConflict))
		}
	}
	assert.Equal(t, 1, ok)

	got, err := s.GetPaymentRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250").Equal(got.AmountLocal))
}

func TestInsertTransactionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := "cs_it_" + xid.New().String()
	tx := &model.PaymentTransaction{
		ID: id, SubjectID: "s", ItemID: "i", Provider: "stripe",
		Amount: decimal.RequireFromString("5"), Currency: "usd", Status: model.TransactionCompleted,
	}

	inserted, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.False(t, inserted)

	txs, err := s.ListTransactions(ctx, repository.LedgerFilter{SubjectID: "s"})
	require.NoError(t, err)
	assert.NotEmpty(t, txs)
}
