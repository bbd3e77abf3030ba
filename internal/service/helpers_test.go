package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/notify/notifytest"
	"github.com/sakif/guildgate/internal/payment"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/repository/sqlite"
)

// =========================================================================
// FIXTURE
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixture wires services to an in-memory sqlite store and a recording
// dispatcher. Jobs run inline so their effects are visible right after the
// service call returns.
type fixture struct {
	store *sqlite.DB
	rec   *notifytest.Recorder
	jobs  notify.Runner
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &notifytest.Recorder{ReviewMessageID: "msg-1"}
	return &fixture{
		store: db,
		rec:   rec,
		jobs:  notify.NewImmediate(rec, notify.Policy{Timeout: time.Second, MaxAttempts: 1}, testLogger()),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) activation(role RoleGrant) *ActivationService {
	return NewActivationService(f.store, f.jobs, role, testLogger()).WithClock(f.clock)
}

func (f *fixture) payments(checkout payment.CheckoutProvider) *PaymentService {
	return NewPaymentService(f.store, checkout, f.jobs, PaymentConfig{
		LocalCurrency: "EGP",
		LocalRate:     decimal.NewFromInt(50),
		PublicBaseURL: "http://localhost:8080",
	}, testLogger()).WithClock(f.clock)
}

// signIn creates a fresh profile for discordID.
func (f *fixture) signIn(t *testing.T, discordID string) *model.Profile {
	t.Helper()
	p := &model.Profile{ExternalMessagingID: discordID, Username: "user-" + discordID}
	require.NoError(t, f.store.UpsertFromSignIn(context.Background(), p))
	return p
}

// viewer classifies the stored profile of id the way the gate would.
func (f *fixture) viewer(t *testing.T, id string) access.Viewer {
	t.Helper()
	p, err := f.store.GetProfileByID(context.Background(), id)
	require.NoError(t, err)
	return access.NewViewer(p.ID, p)
}

// admin signs in discordID and promotes it.
func (f *fixture) admin(t *testing.T, discordID string) access.Viewer {
	t.Helper()
	p := f.signIn(t, discordID)
	require.NoError(t, f.store.SetRole(context.Background(), p.ID, model.RoleAdmin))
	return f.viewer(t, p.ID)
}

func (f *fixture) item(t *testing.T, id, price string, active bool) *model.Item {
	t.Helper()
	item := &model.Item{ID: id, Name: "Item " + id, PriceUSD: decimal.RequireFromString(price), Active: active}
	require.NoError(t, f.store.UpsertItem(context.Background(), item))
	return item
}

func validSubmit() SubmitInput {
	return SubmitInput{
		DisplayName:   "Nova",
		InGameName:    "NovaIGN",
		Bio:           "hello",
		CharacterName: "Nova Prime",
		Age:           25,
		ProfileLink:   "https://example.com/nova",
		Experience:    "two years",
	}
}

// submitted signs in a subject and submits a valid activation request.
func (f *fixture) submitted(t *testing.T, svc *ActivationService, discordID string) *model.Profile {
	t.Helper()
	p := f.signIn(t, discordID)
	got, err := svc.Submit(context.Background(), f.viewer(t, p.ID), validSubmit())
	require.NoError(t, err)
	return got
}

// =========================================================================
// FAKES
// =========================================================================

// failingProfiles wraps a store and fails GetProfileByID or
// SetReviewMessageID on demand.
type failingProfiles struct {
	repository.Store
	getErr       error
	setReviewErr error
}

func (f *failingProfiles) SetReviewMessageID(ctx context.Context, id, messageID string) error {
	if f.setReviewErr != nil {
		return f.setReviewErr
	}
	return f.Store.SetReviewMessageID(ctx, id, messageID)
}

func (f *failingProfiles) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.GetProfileByID(ctx, id)
}

var errDB = errors.New("database is locked")
