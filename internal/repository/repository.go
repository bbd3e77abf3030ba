// Package repository declares the persistence contracts used by the service
// layer. Implementations live in the sqlite and postgres subpackages.
//
// Every state transition in this package is a conditional write: the update
// names the state it expects and the affected-row count decides the outcome.
// Callers never read-then-write to guard a transition.
package repository

import (
	"context"
	"time"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// LedgerFilter narrows the operator payment view. Status matches either a
// request status (pending/approved/rejected) or a transaction status
// (completed/failed); the two sets do not overlap.
type LedgerFilter struct {
	SubjectID string
	Status    string
	Limit     int
}

type ProfileRepository interface {
	// UpsertFromSignIn creates the profile on first sign-in (activated=false,
	// role user, no names) or refreshes Username/AvatarURL on later ones.
	// Matching is on ExternalMessagingID. The stored record is written back
	// into p.
	UpsertFromSignIn(ctx context.Context, p *model.Profile) error
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByExternalID(ctx context.Context, externalID string) (*model.Profile, error)

	// SubmitActivation writes the form and names, sets activated=false and
	// clears the rejection, conditioned on the profile still being at
	// expectedVersion and not activated. Returns a Conflict otherwise.
	SubmitActivation(ctx context.Context, id string, expectedVersion int64, fields model.ActivationFields) error
	SetReviewMessageID(ctx context.Context, id, messageID string) error

	// ApproveActivation and RejectActivation succeed only while activated is
	// false. A lost race or a repeated call returns a Conflict.
	ApproveActivation(ctx context.Context, id string, at time.Time) error
	RejectActivation(ctx context.Context, id, reason string, at time.Time) error

	// ListPendingActivations returns submitted, unreviewed requests, oldest
	// submission first.
	ListPendingActivations(ctx context.Context, opts ListOptions) ([]model.Profile, error)
	SetRole(ctx context.Context, id string, role model.Role) error
}

type PaymentRequestRepository interface {
	// CreatePaymentRequest inserts with status pending and fills ID/CreatedAt.
	CreatePaymentRequest(ctx context.Context, pr *model.PaymentRequest) error
	GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error)

	// ReviewPaymentRequest moves a pending request to `to`, recording the
	// reviewer and, for rejections, the reason. Compare-and-set on
	// status='pending'.
	ReviewPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, reviewerID, reason string, at time.Time) error
	ListPaymentRequests(ctx context.Context, filter LedgerFilter) ([]model.PaymentRequest, error)
}

type TransactionRepository interface {
	// InsertTransaction records a provider-confirmed payment. The provider id
	// is unique: a second insert with the same id is a no-op and returns
	// inserted=false with a nil error.
	InsertTransaction(ctx context.Context, tx *model.PaymentTransaction) (inserted bool, err error)
	ListTransactions(ctx context.Context, filter LedgerFilter) ([]model.PaymentTransaction, error)
}

type ItemRepository interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
	UpsertItem(ctx context.Context, item *model.Item) error
	ListItems(ctx context.Context) ([]model.Item, error)
}

// Store is everything a backend provides. Both *sqlite.DB and
// *postgres.Store satisfy it.
type Store interface {
	ProfileRepository
	PaymentRequestRepository
	TransactionRepository
	ItemRepository
	Close() error
}

// ReviewMissError explains why an approve or reject of an activation
// touched no rows, given the row as it is now.
func ReviewMissError(p *model.Profile) error {
	switch {
	case p.Activated:
		return apperror.StateConflict("profile", p.ID, "activated")
	case !p.HasNames():
		return apperror.ValidationFailed("subjectId", "subject has not submitted an activation request")
	case p.RejectedAt != nil:
		return apperror.StateConflict("profile", p.ID, "rejected")
	default:
		return apperror.Conflict("profile", p.ID)
	}
}

// SubmitMissError explains why a submission touched no rows: either the
// subject was activated meanwhile or another write bumped the version.
func SubmitMissError(p *model.Profile) error {
	if p.Activated {
		return apperror.StateConflict("profile", p.ID, "activated")
	}
	return apperror.ConflictMessage("activation request changed while submitting, reload and try again")
}

// PaymentMissError explains why a payment review touched no rows. A request
// still pending here means the caller raced a concurrent write.
func PaymentMissError(pr *model.PaymentRequest) error {
	if pr.Status != model.PaymentPending {
		return apperror.StateConflict("payment request", pr.ID, string(pr.Status))
	}
	return apperror.Conflict("payment request", pr.ID)
}
