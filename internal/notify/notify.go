// Package notify delivers best-effort messages to subjects and staff in the
// community chat.
//
// Services never call a Dispatcher inline with a state transition. They
// commit first and then Enqueue a Job; a Runner (the Outbox in the server,
// Immediate in the CLI) runs the job with a timeout and bounded retries.
// Job failures are logged and never reach the caller.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sakif/guildgate/internal/model"
)

// Recipient identifies a subject in the chat system.
type Recipient struct {
	SubjectID   string
	ExternalID  string // Discord user id
	DisplayName string
}

// RecipientOf builds the Recipient for a profile.
func RecipientOf(p *model.Profile) Recipient {
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	return Recipient{SubjectID: p.ID, ExternalID: p.ExternalMessagingID, DisplayName: name}
}

// ReceiptStatus is the state a receipt reports.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptCompleted ReceiptStatus = "completed"
	ReceiptRejected  ReceiptStatus = "rejected"
)

// Receipt describes a payment to its payer.
type Receipt struct {
	Reference string // payment request id or provider transaction id
	ItemName  string
	Amount    decimal.Decimal
	Currency  string
	Method    string
	Status    ReceiptStatus
	Reason    string // set for ReceiptRejected
}

// ReviewRequest is what staff see when asked to review an activation.
type ReviewRequest struct {
	Subject     Recipient
	Username    string
	InGameName  string
	Bio         string
	Application model.ActivationRequest
}

// Dispatcher sends messages through the chat system. Every method may fail;
// callers treat failure as a logged, non-fatal outcome.
type Dispatcher interface {
	SendApproval(ctx context.Context, to Recipient) error
	SendRejection(ctx context.Context, to Recipient, reason string) error
	SendReceipt(ctx context.Context, to Recipient, receipt Receipt) error
	GrantRole(ctx context.Context, groupID, externalID, roleID string) error
	// SendStaffReviewRequest posts the request to the staff channel with
	// approve and reject buttons and returns the posted message id.
	SendStaffReviewRequest(ctx context.Context, req ReviewRequest) (string, error)
}

// Job kinds, used in logs.
const (
	KindActivationApproved = "activation.approved"
	KindActivationRejected = "activation.rejected"
	KindRoleGrant          = "activation.role_grant"
	KindStaffReview        = "activation.staff_review"
	KindReceipt            = "payment.receipt"
)

// Job is one deferred side effect.
type Job struct {
	ID        uuid.UUID
	Kind      string
	SubjectID string
	Run       func(ctx context.Context, d Dispatcher) error
}

// NewJob creates a Job with a fresh id.
func NewJob(kind, subjectID string, run func(ctx context.Context, d Dispatcher) error) Job {
	return Job{ID: uuid.New(), Kind: kind, SubjectID: subjectID, Run: run}
}

// Runner accepts jobs. Enqueue never blocks on delivery and reports whether
// the job was accepted.
type Runner interface {
	Enqueue(job Job) bool
}
