package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a subject paid.
type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card" // settled by a provider, reconciled from webhooks
	MethodWallet   PaymentMethod = "wallet"
	MethodInstaPay PaymentMethod = "instapay"
)

// IsManual reports whether the method is settled by uploaded proof and
// admin review rather than by a provider webhook.
func (m PaymentMethod) IsManual() bool {
	return m == MethodWallet || m == MethodInstaPay
}

// PaymentStatus of a manual payment request.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// PaymentRequest is a manually submitted payment awaiting admin review.
// Status moves pending -> approved or pending -> rejected exactly once.
type PaymentRequest struct {
	ID              string          `json:"id"`
	SubjectID       string          `json:"subjectId"`
	ItemID          string          `json:"itemId"`
	ItemName        string          `json:"itemName"`
	AmountLocal     decimal.Decimal `json:"amountLocal"`
	AmountUSD       decimal.Decimal `json:"amountUsd"`
	Method          PaymentMethod   `json:"paymentMethod"`
	SenderReference string          `json:"senderReference"`
	ProofURL        string          `json:"proofUrl"`
	Notes           string          `json:"notes,omitempty"`
	Status          PaymentStatus   `json:"status"`
	ReviewedBy      string          `json:"reviewedBy,omitempty"` // approvedBy or rejectedBy depending on Status
	RejectionReason string          `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ReviewedAt      *time.Time      `json:"reviewedAt,omitempty"`
}

// TransactionStatus of a provider-confirmed payment.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// PaymentTransaction is one provider-confirmed payment. ID is issued by the
// provider and is unique across all ingested events.
type PaymentTransaction struct {
	ID          string            `json:"id"`
	SubjectID   string            `json:"subjectId"`
	ItemID      string            `json:"itemId"`
	Provider    string            `json:"provider"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	RawMetadata map[string]string `json:"rawMetadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// LedgerKind distinguishes the two sources merged into the operator view.
type LedgerKind string

const (
	LedgerManual    LedgerKind = "manual"
	LedgerAutomated LedgerKind = "automated"
)

// LedgerEntry is one row of the merged review view. Exactly one of Request
// and Transaction is set, matching Kind.
type LedgerEntry struct {
	Kind        LedgerKind          `json:"kind"`
	CreatedAt   time.Time           `json:"createdAt"`
	Request     *PaymentRequest     `json:"request,omitempty"`
	Transaction *PaymentTransaction `json:"transaction,omitempty"`
}

// Item is a store catalog entry. Prices are kept in USD.
type Item struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
