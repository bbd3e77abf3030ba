// Package payment defines what the services need from a card payment
// provider: hosted checkout creation and verified webhook events.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// CheckoutRequest describes one hosted checkout for one item.
type CheckoutRequest struct {
	SubjectID  string
	ItemID     string
	ItemName   string
	PriceUSD   decimal.Decimal
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a created checkout the payer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutProvider creates hosted checkouts.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Completion is a provider-confirmed, fully paid checkout.
type Completion struct {
	// TransactionID is the provider's id for the payment. It is the
	// idempotence key of the transaction ledger.
	TransactionID string
	SubjectID     string
	ItemID        string
	Amount        decimal.Decimal
	Currency      string
	Metadata      map[string]string
}

// Event is a verified webhook event. Completion is nil for every event that
// does not complete a payment.
type Event struct {
	ID         string
	Type       string
	Completion *Completion
}

// WebhookVerifier checks and parses webhook deliveries for one provider.
type WebhookVerifier interface {
	// Name is the provider segment of the webhook route.
	Name() string
	// SignatureHeader is the request header carrying the signature.
	SignatureHeader() string
	// ParseEvent verifies signature over the raw payload before decoding it.
	// A bad signature yields an error wrapping apperror.ErrSignature.
	ParseEvent(payload []byte, signature string) (*Event, error)
}
