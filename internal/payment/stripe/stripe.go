// Package stripe adapts Stripe Checkout to the payment interfaces.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/payment"
)

// Name is the provider segment of /api/webhooks/{provider}.
const Name = "stripe"

// Metadata keys written on checkout and read back from the webhook.
const (
	metaSubjectID = "subject_id"
	metaItemID    = "item_id"
)

// Provider creates Stripe checkouts and verifies Stripe webhooks.
type Provider struct {
	secretKey     string
	webhookSecret string
	backend       stripe.Backend
}

var (
	_ payment.CheckoutProvider = (*Provider)(nil)
	_ payment.WebhookVerifier  = (*Provider)(nil)
)

// Option customises a Provider.
type Option func(*Provider)

// WithBackend replaces the API backend, e.g. with one pointed at a test
// server.
func WithBackend(b stripe.Backend) Option {
	return func(p *Provider) { p.backend = b }
}

func New(secretKey, webhookSecret string, opts ...Option) *Provider {
	p := &Provider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		backend:       stripe.GetBackend(stripe.APIBackend),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SignatureHeader() string { return "Stripe-Signature" }

// CreateCheckout creates a one-item payment-mode Checkout Session. The
// subject and item ids travel in metadata so the completion webhook can be
// reconciled without any local session state.
func (p *Provider) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	if p.secretKey == "" {
		return nil, errors.New("stripe: secret key is not configured")
	}
	cents := req.PriceUSD.Shift(2).Round(0).IntPart()
	if cents <= 0 {
		return nil, fmt.Errorf("stripe: item %s has no positive price", req.ItemID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.SubjectID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(cents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ItemName),
				},
			},
		}},
		Metadata: map[string]string{
			metaSubjectID: req.SubjectID,
			metaItemID:    req.ItemID,
		},
	}
	params.Context = ctx

	client := &session.Client{B: p.backend, Key: p.secretKey}
	s, err := client.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: creating checkout session: %w", err)
	}
	return &payment.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
// Only a paid checkout.session.completed (or its async success twin)
// carries a Completion.
func (p *Provider) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("stripe: %w", apperror.SignatureInvalid(Name))
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("stripe: %w: %w", apperror.SignatureInvalid(Name), err)
	}

	out := &payment.Event{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("stripe: decoding checkout session of event %s: %w", event.ID, err)
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return out, nil
	}

	subjectID := cs.Metadata[metaSubjectID]
	if subjectID == "" {
		subjectID = cs.ClientReferenceID
	}

	meta := map[string]string{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"session_id": cs.ID,
	}
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		meta["payment_intent"] = cs.PaymentIntent.ID
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		meta["customer_email"] = cs.CustomerDetails.Email
	}

	out.Completion = &payment.Completion{
		TransactionID: cs.ID,
		SubjectID:     subjectID,
		ItemID:        cs.Metadata[metaItemID],
		Amount:        decimal.New(cs.AmountTotal, -2),
		Currency:      string(cs.Currency),
		Metadata:      meta,
	}
	return out, nil
}
