package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/payment"
	"github.com/sakif/guildgate/internal/repository"
)

// Manual payment form limits.
const (
	MaxSenderReferenceLength = 120
	MaxProofURLLength        = 500
	MaxNotesLength           = 1000
)

// PaymentConfig carries the settings of manual and card payments.
type PaymentConfig struct {
	LocalCurrency string
	LocalRate     decimal.Decimal // local units per USD
	PublicBaseURL string          // for checkout success/cancel URLs
}

// CheckoutInput is the body of a checkout request.
type CheckoutInput struct {
	ItemID          string              `json:"itemId"`
	Method          model.PaymentMethod `json:"method"`
	SenderReference string              `json:"senderReference"`
	ProofURL        string              `json:"proofUrl"`
	Notes           string              `json:"notes"`
}

// CheckoutResult is either a redirect to the card provider or the created
// manual payment request.
type CheckoutResult struct {
	Method         model.PaymentMethod   `json:"method"`
	RedirectURL    string                `json:"redirectUrl,omitempty"`
	PaymentRequest *model.PaymentRequest `json:"paymentRequest,omitempty"`
}

// PaymentService runs manual payment requests and card checkouts.
type PaymentService struct {
	requests     repository.PaymentRequestRepository
	transactions repository.TransactionRepository
	items        repository.ItemRepository
	profiles     repository.ProfileRepository
	checkout     payment.CheckoutProvider // nil disables card payments
	jobs         notify.Runner
	config       PaymentConfig
	now          Clock
	logger       *slog.Logger
}

func NewPaymentService(
	store repository.Store,
	checkout payment.CheckoutProvider,
	jobs notify.Runner,
	cfg PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		requests:     store,
		transactions: store,
		items:        store,
		profiles:     store,
		checkout:     checkout,
		jobs:         jobs,
		config:       cfg,
		now:          systemClock,
		logger:       logger,
	}
}

// WithClock replaces the clock. Tests use it to pin time.
func (s *PaymentService) WithClock(now Clock) *PaymentService {
	s.now = now
	return s
}

// Checkout starts a purchase of in.ItemID. Card payments return a hosted
// checkout URL and are settled by the webhook; manual methods create a
// pending payment request. Only activated subjects and admins may buy.
func (s *PaymentService) Checkout(ctx context.Context, v access.Viewer, in CheckoutInput) (*CheckoutResult, error) {
	if err := requireMember(v); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ItemID) == "" {
		return nil, apperror.ValidationFailed("itemId", "itemId is required")
	}

	item, err := s.items.GetItem(ctx, in.ItemID)
	if err != nil {
		return nil, fmt.Errorf("service/payment: loading item %s: %w", in.ItemID, err)
	}
	if !item.Active {
		return nil, apperror.ValidationFailed("itemId", "item is not available")
	}

	switch {
	case in.Method == model.MethodCard:
		return s.cardCheckout(ctx, v, item)
	case in.Method.IsManual():
		pr, err := s.Create(ctx, v, item, in)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Method: in.Method, PaymentRequest: pr}, nil
	default:
		return nil, apperror.ValidationFailed("method", "method must be one of card, wallet, instapay")
	}
}

func (s *PaymentService) cardCheckout(ctx context.Context, v access.Viewer, item *model.Item) (*CheckoutResult, error) {
	if s.checkout == nil {
		return nil, apperror.ValidationFailed("method", "card payments are not available")
	}
	sess, err := s.checkout.CreateCheckout(ctx, payment.CheckoutRequest{
		SubjectID:  v.SubjectID,
		ItemID:     item.ID,
		ItemName:   item.Name,
		PriceUSD:   item.PriceUSD,
		SuccessURL: s.config.PublicBaseURL + "/store?checkout=success",
		CancelURL:  s.config.PublicBaseURL + "/store?checkout=cancelled",
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			slog.String("subjectID", v.SubjectID),
			slog.String("itemID", item.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.External("card provider", err)
	}

	s.logger.Info("checkout session created",
		slog.String("subjectID", v.SubjectID),
		slog.String("itemID", item.ID),
		slog.String("sessionID", sess.ID),
	)
	return &CheckoutResult{Method: model.MethodCard, RedirectURL: sess.URL}, nil
}

// Create records a manual payment request for item. Proof URL and sender
// reference are required. The subject gets a "pending" receipt.
func (s *PaymentService) Create(ctx context.Context, v access.Viewer, item *model.Item, in CheckoutInput) (*model.PaymentRequest, error) {
	if err := requireMember(v); err != nil {
		return nil, err
	}
	if !in.Method.IsManual() {
		return nil, apperror.ValidationFailed("method", "method must be wallet or instapay")
	}
	ref, err := requiredText("senderReference", in.SenderReference, MaxSenderReferenceLength)
	if err != nil {
		return nil, err
	}
	proof, err := requiredText("proofUrl", in.ProofURL, MaxProofURLLength)
	if err != nil {
		return nil, err
	}
	if !validHTTPURL(proof) {
		return nil, apperror.ValidationFailed("proofUrl", "proofUrl must be an http or https URL")
	}
	notes, err := optionalText("notes", in.Notes, MaxNotesLength)
	if err != nil {
		return nil, err
	}

	pr := &model.PaymentRequest{
		SubjectID:       v.SubjectID,
		ItemID:          item.ID,
		ItemName:        item.Name,
		AmountUSD:       item.PriceUSD,
		AmountLocal:     item.PriceUSD.Mul(s.config.LocalRate).Round(2),
		Method:          in.Method,
		SenderReference: ref,
		ProofURL:        proof,
		Notes:           notes,
	}
	if err := s.requests.CreatePaymentRequest(ctx, pr); err != nil {
		return nil, fmt.Errorf("service/payment: creating request for %s: %w", v.SubjectID, err)
	}

	s.logger.Info("payment request created",
		slog.String("subjectID", pr.SubjectID),
		slog.String("paymentRequestID", pr.ID),
		slog.String("method", string(pr.Method)),
	)
	s.jobs.Enqueue(s.receiptJob(pr, notify.ReceiptPending, ""))

	return pr, nil
}

// Approve marks a pending request approved. Only one of any number of
// concurrent reviews succeeds; the rest get a conflict.
func (s *PaymentService) Approve(ctx context.Context, v access.Viewer, requestID string) (*model.PaymentRequest, error) {
	return s.review(ctx, v, requestID, model.PaymentApproved, "")
}

// Reject marks a pending request rejected with a required reason.
func (s *PaymentService) Reject(ctx context.Context, v access.Viewer, requestID, reason string) (*model.PaymentRequest, error) {
	reason, err := requiredText("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	return s.review(ctx, v, requestID, model.PaymentRejected, reason)
}

func (s *PaymentService) review(ctx context.Context, v access.Viewer, requestID string, to model.PaymentStatus, reason string) (*model.PaymentRequest, error) {
	if err := requireAdmin(v); err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, apperror.ValidationFailed("paymentRequestId", "paymentRequestId is required")
	}

	if err := s.requests.ReviewPaymentRequest(ctx, requestID, to, v.SubjectID, reason, s.now()); err != nil {
		return nil, fmt.Errorf("service/payment: reviewing %s: %w", requestID, err)
	}

	pr, err := s.requests.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service/payment: reloading %s: %w", requestID, err)
	}

	s.logger.Info("payment request reviewed",
		slog.String("paymentRequestID", pr.ID),
		slog.String("subjectID", pr.SubjectID),
		slog.String("status", string(pr.Status)),
		slog.String("adminID", v.SubjectID),
	)

	status := notify.ReceiptCompleted
	if to == model.PaymentRejected {
		status = notify.ReceiptRejected
	}
	s.jobs.Enqueue(s.receiptJob(pr, status, reason))

	return pr, nil
}

func (s *PaymentService) receiptJob(pr *model.PaymentRequest, status notify.ReceiptStatus, reason string) notify.Job {
	receipt := notify.Receipt{
		Reference: pr.ID,
		ItemName:  pr.ItemName,
		Amount:    pr.AmountLocal,
		Currency:  s.config.LocalCurrency,
		Method:    string(pr.Method),
		Status:    status,
		Reason:    reason,
	}
	return profileJob(s.profiles, notify.KindReceipt, pr.SubjectID,
		func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error {
			return d.SendReceipt(ctx, to, receipt)
		})
}

// List merges manual requests and automated transactions, newest first.
// The limit applies to the merged view.
func (s *PaymentService) List(ctx context.Context, v access.Viewer, filter repository.LedgerFilter) ([]model.LedgerEntry, error) {
	if err := requireAdmin(v); err != nil {
		return nil, err
	}

	requests, err := s.requests.ListPaymentRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/payment: listing requests: %w", err)
	}
	txs, err := s.transactions.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/payment: listing transactions: %w", err)
	}

	return mergeLedger(requests, txs, filter.Limit), nil
}

func mergeLedger(requests []model.PaymentRequest, txs []model.PaymentTransaction, limit int) []model.LedgerEntry {
	entries := make([]model.LedgerEntry, 0, len(requests)+len(txs))
	for i := range requests {
		entries = append(entries, model.LedgerEntry{
			Kind:      model.LedgerManual,
			CreatedAt: requests[i].CreatedAt,
			Request:   &requests[i],
		})
	}
	for i := range txs {
		entries = append(entries, model.LedgerEntry{
			Kind:        model.LedgerAutomated,
			CreatedAt:   txs[i].CreatedAt,
			Transaction: &txs[i],
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
