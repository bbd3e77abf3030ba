package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/payment"
	"github.com/sakif/guildgate/internal/repository"
)

// IngestResult is the acknowledgement of one webhook delivery.
type IngestResult struct {
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	Processed bool   `json:"processed"` // a new transaction was recorded
	Duplicate bool   `json:"duplicate"` // the transaction was already recorded
}

// WebhookService reconciles provider-confirmed payments into the
// transaction ledger. The provider transaction id is the only dedup key:
// the store's primary key turns redeliveries into no-ops.
type WebhookService struct {
	providers    map[string]payment.WebhookVerifier
	transactions repository.TransactionRepository
	items        repository.ItemRepository
	profiles     repository.ProfileRepository
	jobs         notify.Runner
	logger       *slog.Logger
}

func NewWebhookService(store repository.Store, jobs notify.Runner, logger *slog.Logger, providers ...payment.WebhookVerifier) *WebhookService {
	byName := make(map[string]payment.WebhookVerifier, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &WebhookService{
		providers:    byName,
		transactions: store,
		items:        store,
		profiles:     store,
		jobs:         jobs,
		logger:       logger,
	}
}

// SignatureHeader names the header provider signs deliveries with.
func (s *WebhookService) SignatureHeader(provider string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", apperror.NotFound("webhook provider", provider)
	}
	return p.SignatureHeader(), nil
}

// Ingest verifies and applies one delivery. Only signature failures,
// unknown providers and store failures return an error; every verified
// event is acknowledged, including ones that change nothing.
func (s *WebhookService) Ingest(ctx context.Context, provider string, payload []byte, signature string) (*IngestResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, apperror.NotFound("webhook provider", provider)
	}

	event, err := p.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, apperror.ErrSignature) {
			s.logger.Warn("webhook signature rejected",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("service/webhook: parsing %s event: %w", provider, err)
	}

	res := &IngestResult{EventID: event.ID, Type: event.Type}

	c := event.Completion
	if c == nil {
		s.logger.Info("webhook event ignored",
			slog.String("provider", provider),
			slog.String("eventID", event.ID),
			slog.String("type", event.Type),
		)
		return res, nil
	}
	if c.TransactionID == "" || c.SubjectID == "" || c.ItemID == "" {
		s.logger.Warn("webhook completion missing references, ignored",
			slog.String("provider", provider),
			slog.String("eventID", event.ID),
			slog.String("transactionID", c.TransactionID),
		)
		return res, nil
	}

	tx := &model.PaymentTransaction{
		ID:          c.TransactionID,
		SubjectID:   c.SubjectID,
		ItemID:      c.ItemID,
		Provider:    provider,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Status:      model.TransactionCompleted,
		RawMetadata: c.Metadata,
	}
	inserted, err := s.transactions.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("service/webhook: recording transaction %s: %w", tx.ID, err)
	}

	if !inserted {
		s.logger.Info("webhook transaction already recorded",
			slog.String("provider", provider),
			slog.String("transactionID", tx.ID),
			slog.String("eventID", event.ID),
		)
		res.Duplicate = true
		return res, nil
	}

	s.logger.Info("webhook transaction recorded",
		slog.String("provider", provider),
		slog.String("transactionID", tx.ID),
		slog.String("subjectID", tx.SubjectID),
		slog.String("itemID", tx.ItemID),
	)
	s.jobs.Enqueue(s.receiptJob(tx))

	res.Processed = true
	return res, nil
}

// receiptJob sends the "completed" receipt. The item name is resolved when
// the job runs; a missing item falls back to its id.
func (s *WebhookService) receiptJob(tx *model.PaymentTransaction) notify.Job {
	txID, itemID := tx.ID, tx.ItemID
	amount, currency := tx.Amount, tx.Currency

	return profileJob(s.profiles, notify.KindReceipt, tx.SubjectID,
		func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error {
			itemName := itemID
			if item, err := s.items.GetItem(ctx, itemID); err == nil {
				itemName = item.Name
			}
			return d.SendReceipt(ctx, to, notify.Receipt{
				Reference: txID,
				ItemName:  itemName,
				Amount:    amount,
				Currency:  currency,
				Method:    string(model.MethodCard),
				Status:    notify.ReceiptCompleted,
			})
		})
}
