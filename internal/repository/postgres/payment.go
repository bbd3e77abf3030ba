package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

const paymentRequestColumns = `id, subject_id, item_id, item_name, amount_local::text, amount_usd::text, payment_method,
	sender_reference, proof_url, notes, status, reviewed_by, rejection_reason, created_at, reviewed_at`

func (s *Store) CreatePaymentRequest(ctx context.Context, pr *model.PaymentRequest) error {
	pr.ID = xid.New().String()
	pr.Status = model.PaymentPending
	pr.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_requests (id, subject_id, item_id, item_name, amount_local, amount_usd,
			payment_method, sender_reference, proof_url, notes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pr.ID, pr.SubjectID, pr.ItemID, pr.ItemName,
		pr.AmountLocal.String(), pr.AmountUSD.String(),
		string(pr.Method), pr.SenderReference, pr.ProofURL, pr.Notes,
		string(pr.Status), pr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting payment request (subject=%s): %w", pr.SubjectID, translate(err, "payment request", pr.ID))
	}
	return nil
}

func (s *Store) GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id)
	pr, err := scanPaymentRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("payment request", id)
		}
		return nil, fmt.Errorf("postgres: getting payment request %s: %w", id, err)
	}
	return pr, nil
}

// ReviewPaymentRequest is a compare-and-set on status = 'pending'. Under
// READ COMMITTED the second concurrent UPDATE re-evaluates the WHERE clause
// after the first commits and matches zero rows.
func (s *Store) ReviewPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, reviewerID, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_requests SET status = $1, reviewed_by = $2, rejection_reason = $3, reviewed_at = $4
		 WHERE id = $5 AND status = 'pending'`,
		string(to), reviewerID, reason, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: reviewing payment request %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetPaymentRequest(ctx, id)
	if err != nil {
		return err
	}
	return repository.PaymentMissError(current)
}

func (s *Store) ListPaymentRequests(ctx context.Context, filter repository.LedgerFilter) ([]model.PaymentRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests
		 WHERE ($1 = '' OR subject_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		filter.SubjectID, filter.Status, limitOrDefault(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing payment requests: %w", err)
	}
	defer rows.Close()

	requests := []model.PaymentRequest{}
	for rows.Next() {
		pr, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning payment request: %w", err)
		}
		requests = append(requests, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating payment requests: %w", err)
	}
	return requests, nil
}

// InsertTransaction leans on the primary key: ON CONFLICT DO NOTHING makes a
// redelivered event a zero-row insert.
func (s *Store) InsertTransaction(ctx context.Context, tx *model.PaymentTransaction) (bool, error) {
	meta, err := json.Marshal(tx.RawMetadata)
	if err != nil {
		return false, fmt.Errorf("postgres: encoding transaction metadata: %w", err)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO payment_transactions (id, subject_id, item_id, provider, amount, currency, status, raw_metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		 ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.SubjectID, tx.ItemID, tx.Provider, tx.Amount.String(), tx.Currency,
		string(tx.Status), string(meta), tx.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: inserting transaction %s: %w", tx.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter repository.LedgerFilter) ([]model.PaymentTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, item_id, provider, amount::text, currency, status, raw_metadata::text, created_at
		 FROM payment_transactions
		 WHERE ($1 = '' OR subject_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		filter.SubjectID, filter.Status, limitOrDefault(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing transactions: %w", err)
	}
	defer rows.Close()

	txs := []model.PaymentTransaction{}
	for rows.Next() {
		var (
			tx     model.PaymentTransaction
			status string
			meta   string
		)
		if err := rows.Scan(&tx.ID, &tx.SubjectID, &tx.ItemID, &tx.Provider, &tx.Amount,
			&tx.Currency, &status, &meta, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning transaction: %w", err)
		}
		tx.Status = model.TransactionStatus(status)
		if err := json.Unmarshal([]byte(meta), &tx.RawMetadata); err != nil {
			return nil, fmt.Errorf("postgres: decoding metadata of %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating transactions: %w", err)
	}
	return txs, nil
}

func scanPaymentRequest(row pgx.Row) (*model.PaymentRequest, error) {
	var (
		pr     model.PaymentRequest
		method string
		status string
	)
	err := row.Scan(
		&pr.ID,
		&pr.SubjectID,
		&pr.ItemID,
		&pr.ItemName,
		&pr.AmountLocal,
		&pr.AmountUSD,
		&method,
		&pr.SenderReference,
		&pr.ProofURL,
		&pr.Notes,
		&status,
		&pr.ReviewedBy,
		&pr.RejectionReason,
		&pr.CreatedAt,
		&pr.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	pr.Method = model.PaymentMethod(method)
	pr.Status = model.PaymentStatus(status)
	return &pr, nil
}
