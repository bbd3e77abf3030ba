package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

var (
	_ repository.PaymentRequestRepository = (*DB)(nil)
	_ repository.TransactionRepository    = (*DB)(nil)
)

const paymentRequestColumns = `id, subject_id, item_id, item_name, amount_local, amount_usd, payment_method,
	sender_reference, proof_url, notes, status, reviewed_by, rejection_reason, created_at, reviewed_at`

// CreatePaymentRequest inserts a manual payment request in the pending state.
func (db *DB) CreatePaymentRequest(ctx context.Context, pr *model.PaymentRequest) error {
	pr.ID = xid.New().String()
	pr.Status = model.PaymentPending
	pr.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO payment_requests (id, subject_id, item_id, item_name, amount_local, amount_usd,
			payment_method, sender_reference, proof_url, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID,
		pr.SubjectID,
		pr.ItemID,
		pr.ItemName,
		pr.AmountLocal.String(),
		pr.AmountUSD.String(),
		string(pr.Method),
		pr.SenderReference,
		pr.ProofURL,
		pr.Notes,
		string(pr.Status),
		pr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting payment request (subject=%s): %w", pr.SubjectID, err)
	}
	return nil
}

func (db *DB) GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = ?`, id)
	pr, err := scanPaymentRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("payment request", id)
		}
		return nil, fmt.Errorf("sqlite: getting payment request %s: %w", id, err)
	}
	return pr, nil
}

// ReviewPaymentRequest is a compare-and-set on status = 'pending'.
//
// Two admins clicking at once both issue this UPDATE; SQLite serializes the
// writes, the first flips the status and the second matches zero rows.
func (db *DB) ReviewPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, reviewerID, reason string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE payment_requests SET status = ?, reviewed_by = ?, rejection_reason = ?, reviewed_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(to), reviewerID, reason, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reviewing payment request %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := db.GetPaymentRequest(ctx, id)
	if err != nil {
		return err
	}
	return repository.PaymentMissError(current)
}

// ListPaymentRequests returns requests newest first.
func (db *DB) ListPaymentRequests(ctx context.Context, filter repository.LedgerFilter) ([]model.PaymentRequest, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests
		 WHERE (? = '' OR subject_id = ?) AND (? = '' OR status = ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		filter.SubjectID, filter.SubjectID,
		filter.Status, filter.Status,
		limitOrDefault(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing payment requests: %w", err)
	}
	defer rows.Close()

	requests := []model.PaymentRequest{}
	for rows.Next() {
		pr, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning payment request: %w", err)
		}
		requests = append(requests, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating payment requests: %w", err)
	}
	return requests, nil
}

// InsertTransaction relies on the primary key over the provider id.
// ON CONFLICT DO NOTHING turns a redelivery into a zero-row insert, which we
// report as inserted=false instead of an error.
func (db *DB) InsertTransaction(ctx context.Context, tx *model.PaymentTransaction) (bool, error) {
	meta, err := json.Marshal(tx.RawMetadata)
	if err != nil {
		return false, fmt.Errorf("sqlite: encoding transaction metadata: %w", err)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO payment_transactions (id, subject_id, item_id, provider, amount, currency, status, raw_metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		tx.ID,
		tx.SubjectID,
		tx.ItemID,
		tx.Provider,
		tx.Amount.String(),
		tx.Currency,
		string(tx.Status),
		string(meta),
		tx.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: inserting transaction %s: %w", tx.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rows == 1, nil
}

// ListTransactions returns transactions newest first.
func (db *DB) ListTransactions(ctx context.Context, filter repository.LedgerFilter) ([]model.PaymentTransaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, subject_id, item_id, provider, amount, currency, status, raw_metadata, created_at
		 FROM payment_transactions
		 WHERE (? = '' OR subject_id = ?) AND (? = '' OR status = ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		filter.SubjectID, filter.SubjectID,
		filter.Status, filter.Status,
		limitOrDefault(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing transactions: %w", err)
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
			return nil, fmt.Errorf("sqlite: scanning transaction: %w", err)
		}
		tx.Status = model.TransactionStatus(status)
		if err := json.Unmarshal([]byte(meta), &tx.RawMetadata); err != nil {
			return nil, fmt.Errorf("sqlite: decoding metadata of %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating transactions: %w", err)
	}
	return txs, nil
}

func scanPaymentRequest(row rowScanner) (*model.PaymentRequest, error) {
	var (
		pr         model.PaymentRequest
		method     string
		status     string
		reviewedAt sql.NullTime
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
		&reviewedAt,
	)
	if err != nil {
		return nil, err
	}
	pr.Method = model.PaymentMethod(method)
	pr.Status = model.PaymentStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		pr.ReviewedAt = &t
	}
	return &pr, nil
}
