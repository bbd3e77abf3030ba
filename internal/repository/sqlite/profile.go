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

var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, external_messaging_id, username, avatar_url, display_name, in_game_name, bio,
	role, activated, activated_at, rejected_at, rejection_reason, activation_request,
	review_message_id, version, created_at, updated_at`

// UpsertFromSignIn inserts a fresh profile or refreshes the Discord handle
// and avatar of an existing one.
//
// INSERT ... ON CONFLICT DO UPDATE keeps the existing internal id and never
// touches activation state, so a returning subject keeps their tier. Two
// concurrent first sign-ins collapse onto the same row.
func (db *DB) UpsertFromSignIn(ctx context.Context, p *model.Profile) error {
	if p.ExternalMessagingID == "" {
		return apperror.ValidationFailed("externalMessagingId", "external messaging id is required")
	}

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, external_messaging_id, username, avatar_url, role, activated, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(external_messaging_id) DO UPDATE SET
			username = excluded.username,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		xid.New().String(),
		p.ExternalMessagingID,
		p.Username,
		p.AvatarURL,
		string(model.RoleUser),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting profile (externalID=%s): %w", p.ExternalMessagingID, err)
	}

	stored, err := db.GetProfileByExternalID(ctx, p.ExternalMessagingID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// GetProfileByID retrieves a profile by its internal ID.
// Returns apperror.ErrNotFound if no profile exists with that ID.
func (db *DB) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}
	return p, nil
}

func (db *DB) GetProfileByExternalID(ctx context.Context, externalID string) (*model.Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE external_messaging_id = ?`, externalID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting profile by external id %s: %w", externalID, err)
	}
	return p, nil
}

// SubmitActivation stores the activation form.
//
// The WHERE clause carries both guards: the version the caller read and
// activated = 0. If either no longer holds the update touches zero rows and
// we look the row up once to report the right error.
func (db *DB) SubmitActivation(ctx context.Context, id string, expectedVersion int64, fields model.ActivationFields) error {
	blob, err := json.Marshal(fields.Request)
	if err != nil {
		return fmt.Errorf("sqlite: encoding activation request: %w", err)
	}

	now := time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET
			display_name = ?, in_game_name = ?, bio = ?,
			activation_request = ?, activation_submitted_at = ?,
			activated = 0, activated_at = NULL, rejected_at = NULL, rejection_reason = '',
			review_message_id = '', version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND activated = 0`,
		fields.DisplayName,
		fields.InGameName,
		fields.Bio,
		string(blob),
		fields.Request.SubmittedAt.UTC(),
		now,
		id,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("sqlite: submitting activation for %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := db.GetProfileByID(ctx, id)
	if err != nil {
		return err
	}
	return repository.SubmitMissError(current)
}

func (db *DB) SetReviewMessageID(ctx context.Context, id, messageID string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET review_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting review message for %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

// ApproveActivation flips activated to true. Only a row that is not yet
// activated and has both names is eligible.
func (db *DB) ApproveActivation(ctx context.Context, id string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET
			activated = 1, activated_at = ?, rejected_at = NULL, rejection_reason = '',
			version = version + 1, updated_at = ?
		 WHERE id = ? AND activated = 0 AND display_name <> '' AND in_game_name <> ''`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: approving activation for %s: %w", id, err)
	}
	return db.explainProfileMiss(ctx, result, id)
}

// RejectActivation records the rejection. A request that is already
// rejected must be resubmitted before it can be rejected again.
func (db *DB) RejectActivation(ctx context.Context, id, reason string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET
			activated = 0, rejected_at = ?, rejection_reason = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND activated = 0 AND rejected_at IS NULL AND display_name <> '' AND in_game_name <> ''`,
		at.UTC(), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: rejecting activation for %s: %w", id, err)
	}
	return db.explainProfileMiss(ctx, result, id)
}

func (db *DB) ListPendingActivations(ctx context.Context, opts repository.ListOptions) ([]model.Profile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE activation_request IS NOT NULL AND activated = 0 AND rejected_at IS NULL
		 ORDER BY activation_submitted_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		limitOrDefault(opts.Limit), opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pending activations: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profiles: %w", err)
	}
	return profiles, nil
}

func (db *DB) SetRole(ctx context.Context, id string, role model.Role) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

// explainProfileMiss turns a zero-row conditional update into NotFound,
// Conflict or Validation by reading the row once. It returns nil when the
// update did apply.
func (db *DB) explainProfileMiss(ctx context.Context, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	p, err := db.GetProfileByID(ctx, id)
	if err != nil {
		return err
	}
	return repository.ReviewMissError(p)
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p           model.Profile
		role        string
		activated   bool
		activatedAt sql.NullTime
		rejectedAt  sql.NullTime
		requestBlob sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.ExternalMessagingID,
		&p.Username,
		&p.AvatarURL,
		&p.DisplayName,
		&p.InGameName,
		&p.Bio,
		&role,
		&activated,
		&activatedAt,
		&rejectedAt,
		&p.RejectionReason,
		&requestBlob,
		&p.ReviewMessageID,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Role = model.Role(role)
	p.Activated = activated
	if activatedAt.Valid {
		t := activatedAt.Time
		p.ActivatedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		p.RejectedAt = &t
	}
	if requestBlob.Valid && requestBlob.String != "" {
		var req model.ActivationRequest
		if err := json.Unmarshal([]byte(requestBlob.String), &req); err != nil {
			return nil, fmt.Errorf("decoding activation request: %w", err)
		}
		p.ActivationRequest = &req
	}
	return &p, nil
}
