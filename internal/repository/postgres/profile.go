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

const profileColumns = `id, external_messaging_id, username, avatar_url, display_name, in_game_name, bio,
	role, activated, activated_at, rejected_at, rejection_reason, activation_request::text,
	review_message_id, version, created_at, updated_at`

// UpsertFromSignIn creates the profile on first sign-in or refreshes the
// handle and avatar. RETURNING gives back the stored row in one round trip.
func (s *Store) UpsertFromSignIn(ctx context.Context, p *model.Profile) error {
	if p.ExternalMessagingID == "" {
		return apperror.ValidationFailed("externalMessagingId", "external messaging id is required")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, external_messaging_id, username, avatar_url, role)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_messaging_id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		 RETURNING `+profileColumns,
		xid.New().String(), p.ExternalMessagingID, p.Username, p.AvatarURL, string(model.RoleUser),
	)
	stored, err := scanProfile(row)
	if err != nil {
		return fmt.Errorf("postgres: upserting profile (externalID=%s): %w", p.ExternalMessagingID, err)
	}
	*p = *stored
	return nil
}

func (s *Store) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("postgres: getting profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) GetProfileByExternalID(ctx context.Context, externalID string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE external_messaging_id = $1`, externalID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("profile", externalID)
		}
		return nil, fmt.Errorf("postgres: getting profile by external id %s: %w", externalID, err)
	}
	return p, nil
}

func (s *Store) SubmitActivation(ctx context.Context, id string, expectedVersion int64, fields model.ActivationFields) error {
	blob, err := json.Marshal(fields.Request)
	if err != nil {
		return fmt.Errorf("postgres: encoding activation request: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			display_name = $1, in_game_name = $2, bio = $3,
			activation_request = $4::jsonb, activation_submitted_at = $5,
			activated = FALSE, activated_at = NULL, rejected_at = NULL, rejection_reason = '',
			review_message_id = '', version = version + 1, updated_at = NOW()
		 WHERE id = $6 AND version = $7 AND activated = FALSE`,
		fields.DisplayName, fields.InGameName, fields.Bio,
		string(blob), fields.Request.SubmittedAt.UTC(),
		id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: submitting activation for %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetProfileByID(ctx, id)
	if err != nil {
		return err
	}
	return repository.SubmitMissError(current)
}

func (s *Store) SetReviewMessageID(ctx context.Context, id, messageID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET review_message_id = $1, updated_at = NOW() WHERE id = $2`, messageID, id)
	if err != nil {
		return fmt.Errorf("postgres: setting review message for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

func (s *Store) ApproveActivation(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			activated = TRUE, activated_at = $1, rejected_at = NULL, rejection_reason = '',
			version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND activated = FALSE AND display_name <> '' AND in_game_name <> ''`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: approving activation for %s: %w", id, err)
	}
	return s.explainProfileMiss(ctx, tag.RowsAffected(), id)
}

func (s *Store) RejectActivation(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			activated = FALSE, rejected_at = $1, rejection_reason = $2,
			version = version + 1, updated_at = NOW()
		 WHERE id = $3 AND activated = FALSE AND rejected_at IS NULL AND display_name <> '' AND in_game_name <> ''`,
		at.UTC(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: rejecting activation for %s: %w", id, err)
	}
	return s.explainProfileMiss(ctx, tag.RowsAffected(), id)
}

func (s *Store) ListPendingActivations(ctx context.Context, opts repository.ListOptions) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE activation_request IS NOT NULL AND activated = FALSE AND rejected_at IS NULL
		 ORDER BY activation_submitted_at ASC, id ASC
		 LIMIT $1 OFFSET $2`,
		limitOrDefault(opts.Limit), opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing pending activations: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating profiles: %w", err)
	}
	return profiles, nil
}

func (s *Store) SetRole(ctx context.Context, id string, role model.Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2`, string(role), id)
	if err != nil {
		return fmt.Errorf("postgres: setting role for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

func (s *Store) explainProfileMiss(ctx context.Context, affected int64, id string) error {
	if affected > 0 {
		return nil
	}
	p, err := s.GetProfileByID(ctx, id)
	if err != nil {
		return err
	}
	return repository.ReviewMissError(p)
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p       model.Profile
		role    string
		request *string
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
		&p.Activated,
		&p.ActivatedAt,
		&p.RejectedAt,
		&p.RejectionReason,
		&request,
		&p.ReviewMessageID,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	if request != nil {
		var req model.ActivationRequest
		if err := json.Unmarshal([]byte(*request), &req); err != nil {
			return nil, fmt.Errorf("decoding activation request: %w", err)
		}
		p.ActivationRequest = &req
	}
	return &p, nil
}
