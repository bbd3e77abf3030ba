package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/repository"
)

// ResubmitCooldown is how long a rejected subject waits before submitting
// again.
const ResubmitCooldown = 24 * time.Hour

// Activation form limits.
const (
	MaxNameLength        = 32
	MaxBioLength         = 500
	MaxCharacterLength   = 64
	MaxExperienceLength  = 2000
	MaxProfileLinkLength = 300
	MaxReasonLength      = 500
	MinAge               = 13
	MaxAge               = 120
)

// CanResubmit reports whether p may submit an activation request at now:
// never rejected, or rejected at least ResubmitCooldown ago.
func CanResubmit(p *model.Profile, now time.Time) bool {
	return CooldownRemaining(p, now) == 0
}

// CooldownRemaining is the wait before p may resubmit, floored at zero.
func CooldownRemaining(p *model.Profile, now time.Time) time.Duration {
	if p == nil || p.RejectedAt == nil {
		return 0
	}
	left := ResubmitCooldown - now.Sub(*p.RejectedAt)
	if left < 0 {
		return 0
	}
	return left
}

// ActivationState names where a subject is in the activation workflow.
type ActivationState string

const (
	StateNoRequest ActivationState = "none"
	StatePending   ActivationState = "pending"
	StateRejected  ActivationState = "rejected"
	StateActivated ActivationState = "activated"
)

// ActivationStatus is the activation view shown to the subject.
type ActivationStatus struct {
	State                    ActivationState `json:"state"`
	RejectionReason          string          `json:"rejectionReason,omitempty"`
	RejectedAt               *time.Time      `json:"rejectedAt,omitempty"`
	CanResubmit              bool            `json:"canResubmit"`
	CooldownRemainingSeconds int64           `json:"cooldownRemainingSeconds"`
}

// StatusOf derives the ActivationStatus of p at now.
func StatusOf(p *model.Profile, now time.Time) ActivationStatus {
	st := ActivationStatus{State: StateNoRequest}
	if p == nil {
		st.CanResubmit = true
		return st
	}
	switch {
	case p.Activated:
		st.State = StateActivated
	case p.RejectedAt != nil:
		st.State = StateRejected
		st.RejectionReason = p.RejectionReason
		st.RejectedAt = p.RejectedAt
	case p.HasNames():
		st.State = StatePending
	}
	left := CooldownRemaining(p, now)
	st.CanResubmit = !p.Activated && left == 0
	st.CooldownRemainingSeconds = int64(left.Round(time.Second) / time.Second)
	return st
}

// SubmitInput is the activation form.
type SubmitInput struct {
	DisplayName   string `json:"displayName"`
	InGameName    string `json:"inGameName"`
	Bio           string `json:"bio"`
	CharacterName string `json:"characterName"`
	Age           int    `json:"age"`
	ProfileLink   string `json:"profileLink"`
	Experience    string `json:"experience"`
}

func (in SubmitInput) validate() (model.ActivationFields, error) {
	var (
		f   model.ActivationFields
		err error
	)
	if f.DisplayName, err = requiredText("displayName", in.DisplayName, MaxNameLength); err != nil {
		return f, err
	}
	if f.InGameName, err = requiredText("inGameName", in.InGameName, MaxNameLength); err != nil {
		return f, err
	}
	if f.Bio, err = optionalText("bio", in.Bio, MaxBioLength); err != nil {
		return f, err
	}
	if f.Request.CharacterName, err = requiredText("characterName", in.CharacterName, MaxCharacterLength); err != nil {
		return f, err
	}
	if in.Age < MinAge || in.Age > MaxAge {
		return f, apperror.ValidationFailed("age", fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}
	f.Request.Age = in.Age
	if f.Request.ProfileLink, err = optionalText("profileLink", in.ProfileLink, MaxProfileLinkLength); err != nil {
		return f, err
	}
	if f.Request.ProfileLink != "" && !validHTTPURL(f.Request.ProfileLink) {
		return f, apperror.ValidationFailed("profileLink", "profileLink must be an http or https URL")
	}
	if f.Request.Experience, err = optionalText("experience", in.Experience, MaxExperienceLength); err != nil {
		return f, err
	}
	return f, nil
}

// RoleGrant is the optional Discord role given on approval. Both ids must
// be set for a grant to happen.
type RoleGrant struct {
	GuildID string
	RoleID  string
}

func (g RoleGrant) enabled() bool { return g.GuildID != "" && g.RoleID != "" }

// ActivationService runs the activation state machine:
//
//	NoRequest → Pending → Activated
//	                    ↘ Rejected → Pending (after ResubmitCooldown)
type ActivationService struct {
	profiles repository.ProfileRepository
	jobs     notify.Runner
	role     RoleGrant
	now      Clock
	logger   *slog.Logger
}

func NewActivationService(profiles repository.ProfileRepository, jobs notify.Runner, role RoleGrant, logger *slog.Logger) *ActivationService {
	return &ActivationService{
		profiles: profiles,
		jobs:     jobs,
		role:     role,
		now:      systemClock,
		logger:   logger,
	}
}

// WithClock replaces the clock. Tests use it to pin time.
func (s *ActivationService) WithClock(now Clock) *ActivationService {
	s.now = now
	return s
}

// Status returns the activation view of the viewer's own profile.
func (s *ActivationService) Status(ctx context.Context, v access.Viewer) (ActivationStatus, error) {
	if err := requireSession(v); err != nil {
		return ActivationStatus{}, err
	}
	p, err := s.profiles.GetProfileByID(ctx, v.SubjectID)
	if err != nil {
		return ActivationStatus{}, fmt.Errorf("service/activation: loading %s: %w", v.SubjectID, err)
	}
	return StatusOf(p, s.now()), nil
}

// Submit creates or overwrites the viewer's activation request and asks
// staff to review it. A rejected subject must wait out the cooldown.
func (s *ActivationService) Submit(ctx context.Context, v access.Viewer, in SubmitInput) (*model.Profile, error) {
	if err := requireSession(v); err != nil {
		return nil, err
	}
	fields, err := in.validate()
	if err != nil {
		return nil, err
	}

	p, err := s.profiles.GetProfileByID(ctx, v.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("service/activation: loading %s: %w", v.SubjectID, err)
	}
	if p.Activated {
		return nil, apperror.StateConflict("profile", p.ID, "activated")
	}

	now := s.now()
	if left := CooldownRemaining(p, now); left > 0 {
		return nil, apperror.ConflictMessage(fmt.Sprintf(
			"activation was rejected recently, you can submit again in %s", left.Round(time.Minute)))
	}

	fields.Request.SubmittedAt = now
	if err := s.profiles.SubmitActivation(ctx, p.ID, p.Version, fields); err != nil {
		return nil, fmt.Errorf("service/activation: submitting %s: %w", p.ID, err)
	}

	updated, err := s.profiles.GetProfileByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("service/activation: reloading %s: %w", p.ID, err)
	}

	s.logger.Info("activation submitted", slog.String("subjectID", p.ID))
	s.jobs.Enqueue(s.staffReviewJob(updated))

	return updated, nil
}

// staffReviewJob posts the request to staff and remembers the message id.
// Once the post succeeds the job is done: a failed id write is only logged,
// since retrying would post a second review message.
func (s *ActivationService) staffReviewJob(p *model.Profile) notify.Job {
	req := notify.ReviewRequest{
		Subject:    notify.RecipientOf(p),
		Username:   p.Username,
		InGameName: p.InGameName,
		Bio:        p.Bio,
	}
	if p.ActivationRequest != nil {
		req.Application = *p.ActivationRequest
	}
	subjectID := p.ID

	return notify.NewJob(notify.KindStaffReview, subjectID, func(ctx context.Context, d notify.Dispatcher) error {
		msgID, err := d.SendStaffReviewRequest(ctx, req)
		if err != nil {
			return err
		}
		if msgID == "" {
			return nil
		}
		if err := s.profiles.SetReviewMessageID(ctx, subjectID, msgID); err != nil {
			s.logger.Warn("staff review posted but message id not stored",
				slog.String("subjectID", subjectID),
				slog.String("messageID", msgID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
}

// ListPending returns requests awaiting review, oldest first.
func (s *ActivationService) ListPending(ctx context.Context, v access.Viewer, opts repository.ListOptions) ([]model.Profile, error) {
	if err := requireAdmin(v); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListPendingActivations(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/activation: listing pending: %w", err)
	}
	return profiles, nil
}

// Approve activates subjectID. It fails with a conflict if the subject is
// already activated; the store guarantees one winner among concurrent calls.
func (s *ActivationService) Approve(ctx context.Context, v access.Viewer, subjectID string) (*model.Profile, error) {
	if err := requireAdmin(v); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, apperror.ValidationFailed("subjectId", "subjectId is required")
	}

	if err := s.profiles.ApproveActivation(ctx, subjectID, s.now()); err != nil {
		return nil, fmt.Errorf("service/activation: approving %s: %w", subjectID, err)
	}

	s.logger.Info("activation approved",
		slog.String("subjectID", subjectID),
		slog.String("adminID", v.SubjectID),
	)

	s.jobs.Enqueue(profileJob(s.profiles, notify.KindActivationApproved, subjectID,
		func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error {
			return d.SendApproval(ctx, to)
		}))

	if s.role.enabled() {
		role := s.role
		s.jobs.Enqueue(profileJob(s.profiles, notify.KindRoleGrant, subjectID,
			func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error {
				return d.GrantRole(ctx, role.GuildID, to.ExternalID, role.RoleID)
			}))
	}

	return s.reload(ctx, subjectID)
}

// Reject rejects subjectID's pending request with reason, which is sent to
// the subject.
func (s *ActivationService) Reject(ctx context.Context, v access.Viewer, subjectID, reason string) (*model.Profile, error) {
	if err := requireAdmin(v); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, apperror.ValidationFailed("subjectId", "subjectId is required")
	}
	reason, err := requiredText("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.RejectActivation(ctx, subjectID, reason, s.now()); err != nil {
		return nil, fmt.Errorf("service/activation: rejecting %s: %w", subjectID, err)
	}

	s.logger.Info("activation rejected",
		slog.String("subjectID", subjectID),
		slog.String("adminID", v.SubjectID),
	)

	s.jobs.Enqueue(profileJob(s.profiles, notify.KindActivationRejected, subjectID,
		func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error {
			return d.SendRejection(ctx, to, reason)
		}))

	return s.reload(ctx, subjectID)
}

// ApproveFromStaff is Approve for a Discord button click by staffExternalID.
func (s *ActivationService) ApproveFromStaff(ctx context.Context, staffExternalID, subjectID string) error {
	v, err := s.staffViewer(ctx, staffExternalID)
	if err != nil {
		return err
	}
	_, err = s.Approve(ctx, v, subjectID)
	return err
}

// RejectFromStaff is Reject for a Discord modal submitted by staffExternalID.
func (s *ActivationService) RejectFromStaff(ctx context.Context, staffExternalID, subjectID, reason string) error {
	v, err := s.staffViewer(ctx, staffExternalID)
	if err != nil {
		return err
	}
	_, err = s.Reject(ctx, v, subjectID, reason)
	return err
}

// staffViewer classifies the profile linked to a Discord account. An
// unknown account gets Forbidden rather than NotFound.
func (s *ActivationService) staffViewer(ctx context.Context, externalID string) (access.Viewer, error) {
	if externalID == "" {
		return access.Viewer{}, apperror.Forbidden("admin access required")
	}
	p, err := s.profiles.GetProfileByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return access.Viewer{}, apperror.Forbidden("no admin profile is linked to this Discord account")
		}
		return access.Viewer{}, fmt.Errorf("service/activation: resolving staff %s: %w", externalID, err)
	}
	return access.NewViewer(p.ID, p), nil
}

// reload returns the profile after a committed transition. A failed reload
// does not undo the transition, so it is logged and a nil profile returned.
func (s *ActivationService) reload(ctx context.Context, subjectID string) (*model.Profile, error) {
	p, err := s.profiles.GetProfileByID(ctx, subjectID)
	if err != nil {
		s.logger.Warn("activation committed but reload failed",
			slog.String("subjectID", subjectID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return p, nil
}
