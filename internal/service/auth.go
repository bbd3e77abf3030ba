package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/auth"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

// AuthService turns a completed Discord sign-in into a profile and answers
// "who am I" for the signed-in subject.
//
//	AuthHandler → AuthService → ProfileRepository
//	            ↘ auth.Sessions (cookie)
type AuthService struct {
	profiles repository.ProfileRepository
	now      Clock
	logger   *slog.Logger
}

func NewAuthService(profiles repository.ProfileRepository, logger *slog.Logger) *AuthService {
	return &AuthService{profiles: profiles, now: systemClock, logger: logger}
}

// WithClock replaces the clock. Tests use it to pin time.
func (s *AuthService) WithClock(now Clock) *AuthService {
	s.now = now
	return s
}

// SignIn upserts the profile keyed by the Discord user id. A first sign-in
// creates an unactivated profile with no names; later sign-ins only refresh
// the Discord handle and avatar.
func (s *AuthService) SignIn(ctx context.Context, user *auth.DiscordUser) (*model.Profile, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("service/auth: Discord user must have an id")
	}

	username := user.GlobalName
	if username == "" {
		username = user.Username
	}
	p := &model.Profile{
		ExternalMessagingID: user.ID,
		Username:            username,
		AvatarURL:           user.AvatarURL(),
	}
	if err := s.profiles.UpsertFromSignIn(ctx, p); err != nil {
		return nil, fmt.Errorf("service/auth: upserting profile (discordID=%s): %w", user.ID, err)
	}

	s.logger.Info("subject signed in",
		slog.String("subjectID", p.ID),
		slog.String("discordID", user.ID),
	)
	return p, nil
}

// Me is the signed-in subject's view of themselves.
type Me struct {
	Profile    *model.Profile   `json:"profile"`
	Tier       access.Tier      `json:"tier"`
	Activation ActivationStatus `json:"activation"`
}

// Me returns the viewer's profile, tier and activation status. The profile
// is read fresh rather than taken from the viewer.
func (s *AuthService) Me(ctx context.Context, v access.Viewer) (*Me, error) {
	if err := requireSession(v); err != nil {
		return nil, err
	}
	p, err := s.profiles.GetProfileByID(ctx, v.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching profile %s: %w", v.SubjectID, err)
	}
	return &Me{
		Profile:    p,
		Tier:       access.Classify(p),
		Activation: StatusOf(p, s.now()),
	}, nil
}
