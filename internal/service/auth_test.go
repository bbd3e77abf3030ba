package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/auth"
)

// =========================================================================
// SIGN-IN TESTS
// =========================================================================

func TestSignIn_CreatesThenRefreshes(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.store, testLogger()).WithClock(f.clock)

	first, err := svc.SignIn(context.Background(), &auth.DiscordUser{ID: "100", Username: "nova", Avatar: "abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "nova", first.Username)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/100/abc.png", first.AvatarURL)
	assert.False(t, first.Activated)
	assert.Equal(t, access.TierNoProfile, access.Classify(first))

	second, err := svc.SignIn(context.Background(), &auth.DiscordUser{ID: "100", Username: "nova", GlobalName: "Nova"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := f.store.GetProfileByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nova", stored.Username)
}

func TestSignIn_KeepsActivationState(t *testing.T) {
	f := newFixture(t)
	auths := NewAuthService(f.store, testLogger())
	activation := f.activation(RoleGrant{})
	admin := f.admin(t, "900")

	p := f.submitted(t, activation, "100")
	_, err := activation.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)

	_, err = auths.SignIn(context.Background(), &auth.DiscordUser{ID: "100", Username: "renamed"})
	require.NoError(t, err)

	stored, err := f.store.GetProfileByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Activated)
	assert.Equal(t, "Nova", stored.DisplayName)
}

func TestSignIn_RequiresID(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.store, testLogger())

	_, err := svc.SignIn(context.Background(), &auth.DiscordUser{Username: "ghost"})
	assert.Error(t, err)
	_, err = svc.SignIn(context.Background(), nil)
	assert.Error(t, err)
}

// =========================================================================
// ME TESTS
// =========================================================================

func TestMe(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.store, testLogger()).WithClock(f.clock)
	activation := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, activation, "100")

	_, err := activation.Reject(context.Background(), admin, p.ID, "X")
	require.NoError(t, err)
	f.advance(2 * time.Hour)

	me, err := svc.Me(context.Background(), f.viewer(t, p.ID))
	require.NoError(t, err)
	assert.Equal(t, p.ID, me.Profile.ID)
	assert.Equal(t, access.TierPendingOrRejected, me.Tier)
	assert.Equal(t, StateRejected, me.Activation.State)
	assert.Equal(t, "X", me.Activation.RejectionReason)
	assert.Equal(t, int64(22*3600), me.Activation.CooldownRemainingSeconds)

	adminMe, err := svc.Me(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, access.TierAdmin, adminMe.Tier)

	_, err = svc.Me(context.Background(), access.Anonymous())
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestMe_StoreFailure(t *testing.T) {
	f := newFixture(t)
	p := f.signIn(t, "100")
	v := f.viewer(t, p.ID)

	svc := NewAuthService(&failingProfiles{Store: f.store, getErr: errDB}, testLogger())
	_, err := svc.Me(context.Background(), v)
	assert.True(t, errors.Is(err, errDB))
}
