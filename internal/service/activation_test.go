package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/repository"
)

// =========================================================================
// COOLDOWN TESTS
// =========================================================================

func TestCanResubmit_Boundary(t *testing.T) {
	rejectedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &model.Profile{RejectedAt: &rejectedAt}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"right after", rejectedAt.Add(time.Second), false},
		{"one nanosecond short", rejectedAt.Add(ResubmitCooldown - time.Nanosecond), false},
		{"exactly 24h", rejectedAt.Add(ResubmitCooldown), true},
		{"later", rejectedAt.Add(48 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanResubmit(p, tt.at))
		})
	}

	assert.True(t, CanResubmit(&model.Profile{}, rejectedAt), "never rejected")
}

func TestCooldownRemaining(t *testing.T) {
	rejectedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &model.Profile{RejectedAt: &rejectedAt}

	assert.Equal(t, 20*time.Hour, CooldownRemaining(p, rejectedAt.Add(4*time.Hour)))
	assert.Equal(t, time.Duration(0), CooldownRemaining(p, rejectedAt.Add(30*time.Hour)))
	assert.Equal(t, time.Duration(0), CooldownRemaining(nil, rejectedAt))
}

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rejectedAt := now.Add(-time.Hour)

	assert.Equal(t, StateNoRequest, StatusOf(&model.Profile{}, now).State)
	assert.Equal(t, StatePending, StatusOf(&model.Profile{DisplayName: "D", InGameName: "I"}, now).State)
	assert.Equal(t, StateActivated, StatusOf(&model.Profile{DisplayName: "D", InGameName: "I", Activated: true}, now).State)

	st := StatusOf(&model.Profile{DisplayName: "D", InGameName: "I", RejectedAt: &rejectedAt, RejectionReason: "X"}, now)
	assert.Equal(t, StateRejected, st.State)
	assert.Equal(t, "X", st.RejectionReason)
	assert.False(t, st.CanResubmit)
	assert.Equal(t, int64(23*3600), st.CooldownRemainingSeconds)
}

// =========================================================================
// SUBMIT TESTS
// =========================================================================

func TestSubmit_StoresRequestAndNotifiesStaff(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})

	p := f.submitted(t, svc, "100")

	assert.Equal(t, "Nova", p.DisplayName)
	assert.Equal(t, "NovaIGN", p.InGameName)
	assert.False(t, p.Activated)
	require.NotNil(t, p.ActivationRequest)
	assert.Equal(t, 25, p.ActivationRequest.Age)
	assert.Equal(t, f.now, p.ActivationRequest.SubmittedAt.UTC())

	calls := f.rec.Calls("SendStaffReviewRequest")
	require.Len(t, calls, 1)
	assert.Equal(t, p.ID, calls[0].Review.Subject.SubjectID)
	assert.Equal(t, "Nova Prime", calls[0].Review.Application.CharacterName)

	stored, err := f.store.GetProfileByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", stored.ReviewMessageID)

	// The gate now holds the subject on the pending page.
	assert.Equal(t, access.TierPendingOrRejected, f.viewer(t, p.ID).Tier)
}

func TestSubmit_StaffNotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.rec.ReviewErr = errors.New("discord down")
	svc := f.activation(RoleGrant{})

	p := f.submitted(t, svc, "100")
	assert.True(t, p.HasNames())
}

func TestSubmit_ReviewPostedOnceWhenIDNotStored(t *testing.T) {
	f := newFixture(t)
	jobs := notify.NewImmediate(f.rec, notify.Policy{Timeout: time.Second, MaxAttempts: 3}, testLogger())
	store := &failingProfiles{Store: f.store, setReviewErr: errDB}
	svc := NewActivationService(store, jobs, RoleGrant{}, testLogger()).WithClock(f.clock)

	p := f.signIn(t, "100")
	_, err := svc.Submit(context.Background(), f.viewer(t, p.ID), validSubmit())
	require.NoError(t, err)

	assert.Len(t, f.rec.Calls("SendStaffReviewRequest"), 1)

	stored, err := f.store.GetProfileByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ReviewMessageID)
	assert.True(t, stored.HasNames())
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	p := f.signIn(t, "100")
	v := f.viewer(t, p.ID)

	tests := []struct {
		name  string
		edit  func(*SubmitInput)
		field string
	}{
		{"missing display name", func(in *SubmitInput) { in.DisplayName = "  " }, "displayName"},
		{"missing in-game name", func(in *SubmitInput) { in.InGameName = "" }, "inGameName"},
		{"long display name", func(in *SubmitInput) { in.DisplayName = strings.Repeat("a", MaxNameLength+1) }, "displayName"},
		{"missing character", func(in *SubmitInput) { in.CharacterName = "" }, "characterName"},
		{"too young", func(in *SubmitInput) { in.Age = MinAge - 1 }, "age"},
		{"too old", func(in *SubmitInput) { in.Age = MaxAge + 1 }, "age"},
		{"bad link", func(in *SubmitInput) { in.ProfileLink = "javascript:alert(1)" }, "profileLink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSubmit()
			tt.edit(&in)

			_, err := svc.Submit(context.Background(), v, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Empty(t, f.rec.Calls(""))
}

func TestSubmit_RequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.activation(RoleGrant{}).Submit(context.Background(), access.Anonymous(), validSubmit())
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestSubmit_ActivatedConflict(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), f.viewer(t, p.ID), validSubmit())
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestSubmit_ResubmitOverwritesPending(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	p := f.submitted(t, svc, "100")

	in := validSubmit()
	in.DisplayName = "Nova Two"
	got, err := svc.Submit(context.Background(), f.viewer(t, p.ID), in)
	require.NoError(t, err)
	assert.Equal(t, "Nova Two", got.DisplayName)
	assert.Len(t, f.rec.Calls("SendStaffReviewRequest"), 2)
}

func TestSubmit_CooldownAfterRejection(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Reject(context.Background(), admin, p.ID, "X")
	require.NoError(t, err)

	f.advance(23 * time.Hour)
	_, err = svc.Submit(context.Background(), f.viewer(t, p.ID), validSubmit())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Contains(t, err.Error(), "1h0m0s")

	f.advance(time.Hour)
	got, err := svc.Submit(context.Background(), f.viewer(t, p.ID), validSubmit())
	require.NoError(t, err)
	assert.Nil(t, got.RejectedAt)
	assert.Empty(t, got.RejectionReason)
}

// =========================================================================
// APPROVE / REJECT TESTS
// =========================================================================

func TestApprove_ActivatesAndNotifies(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{GuildID: "guild-1", RoleID: "role-1"})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	got, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Activated)
	require.NotNil(t, got.ActivatedAt)
	assert.Equal(t, f.now, got.ActivatedAt.UTC())
	assert.Nil(t, got.RejectedAt)

	approvals := f.rec.Calls("SendApproval")
	require.Len(t, approvals, 1)
	assert.Equal(t, "100", approvals[0].Recipient.ExternalID)

	grants := f.rec.Calls("GrantRole")
	require.Len(t, grants, 1)
	assert.Equal(t, "guild-1", grants[0].GroupID)
	assert.Equal(t, "100", grants[0].ExternalID)
	assert.Equal(t, "role-1", grants[0].RoleID)

	assert.Equal(t, access.TierActivated, f.viewer(t, p.ID).Tier)
}

func TestApprove_NoRoleGrantWithoutConfig(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{GuildID: "guild-1"})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)
	assert.Empty(t, f.rec.Calls("GrantRole"))
}

func TestApprove_NotificationFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.rec.ApprovalErr = errors.New("dm closed")
	f.rec.RoleErr = errors.New("missing permissions")
	svc := f.activation(RoleGrant{GuildID: "g", RoleID: "r"})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	got, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Activated)
}

func TestApprove_Authorization(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	p := f.submitted(t, svc, "100")

	_, err := svc.Approve(context.Background(), access.Anonymous(), p.ID)
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	_, err = svc.Approve(context.Background(), f.viewer(t, p.ID), p.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	degraded := access.Viewer{SubjectID: "x", Tier: access.TierAdmin, Degraded: true}
	_, err = svc.Approve(context.Background(), degraded, p.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestApprove_TwiceConflicts(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), admin, p.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = svc.Reject(context.Background(), admin, p.ID, "late")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	assert.Len(t, f.rec.Calls("SendApproval"), 1)
	assert.Empty(t, f.rec.Calls("SendRejection"))
}

func TestApprove_ConcurrentExactlyOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	const n = 5
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), admin, p.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, apperror.ErrConflict))
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.rec.Calls("SendApproval"), 1)
}

func TestApprove_UnknownSubject(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")

	_, err := svc.Approve(context.Background(), admin, "does-not-exist")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.Approve(context.Background(), admin, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestReject_RoundTrip(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	got, err := svc.Reject(context.Background(), admin, p.ID, "  X  ")
	require.NoError(t, err)
	assert.False(t, got.Activated)
	require.NotNil(t, got.RejectedAt)
	assert.Equal(t, "X", got.RejectionReason)

	st := StatusOf(got, f.now)
	assert.Equal(t, StateRejected, st.State)
	assert.False(t, st.CanResubmit)
	assert.True(t, CanResubmit(got, f.now.Add(ResubmitCooldown)))

	rejections := f.rec.Calls("SendRejection")
	require.Len(t, rejections, 1)
	assert.Equal(t, "X", rejections[0].Reason)

	v := f.viewer(t, p.ID)
	assert.Equal(t, access.TierPendingOrRejected, v.Tier)
	assert.True(t, v.Rejected)
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Reject(context.Background(), admin, p.ID, "   ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestApprove_AfterRejection(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	_, err := svc.Reject(context.Background(), admin, p.ID, "X")
	require.NoError(t, err)

	got, err := svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Activated)
	assert.Nil(t, got.RejectedAt)
	assert.Empty(t, got.RejectionReason)
}

// =========================================================================
// STAFF CHANNEL TESTS
// =========================================================================

func TestFromStaff_SameRulesAsHTTP(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	f.admin(t, "900")
	p := f.submitted(t, svc, "100")
	f.signIn(t, "555") // not an admin

	err := svc.ApproveFromStaff(context.Background(), "555", p.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	err = svc.ApproveFromStaff(context.Background(), "unknown-discord-user", p.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	require.NoError(t, svc.ApproveFromStaff(context.Background(), "900", p.ID))

	err = svc.ApproveFromStaff(context.Background(), "900", p.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	err = svc.RejectFromStaff(context.Background(), "900", p.ID, "X")
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestRejectFromStaff(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	f.admin(t, "900")
	p := f.submitted(t, svc, "100")

	require.NoError(t, svc.RejectFromStaff(context.Background(), "900", p.ID, "missing info"))

	got, err := f.store.GetProfileByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "missing info", got.RejectionReason)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListPending(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	admin := f.admin(t, "900")

	first := f.submitted(t, svc, "100")
	f.advance(time.Minute)
	second := f.submitted(t, svc, "200")
	f.advance(time.Minute)
	third := f.submitted(t, svc, "300")

	_, err := svc.Reject(context.Background(), admin, third.ID, "X")
	require.NoError(t, err)

	list, err := svc.ListPending(context.Background(), admin, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = svc.ListPending(context.Background(), f.viewer(t, first.ID), repository.ListOptions{})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

// =========================================================================
// END-TO-END SCENARIO
// =========================================================================

func TestActivationScenario(t *testing.T) {
	f := newFixture(t)
	svc := f.activation(RoleGrant{})
	policy := access.DefaultPolicy()
	admin := f.admin(t, "900")

	p := f.signIn(t, "100")
	v := f.viewer(t, p.ID)
	assert.False(t, p.Activated)
	assert.Equal(t, access.PathActivation, policy.Decide("/", v).Redirect)

	_, err := svc.Submit(context.Background(), v, validSubmit())
	require.NoError(t, err)
	v = f.viewer(t, p.ID)
	assert.Equal(t, "/pending?status=pending", policy.Decide("/", v).Redirect)

	_, err = svc.Approve(context.Background(), admin, p.ID)
	require.NoError(t, err)
	v = f.viewer(t, p.ID)
	assert.True(t, policy.Decide("/", v).Allow)
	assert.Equal(t, access.PathHome, policy.Decide(access.PathActivation, v).Redirect)
	assert.Equal(t, access.PathHome, policy.Decide(access.PathPending, v).Redirect)
}
