package discord

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/notify"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := New("test-token", "staff-channel", logger)
	require.NoError(t, err)
	return c
}

type fakeReviewer struct {
	approveErr error
	rejectErr  error

	staffID   string
	subjectID string
	reason    string
	calls     int
}

func (f *fakeReviewer) ApproveFromStaff(ctx context.Context, staffID, subjectID string) error {
	f.calls++
	f.staffID, f.subjectID = staffID, subjectID
	return f.approveErr
}

func (f *fakeReviewer) RejectFromStaff(ctx context.Context, staffID, subjectID, reason string) error {
	f.calls++
	f.staffID, f.subjectID, f.reason = staffID, subjectID, reason
	return f.rejectErr
}

func buttonClick(customID, userID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:   discordgo.InteractionMessageComponent,
		Member: &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:   discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func modalSubmit(customID, userID, reason string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: userID},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: customID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: reasonInputID, Value: reason},
				}},
			},
		},
	}
}

// =========================================================================
// LIFECYCLE TESTS
// =========================================================================

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", "", slog.Default())
	assert.Error(t, err)
}

// =========================================================================
// CUSTOM ID TESTS
// =========================================================================

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		in      string
		action  string
		subject string
		ok      bool
	}{
		{"activation:approve:abc", actionApprove, "abc", true},
		{"activation:reject:abc", actionReject, "abc", true},
		{"activation:reason:abc", actionReason, "abc", true},
		{"activation:delete:abc", "", "", false},
		{"activation:approve:", "", "", false},
		{"payment:approve:abc", "", "", false},
		{"garbage", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			action, subject, ok := parseCustomID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.subject, subject)
		})
	}
}

// =========================================================================
// MESSAGE TESTS
// =========================================================================

func TestReviewMessage_HasButtonsForSubject(t *testing.T) {
	msg := reviewMessage(notify.ReviewRequest{
		Subject:    notify.Recipient{SubjectID: "subj-1", ExternalID: "123", DisplayName: "Nova"},
		Username:   "nova",
		InGameName: "NovaIGN",
		Application: model.ActivationRequest{
			CharacterName: "Nova Prime",
			Age:           27,
			SubmittedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	})

	require.Len(t, msg.Components, 1)
	row := msg.Components[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 2)
	assert.Equal(t, "activation:approve:subj-1", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, "activation:reject:subj-1", row.Components[1].(discordgo.Button).CustomID)

	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, "2026-01-02T03:04:05Z", msg.Embeds[0].Timestamp)
	assert.Equal(t, "27", msg.Embeds[0].Fields[4].Value)
}

func TestReceiptMessage(t *testing.T) {
	pending := receiptMessage(notify.Receipt{
		Reference: "pr1", ItemName: "VIP", Amount: decimal.RequireFromString("250"),
		Currency: "egp", Method: "wallet", Status: notify.ReceiptPending,
	})
	assert.Equal(t, "Payment received", pending.Embeds[0].Title)
	assert.Equal(t, "250.00 EGP", pending.Embeds[0].Fields[1].Value)

	rejected := receiptMessage(notify.Receipt{Status: notify.ReceiptRejected, Reason: "blurry proof"})
	assert.Equal(t, "Payment rejected", rejected.Embeds[0].Title)
	last := rejected.Embeds[0].Fields[len(rejected.Embeds[0].Fields)-1]
	assert.Equal(t, "blurry proof", last.Value)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

// =========================================================================
// INTERACTION TESTS
// =========================================================================

func TestInteraction_ApproveButton(t *testing.T) {
	c := newTestClient(t)
	r := &fakeReviewer{}

	resp := c.handleInteraction(r, buttonClick("activation:approve:subj-1", "staff-9"))

	require.NotNil(t, resp)
	assert.Equal(t, "staff-9", r.staffID)
	assert.Equal(t, "subj-1", r.subjectID)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Equal(t, "Activation approved.", resp.Data.Content)
}

func TestInteraction_ApproveRefused(t *testing.T) {
	c := newTestClient(t)

	resp := c.handleInteraction(&fakeReviewer{approveErr: apperror.Forbidden("admin access required")}, buttonClick("activation:approve:s", "u"))
	assert.Equal(t, "Only admins can review activations.", resp.Data.Content)

	resp = c.handleInteraction(&fakeReviewer{approveErr: apperror.StateConflict("profile", "s", "activated")}, buttonClick("activation:approve:s", "u"))
	assert.Equal(t, "profile s is already activated", resp.Data.Content)

	resp = c.handleInteraction(&fakeReviewer{approveErr: errors.New("db down")}, buttonClick("activation:approve:s", "u"))
	assert.Contains(t, resp.Data.Content, "Something went wrong")
}

func TestInteraction_RejectButtonOpensModal(t *testing.T) {
	c := newTestClient(t)
	r := &fakeReviewer{}

	resp := c.handleInteraction(r, buttonClick("activation:reject:subj-1", "staff-9"))

	require.NotNil(t, resp)
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, "activation:reason:subj-1", resp.Data.CustomID)
	assert.Zero(t, r.calls)
}

func TestInteraction_ModalSubmitRejects(t *testing.T) {
	c := newTestClient(t)
	r := &fakeReviewer{}

	resp := c.handleInteraction(r, modalSubmit("activation:reason:subj-1", "staff-9", "incomplete form"))

	require.NotNil(t, resp)
	assert.Equal(t, "staff-9", r.staffID)
	assert.Equal(t, "subj-1", r.subjectID)
	assert.Equal(t, "incomplete form", r.reason)
	assert.Equal(t, "Activation rejected.", resp.Data.Content)
}

func TestInteraction_ForeignIDsIgnored(t *testing.T) {
	c := newTestClient(t)
	r := &fakeReviewer{}

	assert.Nil(t, c.handleInteraction(r, buttonClick("poll:vote:1", "u")))
	assert.Nil(t, c.handleInteraction(r, modalSubmit("activation:approve:s", "u", "x")))
	assert.Zero(t, r.calls)
}
