package discord

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/guildgate/internal/apperror"
)

// Reviewer performs activation reviews requested from Discord. The clicking
// staff member is identified by their Discord user id; the implementation
// resolves it to a profile and applies the same rules as the HTTP path.
type Reviewer interface {
	ApproveFromStaff(ctx context.Context, staffExternalID, subjectID string) error
	RejectFromStaff(ctx context.Context, staffExternalID, subjectID, reason string) error
}

// interactionTimeout keeps review calls inside Discord's three second
// response window.
const interactionTimeout = 2500 * time.Millisecond

// HandleInteractions routes staff button clicks and reject modals to r.
// Call it before Open.
func (c *Client) HandleInteractions(r Reviewer) {
	if c.removeHandler != nil {
		c.removeHandler()
	}
	c.removeHandler = c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		resp := c.handleInteraction(r, i.Interaction)
		if resp == nil {
			return
		}
		if err := s.InteractionRespond(i.Interaction, resp); err != nil {
			c.logger.Warn("discord: responding to interaction failed", slog.String("error", err.Error()))
		}
	})
}

// handleInteraction returns the response to send, or nil for interactions
// this package does not own.
func (c *Client) handleInteraction(r Reviewer, i *discordgo.Interaction) *discordgo.InteractionResponse {
	staffID := interactionUserID(i)

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		action, subjectID, ok := parseCustomID(i.MessageComponentData().CustomID)
		if !ok {
			return nil
		}
		switch action {
		case actionApprove:
			ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
			defer cancel()
			err := r.ApproveFromStaff(ctx, staffID, subjectID)
			c.logReview("approve", staffID, subjectID, err)
			return ephemeral(reviewReply("approved", err))
		case actionReject:
			return rejectModal(subjectID)
		}
		return nil

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		action, subjectID, ok := parseCustomID(data.CustomID)
		if !ok || action != actionReason {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()
		err := r.RejectFromStaff(ctx, staffID, subjectID, modalValue(data.Components, reasonInputID))
		c.logReview("reject", staffID, subjectID, err)
		return ephemeral(reviewReply("rejected", err))
	}
	return nil
}

func (c *Client) logReview(action, staffID, subjectID string, err error) {
	if err == nil {
		c.logger.Info("activation reviewed from discord",
			slog.String("action", action),
			slog.String("staffExternalID", staffID),
			slog.String("subjectID", subjectID),
		)
		return
	}
	c.logger.Warn("activation review from discord refused",
		slog.String("action", action),
		slog.String("staffExternalID", staffID),
		slog.String("subjectID", subjectID),
		slog.String("error", err.Error()),
	)
}

// reviewReply is the text shown to the staff member who clicked.
func reviewReply(verb string, err error) string {
	if err == nil {
		return "Activation " + verb + "."
	}
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrForbidden):
		return "Only admins can review activations."
	case errors.As(err, &appErr):
		return appErr.Message
	default:
		return "Something went wrong, try again from the admin page."
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// modalValue finds the text input with id among modal components.
func modalValue(components []discordgo.MessageComponent, id string) string {
	for _, c := range components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok && in.CustomID == id {
				return in.Value
			}
		}
	}
	return ""
}
