// Package discord is the Dispatcher backed by a Discord bot.
//
// A Client owns one gateway session. It is constructed explicitly, opened
// once at startup and closed on shutdown; nothing in this package keeps
// process-wide state.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/guildgate/internal/notify"
)

// Client sends notifications through a Discord bot and receives staff
// button clicks.
type Client struct {
	session        *discordgo.Session
	staffChannelID string
	logger         *slog.Logger
	removeHandler  func()
}

var _ notify.Dispatcher = (*Client)(nil)

// New creates a Client for botToken. It does not connect; call Open.
func New(botToken, staffChannelID string, logger *slog.Logger) (*Client, error) {
	if botToken == "" {
		return nil, errors.New("discord: bot token is required")
	}
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	return &Client{session: s, staffChannelID: staffChannelID, logger: logger}, nil
}

// Open connects to the gateway. Interactions only arrive while open.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}
	c.logger.Info("discord gateway connected")
	return nil
}

// Close detaches the interaction handler and disconnects.
func (c *Client) Close() error {
	if c.removeHandler != nil {
		c.removeHandler()
		c.removeHandler = nil
	}
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("discord: closing gateway: %w", err)
	}
	return nil
}

func (c *Client) SendApproval(ctx context.Context, to notify.Recipient) error {
	return c.dm(ctx, to, approvalMessage(to))
}

func (c *Client) SendRejection(ctx context.Context, to notify.Recipient, reason string) error {
	return c.dm(ctx, to, rejectionMessage(to, reason))
}

func (c *Client) SendReceipt(ctx context.Context, to notify.Recipient, r notify.Receipt) error {
	return c.dm(ctx, to, receiptMessage(r))
}

func (c *Client) GrantRole(ctx context.Context, groupID, externalID, roleID string) error {
	if err := c.session.GuildMemberRoleAdd(groupID, externalID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: adding role %s to %s: %w", roleID, externalID, err)
	}
	return nil
}

func (c *Client) SendStaffReviewRequest(ctx context.Context, req notify.ReviewRequest) (string, error) {
	if c.staffChannelID == "" {
		return "", errors.New("discord: staff channel is not configured")
	}
	msg, err := c.session.ChannelMessageSendComplex(c.staffChannelID, reviewMessage(req), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: posting review request for %s: %w", req.Subject.SubjectID, err)
	}
	return msg.ID, nil
}

// dm opens (or reuses) the direct-message channel with the recipient and
// posts msg there.
func (c *Client) dm(ctx context.Context, to notify.Recipient, msg *discordgo.MessageSend) error {
	if to.ExternalID == "" {
		return fmt.Errorf("discord: subject %s has no Discord id", to.SubjectID)
	}
	ch, err := c.session.UserChannelCreate(to.ExternalID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: opening DM with %s: %w", to.ExternalID, err)
	}
	if _, err := c.session.ChannelMessageSendComplex(ch.ID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: sending DM to %s: %w", to.ExternalID, err)
	}
	return nil
}
