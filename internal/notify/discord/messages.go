package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/guildgate/internal/notify"
)

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorYellow = 0xf1c40f
	colorBlue   = 0x3498db
)

// Custom id layout of staff buttons and the reject modal:
// "activation:<action>:<subjectID>".
const (
	customIDPrefix   = "activation"
	actionApprove    = "approve"
	actionReject     = "reject"
	actionReason     = "reason"
	reasonInputID    = "reason"
	maxReasonLength  = 500
	maxFieldValueLen = 1024
)

func customID(action, subjectID string) string {
	return customIDPrefix + ":" + action + ":" + subjectID
}

// parseCustomID splits a staff component id. ok is false for ids this
// package did not create.
func parseCustomID(id string) (action, subjectID string, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case actionApprove, actionReject, actionReason:
		return parts[1], parts[2], true
	}
	return "", "", false
}

func approvalMessage(to notify.Recipient) *discordgo.MessageSend {
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
		Title:       "Activation approved",
		Description: fmt.Sprintf("Welcome aboard, %s! Your account is now active and the whole site is open to you.", to.DisplayName),
		Color:       colorGreen,
	}}}
}

func rejectionMessage(to notify.Recipient, reason string) *discordgo.MessageSend {
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
		Title:       "Activation not approved",
		Description: fmt.Sprintf("Sorry %s, staff could not approve your activation request. You can submit a new request after 24 hours.", to.DisplayName),
		Color:       colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: truncate(reason, maxFieldValueLen)},
		},
	}}}
}

func receiptMessage(r notify.Receipt) *discordgo.MessageSend {
	title, color := "Payment received", colorYellow
	switch r.Status {
	case notify.ReceiptCompleted:
		title, color = "Payment completed", colorGreen
	case notify.ReceiptRejected:
		title, color = "Payment rejected", colorRed
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Item", Value: orDash(r.ItemName), Inline: true},
		{Name: "Amount", Value: strings.TrimSpace(r.Amount.StringFixed(2) + " " + strings.ToUpper(r.Currency)), Inline: true},
		{Name: "Method", Value: orDash(r.Method), Inline: true},
		{Name: "Reference", Value: orDash(r.Reference)},
	}
	if r.Status == notify.ReceiptPending {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Status", Value: "Pending staff verification"})
	}
	if r.Status == notify.ReceiptRejected && r.Reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: truncate(r.Reason, maxFieldValueLen)})
	}

	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
		Title:  title,
		Color:  color,
		Fields: fields,
	}}}
}

func reviewMessage(req notify.ReviewRequest) *discordgo.MessageSend {
	app := req.Application
	fields := []*discordgo.MessageEmbedField{
		{Name: "Discord", Value: fmt.Sprintf("<@%s> (%s)", req.Subject.ExternalID, orDash(req.Username)), Inline: true},
		{Name: "Display name", Value: orDash(req.Subject.DisplayName), Inline: true},
		{Name: "In-game name", Value: orDash(req.InGameName), Inline: true},
		{Name: "Character", Value: orDash(app.CharacterName), Inline: true},
		{Name: "Age", Value: strconv.Itoa(app.Age), Inline: true},
	}
	if app.ProfileLink != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Profile", Value: app.ProfileLink})
	}
	if app.Experience != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Experience", Value: truncate(app.Experience, maxFieldValueLen)})
	}
	if req.Bio != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Bio", Value: truncate(req.Bio, maxFieldValueLen)})
	}

	submitted := app.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:     "New activation request",
			Color:     colorBlue,
			Fields:    fields,
			Timestamp: submitted.UTC().Format(time.RFC3339),
			Footer:    &discordgo.MessageEmbedFooter{Text: "Subject " + req.Subject.SubjectID},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: customID(actionApprove, req.Subject.SubjectID)},
				discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: customID(actionReject, req.Subject.SubjectID)},
			}},
		},
	}
}

func rejectModal(subjectID string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID(actionReason, subjectID),
			Title:    "Reject activation",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  reasonInputID,
						Label:     "Reason (sent to the applicant)",
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MinLength: 1,
						MaxLength: maxReasonLength,
					},
				}},
			},
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
