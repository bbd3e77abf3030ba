package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher writes every notification to the log instead of sending it.
// The server falls back to it when no bot token is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (l *LogDispatcher) SendApproval(ctx context.Context, to Recipient) error {
	l.logger.InfoContext(ctx, "notify: approval", slog.String("subjectID", to.SubjectID))
	return nil
}

func (l *LogDispatcher) SendRejection(ctx context.Context, to Recipient, reason string) error {
	l.logger.InfoContext(ctx, "notify: rejection",
		slog.String("subjectID", to.SubjectID),
		slog.String("reason", reason),
	)
	return nil
}

func (l *LogDispatcher) SendReceipt(ctx context.Context, to Recipient, r Receipt) error {
	l.logger.InfoContext(ctx, "notify: receipt",
		slog.String("subjectID", to.SubjectID),
		slog.String("reference", r.Reference),
		slog.String("status", string(r.Status)),
		slog.String("amount", r.Amount.StringFixed(2)),
		slog.String("currency", r.Currency),
	)
	return nil
}

func (l *LogDispatcher) GrantRole(ctx context.Context, groupID, externalID, roleID string) error {
	l.logger.InfoContext(ctx, "notify: role grant",
		slog.String("groupID", groupID),
		slog.String("externalID", externalID),
		slog.String("roleID", roleID),
	)
	return nil
}

// SendStaffReviewRequest returns an empty message id: nothing was posted.
func (l *LogDispatcher) SendStaffReviewRequest(ctx context.Context, req ReviewRequest) (string, error) {
	l.logger.InfoContext(ctx, "notify: staff review request",
		slog.String("subjectID", req.Subject.SubjectID),
		slog.String("displayName", req.Subject.DisplayName),
	)
	return "", nil
}
