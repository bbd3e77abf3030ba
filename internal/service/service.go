// Package service holds the business rules.
//
//	Handler (HTTP) / Discord interactions / gatectl
//	        ↓
//	Service: validates, checks the caller's access.Viewer, commits the
//	         transition through a repository, then enqueues notifications
//	        ↓
//	Repository: conditional writes are the only concurrency control
//
// Services never notify inline. Every side effect is a notify.Job handed to
// a notify.Runner after the write has committed; a failed job is logged by
// the runner and never changes the result returned here.
package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/repository"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func requireAdmin(v access.Viewer) error {
	if !v.Authenticated() {
		return apperror.Unauthenticated("valid authentication required")
	}
	if !v.IsAdmin() {
		return apperror.Forbidden("admin access required")
	}
	return nil
}

func requireSession(v access.Viewer) error {
	if !v.Authenticated() {
		return apperror.Unauthenticated("valid authentication required")
	}
	return nil
}

// requireMember admits activated subjects and admins. Subjects still in the
// activation workflow are held to it.
func requireMember(v access.Viewer) error {
	if err := requireSession(v); err != nil {
		return err
	}
	if v.IsAdmin() || (v.Tier == access.TierActivated && !v.Degraded) {
		return nil
	}
	return apperror.Forbidden("account activation required")
}

// profileJob builds a job that loads the subject's profile when it runs and
// hands it to send. Loading late means the message uses the freshest name
// and Discord id.
func profileJob(
	profiles repository.ProfileRepository,
	kind, subjectID string,
	send func(ctx context.Context, d notify.Dispatcher, to notify.Recipient) error,
) notify.Job {
	return notify.NewJob(kind, subjectID, func(ctx context.Context, d notify.Dispatcher) error {
		p, err := profiles.GetProfileByID(ctx, subjectID)
		if err != nil {
			return err
		}
		return send(ctx, d, notify.RecipientOf(p))
	})
}

// validHTTPURL reports whether s is an absolute http or https URL.
func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func requiredText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if len([]rune(value)) > max {
		return "", apperror.ValidationFailed(field, field+" is too long")
	}
	return value, nil
}

func optionalText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if len([]rune(value)) > max {
		return "", apperror.ValidationFailed(field, field+" is too long")
	}
	return value, nil
}
