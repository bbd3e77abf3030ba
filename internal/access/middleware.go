package access

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
)

// SessionReader resolves the subject id of a request from its session.
type SessionReader interface {
	Subject(r *http.Request) (string, error)
}

// ProfileLoader loads the profile behind a subject id.
type ProfileLoader interface {
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
}

type contextKey string

const viewerKey contextKey = "viewer"

// WithViewer stores v on ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFromContext returns the viewer the gate resolved for this request,
// or an anonymous viewer if the gate did not run.
func ViewerFromContext(ctx context.Context) Viewer {
	if v, ok := ctx.Value(viewerKey).(Viewer); ok {
		return v
	}
	return Anonymous()
}

// Gate resolves the viewer of each request and applies the policy.
type Gate struct {
	policy   Policy
	sessions SessionReader
	profiles ProfileLoader
	logger   *slog.Logger
}

func NewGate(policy Policy, sessions SessionReader, profiles ProfileLoader, logger *slog.Logger) *Gate {
	return &Gate{policy: policy, sessions: sessions, profiles: profiles, logger: logger}
}

// Resolve computes the Viewer of r. It never fails: a missing or invalid
// session is anonymous, a session whose profile is gone is anonymous, and a
// failed profile lookup yields a degraded viewer.
func (g *Gate) Resolve(r *http.Request) Viewer {
	subjectID, err := g.sessions.Subject(r)
	if err != nil || subjectID == "" {
		return Anonymous()
	}

	p, err := g.profiles.GetProfileByID(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Anonymous()
		}
		g.logger.Warn("access gate failed open: profile lookup failed",
			slog.String("subjectID", subjectID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return Viewer{SubjectID: subjectID, Degraded: true}
	}

	return NewViewer(subjectID, p)
}

// Pages gates page requests, redirecting with 303 See Other when the
// policy says so.
func (g *Gate) Pages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := g.Resolve(r)
		d := g.policy.Decide(r.URL.Path, v)
		if !d.Allow {
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), v)))
	})
}

// API guards JSON routes. Public API paths pass through with whatever viewer
// resolves. Everything else needs a session, and /api/admin/ needs an admin.
// Tier rules beyond that are the services' job.
func (g *Gate) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := g.Resolve(r)
		ctx := WithViewer(r.Context(), v)

		if g.policy.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if !v.Authenticated() {
			writeDenied(w, http.StatusUnauthorized, "unauthenticated", "valid authentication required")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/admin/") && !v.IsAdmin() {
			writeDenied(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
