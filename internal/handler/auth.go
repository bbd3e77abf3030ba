package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/auth"
	"github.com/sakif/guildgate/internal/service"
)

const stateCookieName = "oauth_state"

// SignInProvider is the external identity provider behind the login button.
// auth.DiscordProvider implements it.
type SignInProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordUser, error)
}

// AuthHandler manages the Discord OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleDiscordLogin    → redirect the browser to Discord's authorization page
//   - HandleDiscordCallback → receive the code, upsert the profile, start a session
//   - HandleLogout          → clear the session cookie
//   - HandleMe              → profile, tier and activation status of the viewer
type AuthHandler struct {
	provider SignInProvider
	sessions *auth.Sessions
	auths    *service.AuthService
	logger   *slog.Logger
}

func NewAuthHandler(
	provider SignInProvider,
	sessions *auth.Sessions,
	auths *service.AuthService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		sessions: sessions,
		auths:    auths,
		logger:   logger,
	}
}

// HandleDiscordLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /auth/discord/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie and echoed back by
// Discord; HandleDiscordCallback rejects a callback whose state differs.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes the OAuth login flow.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Discord user
//  3. Upsert the profile keyed by the Discord id
//  4. Start the session cookie
//  5. Redirect home; the gate sends new subjects on to the activation form
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch",
			slog.String("expected", stateCookie.Value),
			slog.String("got", r.URL.Query().Get("state")),
		)
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, access.PathLogin+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	user, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	profile, err := h.auths.SignIn(r.Context(), user)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.String("discordID", user.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.Start(w, profile.ID); err != nil {
		h.logger.Error("auth callback: session start failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, access.PathHome, http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logging out only deletes the cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the viewer's profile, tier and activation status.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.auths.Me(r.Context(), access.ViewerFromContext(r.Context()))
	if err != nil {
		logFailure(h.logger, r, "HandleMe failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
