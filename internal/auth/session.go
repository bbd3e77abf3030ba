package auth

import (
	"net/http"
	"strings"
	"time"
)

// Sessions reads and writes the session cookie.
//
// The cookie name is derived from the auth base URL (see
// config.SessionCookieName) so the same browser can hold sessions for more
// than one deployment.
type Sessions struct {
	tokens     *TokenService
	cookieName string
	secure     bool
}

// NewSessions creates a Sessions. baseURL decides whether the cookie is
// marked Secure.
func NewSessions(tokens *TokenService, cookieName, baseURL string) *Sessions {
	return &Sessions{
		tokens:     tokens,
		cookieName: cookieName,
		secure:     strings.HasPrefix(baseURL, "https://"),
	}
}

func (s *Sessions) CookieName() string { return s.cookieName }

// Subject reads the session cookie and returns the subject id it carries.
// http.ErrNoCookie is returned unchanged for a request without a session.
func (s *Sessions) Subject(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", err
	}
	return s.tokens.Validate(cookie.Value)
}

// Start issues a token for subjectID and sets it as the session cookie.
func (s *Sessions) Start(w http.ResponseWriter, subjectID string) error {
	token, err := s.tokens.Generate(subjectID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.tokens.TTL() / time.Second),
	})
	return nil
}

// End clears the session cookie.
func (s *Sessions) End(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
