package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =========================================================================
// SESSION COOKIE TESTS
// =========================================================================

func TestSessions_StartThenSubject(t *testing.T) {
	s := NewSessions(newTestTokenService(t), "sb-guild-auth-token", "https://guild.example.com")

	rec := httptest.NewRecorder()
	require.NoError(t, s.Start(rec, "subject-1"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sb-guild-auth-token", c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, 3600, c.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	got, err := s.Subject(req)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", got)
}

func TestSessions_NoCookie(t *testing.T) {
	s := NewSessions(newTestTokenService(t), "sb-guild-auth-token", "http://localhost:8080")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := s.Subject(req)
	assert.True(t, errors.Is(err, http.ErrNoCookie))
}

func TestSessions_OtherCookieNameIgnored(t *testing.T) {
	ts := newTestTokenService(t)
	s := NewSessions(ts, "sb-guild-auth-token", "http://localhost:8080")

	token, err := ts.Generate("subject-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	_, err = s.Subject(req)
	assert.Error(t, err)
}

func TestSessions_End(t *testing.T) {
	s := NewSessions(newTestTokenService(t), "sb-guild-auth-token", "http://localhost:8080")

	rec := httptest.NewRecorder()
	s.End(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sb-guild-auth-token", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.False(t, cookies[0].Secure)
}
