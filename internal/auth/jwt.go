// Package auth issues and checks session tokens and runs the Discord sign-in
// flow.
//
// SIGN-IN FLOW:
//  1. Visitor hits /auth/discord/login and is redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. The code is exchanged for the Discord user, whose profile is upserted
//  4. A signed session token is stored in an HttpOnly cookie
//  5. The access gate reads the cookie on every request and resolves the
//     subject id from the token's "sub" claim
//
// Tokens are HS256 JWTs. The server verifies them with the shared secret and
// never stores session state.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService creates a TokenService. Tokens from Generate live for ttl
// and carry issuer; Validate rejects any other issuer.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		return nil, errors.New("auth: JWT issuer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session TTL must be positive")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// TTL is the lifetime of tokens from Generate. The session cookie uses the
// same value for Max-Age.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate creates and signs a session token for subjectID.
func (s *TokenService) Generate(subjectID string) (string, error) {
	return s.GenerateWithDuration(subjectID, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry. A negative d
// produces an already-expired token, which tests use.
func (s *TokenService) GenerateWithDuration(subjectID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token and returns its subject id.
//
// VALIDATION CHECKS:
//   - signature matches the secret
//   - algorithm is HS256 (blocks "alg":"none" confusion)
//   - token is not expired and has an expiry at all
//   - issuer matches this service's issuer
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
