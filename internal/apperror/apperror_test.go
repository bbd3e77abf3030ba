package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// Each case names the constructor and the sentinel it must (or must not)
// match through errors.Is.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("profile", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("reason", "reason is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "StateConflict wraps ErrConflict",
			err:       StateConflict("payment request", "abc123", "approved"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("sign in required"),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "SignatureInvalid wraps ErrSignature",
			err:       SignatureInvalid("stripe"),
			target:    ErrSignature,
			wantMatch: true,
		},
		{
			name:      "External wraps ErrExternal",
			err:       External("stripe", errors.New("timeout")),
			target:    ErrExternal,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("service/activation: %w", Forbidden("admin only")),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrConflict",
			err:       NotFound("profile", "abc123"),
			target:    ErrConflict,
			wantMatch: false,
		},
		{
			name:      "SignatureInvalid does NOT match ErrUnauthenticated",
			err:       SignatureInvalid("stripe"),
			target:    ErrUnauthenticated,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("profile", "abc123"),
			wantMessage: "profile not found with id abc123",
		},
		{
			name:        "StateConflict names the current state",
			err:         StateConflict("payment request", "pr1", "rejected"),
			wantMessage: "payment request pr1 is already rejected",
		},
		{
			name:        "SignatureInvalid names the provider",
			err:         SignatureInvalid("stripe"),
			wantMessage: "stripe webhook signature could not be verified",
		},
		{
			name:        "External hides the cause",
			err:         External("stripe", errors.New("dial tcp: i/o timeout")),
			wantMessage: "stripe request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestExternalKeepsCause(t *testing.T) {
	cause := errors.New("rate limited")
	err := External("discord", cause)

	if !errors.Is(err, cause) {
		t.Error("External() should keep the original cause in the chain")
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("profile", "abc123")
	if err.Unwrap() != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("proofUrl", "proof URL is required")
	if err.Field != "proofUrl" {
		t.Errorf("Field = %q, want %q", err.Field, "proofUrl")
	}
}
