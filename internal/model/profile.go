// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the stored authority of a profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Profile is the subject record: one per signed-in identity.
//
// ExternalMessagingID is the Discord user id. It is both the sign-in key
// (upserts match on it) and the address used for direct messages.
//
// Version is bumped on every activation write. Resubmissions are
// conditioned on it so two concurrent submits cannot interleave.
type Profile struct {
	ID                  string             `json:"id"`
	ExternalMessagingID string             `json:"externalMessagingId"`
	Username            string             `json:"username"`  // Discord handle, informational only
	AvatarURL           string             `json:"avatarUrl"` // may be empty
	DisplayName         string             `json:"displayName"`
	InGameName          string             `json:"inGameName"`
	Bio                 string             `json:"bio"`
	Role                Role               `json:"role"`
	Activated           bool               `json:"activated"`
	ActivatedAt         *time.Time         `json:"activatedAt,omitempty"`
	RejectedAt          *time.Time         `json:"rejectedAt,omitempty"`
	RejectionReason     string             `json:"rejectionReason,omitempty"`
	ActivationRequest   *ActivationRequest `json:"activationRequest,omitempty"`
	ReviewMessageID     string             `json:"-"` // staff-channel message for the current request
	Version             int64              `json:"-"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// IsAdmin reports whether the profile carries admin authority.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasNames reports whether both name fields are populated. This is the
// boundary between "no profile" and "has profile".
func (p *Profile) HasNames() bool {
	return p != nil && p.DisplayName != "" && p.InGameName != ""
}

// ActivationRequest is the form a subject submits to ask for activation.
// It is stored as a JSON blob on the profile and replaced on resubmission.
type ActivationRequest struct {
	CharacterName string    `json:"characterName"`
	Age           int       `json:"age"`
	ProfileLink   string    `json:"profileLink,omitempty"`
	Experience    string    `json:"experience,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ActivationFields is the write set of a successful submission.
type ActivationFields struct {
	DisplayName string
	InGameName  string
	Bio         string
	Request     ActivationRequest
}
