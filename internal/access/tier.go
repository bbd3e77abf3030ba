// Package access decides, once per request, who the caller is and where
// they may go.
//
// The Classifier turns a stored profile into a Tier. The Gate combines the
// Tier with the request path and either allows the request or names a
// redirect target. The resulting Viewer is placed on the request context and
// passed explicitly into service calls, so handlers and services never
// re-derive authority from the raw role string.
package access

import "github.com/sakif/guildgate/internal/model"

// Tier is the access class of a request.
type Tier int

const (
	TierAnonymous Tier = iota
	TierNoProfile
	TierPendingOrRejected
	TierActivated
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierNoProfile:
		return "no_profile"
	case TierPendingOrRejected:
		return "pending_or_rejected"
	case TierActivated:
		return "activated"
	case TierAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// MarshalText lets a Tier appear as its name in JSON responses.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Classify maps a signed-in subject's profile to a Tier. A nil profile
// (signed in, no row yet) is TierNoProfile. Anonymous callers never reach
// Classify; they have no subject to classify.
func Classify(p *model.Profile) Tier {
	switch {
	case p.IsAdmin():
		return TierAdmin
	case !p.HasNames():
		return TierNoProfile
	case !p.Activated:
		return TierPendingOrRejected
	default:
		return TierActivated
	}
}

// Viewer is the resolved identity of one request.
type Viewer struct {
	SubjectID string
	Tier      Tier
	// Rejected distinguishes the rejected half of TierPendingOrRejected.
	Rejected bool
	// Degraded is set when the profile lookup failed and the gate let the
	// request through without a tier. A degraded viewer is never an admin.
	Degraded bool
	Profile  *model.Profile
}

// Anonymous is the viewer of a request without a valid session.
func Anonymous() Viewer {
	return Viewer{Tier: TierAnonymous}
}

// NewViewer classifies p for subjectID.
func NewViewer(subjectID string, p *model.Profile) Viewer {
	v := Viewer{SubjectID: subjectID, Tier: Classify(p), Profile: p}
	if v.Tier == TierPendingOrRejected {
		v.Rejected = p.RejectedAt != nil
	}
	return v
}

func (v Viewer) Authenticated() bool { return v.SubjectID != "" }

func (v Viewer) IsAdmin() bool { return v.Tier == TierAdmin && !v.Degraded }
