package access

import "strings"

// Well-known page paths the gate redirects between.
const (
	PathHome       = "/"
	PathLogin      = "/login"
	PathActivation = "/activation"
	PathPending    = "/pending"
	PathAdmin      = "/admin"
)

// Decision is the outcome of Decide: either Allow, or a redirect to
// Redirect.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// PendingPath is the pending-status page for a waiting or rejected subject.
func PendingPath(rejected bool) string {
	if rejected {
		return PathPending + "?status=rejected"
	}
	return PathPending + "?status=pending"
}

// Policy lists the paths that bypass tier checks.
type Policy struct {
	// PublicPrefixes and PublicPaths are always allowed: static assets, SEO
	// files, sign-in callbacks, webhooks and guest-readable APIs.
	PublicPrefixes []string
	PublicPaths    []string
	// GuestPages are the pages an anonymous visitor may read. An entry ending
	// in "/" matches by prefix.
	GuestPages []string
}

// DefaultPolicy is the production path list.
func DefaultPolicy() Policy {
	return Policy{
		PublicPrefixes: []string{"/static/", "/assets/", "/auth/", "/api/public/", "/api/webhooks/"},
		PublicPaths:    []string{"/favicon.ico", "/robots.txt", "/sitemap.xml", "/manifest.json", "/healthz"},
		GuestPages:     []string{"/", "/login", "/rules", "/rules/", "/store", "/store/", "/events", "/events/"},
	}
}

// IsPublic reports whether path short-circuits every other check.
func (p Policy) IsPublic(path string) bool {
	for _, prefix := range p.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, exact := range p.PublicPaths {
		if path == exact {
			return true
		}
	}
	return false
}

func (p Policy) isGuestPage(path string) bool {
	for _, page := range p.GuestPages {
		if page != "/" && strings.HasSuffix(page, "/") {
			if strings.HasPrefix(path, page) {
				return true
			}
			continue
		}
		if path == page {
			return true
		}
	}
	return false
}

// IsAdminPath reports whether path is reserved for admins.
func IsAdminPath(path string) bool {
	return strings.HasPrefix(path, PathAdmin)
}

// Decide is the page-level access decision. It is pure: the same path and
// viewer always give the same answer. Checks run in this order:
//
//  1. public paths are allowed for everyone
//  2. anonymous visitors may read guest pages, otherwise go to sign-in
//  3. admins are allowed everywhere
//  4. admin paths send everyone else home
//  5. subjects without names are held on the activation form
//  6. pending or rejected subjects are held on the pending page
//  7. activated subjects may not go back to the activation or pending pages
//
// A degraded viewer, whose profile lookup failed, fails open on every page
// except admin paths. Those are closed, so a real admin loses the admin
// console until the store answers again. This narrows the fail-open rule
// on purpose: a failed lookup never grants admin authority.
func (p Policy) Decide(path string, v Viewer) Decision {
	if p.IsPublic(path) {
		return allow()
	}

	if !v.Authenticated() {
		if p.isGuestPage(path) {
			return allow()
		}
		return redirect(PathLogin)
	}

	// Fail open, except admin paths, which need a confirmed admin.
	if v.Degraded {
		if IsAdminPath(path) {
			return redirect(PathHome)
		}
		return allow()
	}

	if v.Tier == TierAdmin {
		return allow()
	}

	if IsAdminPath(path) {
		return redirect(PathHome)
	}

	switch v.Tier {
	case TierNoProfile:
		if path == PathActivation {
			return allow()
		}
		return redirect(PathActivation)

	case TierPendingOrRejected:
		if path == PathPending {
			return allow()
		}
		return redirect(PendingPath(v.Rejected))

	default:
		if path == PathActivation || path == PathPending {
			return redirect(PathHome)
		}
		return allow()
	}
}
