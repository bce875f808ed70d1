// Package guard implements the route guard chain: pure decision functions
// that decide, per navigation, whether a protected view may render for the
// current session.
package guard

import (
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
)

// Decision is the computed outcome of a gate for one navigation. Never
// cached; recomputed on every request.
type Decision int

const (
	// RedirectLogin sends the visitor to the login route.
	RedirectLogin Decision = iota
	// RedirectDefault sends the visitor to their default landing route.
	RedirectDefault
	// ShowLoading tells the renderer to show a loading indicator while the
	// profile fetch is still in flight.
	ShowLoading
	// RenderAccessDenied renders the terminal denial view (no redirect).
	RenderAccessDenied
	// RenderChildren lets the protected subtree render.
	RenderChildren
)

func (d Decision) String() string {
	switch d {
	case RedirectLogin:
		return "redirect_login"
	case RedirectDefault:
		return "redirect_default"
	case ShowLoading:
		return "show_loading"
	case RenderAccessDenied:
		return "access_denied"
	case RenderChildren:
		return "render"
	}
	return "unknown"
}

// AuthDecision is the authentication gate: unauthenticated visitors are
// redirected to login, everyone else may render.
func AuthDecision(res session.Resolution) Decision {
	if !res.IsAuthenticated {
		return RedirectLogin
	}
	return RenderChildren
}

// RoleDecision is the role gate. It walks the states
// unauthenticated -> resolving -> denied/authorized:
//   - no authentication: redirect to login, regardless of anything else
//   - identity unresolved while the profile fetch is pending: show loading
//   - identity unresolvable (fetch failed or never started): redirect to
//     login rather than spinning forever
//   - resolved but role not allowed: the terminal denial view
//   - otherwise: render
func RoleDecision(res session.Resolution, allowed map[models.Role]bool) Decision {
	if !res.IsAuthenticated {
		return RedirectLogin
	}
	if res.User == nil {
		if res.Fetch == session.FetchPending {
			return ShowLoading
		}
		return RedirectLogin
	}
	if !allowed[res.User.Role] {
		return RenderAccessDenied
	}
	return RenderChildren
}

// AllowRoles builds the allowed-role set for RoleDecision.
func AllowRoles(roles ...models.Role) map[models.Role]bool {
	m := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}
