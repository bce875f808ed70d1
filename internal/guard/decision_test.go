package guard

import (
	"testing"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/stretchr/testify/require"
)

func TestAuthDecision(t *testing.T) {
	require.Equal(t, RedirectLogin, AuthDecision(session.Resolution{}))
	require.Equal(t, RenderChildren, AuthDecision(session.Resolution{IsAuthenticated: true}))
	// the auth gate does not care whether the profile is resolved yet
	require.Equal(t, RenderChildren, AuthDecision(session.Resolution{
		IsAuthenticated: true,
		IsLoadingUser:   true,
		Fetch:           session.FetchPending,
	}))
}

// Exhaustive walk of the role gate over authentication x user x fetch state,
// with Admin as the only allowed role.
func TestRoleDecision_AllStates(t *testing.T) {
	admin := &models.Profile{ID: 1, Role: models.RoleAdmin}
	user := &models.Profile{ID: 2, Role: models.RoleUser}
	allowed := AllowRoles(models.RoleAdmin)

	cases := []struct {
		name string
		res  session.Resolution
		want Decision
	}{
		{"unauthenticated", session.Resolution{}, RedirectLogin},
		{"unauthenticated with pending fetch", session.Resolution{Fetch: session.FetchPending}, RedirectLogin},
		// stale user data with no authentication still redirects
		{"unauthenticated with stale user", session.Resolution{User: admin}, RedirectLogin},
		{"resolving", session.Resolution{IsAuthenticated: true, IsLoadingUser: true, Fetch: session.FetchPending}, ShowLoading},
		{"unresolvable, fetch failed", session.Resolution{IsAuthenticated: true, Fetch: session.FetchFailed}, RedirectLogin},
		{"unresolvable, fetch never started", session.Resolution{IsAuthenticated: true, Fetch: session.FetchIdle}, RedirectLogin},
		{"wrong role", session.Resolution{IsAuthenticated: true, User: user}, RenderAccessDenied},
		{"wrong role while refetching", session.Resolution{IsAuthenticated: true, User: user, Fetch: session.FetchPending}, RenderAccessDenied},
		{"authorized", session.Resolution{IsAuthenticated: true, User: admin}, RenderChildren},
		{"authorized, fetch done", session.Resolution{IsAuthenticated: true, User: admin, Fetch: session.FetchDone}, RenderChildren},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, RoleDecision(tc.res, allowed))
		})
	}
}

func TestRoleDecision_MultipleAllowedRoles(t *testing.T) {
	allowed := AllowRoles(models.RoleUser, models.RoleAdmin)
	for _, role := range []models.Role{models.RoleUser, models.RoleAdmin} {
		res := session.Resolution{IsAuthenticated: true, User: &models.Profile{ID: 1, Role: role}}
		require.Equal(t, RenderChildren, RoleDecision(res, allowed))
	}
}

func TestRoleDecision_EmptyAllowSetDeniesEveryone(t *testing.T) {
	res := session.Resolution{IsAuthenticated: true, User: &models.Profile{ID: 1, Role: models.RoleAdmin}}
	require.Equal(t, RenderAccessDenied, RoleDecision(res, AllowRoles()))
}

func TestDecisionString(t *testing.T) {
	require.Equal(t, "redirect_login", RedirectLogin.String())
	require.Equal(t, "render", RenderChildren.String())
	require.Equal(t, "unknown", Decision(99).String())
}
