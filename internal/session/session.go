package session

import "github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"

// Session is the per-visitor record of authentication state. The access and
// refresh tokens are opaque strings issued by the upstream billing API.
// User may legitimately be nil while tokens are present (profile not yet
// resolved).
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *models.Profile `json:"user"`
}

// IsAuthenticated is derived: true iff an access token is present.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// Route targets handed to the route table. The login route doubles as the
// fallback default route when no user can be resolved.
const (
	RouteLogin          = "/login"
	RouteDashboard      = "/dashboard"
	RouteAdminDashboard = "/admin/dashboard"
)

// DefaultRoute returns the landing route for the resolved user: the admin
// dashboard for admins, the standard dashboard for everyone else, and the
// login route when no user is known.
func DefaultRoute(u *models.Profile) string {
	if u == nil {
		return RouteLogin
	}
	if u.Role == models.RoleAdmin {
		return RouteAdminDashboard
	}
	return RouteDashboard
}
