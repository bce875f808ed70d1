package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/guard"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/tokens"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/metrics"
)

// Context keys the gates set for downstream handlers.
const (
	CtxSessionID  = "sid"
	CtxResolution = "resolution"
)

// Gates wires the route guard chain into gin. Both gates recompute the
// resolution on every request; nothing is cached between navigations.
type Gates struct {
	Resolver     *session.Resolver
	Manager      *session.Manager
	CookieSecret string
	CookieName   string
}

// SessionID extracts and verifies the session-ID cookie. Empty when the
// cookie is absent or fails verification.
func (g *Gates) SessionID(c *gin.Context) string {
	raw, err := c.Cookie(g.CookieName)
	if err != nil || raw == "" {
		return ""
	}
	sid, err := tokens.ParseSessionToken(g.CookieSecret, raw)
	if err != nil {
		return ""
	}
	return sid
}

// Auth is the authentication gate: it wraps all protected routes and
// redirects unauthenticated visitors to login.
func (g *Gates) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := g.SessionID(c)
		res := g.resolve(c, sid)
		d := guard.AuthDecision(res)
		g.apply(c, "auth", sid, d, res)
	}
}

// Role is the role gate for admin-only subtrees. It resolves the user with
// the same in-memory-then-snapshot fallback the root resolver uses, shows a
// loading response while the profile fetch is pending, and renders the
// terminal denial view on a role mismatch.
func (g *Gates) Role(roles ...models.Role) gin.HandlerFunc {
	allowed := guard.AllowRoles(roles...)
	return func(c *gin.Context) {
		sid := g.SessionID(c)
		res := g.resolve(c, sid)
		d := guard.RoleDecision(res, allowed)
		g.apply(c, "role", sid, d, res)
	}
}

func (g *Gates) resolve(c *gin.Context, sid string) session.Resolution {
	if sid == "" {
		return session.Resolution{}
	}
	res := g.Resolver.Resolve(c.Request.Context(), sid)
	if res.IsAuthenticated && g.Manager != nil {
		// a blacklisted access token no longer authenticates
		sess := g.Manager.Load(c.Request.Context(), sid)
		if black, err := session.IsAccessTokenBlacklisted(c.Request.Context(), sess.AccessToken); err == nil && black {
			return session.Resolution{}
		}
	}
	return res
}

func (g *Gates) apply(c *gin.Context, gate, sid string, d guard.Decision, res session.Resolution) {
	metrics.GateDecisions.WithLabelValues(gate, d.String()).Inc()
	switch d {
	case guard.RenderChildren:
		c.Set(CtxSessionID, sid)
		c.Set(CtxResolution, res)
		c.Next()
	case guard.ShowLoading:
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "resolving"})
	case guard.RenderAccessDenied:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case guard.RedirectDefault:
		g.redirect(c, session.DefaultRoute(res.User))
	default: // RedirectLogin
		g.redirect(c, session.RouteLogin)
	}
}

func (g *Gates) redirect(c *gin.Context, target string) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "redirect": target})
		return
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// wantsJSON reports whether the client is an API consumer rather than a
// browser navigation.
func wantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") ||
		c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}
