package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/config"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/logout"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/oidc"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/tokens"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/upstream"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/middleware"
)

// LoginRequest covers both password login (forwarded upstream) and the
// optional SSO authorization-code mode.
type LoginRequest struct {
	Mode        string `json:"mode"` // "password" (default) | "sso"
	Email       string `json:"email"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg       *config.Config
	api       *upstream.Client
	mgr       *session.Manager
	resolver  *session.Resolver
	sequencer *logout.Sequencer
	gates     *middleware.Gates
}

func NewAuthHandler(cfg *config.Config, api *upstream.Client, mgr *session.Manager, resolver *session.Resolver, seq *logout.Sequencer, gates *middleware.Gates) *AuthHandler {
	return &AuthHandler{cfg: cfg, api: api, mgr: mgr, resolver: resolver, sequencer: seq, gates: gates}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/register", h.RegisterAccount)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/session", h.Session)
}

// Login authenticates against the upstream billing API (or the SSO issuer)
// and establishes the gateway session: tokens and profile written to both
// session copies, signed session cookie set.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tr *upstream.TokenResponse
	var err error
	switch req.Mode {
	case "", "password":
		if req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
			return
		}
		tr, err = h.api.Login(c.Request.Context(), req.Email, req.Password)
	case "sso":
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for sso mode"})
			return
		}
		tr, err = h.ssoLogin(c.Request.Context(), req.Code, req.RedirectURI)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if err != nil {
		writeAuthError(c, err)
		return
	}
	if tr.User == nil {
		logger.Errorf("login succeeded but no user returned")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed", "details": "no user returned"})
		return
	}

	h.establishSession(c, tr)
}

// RegisterAccount forwards account creation upstream; a successful registration
// also logs the user in.
func (h *AuthHandler) RegisterAccount(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tr, err := h.api.Register(c.Request.Context(), body)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	if tr.User == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed", "details": "no user returned"})
		return
	}
	h.establishSession(c, tr)
}

func (h *AuthHandler) establishSession(c *gin.Context, tr *upstream.TokenResponse) {
	sid, err := newSessionID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	if err := h.mgr.LoginSuccess(c.Request.Context(), sid, tr.AccessToken, tr.RefreshToken, tr.User); err != nil {
		logger.Errorf("failed to store session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	h.resolver.Forget(sid)

	cookie, err := tokens.NewSessionToken(h.cfg.Session.CookieSecret, sid, h.cfg.Session.CookieTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint session cookie"})
		return
	}
	c.SetCookie(h.cfg.Session.CookieName, cookie, int(h.cfg.Session.CookieTTL.Seconds()), "/", "", false, true)

	// camelCase response matching the frontend LoginResponse shape
	c.JSON(http.StatusOK, gin.H{
		"user":         tr.User,
		"defaultRoute": session.DefaultRoute(tr.User),
	})
}

// Refresh exchanges the stored refresh token for a new token pair and
// records it in both session copies.
func (h *AuthHandler) Refresh(c *gin.Context) {
	sid := h.gates.SessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	sess := h.mgr.Load(c.Request.Context(), sid)
	if sess.RefreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no refresh token"})
		return
	}
	tr, err := h.api.Refresh(c.Request.Context(), sess.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	refresh := tr.RefreshToken
	if refresh == "" {
		refresh = sess.RefreshToken
	}
	if err := h.mgr.RefreshTokens(c.Request.Context(), sid, tr.AccessToken, refresh); err != nil {
		logger.Errorf("failed to store refreshed tokens: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// Session exposes the resolver triple for the route table.
func (h *AuthHandler) Session(c *gin.Context) {
	sid := h.gates.SessionID(c)
	var res session.Resolution
	if sid != "" {
		res = h.resolver.Resolve(c.Request.Context(), sid)
	}
	c.JSON(http.StatusOK, gin.H{
		"isAuthenticated": res.IsAuthenticated,
		"user":            res.User,
		"isLoadingUser":   res.IsLoadingUser,
		"fetchState":      res.Fetch.String(),
		"defaultRoute":    session.DefaultRoute(res.User),
	})
}

// Logout runs the teardown sequence. Query params: mode=quick skips the
// fault-tolerant sweep; nav=hard requests a full-page redirect instead of a
// client-side route change.
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := h.gates.SessionID(c)
	var access string
	if sid != "" {
		access = h.mgr.Load(c.Request.Context(), sid).AccessToken
	}

	req := logout.Request{
		SID:            sid,
		AccessToken:    access,
		HardNavigation: c.Query("nav") == "hard",
		ExpireCookies:  expireCookiesFunc(c),
	}

	var nav logout.Navigation
	if c.Query("mode") == "quick" {
		var err error
		nav, err = h.sequencer.QuickLogout(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
			return
		}
		// quick mode leaves the cookie expiry to the caller; still drop ours
		c.SetCookie(h.cfg.Session.CookieName, "", -1, "/", "", false, true)
	} else {
		nav = h.sequencer.Logout(c.Request.Context(), req)
	}

	if nav.Hard {
		c.Redirect(http.StatusFound, nav.Redirect)
		return
	}
	c.JSON(http.StatusOK, nav)
}

// expireCookiesFunc expires every cookie visible on the request by writing
// matching max-age=-1 set-cookies on the response.
func expireCookiesFunc(c *gin.Context) func() error {
	return func() error {
		for _, ck := range c.Request.Cookies() {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:    ck.Name,
				Value:   "",
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Unix(0, 0),
			})
		}
		return nil
	}
}

// writeAuthError maps upstream errors to responses. Structured billing API
// errors keep their {type, field, message} shape so the frontend can drive
// field-level feedback.
func writeAuthError(c *gin.Context, err error) {
	var ae *upstream.APIError
	if errors.As(err, &ae) {
		status := ae.StatusCode
		if status == 0 {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"type": ae.Type, "field": ae.Field, "message": ae.Message})
		return
	}
	logger.Errorf("upstream auth call failed: %v", err)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
}

// newSessionID returns a 64-hex-char random session identifier.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ssoLogin exchanges an authorization code at the configured issuer and
// verifies the returned ID token, yielding a token response equivalent to a
// password login.
func (h *AuthHandler) ssoLogin(ctx context.Context, code, redirectURI string) (*upstream.TokenResponse, error) {
	if h.cfg.SSO.IssuerURL == "" {
		return nil, fmt.Errorf("sso not configured")
	}
	tokenURL := strings.TrimRight(h.cfg.SSO.IssuerURL, "/") + "/protocol/openid-connect/token"

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", h.cfg.SSO.ClientID)
	form.Set("client_secret", h.cfg.SSO.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, err
	}

	claims, err := h.verifyIDToken(ctx, tok.IDToken)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}
	user := profileFromClaims(claims)
	if user == nil {
		return nil, fmt.Errorf("id token missing subject claims")
	}
	return &upstream.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		User:         user,
	}, nil
}

func (h *AuthHandler) verifyIDToken(ctx context.Context, idToken string) (map[string]interface{}, error) {
	ver, err := oidc.NewVerifier(ctx, strings.TrimRight(h.cfg.SSO.IssuerURL, "/"), h.cfg.SSO.ClientID)
	if err != nil {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
			logger.Warn("verifying SSO token without signature check (integration mode)")
			return claimsOf(ctx, oidc.NewInsecureVerifier(), idToken)
		}
		return nil, err
	}
	return claimsOf(ctx, ver, idToken)
}

func claimsOf(ctx context.Context, v oidc.TokenVerifier, raw string) (map[string]interface{}, error) {
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// profileFromClaims maps SSO claims to the billing profile shape. The role
// claim defaults to User when absent.
func profileFromClaims(claims map[string]interface{}) *models.Profile {
	email, _ := claims["email"].(string)
	given, _ := claims["given_name"].(string)
	family, _ := claims["family_name"].(string)
	if email == "" {
		return nil
	}
	role := models.RoleUser
	if r, _ := claims["role"].(string); r == string(models.RoleAdmin) {
		role = models.RoleAdmin
	}
	var id int64
	if v, ok := claims["uid"].(float64); ok {
		id = int64(v)
	}
	return &models.Profile{ID: id, FirstName: given, LastName: family, Email: email, Role: role}
}
