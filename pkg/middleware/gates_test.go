package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/tokens"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type staticFetcher struct {
	profile *models.Profile
}

func (f *staticFetcher) FetchProfile(ctx context.Context, accessToken string) (*models.Profile, error) {
	return f.profile, nil
}

func newTestRouter(t *testing.T, profile *models.Profile) (*gin.Engine, *Gates, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr := session.NewManager(session.NewMemoryStore())
	resolver := session.NewResolver(mgr, &staticFetcher{profile: profile}, time.Second)
	g := &Gates{
		Resolver:     resolver,
		Manager:      mgr,
		CookieSecret: testSecret,
		CookieName:   "ll_session",
	}

	r := gin.New()
	r.GET("/api/bills", g.Auth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sid": c.GetString(CtxSessionID)})
	})
	r.GET("/api/admin/salaries", g.Role(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, g, mgr
}

func sessionCookie(t *testing.T, sid string) *http.Cookie {
	t.Helper()
	raw, err := tokens.NewSessionToken(testSecret, sid, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: "ll_session", Value: raw}
}

func doGet(r *gin.Engine, path string, cookie *http.Cookie, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthGate_NoCookieRedirects(t *testing.T) {
	r, _, _ := newTestRouter(t, nil)

	w := doGet(r, "/api/bills", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, session.RouteLogin, w.Header().Get("Location"))
}

func TestAuthGate_NoCookieJSONClient(t *testing.T) {
	r, _, _ := newTestRouter(t, nil)

	w := doGet(r, "/api/bills", nil, map[string]string{"Accept": "application/json"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), session.RouteLogin)
}

func TestAuthGate_ForgedCookieRedirects(t *testing.T) {
	r, _, _ := newTestRouter(t, nil)

	raw, err := tokens.NewSessionToken("wrong-secret", "s1", time.Hour)
	require.NoError(t, err)
	w := doGet(r, "/api/bills", &http.Cookie{Name: "ll_session", Value: raw}, nil)
	require.Equal(t, http.StatusFound, w.Code)
}

func TestAuthGate_AuthenticatedRenders(t *testing.T) {
	profile := &models.Profile{ID: 1, Role: models.RoleUser}
	r, _, mgr := newTestRouter(t, profile)
	require.NoError(t, mgr.LoginSuccess(context.Background(), "s1", "acc", "ref", profile))

	w := doGet(r, "/api/bills", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"sid":"s1"`)
}

func TestRoleGate_AdminAllowed(t *testing.T) {
	profile := &models.Profile{ID: 1, Role: models.RoleAdmin}
	r, _, mgr := newTestRouter(t, profile)
	require.NoError(t, mgr.LoginSuccess(context.Background(), "s1", "acc", "ref", profile))

	w := doGet(r, "/api/admin/salaries", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoleGate_UserDenied(t *testing.T) {
	profile := &models.Profile{ID: 1, Role: models.RoleUser}
	r, _, mgr := newTestRouter(t, profile)
	require.NoError(t, mgr.LoginSuccess(context.Background(), "s1", "acc", "ref", profile))

	w := doGet(r, "/api/admin/salaries", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoleGate_ResolvingShowsLoading(t *testing.T) {
	// token present but no user anywhere: the profile fetch starts and the
	// role gate answers 202 with a retry hint
	profile := &models.Profile{ID: 1, Role: models.RoleAdmin}
	r, g, mgr := newTestRouter(t, profile)
	require.NoError(t, mgr.Store().WriteTokens(context.Background(), "s1", "acc", "ref"))

	w := doGet(r, "/api/admin/salaries", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))

	// once the fetch lands, the same navigation renders
	require.Eventually(t, func() bool {
		return g.Manager.Load(context.Background(), "s1").User != nil
	}, time.Second, 5*time.Millisecond)
	w = doGet(r, "/api/admin/salaries", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGates_BlacklistedTokenRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	session.SetBlacklistClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { session.SetBlacklistClient(nil) })

	profile := &models.Profile{ID: 1, Role: models.RoleUser}
	r, _, mgr := newTestRouter(t, profile)
	require.NoError(t, mgr.LoginSuccess(context.Background(), "s1", "acc", "ref", profile))
	require.NoError(t, session.BlacklistAccessToken(context.Background(), "acc", time.Hour))

	w := doGet(r, "/api/bills", sessionCookie(t, "s1"), nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, session.RouteLogin, w.Header().Get("Location"))
}

func TestWantsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, wantsJSON(c))

	c.Request.Header.Set("Accept", "application/json, text/plain")
	require.True(t, wantsJSON(c))

	c.Request.Header.Del("Accept")
	c.Request.Header.Set("X-Requested-With", "XMLHttpRequest")
	require.True(t, wantsJSON(c))
}
