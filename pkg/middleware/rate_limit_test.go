package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// limitedRouter builds a router that injects sid before the limiter, so each
// test gets its own bucket in the package-level limiter store.
func limitedRouter(sid string, rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxSessionID, sid)
		c.Next()
	})
	r.Use(RateLimitMiddleware(rps, burst))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/ok", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := limitedRouter("rl-allow", 10, 2)

	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	require.Equal(t, http.StatusOK, hit(r).Code)
	require.Equal(t, http.StatusOK, hit(r).Code)
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	// 5 req/s, burst 1: the second immediate request must be rejected
	r := limitedRouter("rl-block", 5, 1)

	require.Equal(t, http.StatusOK, hit(r).Code)

	before := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory"))
	w := hit(r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory")))

	// one token replenishes after 200ms at 5 req/s
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r).Code)
}

func TestRateLimitMiddleware_BucketsPerSession(t *testing.T) {
	a := limitedRouter("rl-sess-a", 5, 1)
	b := limitedRouter("rl-sess-b", 5, 1)

	require.Equal(t, http.StatusOK, hit(a).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(a).Code)
	// a different session has its own bucket
	require.Equal(t, http.StatusOK, hit(b).Code)
}

func TestLimiterKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Set(CtxSessionID, "s1")
	require.Equal(t, "sid:s1", limiterKey(c))

	// anonymous traffic falls back to the client IP
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest("GET", "/", nil)
	require.Equal(t, "ip:"+c2.ClientIP(), limiterKey(c2))

	// an empty sid does not shadow the IP key
	c3, _ := gin.CreateTestContext(httptest.NewRecorder())
	c3.Request = httptest.NewRequest("GET", "/", nil)
	c3.Set(CtxSessionID, "")
	require.Equal(t, "ip:"+c3.ClientIP(), limiterKey(c3))
}
