package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/respcache"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/structcache"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/upstream"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/middleware"
)

// billing API resources the gateway fronts
var proxyResources = []string{"clients", "bills", "items", "salaries", "expenses", "settings"}

// ProxyHandler relays billing API requests for authenticated sessions. GET
// responses are cached per session (and mirrored into the structured cache
// for list payloads); any mutating request invalidates the session's cache.
type ProxyHandler struct {
	api   *upstream.Client
	mgr   *session.Manager
	cache *respcache.Cache
	sc    *structcache.Store
}

func NewProxyHandler(api *upstream.Client, mgr *session.Manager, cache *respcache.Cache, sc *structcache.Store) *ProxyHandler {
	return &ProxyHandler{api: api, mgr: mgr, cache: cache, sc: sc}
}

// Register mounts the guarded proxy routes: everything under /api behind the
// authentication gate, /api/admin additionally behind the Admin role gate.
func (p *ProxyHandler) Register(r *gin.Engine, gates *middleware.Gates) {
	api := r.Group("/api", gates.Auth())

	admin := api.Group("/admin", gates.Role(models.RoleAdmin))
	admin.Any("/*adminPath", p.Forward)

	for _, res := range proxyResources {
		api.Any("/"+res, p.Forward)
		api.Any("/"+res+"/*rest", p.Forward)
	}
}

// Forward relays one request upstream, consulting the response cache for
// GETs.
func (p *ProxyHandler) Forward(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionID)
	path := strings.TrimPrefix(c.Request.URL.Path, "/api")
	if q := c.Request.URL.RawQuery; q != "" {
		path += "?" + q
	}

	sess := p.mgr.Load(c.Request.Context(), sid)

	if c.Request.Method == http.MethodGet {
		p.forwardGET(c, sid, path, sess.AccessToken)
		return
	}

	resp, err := p.api.Forward(c.Request.Context(), c.Request.Method, path, sess.AccessToken, c.Request.Body, c.GetHeader("Content-Type"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable", "details": err.Error()})
		return
	}
	defer resp.Body.Close()

	// a mutation may have changed anything this session has cached
	p.cache.Reset(sid)

	relay(c, resp)
}

func (p *ProxyHandler) forwardGET(c *gin.Context, sid, path, accessToken string) {
	if e, ok := p.cache.Get(sid, path); ok {
		c.Data(e.Status, e.ContentType, e.Body)
		return
	}

	firstInFlight := p.cache.MarkInflight(sid, path)
	if firstInFlight {
		defer p.cache.DoneInflight(sid, path)
	}

	resp, err := p.api.Forward(c.Request.Context(), http.MethodGet, path, accessToken, nil, "")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable", "details": err.Error()})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream read failed"})
		return
	}
	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode == http.StatusOK && firstInFlight {
		p.cache.Put(sid, path, &respcache.Entry{Status: resp.StatusCode, ContentType: contentType, Body: body})
		p.mirrorStructured(c, sid, path, contentType, body)
	}

	c.Data(resp.StatusCode, contentType, body)
}

// mirrorStructured keeps a structured copy of JSON list payloads in the
// Mongo-backed cache so they survive a gateway restart (and get dropped by
// the logout teardown).
func (p *ProxyHandler) mirrorStructured(c *gin.Context, sid, path, contentType string, body []byte) {
	if p.sc == nil || !strings.Contains(contentType, "application/json") {
		return
	}
	// only top-level list endpoints, e.g. /clients or /bills?page=2
	trimmed := strings.SplitN(strings.TrimPrefix(path, "/"), "?", 2)[0]
	if strings.Contains(trimmed, "/") {
		return
	}
	var payload interface{}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return
	}
	if err := p.sc.Put(c.Request.Context(), sid, path, payload); err != nil {
		logger.Debugf("structured cache write skipped: %v", err)
	}
}

func relay(c *gin.Context, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream read failed"})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}
