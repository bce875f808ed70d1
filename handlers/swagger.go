package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the
// session gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>ledgerline-session-gateway — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the session endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "ledgerline-session-gateway", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Login (password or SSO authorization code)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "session established; user and defaultRoute returned" }, "401": { "description": "structured billing API error {type, field, message}" } }
      }
    },
    "/auth/register": {
      "post": { "summary": "Register an account and log in", "responses": { "200": { "description": "session established" } } }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh the session's token pair", "responses": { "200": { "description": "tokens refreshed" }, "401": { "description": "no session or refresh rejected" } } }
    },
    "/auth/session": {
      "get": { "summary": "Resolve the current session", "responses": { "200": { "description": "isAuthenticated, user, isLoadingUser, fetchState, defaultRoute" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout teardown (mode=quick|full, nav=hard|client)", "responses": { "200": { "description": "navigation target" }, "302": { "description": "hard redirect" } } }
    },
    "/api/admin/": {
      "get": { "summary": "Admin-only billing resources (role gate)", "responses": { "403": { "description": "access denied view" } } }
    }
  }
}`
