// Package upstream is the HTTP client for the billing REST API. The API is a
// black box: this package only knows the handful of contracts the gateway
// depends on (login, register, refresh, profile) and forwards everything else
// verbatim through the proxy handler.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
)

// APIError is the structured error shape the billing API returns on login
// and register failures; Field drives field-level feedback in the frontend.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// TokenResponse is the success shape of login/register/refresh.
type TokenResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         *models.Profile `json:"user,omitempty"`
}

// Client talks to the billing API at BaseURL.
type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for tokens and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	return c.postAuth(ctx, "/login", map[string]string{"email": email, "password": password})
}

// Register creates an account; on success the API also logs the user in.
func (c *Client) Register(ctx context.Context, body map[string]string) (*TokenResponse, error) {
	return c.postAuth(ctx, "/register", body)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.postAuth(ctx, "/refresh", map[string]string{"refreshToken": refreshToken})
}

func (c *Client) postAuth(ctx context.Context, path string, body interface{}) (*TokenResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}
	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &tr, nil
}

// FetchProfile retrieves the current user's profile. Safe to call
// repeatedly; used only when authenticated and no in-memory user exists.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*models.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/profile", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var p models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// Forward relays an arbitrary API request (used by the proxy handler),
// attaching the bearer token and returning the raw response.
func (c *Client) Forward(ctx context.Context, method, path, accessToken string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.http.Do(req)
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var ae APIError
	if err := json.Unmarshal(b, &ae); err == nil && ae.Message != "" {
		ae.StatusCode = resp.StatusCode
		return &ae
	}
	return fmt.Errorf("billing api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
