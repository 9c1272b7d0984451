// Package tink is a thin client for the Tink open-banking API: OAuth token
// exchange, account and transaction reads, and webhook management. Payloads
// are decoded per endpoint; everything else about the API is treated as
// opaque.
package tink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.tink.com"

// Client calls the Tink API with one client-credential pair.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// NewClient creates a Client for the given Tink app credentials.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// NewClientWithBaseURL is NewClient pointed at a different host, for tests.
func NewClientWithBaseURL(clientID, clientSecret, baseURL string) *Client {
	c := NewClient(clientID, clientSecret)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// APIError is a non-2xx response from Tink.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tink: status %d: %s", e.StatusCode, e.Body)
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

type authGrantResponse struct {
	Code string `json:"code"`
}

// AccessTokenFromScopes exchanges the client credentials for an app access
// token with the given scopes.
func (c *Client) AccessTokenFromScopes(ctx context.Context, scopes ...string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", strings.Join(scopes, ","))

	var resp authResponse
	if err := c.postForm(ctx, "/api/v1/oauth/token", form, &resp); err != nil {
		return "", fmt.Errorf("AccessTokenFromScopes: %w", err)
	}
	return resp.AccessToken, nil
}

// AccessTokenFromCode exchanges an authorization code for a user access
// token.
func (c *Client) AccessTokenFromCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	var resp authResponse
	if err := c.postForm(ctx, "/api/v1/oauth/token", form, &resp); err != nil {
		return "", fmt.Errorf("AccessTokenFromCode: %w", err)
	}
	return resp.AccessToken, nil
}

// AuthorizationGrantCode issues a delegated authorization code for the given
// external user, which AccessTokenFromCode can then redeem.
func (c *Client) AuthorizationGrantCode(ctx context.Context, appToken, externalUserID string, scopes ...string) (string, error) {
	form := url.Values{}
	form.Set("external_user_id", externalUserID)
	form.Set("scope", strings.Join(scopes, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/oauth/authorization-grant", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("AuthorizationGrantCode: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+appToken)

	var resp authGrantResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("AuthorizationGrantCode: %w", err)
	}
	return resp.Code, nil
}

// AccessTokenForUser walks the delegated flow: app token, grant code, user
// token with the given scopes.
func (c *Client) AccessTokenForUser(ctx context.Context, externalUserID string, scopes ...string) (string, error) {
	appToken, err := c.AccessTokenFromScopes(ctx, "authorization:grant")
	if err != nil {
		return "", fmt.Errorf("AccessTokenForUser: %w", err)
	}
	code, err := c.AuthorizationGrantCode(ctx, appToken, externalUserID, scopes...)
	if err != nil {
		return "", fmt.Errorf("AccessTokenForUser: %w", err)
	}
	token, err := c.AccessTokenFromCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("AccessTokenForUser: %w", err)
	}
	return token, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path, accessToken string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path, accessToken string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
