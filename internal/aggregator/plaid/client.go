// Package plaid is a thin client for the Plaid API: Link token flow, account
// and item reads, the /transactions/sync cursor protocol, and webhook body
// decoding.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiVersion = "2020-09-14"

var environments = map[string]string{
	"sandbox":    "https://sandbox.plaid.com",
	"production": "https://production.plaid.com",
}

// Client calls the Plaid API with one client-id/secret pair.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// NewClient creates a Client for the given environment ("sandbox" or
// "production"; anything else falls back to sandbox).
func NewClient(clientID, secret, env string) *Client {
	baseURL, ok := environments[env]
	if !ok {
		baseURL = environments["sandbox"]
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
	}
}

// NewClientWithBaseURL is NewClient pointed at a different host, for tests.
func NewClientWithBaseURL(clientID, secret, baseURL string) *Client {
	c := NewClient(clientID, secret, "sandbox")
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// APIError is a non-2xx response from Plaid.
type APIError struct {
	StatusCode   int
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid: status %d: %s/%s: %s", e.StatusCode, e.ErrorType, e.ErrorCode, e.ErrorMessage)
}

// post sends body to path with the client credentials injected, decoding the
// response into out. Every Plaid call is a JSON POST.
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	body["client_id"] = c.clientID
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Plaid-Version", apiVersion)

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
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.ErrorMessage = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CreateLinkToken starts a Link session for the given user and returns the
// link token the frontend needs.
func (c *Client) CreateLinkToken(ctx context.Context, userID, webhookURL string) (string, error) {
	body := map[string]interface{}{
		"user":          map[string]string{"client_user_id": userID},
		"client_name":   "banklink",
		"products":      []string{"transactions"},
		"country_codes": []string{"US", "FR"},
		"language":      "en",
	}
	if webhookURL != "" {
		body["webhook"] = webhookURL
	}

	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", body, &resp); err != nil {
		return "", fmt.Errorf("CreateLinkToken: %w", err)
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken redeems a Link public token for the item access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := c.post(ctx, "/item/public_token/exchange", map[string]interface{}{
		"public_token": publicToken,
	}, &resp); err != nil {
		return "", "", fmt.Errorf("ExchangePublicToken: %w", err)
	}
	return resp.AccessToken, resp.ItemID, nil
}
