package tink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook event types this backend subscribes to.
const (
	EventRefreshFinished            = "refresh:finished"
	EventAccountCreated             = "account:created"
	EventAccountUpdated             = "account:updated"
	EventTransactionsModified       = "account-transactions:modified"
	EventBookedTransactionsModified = "account-booked-transactions:modified"
)

// EnabledEvents is the full subscription set registered for a deployment.
var EnabledEvents = []string{
	EventRefreshFinished,
	EventAccountCreated,
	EventAccountUpdated,
	EventTransactionsModified,
	EventBookedTransactionsModified,
}

// RegisteredWebhook is Tink's record of a webhook endpoint. Secret is only
// returned at registration time and must be persisted then.
type RegisteredWebhook struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	EnabledEvents []string `json:"enabledEvents"`
	Disabled      bool     `json:"disabled"`
	Secret        string   `json:"secret"`
}

// RegisterWebhook registers url for the given events and returns the record
// including the signing secret.
func (c *Client) RegisterWebhook(ctx context.Context, accessToken, url string, events []string) (*RegisteredWebhook, error) {
	body := map[string]interface{}{
		"url":           url,
		"enabledEvents": events,
	}
	var reg RegisteredWebhook
	if err := c.postJSON(ctx, "/events/v2/webhook-endpoints", accessToken, body, &reg); err != nil {
		return nil, fmt.Errorf("RegisterWebhook: %w", err)
	}
	return &reg, nil
}

// VerifySignature checks the X-Tink-Signature header ("t=<ts>,v1=<hex>")
// against HMAC-SHA256(secret, "<ts>.<rawBody>").
func VerifySignature(header string, rawBody []byte, secret string) error {
	var timestamp, signature string
	for _, kv := range strings.Split(header, ",") {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return fmt.Errorf("VerifySignature: malformed signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return fmt.Errorf("VerifySignature: signature mismatch")
	}
	return nil
}

// Event is one webhook delivery, decoded as a tagged union over the Event
// field. Exactly one of the typed content fields is set, matching the tag.
type Event struct {
	Event   string
	Context EventContext

	Account             *AccountEvent
	TransactionsChanged *TransactionsModifiedEvent
	Refresh             *RefreshEvent
}

// EventContext identifies the user the event belongs to.
type EventContext struct {
	UserID         string `json:"userId"`
	ExternalUserID string `json:"externalUserId"`
}

// AccountEvent is the content of account:created / account:updated.
type AccountEvent struct {
	ID string `json:"id"`
}

// RefreshEvent is the content of refresh:finished.
type RefreshEvent struct {
	CredentialsID     string `json:"credentialsId"`
	CredentialsStatus string `json:"credentialsStatus"`
}

// TransactionsModifiedEvent is the content of the two transactions-modified
// events.
type TransactionsModifiedEvent struct {
	Account struct {
		ID                        string `json:"id"`
		TransactionsModifiedCount int    `json:"transactionsModifiedCount"`
	} `json:"account"`
}

type rawEvent struct {
	Event   string          `json:"event"`
	Context EventContext    `json:"context"`
	Content json.RawMessage `json:"content"`
}

// DecodeEvent validates and decodes a webhook body at the boundary; unknown
// event types are rejected before anything reaches the core.
func DecodeEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("DecodeEvent: %w", err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("DecodeEvent: missing event field")
	}

	event := &Event{Event: raw.Event, Context: raw.Context}
	switch raw.Event {
	case EventAccountCreated, EventAccountUpdated:
		var content AccountEvent
		if err := json.Unmarshal(raw.Content, &content); err != nil {
			return nil, fmt.Errorf("DecodeEvent: %s content: %w", raw.Event, err)
		}
		event.Account = &content
	case EventTransactionsModified, EventBookedTransactionsModified:
		var content TransactionsModifiedEvent
		if err := json.Unmarshal(raw.Content, &content); err != nil {
			return nil, fmt.Errorf("DecodeEvent: %s content: %w", raw.Event, err)
		}
		event.TransactionsChanged = &content
	case EventRefreshFinished:
		if len(raw.Content) > 0 {
			var content RefreshEvent
			if err := json.Unmarshal(raw.Content, &content); err != nil {
				return nil, fmt.Errorf("DecodeEvent: %s content: %w", raw.Event, err)
			}
			event.Refresh = &content
		}
	default:
		return nil, fmt.Errorf("DecodeEvent: unknown event type %q", raw.Event)
	}
	return event, nil
}
