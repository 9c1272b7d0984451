package plaid

import (
	"encoding/json"
	"fmt"
)

// Webhook discriminators this backend reacts to.
const (
	WebhookTypeTransactions = "TRANSACTIONS"
	WebhookTypeItem         = "ITEM"

	WebhookCodeSyncUpdates = "SYNC_UPDATES_AVAILABLE"
	WebhookCodeItemError   = "ERROR"
)

// WebhookEvent is a decoded webhook body, discriminated by Type and Code.
type WebhookEvent struct {
	Type   string `json:"webhook_type"`
	Code   string `json:"webhook_code"`
	ItemID string `json:"item_id"`

	Error *struct {
		ErrorType    string `json:"error_type"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

// DecodeWebhook validates a webhook body at the boundary. Unknown types pass
// through with their discriminators intact so callers can log and ignore
// them.
func DecodeWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("DecodeWebhook: %w", err)
	}
	if event.Type == "" || event.Code == "" {
		return nil, fmt.Errorf("DecodeWebhook: missing webhook_type or webhook_code")
	}
	return &event, nil
}
