package plaid

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transaction is one entry from /transactions/sync.
type Transaction struct {
	TransactionID string      `json:"transaction_id"`
	AccountID     string      `json:"account_id"`
	Amount        json.Number `json:"amount"`
	ISOCurrency   string      `json:"iso_currency_code"`
	Name          string      `json:"name"`
	MerchantName  string      `json:"merchant_name"`
	Date          string      `json:"date"` // YYYY-MM-DD
	AuthorizedOn  string      `json:"authorized_date"`
	Pending       bool        `json:"pending"`
}

// RemovedTransaction identifies a transaction the aggregator retracted.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
}

// SyncPage is one page of the cursor protocol.
type SyncPage struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// SyncTransactions fetches one page of changes since cursor; an empty cursor
// starts from the item's full history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	body := map[string]interface{}{
		"access_token": accessToken,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var page SyncPage
	if err := c.post(ctx, "/transactions/sync", body, &page); err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}
	return &page, nil
}

// SyncAll drains the cursor protocol, calling fn per page, and returns the
// cursor to persist for the next sync.
func (c *Client) SyncAll(ctx context.Context, accessToken, cursor string, fn func(*SyncPage) error) (string, error) {
	for {
		page, err := c.SyncTransactions(ctx, accessToken, cursor)
		if err != nil {
			return cursor, fmt.Errorf("SyncAll: %w", err)
		}
		if err := fn(page); err != nil {
			return cursor, err
		}
		cursor = page.NextCursor
		if !page.HasMore {
			return cursor, nil
		}
	}
}
