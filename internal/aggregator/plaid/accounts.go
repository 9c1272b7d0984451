package plaid

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Account is one account from /accounts/get. Balances come back as JSON
// numbers and are parsed into decimals without a float round-trip.
type Account struct {
	AccountID           string `json:"account_id"`
	PersistentAccountID string `json:"persistent_account_id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	Balances            struct {
		Current                json.Number `json:"current"`
		Available              json.Number `json:"available"`
		ISOCurrencyCode        string      `json:"iso_currency_code"`
		UnofficialCurrencyCode string      `json:"unofficial_currency_code"`
	} `json:"balances"`
}

// CurrencyCode prefers the ISO code, falling back to the unofficial one.
func (a Account) CurrencyCode() string {
	if a.Balances.ISOCurrencyCode != "" {
		return a.Balances.ISOCurrencyCode
	}
	return a.Balances.UnofficialCurrencyCode
}

// CurrentBalance parses the current balance, or nil when absent.
func (a Account) CurrentBalance() *decimal.Decimal {
	return parseNumber(a.Balances.Current)
}

func parseNumber(n json.Number) *decimal.Decimal {
	if n == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	return &d
}

// Item is the /item/get record of one connection.
type Item struct {
	ItemID                string `json:"item_id"`
	InstitutionID         string `json:"institution_id"`
	ConsentExpirationTime string `json:"consent_expiration_time"`
	Error                 *struct {
		ErrorType    string `json:"error_type"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

// GetAccounts lists the item's accounts.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, *Item, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
		Item     Item      `json:"item"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]interface{}{
		"access_token": accessToken,
	}, &resp); err != nil {
		return nil, nil, fmt.Errorf("GetAccounts: %w", err)
	}
	return resp.Accounts, &resp.Item, nil
}

// GetInstitutionName resolves an institution id to its display name.
func (c *Client) GetInstitutionName(ctx context.Context, institutionID string) (string, error) {
	var resp struct {
		Institution struct {
			Name string `json:"name"`
		} `json:"institution"`
	}
	if err := c.post(ctx, "/institutions/get_by_id", map[string]interface{}{
		"institution_id": institutionID,
		"country_codes":  []string{"US", "FR"},
	}, &resp); err != nil {
		return "", fmt.Errorf("GetInstitutionName: %w", err)
	}
	return resp.Institution.Name, nil
}
