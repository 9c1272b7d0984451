package tink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MonetaryAmount is Tink's exact decimal representation: an unscaled value
// and a scale, both as strings.
type MonetaryAmount struct {
	Value struct {
		UnscaledValue string `json:"unscaledValue"`
		Scale         string `json:"scale"`
	} `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// Decimal converts the amount without going through floats.
func (m MonetaryAmount) Decimal() (decimal.Decimal, error) {
	unscaled, err := strconv.ParseInt(m.Value.UnscaledValue, 10, 64)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing unscaled value %q: %w", m.Value.UnscaledValue, err)
	}
	scale, err := strconv.ParseInt(m.Value.Scale, 10, 32)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing scale %q: %w", m.Value.Scale, err)
	}
	return decimal.New(unscaled, -int32(scale)), nil
}

// Account is one account as returned by /data/v2/accounts.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Balances struct {
		Available *struct {
			Amount MonetaryAmount `json:"amount"`
		} `json:"available"`
		Booked *struct {
			Amount MonetaryAmount `json:"amount"`
		} `json:"booked"`
	} `json:"balances"`
	Identifiers struct {
		FinancialInstitution *struct {
			AccountNumber string `json:"accountNumber"`
		} `json:"financialInstitution"`
	} `json:"identifiers"`
	Dates struct {
		LastRefreshed time.Time `json:"lastRefreshed"`
	} `json:"dates"`
	FinancialInstitutionID string `json:"financialInstitutionId"`
}

// GetAccount fetches one account by id.
func (c *Client) GetAccount(ctx context.Context, accessToken, accountID string) (*Account, error) {
	var account Account
	if err := c.getJSON(ctx, "/data/v2/accounts/"+accountID, accessToken, nil, &account); err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &account, nil
}
