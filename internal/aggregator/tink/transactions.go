package tink

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Transaction is one transaction as returned by /data/v2/transactions.
type Transaction struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"accountId"`
	Amount       MonetaryAmount `json:"amount"`
	Descriptions *struct {
		Original string `json:"original"`
		Display  string `json:"display"`
	} `json:"descriptions"`
	Dates *struct {
		Booked string `json:"booked"` // YYYY-MM-DD
		Value  string `json:"value"`
	} `json:"dates"`
	Types struct {
		Type string `json:"type"`
	} `json:"types"`
	Status string `json:"status"` // UNDEFINED, PENDING, BOOKED
}

// TransactionsPage is one page of the transaction listing.
type TransactionsPage struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"nextPageToken"`
}

// TransactionQuery narrows a transaction listing. Zero values mean
// unfiltered.
type TransactionQuery struct {
	AccountIDs         []string
	EarliestBookedDate string // YYYY-MM-DD
	LatestBookedDate   string
	Statuses           []string
	PageSize           int
}

// GetTransactionsPage fetches one page; pass the previous page's
// NextPageToken to continue.
func (c *Client) GetTransactionsPage(ctx context.Context, accessToken string, q TransactionQuery, pageToken string) (*TransactionsPage, error) {
	query := url.Values{}
	if q.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	if len(q.AccountIDs) > 0 {
		query.Set("accountIdIn", strings.Join(q.AccountIDs, ","))
	}
	if q.EarliestBookedDate != "" {
		query.Set("bookedDateGte", q.EarliestBookedDate)
	}
	if q.LatestBookedDate != "" {
		query.Set("bookedDateLte", q.LatestBookedDate)
	}
	if len(q.Statuses) > 0 {
		query.Set("statusIn", strings.Join(q.Statuses, ","))
	}

	var page TransactionsPage
	if err := c.getJSON(ctx, "/data/v2/transactions", accessToken, query, &page); err != nil {
		return nil, fmt.Errorf("GetTransactionsPage: %w", err)
	}
	return &page, nil
}

// ForEachTransaction streams the whole listing, following page tokens until
// exhausted. fn returning an error stops the iteration.
func (c *Client) ForEachTransaction(ctx context.Context, accessToken string, q TransactionQuery, fn func(Transaction) error) error {
	pageToken := ""
	for {
		page, err := c.GetTransactionsPage(ctx, accessToken, q, pageToken)
		if err != nil {
			return fmt.Errorf("ForEachTransaction: %w", err)
		}
		for _, t := range page.Transactions {
			if err := fn(t); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}
