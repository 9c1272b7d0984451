package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/dmarchal/banklink/internal/domain"
)

type accountDoc struct {
	ID                string `firestore:"id"`
	OriginalAccountID string `firestore:"originalAccountId,omitempty"`
	UserID            string `firestore:"userId"`
	Type              string `firestore:"type"`
	OriginalName      string `firestore:"originalName"`
	CurrencyCode      string `firestore:"currencyCode"`

	CurrentBalance *string `firestore:"currentBalance"`
	BookedBalance  *string `firestore:"bookedBalance"`

	FinancialInstitutionID string `firestore:"financialInstitutionId"`
	FinancialAccountNumber string `firestore:"financialAccountNumber"`

	LastRefresh time.Time `firestore:"lastRefresh"`
}

// UpsertAccount mirrors one aggregator account document, merging over any
// fields the app has added to it.
func (s *Store) UpsertAccount(ctx context.Context, a domain.BankAccount) error {
	row := accountDoc{
		ID:                     a.ID,
		OriginalAccountID:      a.OriginalAccountID,
		UserID:                 a.UserID,
		Type:                   a.Type,
		OriginalName:           a.OriginalName,
		CurrencyCode:           a.CurrencyCode,
		CurrentBalance:         decimalPtrToStr(a.CurrentBalance),
		BookedBalance:          decimalPtrToStr(a.BookedBalance),
		FinancialInstitutionID: a.FinancialInstitutionID,
		FinancialAccountNumber: a.FinancialAccountNumber,
		LastRefresh:            a.LastRefresh,
	}

	_, err := s.client.Collection(collBankAccounts).Doc(a.ID).Set(ctx, row, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("UpsertAccount: %w", err)
	}
	return nil
}

func decimalPtrToStr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
