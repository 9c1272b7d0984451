package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Expense is a user-defined budget bucket keyed by a category identifier.
// The category is immutable after creation; there is no update path.
type Expense struct {
	ID         string
	UserID     string
	Name       string
	CategoryID string
}

// Transaction is one mirrored bank-ledger movement. CategoryID is assigned by
// the app/user; ExpenseID is derived from it by the reconciliation engine and
// must never be written by anything else. Empty strings stand for the null
// document fields.
type Transaction struct {
	ID        string
	AccountID string
	UserID    string

	Amount       decimal.Decimal
	CurrencyCode string
	Pending      bool

	DescriptionOriginal string
	DescriptionCleaned  string

	// BookedDate and ValueDate are calendar dates as reported by the
	// aggregator; BookedDate may be zero for pending transactions.
	BookedDate civil.Date
	ValueDate  civil.Date

	CategoryID string
	ExpenseID  string
}

// BankAccount is one mirrored account from an aggregator.
type BankAccount struct {
	ID                string
	OriginalAccountID string
	UserID            string
	Type              string
	OriginalName      string
	CurrencyCode      string

	CurrentBalance *decimal.Decimal
	BookedBalance  *decimal.Decimal

	FinancialInstitutionID string
	FinancialAccountNumber string

	LastRefresh time.Time
}

// Credentials tracks one bank connection (a Tink credential or a Plaid item)
// and the sync bookkeeping attached to it.
type Credentials struct {
	ID         string
	UserID     string
	Provider   string // "tink" or "plaid"
	AccountIDs []string

	// AccessToken is the Plaid item access token. Tink connections
	// exchange short-lived tokens per call instead.
	AccessToken string

	// SyncCursor is the opaque Plaid /transactions/sync cursor. Empty
	// means no sync has completed yet.
	SyncCursor string

	// LastRefresh bounds the booked-date window of the next Tink
	// transaction fetch.
	LastRefresh time.Time

	ProviderName string
	Status       string
}
