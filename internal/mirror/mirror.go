// Package mirror copies account and transaction records from the aggregators
// into the document store. New transaction documents start uncategorized and
// unlinked; the reconciliation engine owns the expense linkage from then on.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmarchal/banklink/internal/aggregator/plaid"
	"github.com/dmarchal/banklink/internal/aggregator/tink"
	"github.com/dmarchal/banklink/internal/domain"
)

// TinkAPI is the slice of the Tink client the mirror consumes.
type TinkAPI interface {
	AccessTokenForUser(ctx context.Context, externalUserID string, scopes ...string) (string, error)
	GetAccount(ctx context.Context, accessToken, accountID string) (*tink.Account, error)
	ForEachTransaction(ctx context.Context, accessToken string, q tink.TransactionQuery, fn func(tink.Transaction) error) error
}

// PlaidAPI is the slice of the Plaid client the mirror consumes.
type PlaidAPI interface {
	GetAccounts(ctx context.Context, accessToken string) ([]plaid.Account, *plaid.Item, error)
	SyncAll(ctx context.Context, accessToken, cursor string, fn func(*plaid.SyncPage) error) (string, error)
}

// Store is the slice of the document store the mirror consumes.
type Store interface {
	UpsertAccount(ctx context.Context, a domain.BankAccount) error
	ListTransactionIDs(ctx context.Context, accountID string) (map[string]struct{}, error)
	GetCredentials(ctx context.Context, credentialsID string) (*domain.Credentials, error)
	UpsertCredentials(ctx context.Context, c domain.Credentials) error
	SaveSyncCursor(ctx context.Context, credentialsID, cursor string, refreshedAt time.Time) error
}

// Sink batches mirror writes; the store's BulkWriter-backed sink implements
// it.
type Sink interface {
	CreateTransaction(t domain.Transaction)
	UpdateTransaction(t domain.Transaction)
	DeleteTransaction(accountID, transactionID string)
	Flush(ctx context.Context) error
}

// Archiver persists raw aggregator payloads for replay and debugging.
type Archiver interface {
	Archive(ctx context.Context, objectName string, payload []byte) error
}

// Service mirrors aggregator data into the store.
type Service struct {
	tink    TinkAPI
	plaid   PlaidAPI
	store   Store
	newSink func(context.Context) Sink
	archive Archiver // nil disables archiving
	log     zerolog.Logger
}

// New creates a mirror Service. archive may be nil.
func New(tinkAPI TinkAPI, plaidAPI PlaidAPI, store Store, newSink func(context.Context) Sink, archive Archiver, log zerolog.Logger) *Service {
	return &Service{
		tink:    tinkAPI,
		plaid:   plaidAPI,
		store:   store,
		newSink: newSink,
		archive: archive,
		log:     log,
	}
}

// SyncTinkAccount fetches one account and upserts its mirrored document.
func (s *Service) SyncTinkAccount(ctx context.Context, externalUserID, accountID string) error {
	token, err := s.tink.AccessTokenForUser(ctx, externalUserID, "accounts:read", "balances:read")
	if err != nil {
		return fmt.Errorf("SyncTinkAccount: %w", err)
	}
	account, err := s.tink.GetAccount(ctx, token, accountID)
	if err != nil {
		return fmt.Errorf("SyncTinkAccount: %w", err)
	}

	mirrored := domain.BankAccount{
		ID:                     account.ID,
		OriginalAccountID:      account.ID,
		UserID:                 externalUserID,
		Type:                   account.Type,
		OriginalName:           account.Name,
		FinancialInstitutionID: account.FinancialInstitutionID,
		LastRefresh:            account.Dates.LastRefreshed,
	}
	if fi := account.Identifiers.FinancialInstitution; fi != nil {
		mirrored.FinancialAccountNumber = fi.AccountNumber
	}
	if b := account.Balances.Available; b != nil {
		if d, err := b.Amount.Decimal(); err == nil {
			mirrored.CurrentBalance = &d
			mirrored.CurrencyCode = b.Amount.CurrencyCode
		}
	}
	if b := account.Balances.Booked; b != nil {
		if d, err := b.Amount.Decimal(); err == nil {
			mirrored.BookedBalance = &d
			if mirrored.CurrencyCode == "" {
				mirrored.CurrencyCode = b.Amount.CurrencyCode
			}
		}
	}

	if err := s.store.UpsertAccount(ctx, mirrored); err != nil {
		return fmt.Errorf("SyncTinkAccount: %w", err)
	}
	s.log.Info().Str("account_id", accountID).Str("user_id", externalUserID).Msg("Mirrored account")
	return nil
}

// SyncTinkTransactions streams the account's transactions since
// earliestBookedDate (empty for full history) and mirrors them, creating new
// documents and updating the aggregator-owned fields of known ones.
func (s *Service) SyncTinkTransactions(ctx context.Context, externalUserID, accountID, earliestBookedDate string) error {
	token, err := s.tink.AccessTokenForUser(ctx, externalUserID, "transactions:read")
	if err != nil {
		return fmt.Errorf("SyncTinkTransactions: %w", err)
	}

	existing, err := s.store.ListTransactionIDs(ctx, accountID)
	if err != nil {
		return fmt.Errorf("SyncTinkTransactions: %w", err)
	}

	sink := s.newSink(ctx)
	var raw []tink.Transaction
	created, updated := 0, 0
	err = s.tink.ForEachTransaction(ctx, token, tink.TransactionQuery{
		AccountIDs:         []string{accountID},
		EarliestBookedDate: earliestBookedDate,
	}, func(t tink.Transaction) error {
		raw = append(raw, t)
		mirrored, err := tinkToDomain(externalUserID, t)
		if err != nil {
			// One unmappable record must not stop the stream.
			s.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("Skipping unmappable transaction")
			return nil
		}
		if _, ok := existing[t.ID]; ok {
			sink.UpdateTransaction(mirrored)
			updated++
		} else {
			sink.CreateTransaction(mirrored)
			created++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("SyncTinkTransactions: %w", err)
	}

	if err := sink.Flush(ctx); err != nil {
		return fmt.Errorf("SyncTinkTransactions: flushing: %w", err)
	}
	s.archivePayload(ctx, fmt.Sprintf("tink/%s/%s/%d.json", externalUserID, accountID, time.Now().UnixMilli()), raw)

	s.log.Info().
		Str("account_id", accountID).
		Int("created", created).
		Int("updated", updated).
		Msg("Mirrored transactions")
	return nil
}

// RefreshTinkConnection mirrors every account of one Tink credential,
// windowing the transaction fetch to the days since the last recorded
// refresh, and stamps the credential afterwards.
func (s *Service) RefreshTinkConnection(ctx context.Context, credentialsID string) error {
	creds, err := s.store.GetCredentials(ctx, credentialsID)
	if err != nil {
		return fmt.Errorf("RefreshTinkConnection: %w", err)
	}
	if creds == nil {
		return fmt.Errorf("RefreshTinkConnection: unknown credentials %s", credentialsID)
	}

	earliest := ""
	if !creds.LastRefresh.IsZero() {
		// One day of overlap absorbs clock skew and late bookings;
		// re-mirrored transactions are idempotent updates.
		earliest = creds.LastRefresh.AddDate(0, 0, -1).Format("2006-01-02")
	}

	for _, accountID := range creds.AccountIDs {
		if err := s.SyncTinkAccount(ctx, creds.UserID, accountID); err != nil {
			return fmt.Errorf("RefreshTinkConnection: %w", err)
		}
		if err := s.SyncTinkTransactions(ctx, creds.UserID, accountID, earliest); err != nil {
			return fmt.Errorf("RefreshTinkConnection: %w", err)
		}
	}

	if err := s.store.SaveSyncCursor(ctx, credentialsID, creds.SyncCursor, time.Now()); err != nil {
		return fmt.Errorf("RefreshTinkConnection: %w", err)
	}
	return nil
}

// SyncPlaidItem drains /transactions/sync for one connection, resuming from
// the stored cursor, and persists the new cursor afterwards.
func (s *Service) SyncPlaidItem(ctx context.Context, credentialsID string) error {
	creds, err := s.store.GetCredentials(ctx, credentialsID)
	if err != nil {
		return fmt.Errorf("SyncPlaidItem: %w", err)
	}
	if creds == nil {
		return fmt.Errorf("SyncPlaidItem: unknown credentials %s", credentialsID)
	}

	sink := s.newSink(ctx)
	pageNo := 0
	cursor, err := s.plaid.SyncAll(ctx, creds.AccessToken, creds.SyncCursor, func(page *plaid.SyncPage) error {
		pageNo++
		s.archivePayload(ctx, fmt.Sprintf("plaid/%s/%d-%d.json", credentialsID, time.Now().UnixMilli(), pageNo), page)
		for _, t := range page.Added {
			sink.CreateTransaction(plaidToDomain(creds.UserID, t))
		}
		for _, t := range page.Modified {
			sink.UpdateTransaction(plaidToDomain(creds.UserID, t))
		}
		for _, t := range page.Removed {
			sink.DeleteTransaction(t.AccountID, t.TransactionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("SyncPlaidItem: %w", err)
	}

	if err := sink.Flush(ctx); err != nil {
		return fmt.Errorf("SyncPlaidItem: flushing: %w", err)
	}
	if err := s.store.SaveSyncCursor(ctx, credentialsID, cursor, time.Now()); err != nil {
		return fmt.Errorf("SyncPlaidItem: %w", err)
	}

	s.log.Info().Str("credentials_id", credentialsID).Int("pages", pageNo).Msg("Plaid sync complete")
	return nil
}

// SavePlaidConnection registers a freshly exchanged item: mirrors its
// accounts and stores the credentials document.
func (s *Service) SavePlaidConnection(ctx context.Context, userID, itemID, accessToken string) error {
	accounts, item, err := s.plaid.GetAccounts(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("SavePlaidConnection: %w", err)
	}

	accountIDs := make([]string, 0, len(accounts))
	for _, a := range accounts {
		accountIDs = append(accountIDs, a.AccountID)
		mirrored := domain.BankAccount{
			ID:                     a.AccountID,
			OriginalAccountID:      a.AccountID,
			UserID:                 userID,
			Type:                   a.Type,
			OriginalName:           a.Name,
			CurrencyCode:           a.CurrencyCode(),
			CurrentBalance:         a.CurrentBalance(),
			FinancialAccountNumber: a.PersistentAccountID,
			FinancialInstitutionID: item.InstitutionID,
			LastRefresh:            time.Now(),
		}
		if err := s.store.UpsertAccount(ctx, mirrored); err != nil {
			return fmt.Errorf("SavePlaidConnection: %w", err)
		}
	}

	status := "OK"
	if item.Error != nil {
		status = item.Error.ErrorType
	}
	err = s.store.UpsertCredentials(ctx, domain.Credentials{
		ID:          itemID,
		UserID:      userID,
		Provider:    "plaid",
		AccountIDs:  accountIDs,
		AccessToken: accessToken,
		LastRefresh: time.Now(),
		Status:      status,
	})
	if err != nil {
		return fmt.Errorf("SavePlaidConnection: %w", err)
	}
	return nil
}

func (s *Service) archivePayload(ctx context.Context, objectName string, payload interface{}) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("object", objectName).Msg("Failed to encode archive payload")
		return
	}
	if err := s.archive.Archive(ctx, objectName, data); err != nil {
		// Archiving is best effort; the sync result stands.
		s.log.Warn().Err(err).Str("object", objectName).Msg("Failed to archive payload")
	}
}

// tinkToDomain maps one Tink transaction. The value date is the earlier of
// the two reported dates, matching how statements order them.
func tinkToDomain(userID string, t tink.Transaction) (domain.Transaction, error) {
	amount, err := t.Amount.Decimal()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}

	mirrored := domain.Transaction{
		ID:           t.ID,
		AccountID:    t.AccountID,
		UserID:       userID,
		Amount:       amount,
		CurrencyCode: t.Amount.CurrencyCode,
		Pending:      t.Status == "PENDING",
	}
	if t.Descriptions != nil {
		mirrored.DescriptionOriginal = t.Descriptions.Original
		mirrored.DescriptionCleaned = t.Descriptions.Display
	}
	if t.Dates != nil {
		value, booked := t.Dates.Value, t.Dates.Booked
		if booked != "" && (value == "" || booked < value) {
			value, booked = booked, value
		}
		if value != "" {
			if d, err := civil.ParseDate(value); err == nil {
				mirrored.ValueDate = d
			}
		}
		if booked != "" {
			if d, err := civil.ParseDate(booked); err == nil {
				mirrored.BookedDate = d
			}
		}
	}
	return mirrored, nil
}

// plaidToDomain maps one Plaid transaction. Plaid reports outflows as
// positive; the mirrored convention is inflow-positive, so the sign flips.
func plaidToDomain(userID string, t plaid.Transaction) domain.Transaction {
	amount, err := decimal.NewFromString(t.Amount.String())
	if err != nil {
		amount = decimal.Zero
	}

	mirrored := domain.Transaction{
		ID:                  t.TransactionID,
		AccountID:           t.AccountID,
		UserID:              userID,
		Amount:              amount.Neg(),
		CurrencyCode:        t.ISOCurrency,
		Pending:             t.Pending,
		DescriptionOriginal: t.Name,
		DescriptionCleaned:  t.MerchantName,
	}
	if mirrored.DescriptionCleaned == "" {
		mirrored.DescriptionCleaned = t.Name
	}
	if t.Date != "" {
		if d, err := civil.ParseDate(t.Date); err == nil {
			mirrored.BookedDate = d
			mirrored.ValueDate = d
		}
	}
	if t.AuthorizedOn != "" {
		if d, err := civil.ParseDate(t.AuthorizedOn); err == nil {
			mirrored.ValueDate = d
		}
	}
	return mirrored
}
