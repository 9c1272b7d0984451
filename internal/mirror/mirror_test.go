package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmarchal/banklink/internal/aggregator/plaid"
	"github.com/dmarchal/banklink/internal/aggregator/tink"
	"github.com/dmarchal/banklink/internal/domain"
)

type fakeTink struct {
	account      *tink.Account
	transactions []tink.Transaction
	tokenErr     error

	gotQuery tink.TransactionQuery
}

func (f *fakeTink) AccessTokenForUser(ctx context.Context, externalUserID string, scopes ...string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token-" + externalUserID, nil
}

func (f *fakeTink) GetAccount(ctx context.Context, accessToken, accountID string) (*tink.Account, error) {
	if f.account == nil {
		return nil, errors.New("no such account")
	}
	return f.account, nil
}

func (f *fakeTink) ForEachTransaction(ctx context.Context, accessToken string, q tink.TransactionQuery, fn func(tink.Transaction) error) error {
	f.gotQuery = q
	for _, t := range f.transactions {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

type fakePlaid struct {
	pages    []*plaid.SyncPage
	accounts []plaid.Account
	item     *plaid.Item

	gotCursor string
}

func (f *fakePlaid) GetAccounts(ctx context.Context, accessToken string) ([]plaid.Account, *plaid.Item, error) {
	return f.accounts, f.item, nil
}

func (f *fakePlaid) SyncAll(ctx context.Context, accessToken, cursor string, fn func(*plaid.SyncPage) error) (string, error) {
	f.gotCursor = cursor
	for _, p := range f.pages {
		if err := fn(p); err != nil {
			return cursor, err
		}
		cursor = p.NextCursor
	}
	return cursor, nil
}

type fakeStore struct {
	accounts    map[string]domain.BankAccount
	existing    map[string]struct{}
	credentials map[string]*domain.Credentials

	savedCursor string
	cursorSaved bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    map[string]domain.BankAccount{},
		existing:    map[string]struct{}{},
		credentials: map[string]*domain.Credentials{},
	}
}

func (f *fakeStore) UpsertAccount(ctx context.Context, a domain.BankAccount) error {
	f.accounts[a.ID] = a
	return nil
}

func (f *fakeStore) ListTransactionIDs(ctx context.Context, accountID string) (map[string]struct{}, error) {
	return f.existing, nil
}

func (f *fakeStore) GetCredentials(ctx context.Context, credentialsID string) (*domain.Credentials, error) {
	return f.credentials[credentialsID], nil
}

func (f *fakeStore) UpsertCredentials(ctx context.Context, c domain.Credentials) error {
	f.credentials[c.ID] = &c
	return nil
}

func (f *fakeStore) SaveSyncCursor(ctx context.Context, credentialsID, cursor string, refreshedAt time.Time) error {
	f.savedCursor = cursor
	f.cursorSaved = true
	return nil
}

type fakeSink struct {
	created map[string]domain.Transaction
	updated map[string]domain.Transaction
	deleted []string
	flushed bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		created: map[string]domain.Transaction{},
		updated: map[string]domain.Transaction{},
	}
}

func (f *fakeSink) CreateTransaction(t domain.Transaction) { f.created[t.ID] = t }
func (f *fakeSink) UpdateTransaction(t domain.Transaction) { f.updated[t.ID] = t }
func (f *fakeSink) DeleteTransaction(accountID, transactionID string) {
	f.deleted = append(f.deleted, transactionID)
}
func (f *fakeSink) Flush(ctx context.Context) error {
	f.flushed = true
	return nil
}

type fakeArchive struct {
	objects map[string][]byte
}

func (f *fakeArchive) Archive(ctx context.Context, objectName string, payload []byte) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[objectName] = payload
	return nil
}

func newService(tinkAPI TinkAPI, plaidAPI PlaidAPI, store Store, sink *fakeSink, archive Archiver) *Service {
	return New(tinkAPI, plaidAPI, store, func(context.Context) Sink { return sink }, archive, zerolog.Nop())
}

func tinkTxn(id, amount, booked string) tink.Transaction {
	t := tink.Transaction{ID: id, AccountID: "acc-1", Status: "BOOKED"}
	t.Amount.Value.UnscaledValue = amount
	t.Amount.Value.Scale = "2"
	t.Amount.CurrencyCode = "EUR"
	t.Dates = &struct {
		Booked string `json:"booked"`
		Value  string `json:"value"`
	}{Booked: booked, Value: booked}
	return t
}

func TestSyncTinkTransactions_CreatesAndUpdates(t *testing.T) {
	store := newFakeStore()
	store.existing["t-known"] = struct{}{}
	sink := newFakeSink()
	archive := &fakeArchive{}
	svc := newService(&fakeTink{transactions: []tink.Transaction{
		tinkTxn("t-known", "-1250", "2026-01-05"),
		tinkTxn("t-new", "3000", "2026-01-06"),
	}}, nil, store, sink, archive)

	if err := svc.SyncTinkTransactions(context.Background(), "user-1", "acc-1", ""); err != nil {
		t.Fatalf("SyncTinkTransactions: %v", err)
	}

	if !sink.flushed {
		t.Error("Expected sink flushed")
	}
	if _, ok := sink.created["t-new"]; !ok {
		t.Error("Expected t-new created")
	}
	if _, ok := sink.updated["t-known"]; !ok {
		t.Error("Expected t-known updated")
	}
	if len(sink.created) != 1 || len(sink.updated) != 1 {
		t.Errorf("Expected 1 create and 1 update, got %d/%d", len(sink.created), len(sink.updated))
	}

	got := sink.created["t-new"]
	if got.UserID != "user-1" || got.AccountID != "acc-1" {
		t.Errorf("Unexpected ownership %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("Expected amount 30.00, got %s", got.Amount)
	}
	if got.BookedDate.String() != "2026-01-06" {
		t.Errorf("Expected booked date 2026-01-06, got %s", got.BookedDate)
	}

	if len(archive.objects) != 1 {
		t.Errorf("Expected one archived payload, got %d", len(archive.objects))
	}
}

func TestSyncTinkTransactions_NilArchiverDisables(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	svc := newService(&fakeTink{transactions: []tink.Transaction{
		tinkTxn("t-1", "100", "2026-01-05"),
	}}, nil, store, sink, nil)

	if err := svc.SyncTinkTransactions(context.Background(), "user-1", "acc-1", ""); err != nil {
		t.Fatalf("SyncTinkTransactions: %v", err)
	}
	if len(sink.created) != 1 {
		t.Errorf("Expected 1 create, got %d", len(sink.created))
	}
}

func TestSyncTinkAccount(t *testing.T) {
	account := &tink.Account{
		ID:                     "acc-1",
		Name:                   "Checking",
		Type:                   "CHECKING",
		FinancialInstitutionID: "fi-1",
	}
	booked := &struct {
		Amount tink.MonetaryAmount `json:"amount"`
	}{}
	booked.Amount.Value.UnscaledValue = "123456"
	booked.Amount.Value.Scale = "2"
	booked.Amount.CurrencyCode = "EUR"
	account.Balances.Booked = booked

	store := newFakeStore()
	svc := newService(&fakeTink{account: account}, nil, store, newFakeSink(), nil)

	if err := svc.SyncTinkAccount(context.Background(), "user-1", "acc-1"); err != nil {
		t.Fatalf("SyncTinkAccount: %v", err)
	}

	got, ok := store.accounts["acc-1"]
	if !ok {
		t.Fatal("Expected account upserted")
	}
	if got.UserID != "user-1" || got.OriginalName != "Checking" {
		t.Errorf("Unexpected account %+v", got)
	}
	if got.BookedBalance == nil || !got.BookedBalance.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("Expected booked balance 1234.56, got %v", got.BookedBalance)
	}
	if got.CurrencyCode != "EUR" {
		t.Errorf("Expected EUR, got %q", got.CurrencyCode)
	}
}

func TestRefreshTinkConnection_WindowsAndStamps(t *testing.T) {
	store := newFakeStore()
	store.credentials["cred-1"] = &domain.Credentials{
		ID:          "cred-1",
		UserID:      "user-1",
		Provider:    "tink",
		AccountIDs:  []string{"acc-1"},
		LastRefresh: time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC),
	}
	tinkAPI := &fakeTink{
		account:      &tink.Account{ID: "acc-1", Name: "Checking"},
		transactions: []tink.Transaction{tinkTxn("t-1", "100", "2026-01-10")},
	}
	sink := newFakeSink()
	svc := newService(tinkAPI, nil, store, sink, nil)

	if err := svc.RefreshTinkConnection(context.Background(), "cred-1"); err != nil {
		t.Fatalf("RefreshTinkConnection: %v", err)
	}

	// Fetch window starts one day before the last refresh.
	if tinkAPI.gotQuery.EarliestBookedDate != "2026-01-09" {
		t.Errorf("Expected window from 2026-01-09, got %q", tinkAPI.gotQuery.EarliestBookedDate)
	}
	if _, ok := store.accounts["acc-1"]; !ok {
		t.Error("Expected account mirrored")
	}
	if len(sink.created) != 1 {
		t.Errorf("Expected 1 transaction created, got %d", len(sink.created))
	}
	if !store.cursorSaved {
		t.Error("Expected credential stamped after refresh")
	}
}

func TestRefreshTinkConnection_UnknownCredentials(t *testing.T) {
	svc := newService(&fakeTink{}, nil, newFakeStore(), newFakeSink(), nil)
	if err := svc.RefreshTinkConnection(context.Background(), "missing"); err == nil {
		t.Fatal("Expected error for unknown credentials")
	}
}

func TestSyncPlaidItem_AppliesPagesAndPersistsCursor(t *testing.T) {
	store := newFakeStore()
	store.credentials["item-1"] = &domain.Credentials{
		ID:          "item-1",
		UserID:      "user-1",
		Provider:    "plaid",
		AccessToken: "access-1",
		SyncCursor:  "cur-old",
	}
	sink := newFakeSink()
	plaidAPI := &fakePlaid{pages: []*plaid.SyncPage{
		{
			Added:      []plaid.Transaction{{TransactionID: "p-1", AccountID: "a-1", Amount: "12.5", ISOCurrency: "USD", Name: "COFFEE", Date: "2026-01-05"}},
			NextCursor: "cur-mid",
			HasMore:    true,
		},
		{
			Modified:   []plaid.Transaction{{TransactionID: "p-1", AccountID: "a-1", Amount: "12.5", ISOCurrency: "USD", Name: "COFFEE SHOP", Date: "2026-01-05"}},
			Removed:    []plaid.RemovedTransaction{{TransactionID: "p-0", AccountID: "a-1"}},
			NextCursor: "cur-new",
		},
	}}
	svc := newService(nil, plaidAPI, store, sink, nil)

	if err := svc.SyncPlaidItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("SyncPlaidItem: %v", err)
	}

	if plaidAPI.gotCursor != "cur-old" {
		t.Errorf("Expected sync to resume from cur-old, got %q", plaidAPI.gotCursor)
	}
	if store.savedCursor != "cur-new" {
		t.Errorf("Expected cursor cur-new persisted, got %q", store.savedCursor)
	}

	created := sink.created["p-1"]
	// Plaid outflows are positive on the wire; mirrored amounts are
	// inflow-positive.
	if !created.Amount.Equal(decimal.RequireFromString("-12.5")) {
		t.Errorf("Expected amount -12.5, got %s", created.Amount)
	}
	if len(sink.deleted) != 1 || sink.deleted[0] != "p-0" {
		t.Errorf("Expected p-0 deleted, got %v", sink.deleted)
	}
}

func TestSyncPlaidItem_UnknownCredentials(t *testing.T) {
	svc := newService(nil, &fakePlaid{}, newFakeStore(), newFakeSink(), nil)
	if err := svc.SyncPlaidItem(context.Background(), "missing"); err == nil {
		t.Fatal("Expected error for unknown credentials")
	}
}

func TestSavePlaidConnection(t *testing.T) {
	store := newFakeStore()
	plaidAPI := &fakePlaid{
		accounts: []plaid.Account{{AccountID: "a-1", Name: "Checking", Type: "depository"}},
		item:     &plaid.Item{ItemID: "item-1", InstitutionID: "ins_1"},
	}
	svc := newService(nil, plaidAPI, store, newFakeSink(), nil)

	if err := svc.SavePlaidConnection(context.Background(), "user-1", "item-1", "access-1"); err != nil {
		t.Fatalf("SavePlaidConnection: %v", err)
	}

	creds := store.credentials["item-1"]
	if creds == nil {
		t.Fatal("Expected credentials stored")
	}
	if creds.AccessToken != "access-1" || creds.Provider != "plaid" {
		t.Errorf("Unexpected credentials %+v", creds)
	}
	if len(creds.AccountIDs) != 1 || creds.AccountIDs[0] != "a-1" {
		t.Errorf("Expected account ids [a-1], got %v", creds.AccountIDs)
	}
	if _, ok := store.accounts["a-1"]; !ok {
		t.Error("Expected account mirrored")
	}
}
