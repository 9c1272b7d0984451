package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/dmarchal/banklink/internal/category"
	"github.com/dmarchal/banklink/internal/domain"
)

type transactionDoc struct {
	ID     string `firestore:"id"`
	UserID string `firestore:"userId"`
	// AccountID duplicates the parent document id so collection-group
	// results carry it without walking refs.
	AccountID string `firestore:"accountId"`

	Amount       string `firestore:"amount"`
	CurrencyCode string `firestore:"currencyCode"`
	Pending      bool   `firestore:"pending"`

	DescriptionOriginal string `firestore:"descriptionOriginal"`
	DescriptionCleaned  string `firestore:"descriptionCleaned"`

	DBCreationDate   time.Time `firestore:"dbCreationDate,serverTimestamp"`
	BankCreationDate time.Time `firestore:"bankCreationDate"`
	BankPaymentDate  time.Time `firestore:"bankPaymentDate"`

	CategoryID *string `firestore:"categoryId"`
	ExpenseID  *string `firestore:"expenseId"`
}

func (d transactionDoc) toDomain() domain.Transaction {
	amount, _ := decimal.NewFromString(d.Amount)
	return domain.Transaction{
		ID:                  d.ID,
		AccountID:           d.AccountID,
		UserID:              d.UserID,
		Amount:              amount,
		CurrencyCode:        d.CurrencyCode,
		Pending:             d.Pending,
		DescriptionOriginal: d.DescriptionOriginal,
		DescriptionCleaned:  d.DescriptionCleaned,
		ValueDate:           civil.DateOf(d.BankCreationDate),
		BookedDate:          civil.DateOf(d.BankPaymentDate),
		CategoryID:          strFromPtr(d.CategoryID),
		ExpenseID:           strFromPtr(d.ExpenseID),
	}
}

func docFromDomain(t domain.Transaction) transactionDoc {
	return transactionDoc{
		ID:                  t.ID,
		UserID:              t.UserID,
		AccountID:           t.AccountID,
		Amount:              t.Amount.String(),
		CurrencyCode:        t.CurrencyCode,
		Pending:             t.Pending,
		DescriptionOriginal: t.DescriptionOriginal,
		DescriptionCleaned:  t.DescriptionCleaned,
		BankCreationDate:    t.ValueDate.In(time.UTC),
		BankPaymentDate:     t.BookedDate.In(time.UTC),
		CategoryID:          ptrFromStr(t.CategoryID),
		ExpenseID:           ptrFromStr(t.ExpenseID),
	}
}

// ForEachDescendantOrSelf implements reconcile.TransactionSource with a
// collection-group scan across all of the user's accounts. Streaming, so the
// result set may be unbounded.
func (s *Store) ForEachDescendantOrSelf(ctx context.Context, userID, categoryID string, fn func(domain.Transaction) error) error {
	q := s.client.CollectionGroup(collTransactions).Where(fieldUserID, "==", userID)
	if successor, ok := category.PrefixSuccessor(categoryID); ok {
		q = q.Where(fieldCategoryID, ">=", categoryID).Where(fieldCategoryID, "<", successor)
	}

	err := s.forEachTransaction(q.Documents(ctx), func(t domain.Transaction) error {
		// Range bounds admit sibling keys sharing the raw string
		// prefix (a:bc for a:b); the predicate is authoritative.
		if !category.IsDescendantOrSelf(t.CategoryID, categoryID) {
			return nil
		}
		return fn(t)
	})
	if err != nil {
		return fmt.Errorf("ForEachDescendantOrSelf: %w", err)
	}
	return nil
}

// ForEachLinkedTo implements reconcile.TransactionSource: every transaction
// currently linked to expenseID, across accounts.
func (s *Store) ForEachLinkedTo(ctx context.Context, userID, expenseID string, fn func(domain.Transaction) error) error {
	q := s.client.CollectionGroup(collTransactions).
		Where(fieldUserID, "==", userID).
		Where(fieldExpenseID, "==", expenseID)

	if err := s.forEachTransaction(q.Documents(ctx), fn); err != nil {
		return fmt.Errorf("ForEachLinkedTo: %w", err)
	}
	return nil
}

func (s *Store) forEachTransaction(iter *firestore.DocumentIterator, fn func(domain.Transaction) error) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		var row transactionDoc
		if err := doc.DataTo(&row); err != nil {
			// One malformed document must not stop the scan.
			s.log.Warn().Err(err).Str("doc", doc.Ref.Path).Msg("Skipping undecodable transaction")
			continue
		}
		if row.ID == "" {
			row.ID = doc.Ref.ID
		}
		if err := fn(row.toDomain()); err != nil {
			return err
		}
	}
}

// ListTransactionIDs returns the ids of all mirrored transactions of one
// account, for create-vs-update decisions during a sync.
func (s *Store) ListTransactionIDs(ctx context.Context, accountID string) (map[string]struct{}, error) {
	iter := s.client.Collection(collBankAccounts).
		Doc(accountID).
		Collection(collTransactions).
		Select().
		Documents(ctx)
	defer iter.Stop()

	ids := make(map[string]struct{})
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactionIDs: %w", err)
		}
		ids[doc.Ref.ID] = struct{}{}
	}
}

func strFromPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func ptrFromStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
