// Package firestore is the document-store layer: expense and transaction
// queries for the reconciliation engine, bulk expenseId writes, and the
// mirror writes performed during aggregator syncs.
//
// Collection layout, shared with the app:
//
//	bankAccounts/{accountId}
//	bankAccounts/{accountId}/bankAccounts-transactions/{transactionId}
//	expenses/{expenseId}
//	bankCredentials/{credentialsId}
//	tink-webhooks/{webhookId}
//
// Transactions are queried across accounts through a collection-group query.
// Descendant lookups run as half-open lexicographic ranges on categoryId
// where a range bound exists, and always re-filter client-side; the range is
// an optimization, not the correctness boundary.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
)

const (
	collBankAccounts = "bankAccounts"
	collTransactions = "bankAccounts-transactions"
	collExpenses     = "expenses"
	collCredentials  = "bankCredentials"
	collTinkWebhooks = "tink-webhooks"

	fieldUserID     = "userId"
	fieldCategoryID = "categoryId"
	fieldExpenseID  = "expenseId"
)

// Store holds a shared Firestore client for all repositories.
type Store struct {
	client *firestore.Client
	log    zerolog.Logger
}

// NewStore creates a Store with a shared Firestore client.
func NewStore(ctx context.Context, projectID string, log zerolog.Logger) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{client: client, log: log}, nil
}

// Close closes the underlying Firestore client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) transactionRef(accountID, transactionID string) *firestore.DocumentRef {
	return s.client.Collection(collBankAccounts).
		Doc(accountID).
		Collection(collTransactions).
		Doc(transactionID)
}
