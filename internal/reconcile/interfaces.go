package reconcile

import (
	"context"

	"github.com/dmarchal/banklink/internal/domain"
)

// ExpenseIndex resolves category-to-expense matches for one user.
type ExpenseIndex interface {
	// NearestAncestorExpense returns the expense whose categoryId is the
	// longest prefix-or-equal of categoryID, or nil when no expense on
	// the ancestor chain exists.
	NearestAncestorExpense(ctx context.Context, userID, categoryID string) (*domain.Expense, error)

	// DescendantExpenses returns every expense strictly below categoryID
	// in the hierarchy, excluding categoryID itself.
	DescendantExpenses(ctx context.Context, userID, categoryID string) ([]domain.Expense, error)
}

// TransactionSource enumerates a user's transactions for re-linking. Both
// scans stream across all of the user's accounts; result sets are unbounded
// and consumption order carries no meaning.
type TransactionSource interface {
	// ForEachDescendantOrSelf calls fn for every transaction whose
	// categoryId equals categoryID or sits below it.
	ForEachDescendantOrSelf(ctx context.Context, userID, categoryID string, fn func(domain.Transaction) error) error

	// ForEachLinkedTo calls fn for every transaction currently linked to
	// expenseID.
	ForEachLinkedTo(ctx context.Context, userID, expenseID string, fn func(domain.Transaction) error) error
}

// MutationSink batches independent expenseId writes. SetExpenseID enqueues
// without blocking; an empty expenseID clears the link. Flush waits until
// every enqueued write has been attempted and only reports failures that
// prevented the batch from being issued at all - individual write failures
// are collected and logged by the implementation, never failing siblings.
type MutationSink interface {
	SetExpenseID(accountID, transactionID, expenseID string)
	Flush(ctx context.Context) error
}

// SinkFactory hands out one MutationSink per trigger invocation.
type SinkFactory interface {
	NewSink(ctx context.Context) MutationSink
}
