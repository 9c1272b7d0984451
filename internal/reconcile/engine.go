// Package reconcile keeps the derived transaction-to-expense linkage
// consistent with the expense set. Every transaction with a category must be
// linked to the expense on the nearest ancestor-or-self category, or to
// nothing when no such expense exists.
//
// The three triggers are stateless and idempotent: each reads the current
// store state and re-derives the assignment for its affected subset, so
// redelivery or re-ordering of events converges to the same result. There is
// no cross-transaction locking; two triggers mutating overlapping subtrees at
// the same instant can transiently disagree and are corrected by the next
// event that touches the affected transactions.
package reconcile

import (
	"context"
	"fmt"

	"github.com/dmarchal/banklink/internal/domain"

	"github.com/rs/zerolog"
)

// Engine computes expenseId assignments from the current expense set and
// issues them through a MutationSink.
type Engine struct {
	expenses     ExpenseIndex
	transactions TransactionSource
	sinks        SinkFactory
	log          zerolog.Logger
}

// NewEngine creates an Engine over the given index, source and sink factory.
func NewEngine(expenses ExpenseIndex, transactions TransactionSource, sinks SinkFactory, log zerolog.Logger) *Engine {
	return &Engine{
		expenses:     expenses,
		transactions: transactions,
		sinks:        sinks,
		log:          log,
	}
}

// OnCategoryChanged handles a transaction whose categoryId field changed. It
// re-resolves that single transaction against the current expense set.
func (e *Engine) OnCategoryChanged(ctx context.Context, userID, accountID, transactionID, oldCategoryID, newCategoryID string) error {
	if oldCategoryID == newCategoryID {
		return nil
	}

	sink := e.sinks.NewSink(ctx)
	if err := e.linkOne(ctx, sink, userID, accountID, transactionID, newCategoryID); err != nil {
		return fmt.Errorf("OnCategoryChanged: %w", err)
	}
	if err := sink.Flush(ctx); err != nil {
		return fmt.Errorf("OnCategoryChanged: flushing: %w", err)
	}
	return nil
}

// OnExpenseCreated claims every transaction in the new expense's subtree,
// except transactions already owned by a strictly more specific expense:
// those stay where they are, preserving nearest-ancestor-wins.
func (e *Engine) OnExpenseCreated(ctx context.Context, userID, expenseID, categoryID string) error {
	if categoryID == "" {
		// A range scan cannot be bounded by an empty category. Bad
		// input for this expense only; nothing to converge.
		e.log.Error().
			Str("user_id", userID).
			Str("expense_id", expenseID).
			Msg("Expense created without a category, skipping linkage")
		return nil
	}

	descendants, err := e.expenses.DescendantExpenses(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("OnExpenseCreated: loading descendant expenses: %w", err)
	}
	claimed := make(map[string]struct{}, len(descendants))
	for _, d := range descendants {
		claimed[d.ID] = struct{}{}
	}
	e.log.Debug().
		Str("expense_id", expenseID).
		Int("descendant_expenses", len(descendants)).
		Msg("Descendant expenses excluded from claim")

	sink := e.sinks.NewSink(ctx)
	linked := 0
	err = e.transactions.ForEachDescendantOrSelf(ctx, userID, categoryID, func(t domain.Transaction) error {
		if t.ExpenseID != "" {
			if _, ok := claimed[t.ExpenseID]; ok {
				// Already linked to a closer descendant expense.
				return nil
			}
		}
		sink.SetExpenseID(t.AccountID, t.ID, expenseID)
		linked++
		return nil
	})
	if err != nil {
		return fmt.Errorf("OnExpenseCreated: scanning transactions: %w", err)
	}

	if err := sink.Flush(ctx); err != nil {
		return fmt.Errorf("OnExpenseCreated: flushing: %w", err)
	}

	e.log.Info().
		Str("user_id", userID).
		Str("expense_id", expenseID).
		Str("category_id", categoryID).
		Int("linked", linked).
		Msg("Expense claimed subtree transactions")
	return nil
}

// OnExpenseDeleted re-resolves every transaction that was linked to the
// removed expense against the reduced expense set. A failure resolving one
// transaction is logged and does not abort the others.
func (e *Engine) OnExpenseDeleted(ctx context.Context, userID, expenseID string) error {
	sink := e.sinks.NewSink(ctx)
	err := e.transactions.ForEachLinkedTo(ctx, userID, expenseID, func(t domain.Transaction) error {
		if err := e.linkOne(ctx, sink, userID, t.AccountID, t.ID, t.CategoryID); err != nil {
			e.log.Warn().
				Err(err).
				Str("transaction_id", t.ID).
				Msg("Failed to re-link transaction, leaving stale")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("OnExpenseDeleted: scanning linked transactions: %w", err)
	}

	if err := sink.Flush(ctx); err != nil {
		return fmt.Errorf("OnExpenseDeleted: flushing: %w", err)
	}

	e.log.Info().
		Str("user_id", userID).
		Str("expense_id", expenseID).
		Msg("Re-linked transactions of removed expense")
	return nil
}

// linkOne assigns a single transaction to the expense on the nearest
// ancestor-or-self of categoryID, clearing the link when none exists. An
// empty categoryID always clears: no expense can match an uncategorized
// transaction.
func (e *Engine) linkOne(ctx context.Context, sink MutationSink, userID, accountID, transactionID, categoryID string) error {
	if categoryID == "" {
		sink.SetExpenseID(accountID, transactionID, "")
		return nil
	}

	match, err := e.expenses.NearestAncestorExpense(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("linkOne: %w", err)
	}

	if match == nil {
		e.log.Info().
			Str("transaction_id", transactionID).
			Str("category_id", categoryID).
			Msg("No expense matches category, unlinking")
		sink.SetExpenseID(accountID, transactionID, "")
		return nil
	}

	e.log.Info().
		Str("transaction_id", transactionID).
		Str("category_id", categoryID).
		Str("expense_id", match.ID).
		Str("expense_category_id", match.CategoryID).
		Msg("Linking transaction to expense")
	sink.SetExpenseID(accountID, transactionID, match.ID)
	return nil
}
