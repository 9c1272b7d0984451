package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/dmarchal/banklink/internal/category"
	"github.com/dmarchal/banklink/internal/domain"
	"github.com/dmarchal/banklink/internal/reconcile"
)

type expenseDoc struct {
	ID         string `firestore:"id"`
	UserID     string `firestore:"userId"`
	Name       string `firestore:"name"`
	CategoryID string `firestore:"categoryId"`
}

func (d expenseDoc) toDomain() domain.Expense {
	return domain.Expense{
		ID:         d.ID,
		UserID:     d.UserID,
		Name:       d.Name,
		CategoryID: d.CategoryID,
	}
}

// NearestAncestorExpense implements reconcile.ExpenseIndex. The ancestor set
// is bounded by category depth, so one membership query per user suffices;
// picking the longest match happens client-side.
func (s *Store) NearestAncestorExpense(ctx context.Context, userID, categoryID string) (*domain.Expense, error) {
	levels := category.Ancestors(categoryID)
	if len(levels) == 0 {
		return nil, nil
	}

	iter := s.client.Collection(collExpenses).
		Where(fieldUserID, "==", userID).
		Where(fieldCategoryID, "in", levels).
		Documents(ctx)
	candidates, err := collectExpenses(iter)
	if err != nil {
		return nil, fmt.Errorf("NearestAncestorExpense: %w", err)
	}

	return reconcile.NearestAncestor(candidates, categoryID), nil
}

// DescendantExpenses implements reconcile.ExpenseIndex: every expense
// strictly below categoryID, excluding categoryID itself.
func (s *Store) DescendantExpenses(ctx context.Context, userID, categoryID string) ([]domain.Expense, error) {
	q := s.client.Collection(collExpenses).Where(fieldUserID, "==", userID)

	prefix := categoryID + category.Separator
	if successor, ok := category.PrefixSuccessor(prefix); ok {
		q = q.Where(fieldCategoryID, ">=", prefix).Where(fieldCategoryID, "<", successor)
	}
	// No range bound at the code-point edge: scan the user's expenses and
	// rely on the filter below.

	all, err := collectExpenses(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("DescendantExpenses: %w", err)
	}

	out := all[:0]
	for _, e := range all {
		if e.CategoryID != categoryID && category.IsDescendantOrSelf(e.CategoryID, categoryID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func collectExpenses(iter *firestore.DocumentIterator) ([]domain.Expense, error) {
	defer iter.Stop()
	var out []domain.Expense
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var row expenseDoc
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("decoding expense %s: %w", doc.Ref.ID, err)
		}
		if row.ID == "" {
			row.ID = doc.Ref.ID
		}
		out = append(out, row.toDomain())
	}
}
