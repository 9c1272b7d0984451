package reconcile

import (
	"github.com/dmarchal/banklink/internal/category"
	"github.com/dmarchal/banklink/internal/domain"
)

// NearestAncestor selects, among candidates, the expense whose categoryId is
// the longest prefix-or-equal of categoryID. Store implementations query the
// small ancestor set server-side and delegate the final selection here, so
// index and fakes agree on the semantics. Two expenses on the same category
// are not supposed to exist; if they do, the smallest expense id wins so the
// choice stays deterministic.
func NearestAncestor(candidates []domain.Expense, categoryID string) *domain.Expense {
	var best *domain.Expense
	for i := range candidates {
		c := &candidates[i]
		if !category.IsDescendantOrSelf(categoryID, c.CategoryID) {
			continue
		}
		switch {
		case best == nil:
			best = c
		case len(c.CategoryID) > len(best.CategoryID):
			best = c
		case len(c.CategoryID) == len(best.CategoryID) && c.ID < best.ID:
			best = c
		}
	}
	return best
}
