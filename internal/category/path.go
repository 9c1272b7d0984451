// Package category implements value operations on the colon-delimited
// hierarchical category identifiers used by expenses and transactions.
// "a:b" is an ancestor of "a:b:c"; segment comparison is exact.
package category

import (
	"strings"
	"unicode/utf8"
)

// Separator joins the segments of a category identifier.
const Separator = ":"

// Ancestors returns categoryID followed by every ancestor, most specific
// first ("a:b:c" -> ["a:b:c", "a:b", "a"]). An empty id yields nil.
func Ancestors(categoryID string) []string {
	if categoryID == "" {
		return nil
	}
	levels := []string{categoryID}
	for {
		i := strings.LastIndex(categoryID, Separator)
		if i < 0 {
			return levels
		}
		categoryID = categoryID[:i]
		levels = append(levels, categoryID)
	}
}

// IsDescendantOrSelf reports whether candidate equals of or sits below it in
// the hierarchy. This predicate is the correctness boundary for every
// descendant query; range scans pre-filter but callers re-check with it.
func IsDescendantOrSelf(candidate, of string) bool {
	return candidate == of || strings.HasPrefix(candidate, of+Separator)
}

// PrefixSuccessor returns the smallest string greater than every string that
// has prefix as a prefix, so "starts with prefix" can run as the half-open
// range [prefix, successor) on a lexicographically ordered index. ok is false
// when no successor exists: an empty prefix, or one made entirely of the
// maximum code point. Callers must fall back to a scan with
// IsDescendantOrSelf in that case.
func PrefixSuccessor(prefix string) (string, bool) {
	for prefix != "" {
		r, size := utf8.DecodeLastRuneInString(prefix)
		prefix = prefix[:len(prefix)-size]
		if r == utf8.MaxRune {
			continue
		}
		next := r + 1
		// Skip the UTF-16 surrogate block, which cannot be encoded.
		if next >= 0xD800 && next <= 0xDFFF {
			next = 0xE000
		}
		return prefix + string(next), true
	}
	return "", false
}
