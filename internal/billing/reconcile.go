package billing

import (
	"math"
	"sort"
)

// DefaultAmountTolerance is the inclusive absolute difference allowed
// between item_amount and item_rate * item_quantity before a validation
// issue is raised.
const DefaultAmountTolerance = 0.01

// Reconciler validates line-item arithmetic and finds repeated charges
// across pages. All findings are advisory.
type Reconciler struct {
	AmountTolerance float64
}

// NewReconciler returns a reconciler with the given tolerance. A
// tolerance of zero or less falls back to DefaultAmountTolerance.
func NewReconciler(tolerance float64) *Reconciler {
	if tolerance <= 0 {
		tolerance = DefaultAmountTolerance
	}
	return &Reconciler{AmountTolerance: tolerance}
}

// Reconcile assembles the final extraction result from per-page results:
// it counts items, checks amount arithmetic and collects duplicate
// charges. Pages must already be in document order.
func (r *Reconciler) Reconcile(pages []PageResult) *ExtractionResult {
	result := &ExtractionResult{PagewiseLineItems: pages}
	if pages == nil {
		result.PagewiseLineItems = []PageResult{}
	}

	for _, page := range result.PagewiseLineItems {
		result.TotalItemCount += len(page.BillItems)
		result.ValidationIssues = append(result.ValidationIssues, r.validatePage(page)...)
	}
	result.Duplicates = findDuplicates(result.PagewiseLineItems)
	return result
}

// validatePage flags items whose amount differs from rate * quantity by
// more than the tolerance. Every item is checked; an item with no rate
// or quantity recorded but a nonzero amount is an issue against an
// expected amount of zero.
func (r *Reconciler) validatePage(page PageResult) []ValidationIssue {
	var issues []ValidationIssue
	for i, item := range page.BillItems {
		expected := item.ItemRate * item.ItemQuantity
		diff := math.Abs(expected - item.ItemAmount)
		if diff > r.AmountTolerance {
			issues = append(issues, ValidationIssue{
				PageNumber: page.PageNumber,
				ItemIndex:  i + 1,
				ItemName:   item.ItemName,
				Expected:   expected,
				Actual:     item.ItemAmount,
				Difference: diff,
			})
		}
	}
	return issues
}

// GrandTotal sums all item amounts across pages.
func GrandTotal(pages []PageResult) float64 {
	var total float64
	for _, page := range pages {
		for _, item := range page.BillItems {
			total += item.ItemAmount
		}
	}
	return total
}

type duplicateKey struct {
	name   string
	amount float64
}

// findDuplicates groups items by exact (name, amount) and reports every
// group seen more than once, ordered by first appearance. Amounts match
// on the raw value, no rounding.
func findDuplicates(pages []PageResult) []DuplicateRecord {
	seen := make(map[duplicateKey]*DuplicateRecord)
	var order []duplicateKey

	for _, page := range pages {
		for _, item := range page.BillItems {
			key := duplicateKey{name: item.ItemName, amount: item.ItemAmount}
			rec, ok := seen[key]
			if !ok {
				rec = &DuplicateRecord{ItemName: item.ItemName, ItemAmount: item.ItemAmount}
				seen[key] = rec
				order = append(order, key)
			}
			rec.Count++
			rec.Pages = appendPage(rec.Pages, page.PageNumber)
		}
	}

	var dups []DuplicateRecord
	for _, key := range order {
		if rec := seen[key]; rec.Count > 1 {
			sort.Ints(rec.Pages)
			dups = append(dups, *rec)
		}
	}
	return dups
}

func appendPage(pages []int, page int) []int {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	return append(pages, page)
}
