// Package billing holds the line-item domain model of an extracted
// hospital bill and the reconciliation rules applied to it.
package billing

import (
	"encoding/json"
	"fmt"
)

// PageType classifies what kind of bill page was extracted.
type PageType string

const (
	PageTypeBillDetail PageType = "Bill Detail"
	PageTypeFinalBill  PageType = "Final Bill"
	PageTypePharmacy   PageType = "Pharmacy"
)

// Valid reports whether t is one of the known page classifications.
func (t PageType) Valid() bool {
	switch t {
	case PageTypeBillDetail, PageTypeFinalBill, PageTypePharmacy:
		return true
	}
	return false
}

// UnmarshalJSON enforces the closed page type set on decode.
func (t *PageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	pt := PageType(s)
	if !pt.Valid() {
		return fmt.Errorf("unknown page type %q", s)
	}
	*t = pt
	return nil
}

// BillItem is a single charged line on a bill page.
type BillItem struct {
	ItemName     string  `json:"item_name"`
	ItemAmount   float64 `json:"item_amount"`
	ItemRate     float64 `json:"item_rate"`
	ItemQuantity float64 `json:"item_quantity"`
}

// PageResult is the extraction outcome of one bill page. The page
// number is 1-based and travels over the wire as a string.
type PageResult struct {
	PageNumber int        `json:"page_no,string"`
	PageType   PageType   `json:"page_type"`
	BillItems  []BillItem `json:"bill_items"`

	// FraudFlags carries advisory tamper heuristics that fired on this
	// page.
	FraudFlags []string `json:"fraud_flags,omitempty"`
}

// ValidationIssue records a line item whose amount disagrees with its
// rate times quantity beyond the tolerance. ItemIndex is the item's
// 1-based position within its page.
type ValidationIssue struct {
	PageNumber int     `json:"page_number"`
	ItemIndex  int     `json:"item_index"`
	ItemName   string  `json:"item_name"`
	Expected   float64 `json:"expected_amount"`
	Actual     float64 `json:"actual_amount"`
	Difference float64 `json:"difference"`
}

// DuplicateRecord notes a (name, amount) pair that appeared on more than
// one occasion across the bill.
type DuplicateRecord struct {
	ItemName   string  `json:"item_name"`
	ItemAmount float64 `json:"item_amount"`
	Pages      []int   `json:"pages"`
	Count      int     `json:"count"`
}

// ExtractionResult aggregates all page results of one document together
// with the reconciliation findings.
type ExtractionResult struct {
	PagewiseLineItems []PageResult      `json:"pagewise_line_items"`
	TotalItemCount    int               `json:"total_item_count"`
	ValidationIssues  []ValidationIssue `json:"validation_issues,omitempty"`
	Duplicates        []DuplicateRecord `json:"duplicates,omitempty"`
}
