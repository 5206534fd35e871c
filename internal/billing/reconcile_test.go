package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileToleranceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		wantIssue bool
	}{
		{"exact", 20.00, false},
		{"at tolerance", 20.01, false},
		{"just over", 20.02, true},
		{"clearly over", 20.03, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := []PageResult{{
				PageNumber: 1,
				PageType:   PageTypeBillDetail,
				BillItems: []BillItem{
					{ItemName: "Tablet", ItemAmount: tt.amount, ItemRate: 10.00, ItemQuantity: 2},
				},
			}}

			result := NewReconciler(0).Reconcile(pages)
			if tt.wantIssue {
				require.Len(t, result.ValidationIssues, 1)
				issue := result.ValidationIssues[0]
				assert.Equal(t, 1, issue.PageNumber)
				assert.Equal(t, 1, issue.ItemIndex)
				assert.Equal(t, "Tablet", issue.ItemName)
				assert.InDelta(t, 20.00, issue.Expected, 0.0001)
				assert.InDelta(t, tt.amount, issue.Actual, 0.0001)
			} else {
				assert.Empty(t, result.ValidationIssues)
			}
		})
	}
}

func TestReconcileFlagsAmountWithoutRateAndQuantity(t *testing.T) {
	pages := []PageResult{{
		PageNumber: 1,
		BillItems: []BillItem{
			{ItemName: "Admission Charge", ItemAmount: 0},
			{ItemName: "Registration Fee", ItemAmount: 100},
		},
	}}

	result := NewReconciler(0).Reconcile(pages)
	require.Len(t, result.ValidationIssues, 1)

	issue := result.ValidationIssues[0]
	assert.Equal(t, 2, issue.ItemIndex)
	assert.Equal(t, "Registration Fee", issue.ItemName)
	assert.InDelta(t, 0.0, issue.Expected, 0.0001)
	assert.InDelta(t, 100.0, issue.Actual, 0.0001)
}

func TestReconcileTotalItemCount(t *testing.T) {
	pages := []PageResult{
		{PageNumber: 1, BillItems: []BillItem{{ItemName: "A"}, {ItemName: "B"}}},
		{PageNumber: 2, BillItems: []BillItem{{ItemName: "C"}, {ItemName: "D"}, {ItemName: "E"}}},
		{PageNumber: 3, BillItems: nil},
	}

	result := NewReconciler(0).Reconcile(pages)
	assert.Equal(t, 5, result.TotalItemCount)
}

func TestReconcileEmptyInput(t *testing.T) {
	result := NewReconciler(0).Reconcile(nil)
	assert.NotNil(t, result.PagewiseLineItems)
	assert.Empty(t, result.PagewiseLineItems)
	assert.Zero(t, result.TotalItemCount)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pagewise_line_items":[]`)
}

func TestFindDuplicatesAcrossPages(t *testing.T) {
	pages := []PageResult{
		{PageNumber: 1, BillItems: []BillItem{
			{ItemName: "CBC Test", ItemAmount: 350},
			{ItemName: "Room Rent", ItemAmount: 1200},
		}},
		{PageNumber: 3, BillItems: []BillItem{
			{ItemName: "CBC Test", ItemAmount: 350},
		}},
	}

	result := NewReconciler(0).Reconcile(pages)
	require.Len(t, result.Duplicates, 1)

	dup := result.Duplicates[0]
	assert.Equal(t, "CBC Test", dup.ItemName)
	assert.InDelta(t, 350.0, dup.ItemAmount, 0.0001)
	assert.Equal(t, 2, dup.Count)
	assert.Equal(t, []int{1, 3}, dup.Pages)
}

func TestFindDuplicatesSameNameDifferentAmount(t *testing.T) {
	pages := []PageResult{
		{PageNumber: 1, BillItems: []BillItem{{ItemName: "X-Ray", ItemAmount: 500}}},
		{PageNumber: 2, BillItems: []BillItem{{ItemName: "X-Ray", ItemAmount: 750}}},
	}

	result := NewReconciler(0).Reconcile(pages)
	assert.Empty(t, result.Duplicates, "same name at a different amount is not a duplicate")
}

func TestFindDuplicatesExactAmountMatch(t *testing.T) {
	pages := []PageResult{
		{PageNumber: 1, BillItems: []BillItem{{ItemName: "Dressing", ItemAmount: 50.001}}},
		{PageNumber: 2, BillItems: []BillItem{{ItemName: "Dressing", ItemAmount: 50.004}}},
	}

	result := NewReconciler(0).Reconcile(pages)
	assert.Empty(t, result.Duplicates, "amounts that differ only below cent precision still differ")
}

func TestPageResultSerializesPageNoAsString(t *testing.T) {
	page := PageResult{PageNumber: 2, PageType: PageTypePharmacy, BillItems: []BillItem{}}

	data, err := json.Marshal(page)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"page_no":"2"`)
	assert.NotContains(t, string(data), "page_number")

	var back PageResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 2, back.PageNumber)
}

func TestGrandTotal(t *testing.T) {
	pages := []PageResult{
		{BillItems: []BillItem{{ItemAmount: 10.5}, {ItemAmount: 20.25}}},
		{BillItems: []BillItem{{ItemAmount: 0.25}}},
	}
	assert.InDelta(t, 31.0, GrandTotal(pages), 0.0001)
}

func TestPageTypeUnmarshalRejectsUnknown(t *testing.T) {
	var pt PageType
	err := json.Unmarshal([]byte(`"Discharge Summary"`), &pt)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`"Pharmacy"`), &pt))
	assert.Equal(t, PageTypePharmacy, pt)
}
