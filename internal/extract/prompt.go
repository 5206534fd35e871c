package extract

import (
	"fmt"
	"strings"
)

// buildPagePrompt composes the instruction block sent with one page of
// OCR text. The model must answer with a single JSON object and nothing
// else.
func buildPagePrompt(pageNumber int, ocrText string) string {
	var b strings.Builder

	b.WriteString("You are an expert at reading Indian hospital bills.\n")
	b.WriteString("Below is the OCR text of one page of a medical bill.\n\n")
	fmt.Fprintf(&b, "Page number: %d\n\n", pageNumber)
	b.WriteString("OCR text:\n---\n")
	b.WriteString(ocrText)
	b.WriteString("\n---\n\n")

	b.WriteString("Extract every charged line item from this page. Follow these rules:\n")
	b.WriteString("1. Copy item names verbatim from the bill, do not paraphrase or translate.\n")
	b.WriteString("2. item_amount is the charged amount for the line. ")
	b.WriteString("Where only rate and quantity are printed, compute item_amount as item_rate * item_quantity.\n")
	b.WriteString("3. Record item_rate and item_quantity when printed, otherwise use 0.\n")
	b.WriteString("4. Exclude subtotal, total, grand total, discount and amount-in-words lines.\n")
	b.WriteString("5. Classify the page as exactly one of: \"Bill Detail\", \"Final Bill\", \"Pharmacy\".\n")
	b.WriteString("6. If the page has no line items, return an empty bill_items array.\n\n")

	b.WriteString("Respond with ONLY a JSON object in this exact shape, no prose, no markdown:\n")
	b.WriteString(`{"page_type": "Bill Detail", "bill_items": [{"item_name": "...", "item_amount": 0.0, "item_rate": 0.0, "item_quantity": 0.0}]}`)
	b.WriteString("\n")

	return b.String()
}
