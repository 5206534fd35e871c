package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/billscan/internal/billing"
)

// ParseError indicates the model answered with something other than the
// required JSON shape.
type ParseError struct {
	PageNumber int
	Raw        string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model output for page %d: %v (raw: %s)",
		e.PageNumber, e.Err, truncate(e.Raw, 500))
}

func (e *ParseError) Unwrap() error { return e.Err }

// pagePayload is the JSON shape the model is instructed to answer with.
type pagePayload struct {
	PageType  billing.PageType   `json:"page_type"`
	BillItems []billing.BillItem `json:"bill_items"`
}

// parsePagePayload decodes the model answer into a page result. Code
// fences around the JSON are tolerated, anything else is a ParseError.
func parsePagePayload(text string, pageNumber int) (billing.PageResult, error) {
	cleaned := stripCodeFences(text)

	var payload pagePayload
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&payload); err != nil {
		return billing.PageResult{}, &ParseError{PageNumber: pageNumber, Raw: text, Err: err}
	}
	if !payload.PageType.Valid() {
		return billing.PageResult{}, &ParseError{
			PageNumber: pageNumber,
			Raw:        text,
			Err:        fmt.Errorf("missing or unknown page_type"),
		}
	}

	items := payload.BillItems
	if items == nil {
		items = []billing.BillItem{}
	}
	return billing.PageResult{
		PageNumber: pageNumber,
		PageType:   payload.PageType,
		BillItems:  items,
	}, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if the
// model added one despite the instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
