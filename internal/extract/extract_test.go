package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modelServer fakes the Anthropic Messages API, answering every request
// with the given text content.
func modelServer(t *testing.T, text string, inputTokens, outputTokens int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		resp := map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": text}},
			"stop_reason": "end_turn",
			"usage": map[string]int{
				"input_tokens":  inputTokens,
				"output_tokens": outputTokens,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestExtractor(endpoint string) *ClaudeExtractor {
	return NewClaudeExtractor(Options{APIKey: "test-key", Endpoint: endpoint})
}

func TestExtractPageSuccess(t *testing.T) {
	answer := `{"page_type": "Pharmacy", "bill_items": [
		{"item_name": "Paracetamol 500mg", "item_amount": 20.00, "item_rate": 10.00, "item_quantity": 2}
	]}`
	srv := modelServer(t, answer, 200, 100)
	defer srv.Close()

	page, usage, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{
		PageNumber: 2,
		Text:       "Paracetamol 500mg 10.00 x 2 20.00",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, page.PageNumber)
	assert.Equal(t, billing.PageTypePharmacy, page.PageType)
	require.Len(t, page.BillItems, 1)
	assert.Equal(t, "Paracetamol 500mg", page.BillItems[0].ItemName)
	assert.InDelta(t, 20.00, page.BillItems[0].ItemAmount, 0.0001)

	assert.Equal(t, Usage{TotalTokens: 300, InputTokens: 200, OutputTokens: 100}, usage)
}

func TestExtractPageToleratesCodeFences(t *testing.T) {
	answer := "```json\n{\"page_type\": \"Bill Detail\", \"bill_items\": []}\n```"
	srv := modelServer(t, answer, 50, 20)
	defer srv.Close()

	page, _, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, billing.PageTypeBillDetail, page.PageType)
	assert.Empty(t, page.BillItems)
	assert.NotNil(t, page.BillItems)
}

func TestExtractPageRejectsProse(t *testing.T) {
	srv := modelServer(t, "I could not find any line items on this page.", 10, 5)
	defer srv.Close()

	_, usage, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{PageNumber: 4})
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.PageNumber)
	assert.Equal(t, 15, usage.TotalTokens, "tokens are still spent on a bad answer")
}

func TestExtractPageRejectsUnknownPageType(t *testing.T) {
	srv := modelServer(t, `{"page_type": "Discharge Summary", "bill_items": []}`, 10, 5)
	defer srv.Close()

	_, _, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{PageNumber: 1})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestExtractPageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"type": "overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{PageNumber: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestExtractPageTruncatedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": `{"page_type"`}},
			"stop_reason": "max_tokens",
			"usage":       map[string]int{"input_tokens": 100, "output_tokens": 4096},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	_, _, err := newTestExtractor(srv.URL).ExtractPage(context.Background(), PageInput{PageNumber: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestUsageAdd(t *testing.T) {
	var total Usage
	total.Add(Usage{TotalTokens: 300, InputTokens: 200, OutputTokens: 100})
	total.Add(Usage{TotalTokens: 30, InputTokens: 20, OutputTokens: 10})

	assert.Equal(t, Usage{TotalTokens: 330, InputTokens: 220, OutputTokens: 110}, total)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  ```json\n{}\n```  ", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}

func TestBuildPagePromptMentionsRules(t *testing.T) {
	p := buildPagePrompt(3, "ROOM RENT 1200.00")
	assert.Contains(t, p, "Page number: 3")
	assert.Contains(t, p, "ROOM RENT 1200.00")
	assert.Contains(t, p, "verbatim")
	assert.Contains(t, p, `"Pharmacy"`)
	assert.Contains(t, p, "ONLY a JSON object")
}
