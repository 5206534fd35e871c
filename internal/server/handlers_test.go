package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	result *pipeline.Result
	err    error
}

func (f *fakePipeline) Process(_ context.Context, _ []byte) (*pipeline.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) Download(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

func sampleResult() *pipeline.Result {
	pages := []billing.PageResult{
		{PageNumber: 1, PageType: billing.PageTypeBillDetail, BillItems: []billing.BillItem{
			{ItemName: "Room Rent", ItemAmount: 1200, ItemRate: 600, ItemQuantity: 2},
		}},
	}
	return &pipeline.Result{
		Extraction: billing.NewReconciler(0).Reconcile(pages),
		Usage:      extract.Usage{TotalTokens: 300, InputTokens: 200, OutputTokens: 100},
		PageCount:  1,
	}
}

func newTestServer(pl billPipeline, dl downloader) *Server {
	return &Server{
		pipeline:    pl,
		downloader:  dl,
		corsOrigin:  "*",
		maxUploadMB: 50,
		timeoutSec:  30,
	}
}

func postMultipart(t *testing.T, s *Server, field string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "bill.pdf")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ExtractionResponse {
	t.Helper()
	var resp ExtractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestExtractBillUploadSuccess(t *testing.T) {
	s := newTestServer(&fakePipeline{result: sampleResult()}, &fakeDownloader{})

	rec := postMultipart(t, s, "file", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.IsSuccess)
	assert.Nil(t, resp.Error)
	assert.Equal(t, 300, resp.TokenUsage.TotalTokens)
	assert.Equal(t, 200, resp.TokenUsage.InputTokens)
	assert.Equal(t, 100, resp.TokenUsage.OutputTokens)
	require.Len(t, resp.Data.PagewiseLineItems, 1)
	assert.Equal(t, 1, resp.Data.TotalItemCount)
	assert.Contains(t, rec.Body.String(), `"page_no":"1"`)
}

func TestExtractBillByURL(t *testing.T) {
	s := newTestServer(
		&fakePipeline{result: sampleResult()},
		&fakeDownloader{data: []byte("%PDF-1.4 fake")},
	)

	body := bytes.NewBufferString(`{"document": "https://example.com/bill.pdf"}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", body)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.IsSuccess)
	require.Len(t, resp.Data.PagewiseLineItems, 1)
	assert.Equal(t, 1, resp.Data.PagewiseLineItems[0].PageNumber)
}

func TestExtractBillByURLAlias(t *testing.T) {
	s := newTestServer(
		&fakePipeline{result: sampleResult()},
		&fakeDownloader{data: []byte("%PDF-1.4 fake")},
	)

	body := bytes.NewBufferString(`{"document_url": "https://example.com/bill.pdf"}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).IsSuccess)
}

func TestExtractBillDownloadFailure(t *testing.T) {
	s := newTestServer(
		&fakePipeline{result: sampleResult()},
		&fakeDownloader{err: errors.New("connection refused")},
	)

	body := bytes.NewBufferString(`{"document_url": "https://example.com/bill.pdf"}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.IsSuccess)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "download_failed", resp.Error.Type)
	assert.Zero(t, resp.TokenUsage.TotalTokens)
	assert.NotNil(t, resp.Data.PagewiseLineItems)
	assert.Empty(t, resp.Data.PagewiseLineItems)
}

func TestExtractBillMissingURL(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeDownloader{})

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "bad_request", resp.Error.Type)
}

func TestExtractBillUnsupportedFormat(t *testing.T) {
	s := newTestServer(&fakePipeline{
		err: &document.UnsupportedFormatError{Prefix: []byte("PK\x03\x04")},
	}, &fakeDownloader{})

	rec := postMultipart(t, s, "file", []byte("PK\x03\x04zipfile"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, "unsupported_format", resp.Error.Type)
}

func TestExtractBillProcessingFailure(t *testing.T) {
	s := newTestServer(&fakePipeline{err: errors.New("boom")}, &fakeDownloader{})

	rec := postMultipart(t, s, "file", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "processing_failed", resp.Error.Type)
}

func TestExtractBillMissingFileField(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeDownloader{})

	rec := postMultipart(t, s, "wrong_field", []byte("data"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeEnvelope(t, rec).Error.Type)
}

func TestExtractBillRejectsGet(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeDownloader{})

	req := httptest.NewRequest(http.MethodGet, "/extract-bill-data", nil)
	rec := httptest.NewRecorder()
	s.extractBillHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeDownloader{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeDownloader{})

	req := httptest.NewRequest(http.MethodOptions, "/extract-bill-data", nil)
	rec := httptest.NewRecorder()
	s.corsMiddleware(s.extractBillHandler)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(&fakePipeline{result: sampleResult()}, &fakeDownloader{})
	s.limiter = newIPRateLimiter(1, 1)

	handler := s.rateLimitMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/extract-bill-data", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeEnvelope(t, rec).Error.Type)
}
