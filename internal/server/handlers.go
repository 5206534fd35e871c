package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/rasterize"
	"github.com/MeKo-Tech/billscan/internal/version"
)

// extractRequest is the JSON body of a URL-based extraction request.
// The document field carries the URL; document_url is accepted as an
// alias.
type extractRequest struct {
	Document    string `json:"document"`
	DocumentURL string `json:"document_url"`
}

func (r extractRequest) url() string {
	if r.Document != "" {
		return r.Document
	}
	return r.DocumentURL
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// configHandler exposes the effective non-secret server settings.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"max_upload_mb": s.maxUploadMB,
		"timeout_sec":   s.timeoutSec,
		"cors_origin":   s.corsOrigin,
	})
}

// extractBillHandler runs the extraction pipeline over an uploaded file
// or a document URL and answers with the extraction envelope.
func (s *Server) extractBillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	data, errResp, status := s.readDocument(ctx, w, r)
	if errResp != nil {
		writeJSON(w, status, *errResp)
		return
	}

	start := time.Now()
	result, err := s.pipeline.Process(ctx, data)
	if err != nil {
		extractionsTotal.WithLabelValues("error").Inc()
		resp, status := classifyProcessError(err)
		writeJSON(w, status, resp)
		return
	}

	extractionsTotal.WithLabelValues("success").Inc()
	extractionDuration.Observe(time.Since(start).Seconds())
	lineItemsExtracted.Observe(float64(result.Extraction.TotalItemCount))
	tokensConsumed.Add(float64(result.Usage.TotalTokens))

	writeJSON(w, http.StatusOK, successResponse(result))
}

// readDocument obtains the bill bytes from either the multipart "file"
// field or a JSON document_url body.
func (s *Server) readDocument(ctx context.Context, w http.ResponseWriter, r *http.Request) ([]byte, *ExtractionResponse, int) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			resp := failureResponse("bad_request", "invalid JSON body")
			return nil, &resp, http.StatusBadRequest
		}
		url := req.url()
		if url == "" {
			resp := failureResponse("bad_request", "document URL is required")
			return nil, &resp, http.StatusBadRequest
		}
		data, err := s.downloader.Download(ctx, url)
		if err != nil {
			slog.Warn("document download failed", "url", url, "error", err)
			resp := failureResponse("download_failed", err.Error())
			return nil, &resp, http.StatusBadGateway
		}
		uploadSizeBytes.Observe(float64(len(data)))
		return data, nil, 0
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		resp := failureResponse("bad_request", "failed to parse form data")
		return nil, &resp, http.StatusBadRequest
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		resp := failureResponse("bad_request", "no file provided")
		return nil, &resp, http.StatusBadRequest
	}
	defer func() { _ = file.Close() }()

	if maxBytes > 0 && header.Size > maxBytes {
		resp := failureResponse("file_too_large", "uploaded file exceeds the size limit")
		return nil, &resp, http.StatusRequestEntityTooLarge
	}

	data, err := io.ReadAll(file)
	if err != nil {
		resp := failureResponse("internal_error", "failed to read uploaded file")
		return nil, &resp, http.StatusInternalServerError
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, nil, 0
}

func classifyProcessError(err error) (ExtractionResponse, int) {
	var unsupported *document.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return failureResponse("unsupported_format", err.Error()), http.StatusBadRequest
	}
	var raster *rasterize.RasterizationError
	if errors.As(err, &raster) {
		return failureResponse("rasterization_failed", err.Error()), http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureResponse("timeout", "processing exceeded the configured timeout"), http.StatusGatewayTimeout
	}
	return failureResponse("processing_failed", err.Error()), http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
