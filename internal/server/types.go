// Package server exposes the bill extraction pipeline over HTTP and
// WebSocket.
package server

import (
	"context"
	"net/http"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// billPipeline is the processing contract the handlers depend on.
type billPipeline interface {
	Process(ctx context.Context, data []byte) (*pipeline.Result, error)
}

// downloader fetches a bill document from a URL.
type downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Server handles bill extraction requests.
type Server struct {
	pipeline    billPipeline
	downloader  downloader
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	limiter     *ipRateLimiter
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	RateLimitRPS    float64
	RateLimitBurst  int
	PipelineConfig  pipeline.Config
	Extractor       extract.Extractor
	DownloadOptions document.DownloaderOptions
}

// NewServer creates a new bill extraction server instance.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilder().
		WithConfig(config.PipelineConfig).
		WithExtractor(config.Extractor).
		Build()
	if err != nil {
		return nil, err
	}

	s := &Server{
		pipeline:    pl,
		downloader:  document.NewDownloader(config.DownloadOptions),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
	}
	if config.RateLimitRPS > 0 {
		s.limiter = newIPRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/config", s.corsMiddleware(s.configHandler))
	mux.HandleFunc("/extract-bill-data", s.corsMiddleware(s.rateLimitMiddleware(s.extractBillHandler)))
	mux.HandleFunc("/ws/extract", s.extractWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// TokenUsagePayload mirrors the token accounting of the model calls.
type TokenUsagePayload struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ExtractionData is the data section of the response envelope.
type ExtractionData struct {
	PagewiseLineItems []billing.PageResult      `json:"pagewise_line_items"`
	TotalItemCount    int                       `json:"total_item_count"`
	ValidationIssues  []billing.ValidationIssue `json:"validation_issues,omitempty"`
	Duplicates        []billing.DuplicateRecord `json:"duplicates,omitempty"`
}

// ErrorPayload describes a failed extraction.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExtractionResponse is the envelope returned by /extract-bill-data for
// both success and failure.
type ExtractionResponse struct {
	IsSuccess  bool              `json:"is_success"`
	Error      *ErrorPayload     `json:"error,omitempty"`
	TokenUsage TokenUsagePayload `json:"token_usage"`
	Data       ExtractionData    `json:"data"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

func successResponse(res *pipeline.Result) ExtractionResponse {
	return ExtractionResponse{
		IsSuccess: true,
		TokenUsage: TokenUsagePayload{
			TotalTokens:  res.Usage.TotalTokens,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		},
		Data: ExtractionData{
			PagewiseLineItems: res.Extraction.PagewiseLineItems,
			TotalItemCount:    res.Extraction.TotalItemCount,
			ValidationIssues:  res.Extraction.ValidationIssues,
			Duplicates:        res.Extraction.Duplicates,
		},
	}
}

func failureResponse(errType, message string) ExtractionResponse {
	return ExtractionResponse{
		IsSuccess: false,
		Error:     &ErrorPayload{Type: errType, Message: message},
		Data: ExtractionData{
			PagewiseLineItems: []billing.PageResult{},
			TotalItemCount:    0,
		},
	}
}
