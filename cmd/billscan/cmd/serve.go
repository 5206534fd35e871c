package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/server"
	"github.com/MeKo-Tech/billscan/internal/version"
	"github.com/spf13/cobra"
)

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for bill extraction",
	Long: `Start an HTTP server exposing the bill extraction pipeline.

Endpoints:
  POST /extract-bill-data - Extract line items from an upload or URL
  GET  /health            - Health check
  GET  /config            - Effective non-secret settings
  GET  /metrics           - Prometheus metrics
  GET  /ws/extract        - WebSocket with page progress streaming

Examples:
  billscan serve
  billscan serve --port 8080
  billscan serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "host to bind (default from config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (default from config)")
	serveCmd.Flags().String("cors-origin", "", "CORS allowed origin")
	serveCmd.Flags().Int64("max-upload-size", 0, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 0, "per-request processing timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()

	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	maxUploadMB := cfg.Server.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadMB, _ = cmd.Flags().GetInt64("max-upload-size")
	}
	timeoutSec := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}

	if cfg.Extractor.APIKey == "" {
		return fmt.Errorf("extractor API key is not configured (set BILLSCAN_EXTRACTOR_API_KEY)")
	}

	extractor := extract.NewClaudeExtractor(extract.Options{
		APIKey:    cfg.Extractor.APIKey,
		Model:     cfg.Extractor.Model,
		Endpoint:  cfg.Extractor.Endpoint,
		MaxTokens: cfg.Extractor.MaxTokens,
		Timeout:   time.Duration(cfg.Extractor.TimeoutSec) * time.Second,
	})

	srv, err := server.NewServer(server.Config{
		Host:           host,
		Port:           port,
		CORSOrigin:     corsOrigin,
		MaxUploadMB:    maxUploadMB,
		TimeoutSec:     timeoutSec,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		PipelineConfig: pipelineConfig(cfg),
		Extractor:      extractor,
		DownloadOptions: document.DownloaderOptions{
			MaxRetries:  cfg.Download.MaxRetries,
			Timeout:     time.Duration(cfg.Download.TimeoutSec) * time.Second,
			BackoffBase: time.Duration(cfg.Download.BackoffBaseSec) * time.Second,
			MaxBytes:    cfg.Download.MaxFileSizeMB * 1024 * 1024,
		},
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "version", version.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(shutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
