package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DownloadError indicates the document could not be fetched after all
// retry attempts were exhausted.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Downloader fetches documents over HTTP with bounded retry and
// exponential backoff. The downloader is the only component in the
// pipeline with built-in resilience; all later stages run to completion
// or fail outright.
type Downloader struct {
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
	maxBytes    int64
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
	MaxBytes    int64
}

// NewDownloader creates a downloader with the given options. Zero values
// fall back to 3 attempts, 30s per-attempt timeout, 1s backoff base and
// a 50 MB size ceiling.
func NewDownloader(opts DownloaderOptions) *Downloader {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 * 1024 * 1024
	}
	return &Downloader{
		client:      &http.Client{Timeout: opts.Timeout},
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		maxBytes:    opts.MaxBytes,
	}
}

// Download fetches the document at url. Failed attempts are retried with
// delays doubling from the backoff base. An oversized response fails
// immediately without retry.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range d.maxRetries {
		if attempt > 0 {
			delay := d.backoffBase << (attempt - 1)
			slog.Warn("Download attempt failed, retrying",
				"url", url, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &DownloadError{URL: url, Attempts: attempt, Err: ctx.Err()}
			}
		}

		data, err := d.fetch(ctx, url)
		if err == nil {
			slog.Info("Downloaded document", "url", url, "bytes", len(data))
			return data, nil
		}
		var tooLarge *sizeLimitError
		if errors.As(err, &tooLarge) {
			return nil, &DownloadError{URL: url, Attempts: attempt + 1, Err: err}
		}
		lastErr = err
	}
	return nil, &DownloadError{URL: url, Attempts: d.maxRetries, Err: lastErr}
}

type sizeLimitError struct {
	limit int64
}

func (e *sizeLimitError) Error() string {
	return fmt.Sprintf("document exceeds size limit of %d bytes", e.limit)
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, &sizeLimitError{limit: d.maxBytes}
	}

	// Read one byte past the limit to distinguish at-limit from over-limit
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, &sizeLimitError{limit: d.maxBytes}
	}
	return data, nil
}
