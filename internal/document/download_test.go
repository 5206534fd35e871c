package document

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 content"))
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{})
	data, err := d.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 content"), data)
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{MaxRetries: 3, BackoffBase: time.Millisecond})
	data, err := d.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{MaxRetries: 3, BackoffBase: time.Millisecond})
	_, err := d.Download(context.Background(), srv.URL)
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, 3, dlErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadSizeLimitNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{MaxRetries: 3, BackoffBase: time.Millisecond, MaxBytes: 1024})
	_, err := d.Download(context.Background(), srv.URL)
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	// Oversize is a hard failure, no backoff loop
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloadContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(DownloaderOptions{MaxRetries: 3, BackoffBase: time.Hour})
	_, err := d.Download(ctx, srv.URL)
	require.Error(t, err)
}
