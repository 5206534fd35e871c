package config

import (
	"fmt"
	"strings"
)

// Config represents the complete configuration for the billscan application.
// It covers all commands (extract, batch, serve) and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Download configuration
	Download DownloadConfig `mapstructure:"download" yaml:"download" json:"download"`

	// External extraction engine configuration
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor" json:"extractor"`

	// OCR engine configuration
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// PipelineConfig contains bill processing pipeline settings.
type PipelineConfig struct {
	// Rasterization resolution for PDF pages
	DPI int `mapstructure:"dpi" yaml:"dpi" json:"dpi"`

	// Arithmetic tolerance for item amount validation
	AmountTolerance float64 `mapstructure:"amount_tolerance" yaml:"amount_tolerance" json:"amount_tolerance"`

	// Fraud heuristic thresholds
	WhitePatchRatio  float64 `mapstructure:"white_patch_ratio" yaml:"white_patch_ratio" json:"white_patch_ratio"`
	ContourThreshold int     `mapstructure:"contour_threshold" yaml:"contour_threshold" json:"contour_threshold"`

	// Parallel page processing
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// DownloadConfig contains document download settings.
type DownloadConfig struct {
	MaxRetries     int   `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	TimeoutSec     int   `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxFileSizeMB  int64 `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb" json:"max_file_size_mb"`
	BackoffBaseSec int   `mapstructure:"backoff_base_sec" yaml:"backoff_base_sec" json:"backoff_base_sec"`
}

// ExtractorConfig contains language-extraction engine settings.
type ExtractorConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// OCRConfig contains text-recognition engine settings.
type OCRConfig struct {
	Languages []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	PSM       int      `mapstructure:"psm" yaml:"psm" json:"psm"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string  `mapstructure:"host" yaml:"host" json:"host"`
	Port            int     `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string  `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int64   `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultConfig returns the default configuration for billscan.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Pipeline: PipelineConfig{
			DPI:              300,
			AmountTolerance:  0.01,
			WhitePatchRatio:  0.15,
			ContourThreshold: 1000,
			MaxWorkers:       4,
		},
		Download: DownloadConfig{
			MaxRetries:     3,
			TimeoutSec:     30,
			MaxFileSizeMB:  50,
			BackoffBaseSec: 1,
		},
		Extractor: ExtractorConfig{
			Model:      "claude-sonnet-4-20250514",
			Endpoint:   "https://api.anthropic.com/v1/messages",
			MaxTokens:  4096,
			TimeoutSec: 120,
		},
		OCR: OCRConfig{
			Languages: []string{"eng"},
			PSM:       6,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
			RateLimitRPS:    5,
			RateLimitBurst:  10,
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: true,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Pipeline.DPI <= 0 {
		return fmt.Errorf("invalid dpi: %d (must be positive)", c.Pipeline.DPI)
	}
	if c.Pipeline.AmountTolerance < 0 {
		return fmt.Errorf("invalid amount tolerance: %f (must be non-negative)", c.Pipeline.AmountTolerance)
	}
	if err := validateRatio(c.Pipeline.WhitePatchRatio, "pipeline.white_patch_ratio"); err != nil {
		return err
	}
	if c.Pipeline.ContourThreshold <= 0 {
		return fmt.Errorf("invalid contour threshold: %d (must be positive)", c.Pipeline.ContourThreshold)
	}
	if c.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("invalid pipeline max workers: %d (must be positive)", c.Pipeline.MaxWorkers)
	}

	if c.Download.MaxRetries <= 0 {
		return fmt.Errorf("invalid max retries: %d (must be positive)", c.Download.MaxRetries)
	}
	if c.Download.TimeoutSec <= 0 {
		return fmt.Errorf("invalid download timeout: %d (must be positive)", c.Download.TimeoutSec)
	}
	if c.Download.MaxFileSizeMB <= 0 {
		return fmt.Errorf("invalid max file size: %d (must be positive)", c.Download.MaxFileSizeMB)
	}

	if c.Extractor.Model == "" {
		return fmt.Errorf("extractor model must not be empty")
	}
	if c.Extractor.MaxTokens <= 0 {
		return fmt.Errorf("invalid extractor max tokens: %d (must be positive)", c.Extractor.MaxTokens)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid server timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	return nil
}

// validateRatio checks that a value lies in [0.0, 1.0].
func validateRatio(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
