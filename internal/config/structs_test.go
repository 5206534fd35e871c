package config

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

const debugLevel = "debug"

// TestConfigJSONMarshaling tests marshaling Config to JSON.
func TestConfigJSONMarshaling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = debugLevel
	cfg.Verbose = true
	cfg.Server.Port = 9090

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	if len(data) == 0 {
		t.Error("Marshaled JSON is empty")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	if result["log_level"] != debugLevel {
		t.Errorf("Expected log_level '%s', got %v", debugLevel, result["log_level"])
	}
	if result["verbose"] != true {
		t.Errorf("Expected verbose true, got %v", result["verbose"])
	}
}

// TestConfigJSONUnmarshaling tests unmarshaling Config from JSON.
func TestConfigJSONUnmarshaling(t *testing.T) {
	jsonData := `{
		"log_level": "debug",
		"verbose": true,
		"server": {
			"host": "0.0.0.0",
			"port": 9090
		},
		"pipeline": {
			"dpi": 150,
			"white_patch_ratio": 0.2
		}
	}`

	var cfg Config
	err := json.Unmarshal([]byte(jsonData), &cfg)
	if err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log_level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.DPI != 150 {
		t.Errorf("Expected dpi 150, got %d", cfg.Pipeline.DPI)
	}
	if cfg.Pipeline.WhitePatchRatio != 0.2 {
		t.Errorf("Expected white_patch_ratio 0.2, got %f", cfg.Pipeline.WhitePatchRatio)
	}
}

// TestConfigYAMLRoundTrip exercises the yaml tags used by config files.
func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.ContourThreshold = 1500
	cfg.Download.MaxRetries = 5

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}

	var decoded Config
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}

	if decoded.Pipeline.ContourThreshold != 1500 {
		t.Errorf("Expected contour_threshold 1500, got %d", decoded.Pipeline.ContourThreshold)
	}
	if decoded.Download.MaxRetries != 5 {
		t.Errorf("Expected max_retries 5, got %d", decoded.Download.MaxRetries)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "noisy" }},
		{"zero dpi", func(c *Config) { c.Pipeline.DPI = 0 }},
		{"negative tolerance", func(c *Config) { c.Pipeline.AmountTolerance = -0.5 }},
		{"ratio above one", func(c *Config) { c.Pipeline.WhitePatchRatio = 1.5 }},
		{"zero contour threshold", func(c *Config) { c.Pipeline.ContourThreshold = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.MaxWorkers = 0 }},
		{"zero retries", func(c *Config) { c.Download.MaxRetries = 0 }},
		{"empty model", func(c *Config) { c.Extractor.Model = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"zero upload limit", func(c *Config) { c.Server.MaxUploadMB = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() should fail for %s", tt.name)
			}
		})
	}
}
