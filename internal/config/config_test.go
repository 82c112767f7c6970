package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	if cfg.Imagery.Width != 1024 {
		t.Errorf("expected default width 1024, got %d", cfg.Imagery.Width)
	}
	if cfg.Imagery.Height != 512 {
		t.Errorf("expected default height 512, got %d", cfg.Imagery.Height)
	}
	if cfg.Segmentation.VegetationClass != 8 {
		t.Errorf("expected default vegetation class 8, got %d", cfg.Segmentation.VegetationClass)
	}
	if cfg.Output.Format != "xlsx" {
		t.Errorf("expected default output format xlsx, got %q", cfg.Output.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Imagery.Endpoint = "" }},
		{"width too small", func(c *Config) { c.Imagery.Width = 5 }},
		{"width too large", func(c *Config) { c.Imagery.Width = 5000 }},
		{"height too large", func(c *Config) { c.Imagery.Height = 1024 }},
		{"fov too small", func(c *Config) { c.Imagery.FOV = 5 }},
		{"pitch out of range", func(c *Config) { c.Imagery.Pitch = 91 }},
		{"negative retries", func(c *Config) { c.Imagery.MaxRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Imagery.Concurrency = 0 }},
		{"empty server url", func(c *Config) { c.Segmentation.ServerURL = "" }},
		{"bad device", func(c *Config) { c.Segmentation.Device = "tpu" }},
		{"dim factor above one", func(c *Config) { c.Vegetation.DimFactor = 1.5 }},
		{"alpha below zero", func(c *Config) { c.Vegetation.OverlayAlpha = -0.1 }},
		{"unknown format", func(c *Config) { c.Output.Format = "pdf" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadAppliesDefaultsForUnsetKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
imagery:
  access_key: test-key
  width: 512
segmentation:
  server_url: http://inference:9000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Imagery.AccessKey != "test-key" {
		t.Errorf("expected access key from file, got %q", cfg.Imagery.AccessKey)
	}
	if cfg.Imagery.Width != 512 {
		t.Errorf("expected width 512 from file, got %d", cfg.Imagery.Width)
	}
	if cfg.Imagery.Height != 512 {
		t.Errorf("expected default height 512, got %d", cfg.Imagery.Height)
	}
	if cfg.Segmentation.ServerURL != "http://inference:9000" {
		t.Errorf("expected server url from file, got %q", cfg.Segmentation.ServerURL)
	}
	if cfg.Imagery.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Imagery.Timeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
