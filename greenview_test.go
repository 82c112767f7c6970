package greenview

import (
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestNewRequiresAccessKey(t *testing.T) {
	// The access key is a session-wide precondition: pipeline construction
	// fails before any work can start.
	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Error("expected error for missing access key")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Imagery.AccessKey = "test-ak"
	cfg.Imagery.Width = 1

	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for invalid width")
	}
}

func TestNewWithValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Imagery.AccessKey = "test-ak"

	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected pipeline")
	}
}
