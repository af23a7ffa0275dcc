package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := LoadSettings()
		if err != nil {
			t.Fatalf("Failed to load settings: %v", err)
		}
		if s.TickHz != 30 || s.Autosave != 30*time.Second || s.Store != StoreFile {
			t.Errorf("Unexpected defaults: %+v", s)
		}
		limits := s.SandboxLimits()
		if limits.MaxInstructions != 5_000_000 || limits.Timeout != 2*time.Second || limits.MaxMemoryBytes != 64<<20 {
			t.Errorf("Unexpected sandbox limits: %+v", limits)
		}
		if !s.SandboxIsolated {
			t.Error("Expected challenge code to run in a worker process by default")
		}
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("CODEQUEST_TICK_HZ", "60")
		t.Setenv("CODEQUEST_STORE", "sqlite")
		t.Setenv("CODEQUEST_ADMINS", "ada,grace")
		t.Setenv("CODEQUEST_SANDBOX_TIMEOUT", "500ms")

		s, err := LoadSettings()
		if err != nil {
			t.Fatalf("Failed to load settings: %v", err)
		}
		if s.TickHz != 60 || s.Store != StoreSQLite {
			t.Errorf("Unexpected settings: %+v", s)
		}
		if !s.IsAdmin("grace") || s.IsAdmin("bob") {
			t.Errorf("Unexpected admins: %v", s.Admins)
		}
		if s.SandboxLimits().Timeout != 500*time.Millisecond {
			t.Errorf("Unexpected timeout %v", s.SandboxLimits().Timeout)
		}
	})

	t.Run("http store needs a backend", func(t *testing.T) {
		t.Setenv("CODEQUEST_STORE", "http")
		_, err := LoadSettings()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("CODEQUEST_STORE", "redis")
		_, err := LoadSettings()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}
