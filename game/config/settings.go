package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/wricardo/codequest/game/sandbox"
)

// Store kinds for Settings.Store.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreHTTP   = "http"
)

// Settings are the process settings read from the environment.
type Settings struct {
	TickHz     int           `env:"CODEQUEST_TICK_HZ"     envDefault:"30"`
	Autosave   time.Duration `env:"CODEQUEST_AUTOSAVE"    envDefault:"30s"`
	SessionTTL time.Duration `env:"CODEQUEST_SESSION_TTL" envDefault:"2h"`
	Admins     []string      `env:"CODEQUEST_ADMINS"      envSeparator:","`

	Store        string `env:"CODEQUEST_STORE"         envDefault:"file"`
	DataDir      string `env:"CODEQUEST_DATA_DIR"      envDefault:"saves"`
	DBPath       string `env:"CODEQUEST_DB"            envDefault:"codequest.db"`
	BackendURL   string `env:"CODEQUEST_BACKEND_URL"`
	BackendToken string `env:"CODEQUEST_BACKEND_TOKEN"`

	SandboxInstructions int           `env:"CODEQUEST_SANDBOX_INSTRUCTIONS" envDefault:"5000000"`
	SandboxOutput       int           `env:"CODEQUEST_SANDBOX_OUTPUT"       envDefault:"65536"`
	SandboxTimeout      time.Duration `env:"CODEQUEST_SANDBOX_TIMEOUT"      envDefault:"2s"`
	SandboxMemory       int64         `env:"CODEQUEST_SANDBOX_MEMORY"       envDefault:"67108864"`
	// SandboxIsolated runs challenge code in a worker process held to
	// SandboxMemory.
	SandboxIsolated bool `env:"CODEQUEST_SANDBOX_ISOLATED" envDefault:"true"`
}

// LoadSettings parses Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings can be used together.
func (s Settings) Validate() error {
	switch s.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	case StoreHTTP:
		if s.BackendURL == "" {
			return fmt.Errorf("%w: CODEQUEST_STORE=http needs CODEQUEST_BACKEND_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, s.Store)
	}
	if s.TickHz <= 0 {
		return fmt.Errorf("%w: tick rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// SandboxLimits returns the limits for challenge code.
func (s Settings) SandboxLimits() sandbox.Limits {
	limits := sandbox.DefaultLimits()
	if s.SandboxInstructions > 0 {
		limits.MaxInstructions = s.SandboxInstructions
	}
	if s.SandboxOutput > 0 {
		limits.MaxOutputBytes = s.SandboxOutput
	}
	if s.SandboxTimeout > 0 {
		limits.Timeout = s.SandboxTimeout
	}
	if s.SandboxMemory > 0 {
		limits.MaxMemoryBytes = s.SandboxMemory
	}
	return limits
}

// IsAdmin reports whether player is a global admin.
func (s Settings) IsAdmin(player string) bool {
	for _, a := range s.Admins {
		if a == player {
			return true
		}
	}
	return false
}
