package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice session service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	TokenServiceURL string
	TokenAPIKey     string

	VoiceWSBaseURL string

	PreviewURL    string
	PreviewFormat string

	DefaultVoiceID      string
	DefaultSystemPrompt string
	DefaultIntroLine    string

	TelemetryMode        string
	TelemetryURL         string
	TelemetryJournalPath string

	SettingsDir string
	DatabaseURL string
	AccountKey  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "aria"),
		AllowAnyOrigin:   false,
		TokenServiceURL:  envOrDefault("TOKEN_SERVICE_URL", "https://api.aria.dev/v1/token"),
		TokenAPIKey:      stringsTrimSpace("TOKEN_API_KEY"),
		VoiceWSBaseURL:   envOrDefault("VOICE_WS_BASE_URL", "wss://api.aria.dev"),
		PreviewURL:       envOrDefault("PREVIEW_URL", "https://api.aria.dev/v1/preview"),
		// WAV previews play directly in browsers without extra wrapping.
		PreviewFormat: envOrDefault("PREVIEW_FORMAT", "wav"),
		// Default voice matches the first entry of the published voice catalog.
		DefaultVoiceID:       envOrDefault("DEFAULT_VOICE_ID", "ito"),
		DefaultSystemPrompt:  envOrDefault("DEFAULT_SYSTEM_PROMPT", ""),
		DefaultIntroLine:     envOrDefault("DEFAULT_INTRO_LINE", "Hello! How are you doing today?"),
		TelemetryMode:        envOrDefault("TELEMETRY_MODE", "off"),
		TelemetryURL:         stringsTrimSpace("TELEMETRY_URL"),
		TelemetryJournalPath: envOrDefault("TELEMETRY_JOURNAL_PATH", "aria-telemetry.db"),
		SettingsDir:          envOrDefault("SETTINGS_DIR", ".aria"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		AccountKey:           envOrDefault("ACCOUNT_KEY", "default"),
		ShutdownTimeout:      15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	switch cfg.TelemetryMode {
	case "", "off", "http", "journal":
	default:
		return Config{}, fmt.Errorf("TELEMETRY_MODE must be off, http or journal")
	}
	if cfg.TelemetryMode == "http" && cfg.TelemetryURL == "" {
		return Config{}, fmt.Errorf("TELEMETRY_URL is required when TELEMETRY_MODE=http")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
