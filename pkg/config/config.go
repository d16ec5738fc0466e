package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envForwardURL        = "FORWARD_WEBHOOK_URL"
	envForwardToken      = "FORWARD_WEBHOOK_TOKEN"
	envAPIToken          = "WAGATE_API_TOKEN"
	envDatabaseDSN       = "DATABASE_DSN"
)

// Defaults applied by LoadConfig when the config file leaves them unset.
const (
	DefaultReconnectBaseMS   = 500
	DefaultReconnectCapMS    = 30000
	DefaultReconnectJitterMS = 250

	DefaultTranscriptionModel = "gpt-4o-transcribe"
	DefaultAssessmentModel    = "gpt-4o-mini"
	DefaultLanguage           = "en"
	DefaultMaxAudioBytes      = 25 << 20

	// Calibration constants of the logistic confidence mapping. These are
	// empirical; tune per deployment rather than treating them as fixed.
	DefaultConfidenceShift = 1.2
	DefaultConfidenceScale = 2.2

	DefaultRequestTimeoutSeconds = 120
	DefaultForwardTimeoutSeconds = 30
	DefaultRateLimitPerMinute    = 120
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Logging       LoggingConfig       `json:"logging,omitempty"`
	Session       SessionConfig       `json:"session"`
	Transport     TransportConfig     `json:"transport"`
	Transcription TranscriptionConfig `json:"transcription"`
	OpenAI        OpenAIConfig        `json:"openai"`
	Forward       ForwardConfig       `json:"forward"`
	Ingest        IngestConfig        `json:"ingest,omitempty"`
	API           APIConfig           `json:"api"`
	Database      DatabaseConfig      `json:"database,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// SessionConfig configures credential persistence and reconnection.
type SessionConfig struct {
	CredentialDir     string `json:"credential_dir"`
	ReconnectBaseMS   int    `json:"reconnect_base_ms,omitempty"`
	ReconnectCapMS    int    `json:"reconnect_cap_ms,omitempty"`
	ReconnectJitterMS int    `json:"reconnect_jitter_ms,omitempty"`
}

// TransportConfig selects and configures the messaging-network transport.
type TransportConfig struct {
	Kind     string         `json:"kind"`
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// TranscriptionConfig configures the audio transcription pipeline.
type TranscriptionConfig struct {
	Model           string          `json:"model,omitempty"`
	AssessmentModel string          `json:"assessment_model,omitempty"`
	Language        string          `json:"language,omitempty"`
	MaxBytes        int64           `json:"max_bytes,omitempty"`
	Assess          bool            `json:"assess,omitempty"`
	TargetPhrase    string          `json:"target_phrase,omitempty"`
	ConfidenceShift float64         `json:"confidence_shift,omitempty"`
	ConfidenceScale float64         `json:"confidence_scale,omitempty"`
	Normalize       NormalizeConfig `json:"normalize,omitempty"`
}

// NormalizeConfig configures the ffmpeg pre-processing step.
//
// FatalOnError keeps the historical behavior of failing the message when
// normalization fails; the default retries transcription on the raw buffer.
type NormalizeConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	Binary       string `json:"binary,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	FatalOnError bool   `json:"fatal_on_error,omitempty"`
}

// OpenAIConfig configures the OpenAI client shared by transcription and assessment.
type OpenAIConfig struct {
	APIKeyEnv             string `json:"api_key_env,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	Organization          string `json:"organization,omitempty"`
	Project               string `json:"project,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// ForwardConfig configures the downstream webhook sink.
type ForwardConfig struct {
	URL            string `json:"url"`
	Token          string `json:"token,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// IngestConfig configures per-message dispatch policy.
//
// ProcessSelf opts in to handling self-originated messages; the default
// skips them to avoid feedback loops.
type IngestConfig struct {
	ProcessSelf bool `json:"process_self,omitempty"`
}

// APIConfig configures the control HTTP API.
type APIConfig struct {
	Enabled            bool     `json:"enabled"`
	Host               string   `json:"host,omitempty"`
	Port               int      `json:"port"`
	Token              string   `json:"token,omitempty"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute,omitempty"`
	AllowOrigins       []string `json:"allow_origins,omitempty"`
	MediaRoot          string   `json:"media_root,omitempty"`
}

// DatabaseConfig configures the challenge-content store.
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, loads .env, and applies
// environment overrides plus defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Transport.Telegram.Token = token
	}
	if allow := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); allow != "" {
		cfg.Transport.Telegram.AllowFrom = parseCSV(allow)
	}
	if url := strings.TrimSpace(os.Getenv(envForwardURL)); url != "" {
		cfg.Forward.URL = url
	}
	if token := strings.TrimSpace(os.Getenv(envForwardToken)); token != "" {
		cfg.Forward.Token = token
	}
	if token := strings.TrimSpace(os.Getenv(envAPIToken)); token != "" {
		cfg.API.Token = token
	}
	if dsn := strings.TrimSpace(os.Getenv(envDatabaseDSN)); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// applyDefaults fills unset values the rest of the system depends on.
func applyDefaults(cfg *Config) {
	if cfg.Session.CredentialDir == "" {
		cfg.Session.CredentialDir = "./auth-state"
	}
	if cfg.Session.ReconnectBaseMS <= 0 {
		cfg.Session.ReconnectBaseMS = DefaultReconnectBaseMS
	}
	if cfg.Session.ReconnectCapMS <= 0 {
		cfg.Session.ReconnectCapMS = DefaultReconnectCapMS
	}
	if cfg.Session.ReconnectJitterMS <= 0 {
		cfg.Session.ReconnectJitterMS = DefaultReconnectJitterMS
	}

	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = DefaultTranscriptionModel
	}
	if cfg.Transcription.AssessmentModel == "" {
		cfg.Transcription.AssessmentModel = DefaultAssessmentModel
	}
	if cfg.Transcription.Language == "" {
		cfg.Transcription.Language = DefaultLanguage
	}
	if cfg.Transcription.MaxBytes <= 0 {
		cfg.Transcription.MaxBytes = DefaultMaxAudioBytes
	}
	if cfg.Transcription.ConfidenceShift == 0 {
		cfg.Transcription.ConfidenceShift = DefaultConfidenceShift
	}
	if cfg.Transcription.ConfidenceScale == 0 {
		cfg.Transcription.ConfidenceScale = DefaultConfidenceScale
	}
	if cfg.Transcription.Normalize.Binary == "" {
		cfg.Transcription.Normalize.Binary = "ffmpeg"
	}
	if cfg.Transcription.Normalize.SampleRate <= 0 {
		cfg.Transcription.Normalize.SampleRate = 16000
	}

	if cfg.OpenAI.RequestTimeoutSeconds <= 0 {
		cfg.OpenAI.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.Forward.TimeoutSeconds <= 0 {
		cfg.Forward.TimeoutSeconds = DefaultForwardTimeoutSeconds
	}
	if cfg.API.RateLimitPerMinute <= 0 {
		cfg.API.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is WAGATE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("WAGATE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("WAGATE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
