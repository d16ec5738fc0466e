package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagate/pkg/config"
	"wagate/pkg/logger"
	"wagate/pkg/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")

	return &config.Config{
		Logging: config.LoggingConfig{Format: "json", Level: "error"},
		Session: config.SessionConfig{CredentialDir: t.TempDir()},
		Transport: config.TransportConfig{
			Kind:     "telegram",
			Telegram: config.TelegramConfig{Token: "12345:test-token"},
		},
		Transcription: config.TranscriptionConfig{
			Model:    "gpt-4o-transcribe",
			Language: "en",
		},
		Forward: config.ForwardConfig{URL: "http://localhost:9/webhook"},
	}
}

func TestNewServiceWiresComponents(t *testing.T) {
	cfg := testConfig(t)

	log, err := logger.New(cfg.Logging)
	require.NoError(t, err)

	service, err := NewService(cfg, log)
	require.NoError(t, err)

	assert.NotNil(t, service.manager)
	assert.NotNil(t, service.dispatcher)
	assert.Nil(t, service.server, "api server only exists when enabled")
}

func TestNewServiceWithAPIEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.API = config.APIConfig{Enabled: true, Port: 0, RateLimitPerMinute: 100}

	log, err := logger.New(cfg.Logging)
	require.NoError(t, err)

	service, err := NewService(cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, service.server)
}

func TestNewServiceValidation(t *testing.T) {
	log, err := logger.New(config.LoggingConfig{Format: "json", Level: "error"})
	require.NoError(t, err)

	_, err = NewService(nil, log)
	assert.Error(t, err)

	cfg := testConfig(t)
	_, err = NewService(cfg, nil)
	assert.Error(t, err)
}

func TestNewServiceRejectsUnknownTransport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.Kind = "carrier-pigeon"

	log, err := logger.New(cfg.Logging)
	require.NoError(t, err)

	_, err = NewService(cfg, log)
	assert.ErrorContains(t, err, "unsupported transport")
}

func TestBackoffFromConfig(t *testing.T) {
	backoff := backoffFromConfig(config.SessionConfig{
		ReconnectBaseMS:   100,
		ReconnectCapMS:    5000,
		ReconnectJitterMS: 50,
	})

	assert.Equal(t, 100*time.Millisecond, backoff.Base)
	assert.Equal(t, 5*time.Second, backoff.Cap)
	assert.Equal(t, 50*time.Millisecond, backoff.Jitter)

	assert.Equal(t, session.DefaultBackoff(), backoffFromConfig(config.SessionConfig{}))
}
