package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WAGATE_CONFIG", path)
}

func TestLoadConfigDefaults(t *testing.T) {
	writeConfig(t, `{"transport":{"kind":"telegram"}}`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Session.ReconnectBaseMS != DefaultReconnectBaseMS {
		t.Fatalf("reconnect base = %d, want %d", cfg.Session.ReconnectBaseMS, DefaultReconnectBaseMS)
	}
	if cfg.Session.ReconnectCapMS != DefaultReconnectCapMS {
		t.Fatalf("reconnect cap = %d, want %d", cfg.Session.ReconnectCapMS, DefaultReconnectCapMS)
	}
	if cfg.Transcription.Model != DefaultTranscriptionModel {
		t.Fatalf("model = %q, want %q", cfg.Transcription.Model, DefaultTranscriptionModel)
	}
	if cfg.Transcription.MaxBytes != DefaultMaxAudioBytes {
		t.Fatalf("max bytes = %d, want %d", cfg.Transcription.MaxBytes, DefaultMaxAudioBytes)
	}
	if cfg.Transcription.ConfidenceShift != DefaultConfidenceShift {
		t.Fatalf("confidence shift = %v, want %v", cfg.Transcription.ConfidenceShift, DefaultConfidenceShift)
	}
	if cfg.Transcription.Normalize.Binary != "ffmpeg" {
		t.Fatalf("normalize binary = %q, want ffmpeg", cfg.Transcription.Normalize.Binary)
	}
	if cfg.API.RateLimitPerMinute != DefaultRateLimitPerMinute {
		t.Fatalf("rate limit = %d, want %d", cfg.API.RateLimitPerMinute, DefaultRateLimitPerMinute)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	writeConfig(t, `{"transport":{"kind":"telegram","telegram":{"token":"from-file"}},"forward":{"url":"http://file.example"}}`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("FORWARD_WEBHOOK_URL", "http://env.example/hook")
	t.Setenv("WAGATE_API_TOKEN", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Transport.Telegram.Token != "from-env" {
		t.Fatalf("telegram token = %q, want env override", cfg.Transport.Telegram.Token)
	}
	if cfg.Forward.URL != "http://env.example/hook" {
		t.Fatalf("forward url = %q, want env override", cfg.Forward.URL)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("api token = %q, want %q", cfg.API.Token, "secret")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("WAGATE_CONFIG", filepath.Join(t.TempDir(), "absent.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b ,, c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
