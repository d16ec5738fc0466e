package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"wagate/pkg/config"
)

func TestJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "session.manager").Info("State changed", "state", "open", "attempt", int64(2))

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want info", entry.Level)
	}
	if entry.Component != "session.manager" {
		t.Fatalf("component = %q, want session.manager", entry.Component)
	}
	if entry.Message != "State changed" {
		t.Fatalf("message = %q", entry.Message)
	}
	if got := entry.Fields["state"]; got != "open" {
		t.Fatalf("fields.state = %v, want open", got)
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
}

func TestLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if strings.TrimSpace(out.String()) == "" {
		t.Fatal("expected output for error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(envLevel, "debug")
	t.Setenv(envFormat, "text")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv(envLevel)
	_ = os.Unsetenv(envFormat)
}
