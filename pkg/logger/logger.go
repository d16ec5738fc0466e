// Package logger builds the process-wide slog logger. Text output renders
// through charmbracelet/log for operators; JSON output uses a handler that
// emits one flat entry per line for log shippers.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"wagate/pkg/config"
)

const (
	envFormat = "WAGATE_LOG_FORMAT"
	envLevel  = "WAGATE_LOG_LEVEL"

	defaultFormat = "text"
	defaultLevel  = "info"
)

// Entry is the JSON line shape produced by the json format.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New builds a logger from config, honoring WAGATE_LOG_* overrides.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	format := firstNonEmpty(strings.TrimSpace(os.Getenv(envFormat)), cfg.Format, defaultFormat)
	format = strings.ToLower(format)

	level, err := resolveLevel(firstNonEmpty(strings.TrimSpace(os.Getenv(envLevel)), cfg.Level, defaultLevel))
	if err != nil {
		return nil, err
	}

	switch format {
	case "text":
		pretty := charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(level),
			ReportTimestamp: true,
			ReportCaller:    cfg.AddSource,
			Formatter:       charmLog.TextFormatter,
		})
		return slog.New(pretty), nil
	case "json":
		return slog.New(&jsonHandler{level: level, writer: writer, mu: &sync.Mutex{}}), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

func resolveLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

// jsonHandler is a minimal slog.Handler that writes one Entry per record.
// The "component" attribute is promoted to a top-level field.
type jsonHandler struct {
	level  slog.Level
	writer io.Writer
	attrs  []slog.Attr
	mu     *sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	apply := func(attr slog.Attr) {
		attr.Value = attr.Value.Resolve()
		if attr.Equal(slog.Attr{}) {
			return
		}
		if attr.Key == "component" {
			if component, ok := attr.Value.Any().(string); ok {
				entry.Component = component
				return
			}
		}
		fields[attr.Key] = flatten(attr.Value)
	}

	for _, attr := range h.attrs {
		apply(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		apply(attr)
		return true
	})

	if len(fields) > 0 {
		entry.Fields = fields
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(string) slog.Handler {
	// Groups are not used in this codebase; keep attrs flat.
	return h
}

func flatten(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = flatten(item.Value.Resolve())
		}
		return out
	default:
		return value.Any()
	}
}
