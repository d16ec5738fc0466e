// Package forward delivers normalized records to the downstream consumer.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wagate/pkg/config"
	"wagate/pkg/envelope"
	"wagate/pkg/transcribe"
)

// ErrForwarding marks a delivery failure. Delivery is at-most-once: the
// caller logs and moves on rather than retrying.
var ErrForwarding = errors.New("record forwarding failed")

// Record is the normalized shape every inbound message reduces to before
// leaving the gateway.
type Record struct {
	MessageID  string        `json:"message_id"`
	RemoteID   string        `json:"remote_id"`
	FromMe     bool          `json:"from_me"`
	PushName   string        `json:"push_name,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	ReceivedAt time.Time     `json:"received_at"`
	Kind       envelope.Kind `json:"kind"`

	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
	Emoji   string `json:"emoji,omitempty"`

	Transcription *transcribe.Result     `json:"transcription,omitempty"`
	Assessment    *transcribe.Assessment `json:"assessment,omitempty"`

	// Error carries the stable category when audio processing degraded;
	// the record still ships so the consumer sees the message happened.
	Error string `json:"error,omitempty"`
}

// Sink receives normalized records. Implemented by Webhook; tests
// substitute an in-memory recorder.
type Sink interface {
	Forward(ctx context.Context, record *Record) error
}

// Webhook posts records as JSON to a configured endpoint with optional
// bearer authentication.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhook builds a webhook sink from config.
func NewWebhook(cfg config.ForwardConfig) (*Webhook, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("forward.url is required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultForwardTimeoutSeconds) * time.Second
	}

	return &Webhook{
		url:    url,
		token:  strings.TrimSpace(cfg.Token),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Forward posts one record. Non-2xx responses and transport errors wrap
// ErrForwarding; the body is drained so connections can be reused.
func (w *Webhook) Forward(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrForwarding)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrForwarding, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForwarding, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		request.Header.Set("Authorization", "Bearer "+w.token)
	}

	response, err := w.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForwarding, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4<<10))
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("%w: endpoint returned %s", ErrForwarding, response.Status)
	}

	return nil
}
