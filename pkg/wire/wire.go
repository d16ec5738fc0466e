// Package wire defines the contract the gateway consumes from a messaging
// network: a dialer producing a connection, the event stream that connection
// emits, and the envelope types inbound messages arrive in. Transports (see
// the telegram subpackage) implement this contract; the session manager and
// ingestion pipeline are written against it and never against a concrete
// network client.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// ErrNotConnected is returned by send operations invoked without a live
// connection.
var ErrNotConnected = errors.New("not connected")

// ProtocolVersion is the version triple advertised during the connect
// handshake. Transports that do not negotiate versions ignore it.
type ProtocolVersion [3]uint32

// Credentials is the transport's persisted authentication material. The
// core treats the payload as opaque; only the credential store and the
// transport read its contents.
type Credentials struct {
	Registration json.RawMessage `json:"registration,omitempty"`
	Keys         json.RawMessage `json:"keys,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// DialConfig carries everything a transport needs to establish a session.
type DialConfig struct {
	Version     ProtocolVersion
	Credentials *Credentials
}

// Dialer establishes one connection to the messaging network.
type Dialer interface {
	// Name identifies the transport in logs and config.
	Name() string
	Dial(ctx context.Context, cfg DialConfig) (Conn, error)
}

// Conn is a live connection. It is owned exclusively by the session manager;
// other components may send through it but never close or replace it.
type Conn interface {
	// Events returns the connection's event stream. The channel is closed
	// after a Closed event has been delivered or the connection is torn down.
	Events() <-chan Event

	// Download opens the content stream for a media reference. Chunks must be
	// read in arrival order.
	Download(ctx context.Context, ref *MediaRef) (io.ReadCloser, error)

	SendText(ctx context.Context, to string, text string) error
	SendMedia(ctx context.Context, to string, media OutboundMedia) error
	SendReaction(ctx context.Context, to string, target MessageKey, emoji string) error
	SendReply(ctx context.Context, to string, text string, quotedID string) error
	SendPresence(ctx context.Context, to string, presence Presence) error

	Close(ctx context.Context) error
}

// CloseCode categorizes why a connection ended. Values mirror the status
// codes the consumer network reports on disconnect.
type CloseCode int

const (
	CloseLoggedOut          CloseCode = 401
	CloseTimedOut           CloseCode = 408
	CloseConnectionClosed   CloseCode = 428
	CloseConnectionReplaced CloseCode = 440
	CloseRestartRequired    CloseCode = 515
)

// Event is one notification from a live connection. Concrete types:
// PairingRequired, Opened, CredentialsUpdated, MessageBatch, Closed.
type Event interface {
	isEvent()
}

// PairingRequired reports that the network demands a fresh pairing handshake.
// Code is the payload to surface to the operator (rendered as a QR prompt).
type PairingRequired struct {
	Code string
}

// Opened reports a completed handshake.
type Opened struct {
	SelfID string
}

// CredentialsUpdated carries refreshed key material. The session manager
// must persist the delta before the next reconnect attempt.
type CredentialsUpdated struct {
	Delta Credentials
}

// BatchKind distinguishes live notifications from history appends.
type BatchKind string

const (
	BatchNotify BatchKind = "notify"
	BatchAppend BatchKind = "append"
)

// MessageBatch delivers inbound messages in arrival order.
type MessageBatch struct {
	Kind       BatchKind
	Messages   []*Message
	ReceivedAt time.Time
}

// Closed reports that the connection ended. Err carries transport detail
// when available.
type Closed struct {
	Code CloseCode
	Err  error
}

func (PairingRequired) isEvent()    {}
func (Opened) isEvent()             {}
func (CredentialsUpdated) isEvent() {}
func (MessageBatch) isEvent()       {}
func (Closed) isEvent()             {}

// Presence is an outbound presence signal.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresenceRecording Presence = "recording"
	PresencePaused    Presence = "paused"
)

// MediaKind tags outbound media payloads.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// OutboundMedia describes one media send. Exactly one of Data or URL is set.
type OutboundMedia struct {
	Kind     MediaKind
	Data     []byte
	URL      string
	MimeType string
	FileName string
	Caption  string
	Voice    bool
}
