// Package session owns the messaging-network connection lifecycle: dialing,
// pairing, credential persistence, and reconnection with jittered backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"wagate/pkg/bus"
	"wagate/pkg/wire"
)

// ErrLoggedOut reports a terminal close: the network invalidated the session
// and re-pairing by an operator is required before anything can resume.
var ErrLoggedOut = errors.New("session logged out, re-pairing required")

const connCloseTimeout = 5 * time.Second

// Manager drives one authenticated session. It is the sole owner of the
// connection handle; other components send through it but never close or
// replace the connection.
type Manager struct {
	dialer  wire.Dialer
	store   *CredentialStore
	backoff Backoff
	bus     *bus.Bus
	pairing PairingDisplay
	version wire.ProtocolVersion
	log     *slog.Logger

	// after is the reconnect timer source; tests inject a manual one.
	after func(time.Duration) <-chan time.Time

	mu      sync.RWMutex
	state   State
	attempt int
	conn    wire.Conn
}

// NewManager validates collaborators and builds a Manager in the
// disconnected state.
func NewManager(dialer wire.Dialer, store *CredentialStore, eventBus *bus.Bus, backoff Backoff, log *slog.Logger) (*Manager, error) {
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if eventBus == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		dialer:  dialer,
		store:   store,
		backoff: backoff,
		bus:     eventBus,
		pairing: NopPairing{},
		log:     log.With("component", "session.manager"),
		after:   func(d time.Duration) <-chan time.Time { return time.After(d) },
	}, nil
}

// SetPairingDisplay overrides where pairing codes are surfaced.
func (m *Manager) SetPairingDisplay(display PairingDisplay) {
	if display != nil {
		m.pairing = display
	}
}

// SetProtocolVersion sets the version triple advertised on connect.
func (m *Manager) SetProtocolVersion(version wire.ProtocolVersion) {
	m.version = version
}

// Run connects and keeps the session alive until the context ends or a
// terminal condition occurs. It returns ErrLoggedOut on a logged-out close,
// nil on context cancellation, and other errors for unrecoverable failures
// (credential store unusable).
func (m *Manager) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if ctx.Err() != nil {
			m.transition(ctx, StateDisconnected, bus.Lifecycle{})
			return nil
		}

		m.transition(ctx, StateConnecting, bus.Lifecycle{Attempt: m.currentAttempt()})

		creds, err := m.store.Load()
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		if creds == nil {
			m.log.Info("No stored credentials, pairing flow will be required")
		}

		conn, err := m.dialer.Dial(ctx, wire.DialConfig{Version: m.version, Credentials: creds})
		if err != nil {
			if ctx.Err() != nil {
				m.transition(ctx, StateDisconnected, bus.Lifecycle{})
				return nil
			}
			// Handshake failure behaves exactly like a close-with-reconnect.
			m.log.Warn("Connection attempt failed", "transport", m.dialer.Name(), "error", err)
			if !m.waitReconnect(ctx, 0, err) {
				m.transition(ctx, StateDisconnected, bus.Lifecycle{})
				return nil
			}
			continue
		}

		m.setConn(conn)
		closed, fatal := m.pump(ctx, conn)
		m.setConn(nil)

		m.transition(ctx, StateClosing, bus.Lifecycle{CloseCode: int(closed.Code)})
		closeCtx, cancel := context.WithTimeout(context.Background(), connCloseTimeout)
		_ = conn.Close(closeCtx)
		cancel()

		if fatal != nil {
			return fatal
		}

		if closed.Code == wire.CloseLoggedOut {
			m.transition(ctx, StateLoggedOut, bus.Lifecycle{CloseCode: int(closed.Code)})
			m.log.Error("Session logged out by the network; operator must re-pair")
			return ErrLoggedOut
		}

		if ctx.Err() != nil {
			m.transition(ctx, StateDisconnected, bus.Lifecycle{})
			return nil
		}

		m.log.Warn("Connection closed, scheduling reconnect", "close_code", int(closed.Code), "error", errorString(closed.Err))
		if !m.waitReconnect(ctx, int(closed.Code), closed.Err) {
			m.transition(ctx, StateDisconnected, bus.Lifecycle{})
			return nil
		}
	}
}

// pump consumes connection events until the stream ends. It returns the
// close information plus a fatal error when one occurred (currently only a
// failed credential save, which would risk reconnecting with stale keys).
func (m *Manager) pump(ctx context.Context, conn wire.Conn) (wire.Closed, error) {
	events := conn.Events()

	for {
		select {
		case <-ctx.Done():
			return wire.Closed{Code: wire.CloseConnectionClosed}, nil
		case event, ok := <-events:
			if !ok {
				// Stream ended without an explicit close; treat as lost.
				return wire.Closed{Code: wire.CloseConnectionClosed}, nil
			}

			switch e := event.(type) {
			case wire.PairingRequired:
				m.transition(ctx, StateAwaitingPairing, bus.Lifecycle{PairingCode: e.Code})
				m.pairing.Show(e.Code)

			case wire.Opened:
				m.mu.Lock()
				m.state = StateOpen
				m.attempt = 0
				m.mu.Unlock()
				m.bus.PublishLifecycle(ctx, bus.Lifecycle{State: StateOpen.String()})
				m.log.Info("Session open", "self_id", e.SelfID, "transport", m.dialer.Name())

			case wire.CredentialsUpdated:
				// Must be durable before a reconnect can read it back.
				if err := m.store.Save(e.Delta); err != nil {
					return wire.Closed{Code: wire.CloseConnectionClosed}, fmt.Errorf("persist credentials: %w", err)
				}
				m.log.Debug("Credentials persisted")

			case wire.MessageBatch:
				m.bus.PublishBatch(ctx, e)

			case wire.Closed:
				return e, nil
			}
		}
	}
}

// waitReconnect publishes the reconnecting transition and blocks for the
// backoff delay. It returns false when the context ended first, which also
// cancels the pending timer.
func (m *Manager) waitReconnect(ctx context.Context, closeCode int, cause error) bool {
	m.mu.Lock()
	attempt := m.attempt
	m.attempt++
	m.mu.Unlock()

	delay := m.backoff.Delay(attempt)

	m.transition(ctx, StateReconnecting, bus.Lifecycle{
		Attempt:   attempt + 1,
		Delay:     delay,
		CloseCode: closeCode,
		Error:     errorString(cause),
	})
	m.log.Info("Reconnecting", "attempt", attempt+1, "delay", delay)

	select {
	case <-ctx.Done():
		return false
	case <-m.after(delay):
		return true
	}
}

func (m *Manager) transition(ctx context.Context, state State, event bus.Lifecycle) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	event.State = state.String()
	m.bus.PublishLifecycle(ctx, event)
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connected reports whether the session is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

func (m *Manager) currentAttempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

func (m *Manager) setConn(conn wire.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) current() (wire.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.conn == nil || m.state != StateOpen {
		return nil, wire.ErrNotConnected
	}

	return m.conn, nil
}

// Download opens the content stream for a media reference on the live
// connection. Implements the extraction pipeline's downloader contract.
func (m *Manager) Download(ctx context.Context, ref *wire.MediaRef) (io.ReadCloser, error) {
	conn, err := m.current()
	if err != nil {
		return nil, err
	}

	return conn.Download(ctx, ref)
}

// SendText sends a plain text message through the live connection.
func (m *Manager) SendText(ctx context.Context, to string, text string) error {
	conn, err := m.current()
	if err != nil {
		return err
	}

	return conn.SendText(ctx, to, text)
}

// SendMedia sends a media message through the live connection.
func (m *Manager) SendMedia(ctx context.Context, to string, media wire.OutboundMedia) error {
	conn, err := m.current()
	if err != nil {
		return err
	}

	return conn.SendMedia(ctx, to, media)
}

// SendReaction reacts to a prior message.
func (m *Manager) SendReaction(ctx context.Context, to string, target wire.MessageKey, emoji string) error {
	conn, err := m.current()
	if err != nil {
		return err
	}

	return conn.SendReaction(ctx, to, target, emoji)
}

// SendReply sends text quoting a prior message.
func (m *Manager) SendReply(ctx context.Context, to string, text string, quotedID string) error {
	conn, err := m.current()
	if err != nil {
		return err
	}

	return conn.SendReply(ctx, to, text, quotedID)
}

// SendPresence signals composing/recording/paused state to a chat.
func (m *Manager) SendPresence(ctx context.Context, to string, presence wire.Presence) error {
	conn, err := m.current()
	if err != nil {
		return err
	}

	return conn.SendPresence(ctx, to, presence)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
