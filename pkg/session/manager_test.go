package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"wagate/pkg/bus"
	"wagate/pkg/wire"
)

type fakeConn struct {
	events chan wire.Event

	mu     sync.Mutex
	closed bool
}

func newFakeConn(events ...wire.Event) *fakeConn {
	ch := make(chan wire.Event, len(events)+1)
	for _, event := range events {
		ch <- event
	}
	return &fakeConn{events: ch}
}

func (c *fakeConn) Events() <-chan wire.Event { return c.events }

func (c *fakeConn) Download(context.Context, *wire.MediaRef) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) SendText(context.Context, string, string) error  { return nil }
func (c *fakeConn) SendMedia(context.Context, string, wire.OutboundMedia) error {
	return nil
}
func (c *fakeConn) SendReaction(context.Context, string, wire.MessageKey, string) error {
	return nil
}
func (c *fakeConn) SendReply(context.Context, string, string, string) error { return nil }
func (c *fakeConn) SendPresence(context.Context, string, wire.Presence) error {
	return nil
}

func (c *fakeConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type scriptedDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials []wire.DialConfig
}

func (d *scriptedDialer) Name() string { return "fake" }

func (d *scriptedDialer) Dial(_ context.Context, cfg wire.DialConfig) (wire.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, cfg)
	if len(d.conns) == 0 {
		return nil, errors.New("no more scripted connections")
	}

	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func newTestManager(t *testing.T, dialer wire.Dialer) (*Manager, *bus.Bus, *[]time.Duration) {
	t.Helper()

	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore error: %v", err)
	}

	eventBus := bus.New()
	t.Cleanup(eventBus.Close)

	backoff := DefaultBackoff()
	backoff.Rand = func() float64 { return 0.999 }

	manager, err := NewManager(dialer, store, eventBus, backoff, nil)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	var mu sync.Mutex
	delays := []time.Duration{}
	manager.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()

		fired := make(chan time.Time, 1)
		fired <- time.Time{}
		return fired
	}

	return manager, eventBus, &delays
}

func TestLoggedOutIsTerminal(t *testing.T) {
	dialer := &scriptedDialer{conns: []*fakeConn{newFakeConn(
		wire.Opened{SelfID: "self"},
		wire.Closed{Code: wire.CloseLoggedOut},
	)}}
	manager, _, delays := newTestManager(t, dialer)

	err := manager.Run(context.Background())
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("dial count = %d, want 1 (no reconnect after logout)", dialer.dialCount())
	}
	if len(*delays) != 0 {
		t.Fatalf("reconnect timers = %v, want none after logout", *delays)
	}
	if manager.State() != StateLoggedOut {
		t.Fatalf("state = %v, want logged_out", manager.State())
	}
}

func TestTransientCloseReconnectsWithBackoff(t *testing.T) {
	dialer := &scriptedDialer{conns: []*fakeConn{
		newFakeConn(wire.Opened{}, wire.Closed{Code: wire.CloseTimedOut}),
		newFakeConn(wire.Opened{}, wire.Closed{Code: wire.CloseLoggedOut}),
	}}
	manager, eventBus, delays := newTestManager(t, dialer)

	events, stop := eventBus.SubscribeLifecycle(context.Background(), 32)
	defer stop()

	if err := manager.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}

	if dialer.dialCount() != 2 {
		t.Fatalf("dial count = %d, want 2", dialer.dialCount())
	}
	if len(*delays) != 1 {
		t.Fatalf("reconnect timers = %d, want 1", len(*delays))
	}
	delay := (*delays)[0]
	if delay < 500*time.Millisecond || delay >= 750*time.Millisecond {
		t.Fatalf("first reconnect delay = %v, want [500ms, 750ms)", delay)
	}

	sawReconnecting := false
	for done := false; !done; {
		select {
		case event := <-events:
			if event.State == StateReconnecting.String() {
				sawReconnecting = true
				if event.Attempt != 1 {
					t.Fatalf("reconnecting attempt = %d, want 1", event.Attempt)
				}
				if event.CloseCode != int(wire.CloseTimedOut) {
					t.Fatalf("close code = %d, want %d", event.CloseCode, wire.CloseTimedOut)
				}
			}
		default:
			done = true
		}
	}
	if !sawReconnecting {
		t.Fatal("no reconnecting lifecycle event observed")
	}
}

func TestAttemptResetsOnOpen(t *testing.T) {
	dialer := &scriptedDialer{conns: []*fakeConn{
		newFakeConn(wire.Closed{Code: wire.CloseTimedOut}),
		newFakeConn(wire.Closed{Code: wire.CloseTimedOut}),
		newFakeConn(wire.Opened{}, wire.Closed{Code: wire.CloseTimedOut}),
		newFakeConn(wire.Opened{}, wire.Closed{Code: wire.CloseLoggedOut}),
	}}
	manager, _, delays := newTestManager(t, dialer)

	if err := manager.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}

	if len(*delays) != 3 {
		t.Fatalf("reconnect timers = %d, want 3", len(*delays))
	}

	// Two closes without a successful open grow the attempt counter; the
	// third close happens after an open, so its delay drops back to base.
	if (*delays)[1] <= (*delays)[0] {
		t.Fatalf("second delay %v should exceed first %v", (*delays)[1], (*delays)[0])
	}
	if (*delays)[2] >= (*delays)[1] {
		t.Fatalf("delay after successful open = %v, want reset below %v", (*delays)[2], (*delays)[1])
	}
}

func TestCredentialsPersistedBeforeReconnect(t *testing.T) {
	delta := wire.Credentials{Keys: json.RawMessage(`{"noise":"rotated"}`)}
	dialer := &scriptedDialer{conns: []*fakeConn{
		newFakeConn(wire.Opened{}, wire.CredentialsUpdated{Delta: delta}, wire.Closed{Code: wire.CloseTimedOut}),
		newFakeConn(wire.Closed{Code: wire.CloseLoggedOut}),
	}}
	manager, _, _ := newTestManager(t, dialer)

	if err := manager.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if len(dialer.dials) != 2 {
		t.Fatalf("dial count = %d, want 2", len(dialer.dials))
	}

	creds := dialer.dials[1].Credentials
	if creds == nil {
		t.Fatal("second dial got no credentials")
	}
	if string(creds.Keys) != `{"noise":"rotated"}` {
		t.Fatalf("second dial keys = %s, want rotated delta", creds.Keys)
	}
}

func TestPairingSurfacedToDisplay(t *testing.T) {
	dialer := &scriptedDialer{conns: []*fakeConn{newFakeConn(
		wire.PairingRequired{Code: "PAIR-123"},
		wire.Closed{Code: wire.CloseLoggedOut},
	)}}
	manager, _, _ := newTestManager(t, dialer)

	var mu sync.Mutex
	shown := []string{}
	manager.SetPairingDisplay(pairingFunc(func(code string) {
		mu.Lock()
		shown = append(shown, code)
		mu.Unlock()
	}))

	if err := manager.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(shown) != 1 || shown[0] != "PAIR-123" {
		t.Fatalf("pairing codes shown = %v, want [PAIR-123]", shown)
	}
}

func TestBatchesReachBus(t *testing.T) {
	batch := wire.MessageBatch{
		Kind:     wire.BatchNotify,
		Messages: []*wire.Message{{Key: wire.MessageKey{ID: "m1"}}},
	}
	dialer := &scriptedDialer{conns: []*fakeConn{newFakeConn(
		wire.Opened{},
		batch,
		wire.Closed{Code: wire.CloseLoggedOut},
	)}}
	manager, eventBus, _ := newTestManager(t, dialer)

	if err := manager.Run(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run error = %v, want ErrLoggedOut", err)
	}

	got, ok := eventBus.ConsumeBatch(context.Background())
	if !ok {
		t.Fatal("expected a batch on the bus")
	}
	if len(got.Messages) != 1 || got.Messages[0].Key.ID != "m1" {
		t.Fatalf("unexpected batch %+v", got)
	}
}

func TestShutdownCancelsPendingReconnect(t *testing.T) {
	dialer := &scriptedDialer{conns: []*fakeConn{
		newFakeConn(wire.Opened{}, wire.Closed{Code: wire.CloseTimedOut}),
	}}
	manager, _, _ := newTestManager(t, dialer)

	// Timer that never fires: shutdown must win the select.
	manager.after = func(time.Duration) <-chan time.Time {
		return make(chan time.Time)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error = %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	if manager.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", manager.State())
	}
}

func TestSendRequiresOpenConnection(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, _, _ := newTestManager(t, dialer)

	if err := manager.SendText(context.Background(), "chat", "hi"); !errors.Is(err, wire.ErrNotConnected) {
		t.Fatalf("SendText error = %v, want ErrNotConnected", err)
	}
}

type pairingFunc func(string)

func (f pairingFunc) Show(code string) { f(code) }
