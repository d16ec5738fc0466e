package bus

import (
	"context"
	"testing"
	"time"

	"wagate/pkg/wire"
)

func TestBatchRoundTrip(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	batch := wire.MessageBatch{
		Kind:     wire.BatchNotify,
		Messages: []*wire.Message{{Key: wire.MessageKey{ID: "m1", RemoteID: "chat-1"}}},
	}
	if ok := b.PublishBatch(context.Background(), batch); !ok {
		t.Fatal("expected batch publish to succeed")
	}

	got, ok := b.ConsumeBatch(context.Background())
	if !ok {
		t.Fatal("expected batch consume to succeed")
	}
	if len(got.Messages) != 1 || got.Messages[0].Key.ID != "m1" {
		t.Fatalf("unexpected batch: %+v", got)
	}
}

func TestBatchOrderPreserved(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	for _, id := range []string{"a", "b", "c"} {
		batch := wire.MessageBatch{Messages: []*wire.Message{{Key: wire.MessageKey{ID: id}}}}
		if ok := b.PublishBatch(context.Background(), batch); !ok {
			t.Fatalf("publish %s failed", id)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := b.ConsumeBatch(context.Background())
		if !ok {
			t.Fatal("consume failed")
		}
		if got.Messages[0].Key.ID != want {
			t.Fatalf("order violated: got %s, want %s", got.Messages[0].Key.ID, want)
		}
	}
}

func TestLifecycleFanOut(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	first, stopFirst := b.SubscribeLifecycle(ctx, 4)
	defer stopFirst()
	second, stopSecond := b.SubscribeLifecycle(ctx, 4)
	defer stopSecond()

	if ok := b.PublishLifecycle(ctx, Lifecycle{State: "open"}); !ok {
		t.Fatal("expected lifecycle publish to succeed")
	}

	for name, ch := range map[string]<-chan Lifecycle{"first": first, "second": second} {
		select {
		case event := <-ch:
			if event.State != "open" {
				t.Fatalf("%s subscriber got state %q", name, event.State)
			}
			if event.At.IsZero() {
				t.Fatalf("%s subscriber got zero timestamp", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber did not receive event", name)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ch, unsubscribe := b.SubscribeLifecycle(context.Background(), 1)
	unsubscribe()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestCloseStopsOperations(t *testing.T) {
	b := New()
	b.Close()

	if ok := b.PublishBatch(context.Background(), wire.MessageBatch{}); ok {
		t.Fatal("expected batch publish to fail after close")
	}
	if _, ok := b.ConsumeBatch(context.Background()); ok {
		t.Fatal("expected batch consume to stop after close")
	}
	if ok := b.PublishLifecycle(context.Background(), Lifecycle{State: "open"}); ok {
		t.Fatal("expected lifecycle publish to fail after close")
	}
}

func TestContextCancellation(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := b.PublishBatch(ctx, wire.MessageBatch{}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
	if _, ok := b.ConsumeBatch(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}
