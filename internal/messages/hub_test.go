package messages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubLocalFanOut(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupA, groupB := uuid.New(), uuid.New()
	subA := hub.Subscribe(ctx, groupA)
	subB := hub.Subscribe(ctx, groupB)

	first, second := uuid.New(), uuid.New()
	hub.Publish(ctx, Event{Type: EventCreated, GroupID: groupA, MessageID: first})
	hub.Publish(ctx, Event{Type: EventDeleted, GroupID: groupA, MessageID: second})

	if ev := receive(t, subA); ev.MessageID != first {
		t.Fatalf("expected first event, got %+v", ev)
	}
	if ev := receive(t, subA); ev.MessageID != second || ev.Type != EventDeleted {
		t.Fatalf("expected second event, got %+v", ev)
	}
	select {
	case ev := <-subB:
		t.Fatalf("group B should not see group A events, got %+v", ev)
	default:
	}
}

func TestHubClosesOnContextCancel(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	groupID := uuid.New()
	sub := hub.Subscribe(ctx, groupID)
	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	if n := hub.Subscribers(groupID); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.buffer = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	groupID := uuid.New()
	sub := hub.Subscribe(ctx, groupID)

	hub.Publish(ctx, Event{GroupID: groupID, MessageID: uuid.New()})
	hub.Publish(ctx, Event{GroupID: groupID, MessageID: uuid.New()})

	receive(t, sub)
	if _, ok := <-sub; ok {
		t.Fatal("slow subscriber should have been closed")
	}
}

type fakeBroker struct {
	mu        sync.Mutex
	handlers  []func(string, []byte)
	published []string
	fail      bool
	ready     chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{ready: make(chan struct{})}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	if b.fail {
		b.mu.Unlock()
		return errors.New("broker down")
	}
	b.published = append(b.published, channel)
	handlers := append([]func(string, []byte){}, b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(channel, payload)
	}
	return nil
}

func (b *fakeBroker) Listen(ctx context.Context, _ string, handle func(string, []byte)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handle)
	b.mu.Unlock()
	close(b.ready)
	<-ctx.Done()
	return nil
}

func (b *fakeBroker) GroupChannel(groupID string) string { return "test:group:" + groupID }
func (b *fakeBroker) GroupChannelPattern() string        { return "test:group:*" }

func TestHubRelaysThroughBroker(t *testing.T) {
	broker := newFakeBroker()
	hub := NewHub(broker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	<-broker.ready

	groupID := uuid.New()
	sub := hub.Subscribe(ctx, groupID)
	id := uuid.New()
	hub.Publish(ctx, Event{Type: EventCreated, GroupID: groupID, MessageID: id})

	if ev := receive(t, sub); ev.MessageID != id || ev.GroupID != groupID {
		t.Fatalf("unexpected relayed event %+v", ev)
	}
	broker.mu.Lock()
	channels := append([]string{}, broker.published...)
	broker.mu.Unlock()
	if len(channels) != 1 || channels[0] != "test:group:"+groupID.String() {
		t.Fatalf("unexpected publish channels %v", channels)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
}

func TestHubFallsBackToLocalWhenBrokerFails(t *testing.T) {
	broker := newFakeBroker()
	broker.fail = true
	hub := NewHub(broker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupID := uuid.New()
	sub := hub.Subscribe(ctx, groupID)
	id := uuid.New()
	hub.Publish(ctx, Event{GroupID: groupID, MessageID: id})
	if ev := receive(t, sub); ev.MessageID != id {
		t.Fatalf("expected local delivery, got %+v", ev)
	}
}
