package messages

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/logger"
)

// EventType names a change to a message log.
type EventType string

const (
	EventCreated EventType = "message.created"
	EventDeleted EventType = "message.deleted"
)

// Event is pushed to live subscribers of a group.
type Event struct {
	Type      EventType `json:"type"`
	GroupID   uuid.UUID `json:"groupId"`
	MessageID uuid.UUID `json:"messageId"`
	Message   *Message  `json:"message,omitempty"`
}

// Broker carries events between API instances. The redis client satisfies it.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Listen(ctx context.Context, pattern string, handle func(channel string, payload []byte)) error
	GroupChannel(groupID string) string
	GroupChannelPattern() string
}

const defaultSubscriberBuffer = 64

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans events out to subscribers in this process. With a broker, events
// travel through it and every instance's Run loop delivers them locally.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	broker Broker
	logg   *logger.Logger
	buffer int
}

// NewHub builds a hub. broker may be nil for a single instance deployment.
func NewHub(broker Broker, logg *logger.Logger) *Hub {
	return &Hub{
		subs:   map[uuid.UUID]map[*subscriber]struct{}{},
		broker: broker,
		logg:   logg,
		buffer: defaultSubscriberBuffer,
	}
}

// Run relays broker traffic to local subscribers until ctx is done. Without a
// broker it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		<-ctx.Done()
		return nil
	}
	return h.broker.Listen(ctx, h.broker.GroupChannelPattern(), func(channel string, payload []byte) {
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			if h.logg != nil {
				h.logg.Error(h.logg.WithField(ctx, "channel", channel), "decode message event", err)
			}
			return
		}
		h.dispatch(event)
	})
}

// Publish delivers the event to every subscriber of its group. Broker
// failures fall back to local delivery so this instance still sees it.
func (h *Hub) Publish(ctx context.Context, event Event) {
	if h.broker == nil {
		h.dispatch(event)
		return
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = h.broker.Publish(ctx, h.broker.GroupChannel(event.GroupID.String()), payload)
	}
	if err != nil {
		if h.logg != nil {
			ctx = h.logg.WithFields(ctx, map[string]any{
				"group_id":   event.GroupID.String(),
				"event_type": event.Type,
			})
			h.logg.Warn(ctx, "message event broker publish failed: "+err.Error())
		}
		h.dispatch(event)
	}
}

// Subscribe registers for the group's events. The channel closes when ctx is
// done or when the subscriber falls too far behind.
func (h *Hub) Subscribe(ctx context.Context, groupID uuid.UUID) <-chan Event {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[groupID] == nil {
		h.subs[groupID] = map[*subscriber]struct{}{}
	}
	h.subs[groupID][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(groupID, sub)
	}()
	return sub.ch
}

// Subscribers reports how many local subscribers a group has.
func (h *Hub) Subscribers(groupID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[groupID])
}

func (h *Hub) remove(groupID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[groupID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, groupID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) dispatch(event Event) {
	var slow []*subscriber

	h.mu.RLock()
	for sub := range h.subs[event.GroupID] {
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	// A dropped event would break ordering; cut the subscriber loose so the
	// client reconnects and replays the log.
	for _, sub := range slow {
		h.remove(event.GroupID, sub)
	}
}
