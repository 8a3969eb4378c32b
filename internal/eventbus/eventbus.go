// Package eventbus is the single shared collaborator the session
// manager, consensus engine, swarm delegate, and persistence restore
// manager publish and subscribe through. Per the DESIGN NOTES on
// cyclic references, nothing in this module imports any of those
// packages back — subscribers are plain callbacks.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event is the envelope carried on every topic.
type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler receives an Event. A returned error is logged by the bus
// implementation but never propagated back to the publisher.
type Handler func(ctx context.Context, evt Event) error

// Subscription can be canceled by the subscriber.
type Subscription interface {
	Unsubscribe()
}

// Bus is the publish/subscribe contract every component in this
// module depends on instead of a concrete transport.
type Bus interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Subscribe(topic string, h Handler) (Subscription, error)
	Close() error
}

// NewEvent builds an Event with the payload marshaled to JSON, mirroring
// the teacher's AgentMessage/BlackboardMessage builder-constructor style.
func NewEvent(topic string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event payload for topic %s: %w", topic, err)
	}
	return Event{Topic: topic, Payload: raw, Timestamp: time.Now()}, nil
}

// memBus is an in-process implementation used by default (and by every
// test) so the fabric's S1-S6 scenarios are deterministic without a
// live NATS server. Grounded on the teacher's blackboard.Subscribe
// pubsub-channel-per-topic fan-out, collapsed to calling each handler
// synchronously on the publisher's goroutine since there is no
// cross-process boundary to cross here.
type memBus struct {
	mu   sync.RWMutex
	subs map[string]map[int]Handler
	next int
	log  func(err error)
}

// NewMemBus constructs the in-process bus. logErr receives handler
// errors (pass nil to discard them).
func NewMemBus(logErr func(err error)) Bus {
	if logErr == nil {
		logErr = func(error) {}
	}
	return &memBus{subs: make(map[string]map[int]Handler), log: logErr}
}

func (b *memBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	evt, err := NewEvent(topic, payload)
	if err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			b.log(fmt.Errorf("eventbus handler for topic %s: %w", topic, err))
		}
	}
	return nil
}

type memSub struct {
	bus   *memBus
	topic string
	id    int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs[s.topic], s.id)
}

func (b *memBus) Subscribe(topic string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.subs[topic][id] = h
	return &memSub{bus: b, topic: topic, id: id}, nil
}

func (b *memBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[int]Handler)
	return nil
}
