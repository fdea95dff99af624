// Package events is a small typed publish/subscribe bus used to deliver
// recording events to listeners.
//
// Every subscription owns a bounded queue drained by its own goroutine, so a
// listener always sees events in the order they were published, and a slow
// listener never delays delivery to the others beyond what the overflow
// policy allows.
package events

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindData  Kind = "data"
	KindError Kind = "error"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Parse an event name as used by listeners, e.g. "data".
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindData, KindError:
		return Kind(name), nil
	default:
		return "", ErrUnknownKind
	}
}

type Event struct {
	Kind Kind

	// Monotonically increasing per bus, starting at 1.
	Seq uint64

	// Payload for data events, message for error events.
	Data string

	// Set for error events.
	Err error

	// Capture time of the first frame and audio length of a data event.
	// Zero when the publisher has no timing for the payload.
	Timestamp time.Time
	Duration  time.Duration
}

// What a publisher does when a subscriber queue is full.
type OverflowPolicy int

const (
	// The publisher waits until the subscriber has room. Nothing is lost.
	BlockProducer OverflowPolicy = iota
	// The oldest queued event is discarded to make room for the new one.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case BlockProducer:
		return "block"
	case DropOldest:
		return "drop-oldest"
	}
	return "?"
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "block":
		return BlockProducer, nil
	case "drop-oldest", "dropoldest":
		return DropOldest, nil
	}
	return BlockProducer, errors.New("unknown overflow policy " + s)
}

const DefaultQueueCapacity = 64

type Handler func(Event)

type Bus struct {
	logger   *slog.Logger
	capacity int
	policy   OverflowPolicy

	seq     atomic.Uint64
	dropped atomic.Uint64
	// Called with the event each time one is discarded under DropOldest.
	onDrop func(Event)

	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscription
	closed bool
}

type BusOption func(*Bus)

// Observe every event discarded by the DropOldest policy.
func WithDropHook(hook func(Event)) BusOption {
	return func(b *Bus) { b.onDrop = hook }
}

func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// Create a bus whose subscriptions each queue up to capacity events.
// A non-positive capacity selects DefaultQueueCapacity.
func NewBus(capacity int, policy OverflowPolicy, opts ...BusOption) *Bus {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	b := &Bus{
		logger:   slog.Default(),
		capacity: capacity,
		policy:   policy,
		subs:     make(map[uuid.UUID]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register handler for events of the given kind.
// Handlers accumulate: registering twice means being called twice.
// The returned function removes the subscription; events still queued for it are discarded.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	sub := newSubscription(kind, handler, b.capacity)
	id := uuid.New()
	b.subs[id] = sub
	go sub.run()

	return func() {
		b.mu.Lock()
		s, ok := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()
		if ok {
			s.stop()
		}
	}
}

// Number of live subscriptions for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.kind == kind {
			n += 1
		}
	}
	return n
}

// Publish an event to every subscriber of its kind, assigning its sequence number.
// Publishing on a closed bus is a no-op and returns the zero Event.
//
// Publish may be called from several goroutines, but ordering is only
// defined between events published by the same goroutine.
func (b *Bus) Publish(kind Kind, data string, err error) Event {
	return b.PublishEvent(Event{Kind: kind, Data: data, Err: err})
}

// Publish a prepared event. Any Seq it carries is replaced.
func (b *Bus) PublishEvent(event Event) Event {
	kind := event.Kind
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return Event{}
	}
	event.Seq = b.seq.Add(1)
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind == kind {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	// Offer outside the lock, so handlers may subscribe or unsubscribe
	// while a blocked publisher waits on them.
	for _, sub := range targets {
		switch b.policy {
		case DropOldest:
			sub.offerDropOldest(event, b.recordDrop)
		default:
			sub.offerBlocking(event)
		}
	}
	return event
}

func (b *Bus) recordDrop(event Event) {
	b.dropped.Add(1)
	if b.onDrop != nil {
		b.onDrop(event)
	}
}

// Total events discarded by the DropOldest policy.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Block until every event published before the call has been handled
// (or discarded) by every subscriber. Must not be called from a handler.
func (b *Bus) Flush() {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.flush()
	}
}

// Flush, then stop every subscription. Further publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.Flush()

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uuid.UUID]*subscription)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	b.logger.Debug("event bus closed", "published", b.seq.Load(), "dropped", b.dropped.Load())
}
