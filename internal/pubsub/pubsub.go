// Package pubsub implements the in-process event bus that fans collection
// mutation events out to stream subscribers.
//
// Each collection maps to one topic holding its monotonic sequence counter
// and its live subscriptions. Sequencing and delivery happen under the topic
// lock, so every subscriber observes the same per-collection order. Delivery
// is non-blocking: a full subscriber buffer drops its oldest event in favor
// of the new one, and publishers never wait on slow consumers.
package pubsub

import (
	"log/slog"
	"sync"

	"github.com/quipubase/quipubase/internal/metrics"
)

// Kind identifies what a published event describes.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	// KindStop is the terminal marker: subscribers finish after observing it.
	KindStop Kind = "stop"
)

// Event is one collection mutation as seen by subscribers. Payload is the
// post-image for created/updated, the pre-image for deleted, nil for stop.
type Event struct {
	Collection string
	Kind       Kind
	RecordID   string
	Payload    map[string]interface{}
	Seq        uint64
}

// DefaultBufferSize bounds a subscription's pending events when the
// configuration does not say otherwise.
const DefaultBufferSize = 64

// Bus is the process-wide event broker. Safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string]*topic
	bufSize int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type topic struct {
	mu   sync.Mutex
	seq  uint64
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's handle on a collection's event feed.
type Subscription struct {
	collection string
	topic      *topic
	bus        *Bus
	ch         chan Event
	closed     bool // guarded by topic.mu
}

// New creates a bus. A non-positive bufferSize falls back to
// DefaultBufferSize; logger and m may be nil.
func New(bufferSize int, logger *slog.Logger, m *metrics.Metrics) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics:  make(map[string]*topic),
		bufSize: bufferSize,
		logger:  logger,
		metrics: m,
	}
}

// Subscribe opens a subscription on a collection's topic.
func (b *Bus) Subscribe(collection string) *Subscription {
	t := b.getOrCreateTopic(collection)

	sub := &Subscription{
		collection: collection,
		topic:      t,
		bus:        b,
		ch:         make(chan Event, b.bufSize),
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SubscriberOpened()
	}
	return sub
}

// Publish stamps the collection's next sequence number on the event and
// offers it to every live subscription. It never blocks and never fails;
// when a subscriber's buffer is full its oldest pending event is dropped.
func (b *Bus) Publish(collection string, kind Kind, recordID string, payload map[string]interface{}) {
	t := b.getOrCreateTopic(collection)

	t.mu.Lock()
	t.seq++
	ev := Event{
		Collection: collection,
		Kind:       kind,
		RecordID:   recordID,
		Payload:    payload,
		Seq:        t.seq,
	}
	dropped := t.offerAll(ev)
	t.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordEventPublished(string(kind))
	}
	if dropped > 0 {
		if b.metrics != nil {
			for i := 0; i < dropped; i++ {
				b.metrics.RecordEventDropped()
			}
		}
		b.logger.Warn("dropped events on full subscriber buffers",
			"collection", collection, "seq", ev.Seq, "dropped", dropped)
	}
}

// CloseTopic broadcasts a stop marker, closes every subscription on the
// collection's topic and forgets the topic. Used on collection deletion and
// during shutdown; publishing afterwards restarts the sequence at 1.
func (b *Bus) CloseTopic(collection string) {
	b.mu.Lock()
	t, ok := b.topics[collection]
	if ok {
		delete(b.topics, collection)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	b.shutdownTopic(collection, t)
}

// CloseAll tears down every topic. Called once during server shutdown.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for collection, t := range topics {
		b.shutdownTopic(collection, t)
	}
}

// Subscribers reports the number of live subscriptions on a collection.
func (b *Bus) Subscribers(collection string) int {
	b.mu.RLock()
	t, ok := b.topics[collection]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Events returns the receive side of the subscription. The channel is closed
// when the subscription ends; a Kind of KindStop means the topic is done.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Collection returns the collection this subscription follows.
func (s *Subscription) Collection() string {
	return s.collection
}

// Close detaches the subscription from its topic and closes the event
// channel. Idempotent and safe to call concurrently with Publish.
func (s *Subscription) Close() {
	s.topic.mu.Lock()
	if s.closed {
		s.topic.mu.Unlock()
		return
	}
	s.closed = true
	delete(s.topic.subs, s)
	close(s.ch)
	s.topic.mu.Unlock()

	if s.bus.metrics != nil {
		s.bus.metrics.SubscriberClosed(1)
	}
}

func (b *Bus) getOrCreateTopic(collection string) *topic {
	b.mu.RLock()
	t, ok := b.topics[collection]
	b.mu.RUnlock()
	if ok {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[collection]; ok {
		return t
	}
	t = &topic{subs: make(map[*Subscription]struct{})}
	b.topics[collection] = t
	return t
}

// shutdownTopic stamps and delivers the stop marker, then closes every
// subscription. The topic is already out of the bus map.
func (b *Bus) shutdownTopic(collection string, t *topic) {
	t.mu.Lock()
	t.seq++
	stop := Event{Collection: collection, Kind: KindStop, Seq: t.seq}
	t.offerAll(stop)

	n := len(t.subs)
	for sub := range t.subs {
		sub.closed = true
		close(sub.ch)
	}
	t.subs = make(map[*Subscription]struct{})
	t.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordEventPublished(string(KindStop))
		if n > 0 {
			b.metrics.SubscriberClosed(n)
		}
	}
}

// offerAll delivers an event to every subscription without blocking,
// evicting the oldest buffered event when a buffer is full. Returns how many
// events were dropped. Caller holds t.mu, which serializes all sends.
func (t *topic) offerAll(ev Event) int {
	dropped := 0
	for sub := range t.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		// Buffer full: evict the oldest event and retry. Sends are
		// serialized under the topic lock, so the retry cannot race
		// another producer for the freed slot.
		select {
		case <-sub.ch:
			dropped++
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return dropped
}
