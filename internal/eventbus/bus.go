package eventbus

import "sync"

// Topic names a channel on the bus.
type Topic string

const (
	// TopicSessionStart carries the new *session.Session when a session is created.
	TopicSessionStart Topic = "session"
	// TopicEventRecorded carries the v1.Event appended to the cache.
	TopicEventRecorded Topic = "rum_event"
	// TopicSessionExpired carries the expired session id.
	TopicSessionExpired Topic = "session_expired"
)

// Handler receives a published payload.
type Handler func(payload any)

// Subscription identifies one registered handler for Unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Handlers run on the
// publisher's goroutine in subscription order; a panicking handler is not
// recovered.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[Topic][]subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[Topic][]subscriber)}
}

// Subscribe appends handler to topic's subscriber list.
func (b *Bus) Subscribe(topic Topic, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscriber{id: b.nextID, handler: handler})
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes the handler behind sub. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		// Copy so an in-progress Dispatch keeps its snapshot intact.
		next := make([]subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.topics, sub.topic)
		} else {
			b.topics[sub.topic] = next
		}
		return
	}
}

// Dispatch delivers payload to every subscriber of topic.
func (b *Bus) Dispatch(topic Topic, payload any) {
	b.mu.RLock()
	subs := b.topics[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(payload)
	}
}

// SubscriberCount reports how many handlers are registered on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
