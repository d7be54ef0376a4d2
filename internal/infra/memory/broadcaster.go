package memory

import (
	"context"
	"sync"

	"quiz-room-service/internal/domain"

	"github.com/sirupsen/logrus"
)

// Broadcaster is an in-process pub/sub hub keyed by topic. Delivery is in order per
// topic; a subscriber whose buffer is full is dropped (its channel is closed) rather
// than allowed to block publishers or silently miss events.
type Broadcaster struct {
	buffer int
	log    logrus.FieldLogger

	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster(buffer int, log logrus.FieldLogger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		buffer:      buffer,
		log:         log.WithField("component", "memory_broadcaster"),
		subscribers: make(map[string]map[chan domain.Event]struct{}),
	}
}

// Publish delivers event to every current subscriber of topic.
func (b *Broadcaster) Publish(_ context.Context, topic string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
			b.log.WithFields(logrus.Fields{"topic": topic, "event": event.Type}).Warn("dropping slow subscriber")
			b.removeLocked(topic, ch)
		}
	}
}

// Subscribe registers for topic. The caller must invoke the returned cancel function to avoid leaks;
// the channel is closed on cancel or when the subscriber falls behind.
func (b *Broadcaster) Subscribe(_ context.Context, topic string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan domain.Event]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		b.removeLocked(topic, ch)
		b.mu.Unlock()
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscribers a topic has.
func (b *Broadcaster) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}

func (b *Broadcaster) removeLocked(topic string, ch chan domain.Event) {
	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
}
