package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quiz-room-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

// Broadcaster fans events out through Redis PUBLISH so every instance's websocket
// connections see them. Topics map 1:1 onto Redis channels.
type Broadcaster struct {
	client *redis.Client
	buffer int
	log    logrus.FieldLogger
}

func NewBroadcaster(client *redis.Client, buffer int, log logrus.FieldLogger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		client: client,
		buffer: buffer,
		log:    log.WithField("component", "redis_broadcaster"),
	}
}

// Publish is best effort; failures are logged and dropped.
func (b *Broadcaster) Publish(ctx context.Context, topic string, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.WithError(err).WithField("event", event.Type).Error("encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{"topic": topic, "event": event.Type}).Warn("publish event")
	}
}

type wireEvent struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscribe listens on topic until cancel is called. The subscription is confirmed
// before returning, so events published afterwards are not missed.
func (b *Broadcaster) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan domain.Event, b.buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).WithField("topic", topic).Warn("decode event")
				continue
			}
			select {
			case out <- domain.Event{Type: ev.Type, RoomID: ev.RoomID, Payload: ev.Payload}:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
