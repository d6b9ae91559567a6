package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrUnroutable = errors.New("relay event has no type or room")

// routable reports whether event names a type and a user or conversation room.
func routable(event Event) bool {
	if event.Type == "" {
		return false
	}
	return strings.HasPrefix(event.Room, "user:") || strings.HasPrefix(event.Room, "conversation:")
}

// decodeEvent parses one relay message and rejects events no socket could
// receive.
func decodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("decode relay event: %w", err)
	}
	if !routable(event) {
		return Event{}, fmt.Errorf("%w: type=%q room=%q", ErrUnroutable, event.Type, event.Room)
	}
	return event, nil
}

type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event Event) error {
	if !routable(event) {
		return fmt.Errorf("%w: type=%q room=%q", ErrUnroutable, event.Type, event.Room)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return err
	}
	if receivers == 0 {
		p.log.Debug("relay event had no subscribers",
			zap.String("channel", channel),
			zap.String("event", event.Type),
			zap.String("room", event.Room))
	}
	return nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe confirms the subscription before returning, then dispatches
// messages to handler on a background goroutine until ctx is done.
func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, err := decodeEvent(msg.Payload)
				if err != nil {
					s.log.Warn("dropping relay message", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	s.log.Info("subscribed to relay", zap.String("channel", channel))
	return nil
}
