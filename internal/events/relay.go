package events

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier emits a named event to a room. Delivery is best effort: failures
// are logged and never reach the caller.
type Notifier interface {
	Emit(ctx context.Context, rooms []string, event string, payload map[string]any)
}

// RelayNotifier publishes room events on the relay channel, where the
// websocket hubs of every API instance pick them up.
type RelayNotifier struct {
	publisher Publisher
	log       *zap.Logger
}

func NewRelayNotifier(publisher Publisher, log *zap.Logger) *RelayNotifier {
	return &RelayNotifier{publisher: publisher, log: log}
}

func (n *RelayNotifier) Emit(ctx context.Context, rooms []string, event string, payload map[string]any) {
	// the request context may be cancelled once the response is written
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, room := range rooms {
		g.Go(func() error {
			return n.publisher.Publish(ctx, ChannelRelay, Event{Type: event, Room: room, Payload: payload})
		})
	}
	if err := g.Wait(); err != nil {
		n.log.Warn("relay emit failed", zap.String("event", event), zap.Strings("rooms", rooms), zap.Error(err))
	}
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, []string, string, map[string]any) {}
