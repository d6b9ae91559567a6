package events

import (
	"context"

	"github.com/google/uuid"
)

// Relay event names delivered to websocket clients.
const (
	EventNewOffer       = "newOffer"
	EventOfferUpdated   = "offerUpdated"
	EventPaymentUpdated = "paymentUpdated"
)

// Pub/sub channels
const (
	ChannelRelay = "events:relay"
)

type Event struct {
	Type    string         `json:"type"`
	Room    string         `json:"room,omitempty"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func ConversationRoom(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}
