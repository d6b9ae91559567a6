package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gig-marketplace/backend/internal/auth"
	"github.com/gig-marketplace/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParticipantChecker reports whether a user belongs to a conversation.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// wsClient serializes writes to one socket.
type wsClient struct {
	conn   *websocket.Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (c *wsClient) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// wsCommand is a client message joining or leaving a conversation room.
type wsCommand struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// WSHub fans relay events out to the sockets joined to each room.
type WSHub struct {
	jwtSecret     string
	subscriber    events.Subscriber
	conversations ParticipantChecker
	log           *zap.Logger
	mu            sync.RWMutex
	rooms         map[string]map[*wsClient]struct{}
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, conversations ParticipantChecker, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:     jwtSecret,
		subscriber:    subscriber,
		conversations: conversations,
		log:           log,
		rooms:         make(map[string]map[*wsClient]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.ChannelRelay, h.Deliver)
}

// Deliver writes event to every socket in its room.
func (h *WSHub) Deliver(event events.Event) {
	data, err := json.Marshal(fiber.Map{"event": event.Type, "room": event.Room, "data": event.Payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[event.Room]))
	for c := range h.rooms[event.Room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.send(data)
	}
}

func (h *WSHub) join(room string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*wsClient]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

func (h *WSHub) leave(room string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

func (h *WSHub) leaveAll(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize returns the number of sockets joined to room.
func (h *WSHub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn, userID: claims.UserID}
	h.join(events.UserRoom(claims.UserID), client)
	defer func() {
		h.leaveAll(client)
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.handleCommand(client, msg)
	}
}

func (h *WSHub) handleCommand(c *wsClient, msg []byte) {
	var cmd wsCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return // keep-alive or junk
	}
	conversationID, err := uuid.Parse(cmd.ConversationID)
	if err != nil {
		c.send([]byte(`{"error":"invalid conversation_id"}`))
		return
	}
	room := events.ConversationRoom(conversationID)

	switch cmd.Action {
	case "join":
		ok, err := h.conversations.IsParticipant(context.Background(), conversationID, c.userID)
		if err != nil {
			h.log.Warn("conversation participant check failed", zap.String("conversation_id", cmd.ConversationID), zap.Error(err))
			c.send([]byte(`{"error":"join failed"}`))
			return
		}
		if !ok {
			c.send([]byte(`{"error":"not a participant"}`))
			return
		}
		h.join(room, c)
	case "leave":
		h.leave(room, c)
	}
}
