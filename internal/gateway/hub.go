package gateway

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

// Hub is the in-memory room registry for one gateway instance. It is an
// injected object, not a package singleton, so tests and future multi-instance
// deployments each hold independent state. All maps are guarded by mu because
// read/write pumps run on separate goroutines per connection.
type Hub struct {
	mu sync.RWMutex

	// rooms maps room name -> member connections
	rooms map[string]map[*Client]bool

	// userClients maps user id -> that user's open connections
	userClients map[uuid.UUID]map[*Client]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		userClients: make(map[uuid.UUID]map[*Client]bool),
	}
}

// UserRoom names the personal room for direct notifications
func UserRoom(userID uuid.UUID) string {
	return fmt.Sprintf("user-%s", userID)
}

// ConversationRoom names the fan-out room for one conversation
func ConversationRoom(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// Register tracks a connection; authenticated connections are added to the
// user index.
func (h *Hub) Register(client *Client) {
	if client.userID == uuid.Nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true
}

// Unregister removes a connection from every room and from the user index,
// returning true when it was the user's last open connection.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	if client.userID == uuid.Nil {
		return false
	}

	if conns, ok := h.userClients[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.userID)
			return true
		}
	}
	return false
}

// Join adds a connection to a room
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
}

// Leave removes a connection from a room
func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether the connection is a member of the room
func (h *Hub) InRoom(room string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][client]
}

// RoomSize returns the number of connections in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// IsUserConnected reports whether the user has any open connection
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// UserInRoom reports whether any of the user's connections is a room member
func (h *Hub) UserInRoom(room string, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		if client.userID == userID {
			return true
		}
	}
	return false
}

// Broadcast sends an encoded event to every room member except the excluded
// connection (pass nil to reach everyone). Slow consumers with a full send
// buffer are skipped rather than allowed to stall the fan-out.
func (h *Hub) Broadcast(room string, data []byte, exclude *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client == exclude {
			continue
		}
		select {
		case client.send <- data:
		default:
			logger.Warn("dropping event for slow consumer",
				zap.String("room", room),
				zap.String("user_id", client.userID.String()),
			)
			client.dropped()
		}
	}
}
