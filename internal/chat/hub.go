package chat

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the connection registry. Each user has a room holding every live connection
// that user opened; publishing to a user reaches all of them.
type Hub struct {
	mu     sync.Mutex
	rooms  map[int64]map[*Client]struct{}
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// Subscribe adds c to the user's room. Repeated calls with the same client are no-ops.
func (h *Hub) Subscribe(userID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[userID] = room
	}
	room[c] = struct{}{}

	h.logger.Debugf("User %d subscribed, %d connection(s) in room", userID, len(room))
}

// Unsubscribe removes c and closes its outbound queue, which stops its write pump.
// Unknown clients are ignored so the queue is closed at most once.
func (h *Hub) Unsubscribe(userID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.remove(userID, c) {
		h.logger.Debugf("User %d unsubscribed, %d connection(s) left", userID, len(h.rooms[userID]))
	}
}

// Publish delivers payload to every connection in the user's room and returns how many
// accepted it. Nothing is queued for users without connections. A connection whose
// outbound queue is full is evicted.
func (h *Hub) Publish(userID int64, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Warnf("Evicting slow connection of user %d", userID)
			h.remove(userID, c)
		}
	}
	return delivered
}

// Direct delivers payload to c alone, if it is still registered.
func (h *Hub) Direct(c *Client, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[c.userID][c]; !ok {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		h.logger.Warnf("Evicting slow connection of user %d", c.userID)
		h.remove(c.userID, c)
		return false
	}
}

// Online returns the number of live connections the user has.
func (h *Hub) Online(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms[userID])
}

// Close unsubscribes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, room := range h.rooms {
		for c := range room {
			h.remove(userID, c)
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(userID int64, c *Client) bool {
	room, ok := h.rooms[userID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}

	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, userID)
	}
	return true
}
