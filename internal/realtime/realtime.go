// Package realtime pushes engine events to connected clients. Emission is
// fire-and-forget: a slow or absent consumer must never block or fail a
// settlement operation.
package realtime

import (
	"log/slog"
	"sync"
)

// Message is one realtime notification.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Emitter delivers messages to event rooms and individual users.
type Emitter interface {
	EmitToEvent(eventID, msgType string, payload any)
	EmitToUser(userID, msgType string, payload any)
}

// Hub is an in-process emitter with per-room subscriber channels.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[chan Message]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan Message]struct{})}
}

// Subscribe registers a buffered channel on a room and returns it with an
// unsubscribe func. Rooms are "event:<id>" or "user:<id>".
func (h *Hub) Subscribe(room string) (<-chan Message, func()) {
	ch := make(chan Message, 16)

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[chan Message]struct{})
	}
	h.rooms[room][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.rooms[room], ch)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// EmitToEvent broadcasts to every subscriber of the event's room.
func (h *Hub) EmitToEvent(eventID, msgType string, payload any) {
	h.broadcast("event:"+eventID, Message{Type: msgType, Payload: payload})
}

// EmitToUser broadcasts to every subscriber of the user's room.
func (h *Hub) EmitToUser(userID, msgType string, payload any) {
	h.broadcast("user:"+userID, Message{Type: msgType, Payload: payload})
}

func (h *Hub) broadcast(room string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.rooms[room] {
		select {
		case ch <- msg:
		default:
			// Slow consumer; drop rather than block the engine.
			slog.Debug("realtime message dropped", "room", room, "type", msg.Type)
		}
	}
}

// Nop is an emitter that discards everything. Used in tests and batch
// tools.
type Nop struct{}

func (Nop) EmitToEvent(string, string, any) {}
func (Nop) EmitToUser(string, string, any)  {}
