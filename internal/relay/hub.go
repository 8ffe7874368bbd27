package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// writeWait bounds how long a slow room member may stall a broadcast.
const writeWait = 10 * time.Second

// Sender is the write half of a relay connection. Implementations must
// serialize concurrent calls; *ClientConn satisfies it.
type Sender interface {
	Send(v interface{}) error
}

// Hub tracks submission rooms: every member of a room receives the
// violation events confirmed for that submission. Rooms are created on
// first join and collected once empty.
type Hub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[Sender]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[Sender]bool)}
}

// Join adds a connection to a submission room.
func (h *Hub) Join(submissionID uuid.UUID, conn Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[submissionID]
	if !ok {
		room = make(map[Sender]bool)
		h.rooms[submissionID] = room
	}
	room[conn] = true
}

// Leave removes a connection from a submission room, dropping the room
// when it empties. Safe to call for connections that never joined.
func (h *Hub) Leave(submissionID uuid.UUID, conn Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[submissionID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, submissionID)
	}
}

// Broadcast sends an event to every member of a submission room.
// Best-effort: members whose write fails are evicted, never retried.
func (h *Hub) Broadcast(submissionID uuid.UUID, v interface{}) {
	h.mu.Lock()
	members := make([]Sender, 0, len(h.rooms[submissionID]))
	for conn := range h.rooms[submissionID] {
		members = append(members, conn)
	}
	h.mu.Unlock()

	var failed []Sender
	for _, conn := range members {
		if err := conn.Send(v); err != nil {
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		h.Leave(submissionID, conn)
	}
}

// RoomSize returns the member count of a submission room.
func (h *Hub) RoomSize(submissionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[submissionID])
}
