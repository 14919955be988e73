package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Event names pushed to rooms.
const (
	EventNewMessage       = "new-message"
	EventBroadcastMessage = "broadcast-message"
)

// Frame is the JSON envelope written to a connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Emitter pushes an event to every connection joined to a room.
// Implementations must not block on slow connections.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

var _ Emitter = (*Hub)(nil)

// Conn is one live connection as the hub sees it. The transport drains
// Send() and writes each frame to the wire.
type Conn struct {
	id   string
	send chan []byte
}

func (c *Conn) ID() string { return c.id }

// Send returns the outbound frame stream. It is closed when the
// connection is unregistered.
func (c *Conn) Send() <-chan []byte { return c.send }

// Hub tracks live connections and their room membership.
//
// Delivery is fire-and-forget: each connection has a bounded buffer, and a
// frame for a connection whose buffer is full is dropped. A client that
// misses frames catches up through reconciliation.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	rooms  map[string]map[string]*Conn
	joined map[string]map[string]struct{} // conn id -> rooms
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]*Conn),
		joined: make(map[string]map[string]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Register adds a connection. Registering an id that is already live
// replaces the old connection, which is closed and removed from its rooms.
func (h *Hub) Register(id string) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; ok {
		h.unregisterLocked(id)
	}
	c := &Conn{id: id, send: make(chan []byte, h.buffer)}
	h.conns[id] = c
	h.joined[id] = make(map[string]struct{})
	return c
}

// Unregister removes the connection from every room and closes its stream.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(id)
}

func (h *Hub) unregisterLocked(id string) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	for room := range h.joined[id] {
		h.removeFromRoomLocked(room, id)
	}
	delete(h.joined, id)
	delete(h.conns, id)
	close(c.send)
}

// Join adds the connection to a room. Joining twice, or joining with an
// unknown connection id, is a no-op.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[connID] = c
	h.joined[connID][room] = struct{}{}
}

// Leave removes the connection from a room. Leaving a room that was never
// joined is a no-op.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
	h.removeFromRoomLocked(room, connID)
}

func (h *Hub) removeFromRoomLocked(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Members returns the number of connections in a room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms a connection has joined.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.joined[connID]))
	for room := range h.joined[connID] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Emit encodes payload once and delivers it to the room.
func (h *Hub) Emit(ctx context.Context, room, event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.Deliver(room, frame)
	return nil
}

// Deliver pushes an already-encoded frame to every member of room and
// returns how many connections accepted it.
func (h *Hub) Deliver(room string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, c := range h.rooms[room] {
		select {
		case c.send <- frame:
			delivered++
		default:
			h.logger.Warn("dropping frame for slow connection",
				zap.String("conn_id", id),
				zap.String("room", room),
			)
		}
	}
	return delivered
}

// SendTo pushes a frame to one connection, dropping it if the connection
// is unknown or its buffer is full.
func (h *Hub) SendTo(connID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return frame, nil
}
