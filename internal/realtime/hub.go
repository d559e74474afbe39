package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Server event names.
const (
	EventTicketUpdated   = "ticket:updated"
	EventAdminNewTicket  = "admin:newTicket"
	EventNotificationNew = "notification:new"
	EventError           = "error"
)

// Frame is the JSON envelope written to every connection.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Broadcaster delivers an event to everyone in a room. Delivery is best
// effort; implementations never block on slow subscribers.
type Broadcaster interface {
	Emit(ctx context.Context, room, event string, data any)
}

// Client is one live connection. Frames are queued on a bounded buffer and
// drained by the connection's writer.
type Client struct {
	ID      string
	Subject domain.Subject
	Staff   bool

	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

// Send exposes the outbound queue to the connection writer. It is closed on
// Unregister.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub is the process-local room registry.
type Hub struct {
	logger     *zap.Logger
	sendBuffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger, sendBuffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		logger:     logger,
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Register adds a connection for the subject and joins its personal room.
func (h *Hub) Register(subject domain.Subject, staff bool) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		Subject: subject,
		Staff:   staff,
		send:    make(chan []byte, h.sendBuffer),
		rooms:   make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, domain.UserRoom(subject))
	h.mu.Unlock()

	h.logger.Debug("realtime client registered",
		zap.String("client_id", c.ID),
		zap.String("subject_type", string(subject.Type)),
		zap.String("subject_id", subject.ID),
	)
	return c
}

// Unregister removes the connection from every room and closes its queue.
// Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	h.mu.Unlock()

	h.logger.Debug("realtime client unregistered", zap.String("client_id", c.ID))
}

// Join subscribes the connection to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.joinLocked(c, room)
}

// Leave unsubscribes the connection from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit encodes the frame once and delivers it to the room.
func (h *Hub) Emit(_ context.Context, room, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		h.logger.Error("encode realtime frame", zap.String("event", event), zap.Error(err))
		return
	}
	h.Deliver(room, frame)
}

// SendTo queues a frame for a single connection, used for join errors.
func (h *Hub) SendTo(c *Client, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.closed {
		h.offer(c, frame)
	}
}

// Deliver queues an encoded frame for every member of the room and returns
// how many connections accepted it. Full queues drop the frame.
func (h *Hub) Deliver(room string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if h.offer(c, frame) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) offer(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.dropped.Add(1)
		h.logger.Debug("realtime frame dropped", zap.String("client_id", c.ID))
		return false
	}
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of frames dropped on full queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// EncodeFrame builds the wire form of an event.
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}
