package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Client event names.
const (
	EventJoinTicketRoom  = "joinTicketRoom"
	EventLeaveTicketRoom = "leaveTicketRoom"
	EventJoinAdminRoom   = "joinAdminRoom"
	EventLeaveAdminRoom  = "leaveAdminRoom"
)

const (
	principalLocal = "ws_principal"
	maxFrameBytes  = 4096
)

// TokenAuthenticator resolves the handshake token.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// TicketAccess decides whether a client may watch a ticket.
type TicketAccess interface {
	CanWatchTicket(ctx context.Context, principal *auth.Principal, ticketID string) (bool, error)
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ticketRoomRequest struct {
	TicketID string `json:"ticketId"`
}

// ErrorPayload is sent with EventError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Handler serves the WebSocket endpoint.
type Handler struct {
	hub     *Hub
	auth    TokenAuthenticator
	tickets TicketAccess
	cfg     config.RealtimeConfig
	logger  *zap.Logger
}

// NewHandler builds the endpoint.
func NewHandler(hub *Hub, authn TokenAuthenticator, tickets TicketAccess, cfg config.RealtimeConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, auth: authn, tickets: tickets, cfg: cfg, logger: logger}
}

// Upgrade authenticates the handshake. The token comes from the "token"
// query parameter or a bearer header.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
	}
	principal, err := h.auth.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalLocal, principal)
	return c.Next()
}

// Serve returns the upgraded connection handler.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *Handler) serve(conn *websocket.Conn) {
	principal, ok := conn.Locals(principalLocal).(*auth.Principal)
	if !ok {
		_ = conn.Close()
		return
	}

	client := h.hub.Register(principal.Subject(), principal.IsStaff())
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(conn, client, done)
	}()

	h.readLoop(conn, client, principal)

	close(done)
	wg.Wait()
	h.hub.Unregister(client)
}

func (h *Handler) readLoop(conn *websocket.Conn, client *Client, principal *auth.Principal) {
	idle := 2 * h.cfg.PingInterval()
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.HandleMessage(ctx, client, principal, raw)
		cancel()
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame, ok := <-client.Send():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout()))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout())); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// HandleMessage applies one client frame. Rejections are answered with an
// error frame on the same connection.
func (h *Handler) HandleMessage(ctx context.Context, client *Client, principal *auth.Principal, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		h.hub.SendTo(client, EventError, ErrorPayload{Message: "malformed frame"})
		return
	}

	switch in.Event {
	case EventJoinTicketRoom, EventLeaveTicketRoom:
		var req ticketRoomRequest
		if len(in.Data) > 0 {
			_ = json.Unmarshal(in.Data, &req)
		}
		req.TicketID = strings.TrimSpace(req.TicketID)
		if req.TicketID == "" {
			h.hub.SendTo(client, EventError, ErrorPayload{Message: "ticketId is required"})
			return
		}
		room := domain.TicketRoom(req.TicketID)
		if in.Event == EventLeaveTicketRoom {
			h.hub.Leave(client, room)
			return
		}
		allowed, err := h.tickets.CanWatchTicket(ctx, principal, req.TicketID)
		if err != nil && !apperrors.IsCode(err, "NOT_FOUND") {
			h.logger.Warn("ticket room authorization failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
		}
		if err != nil || !allowed {
			h.hub.SendTo(client, EventError, ErrorPayload{Message: "not allowed to join ticket room"})
			return
		}
		h.hub.Join(client, room)
	case EventJoinAdminRoom:
		if !principal.IsStaff() {
			h.hub.SendTo(client, EventError, ErrorPayload{Message: "not allowed to join admin room"})
			return
		}
		h.hub.Join(client, domain.AdminRoom)
	case EventLeaveAdminRoom:
		h.hub.Leave(client, domain.AdminRoom)
	default:
		h.hub.SendTo(client, EventError, ErrorPayload{Message: "unknown event"})
	}
}
