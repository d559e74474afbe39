package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// TicketsHandler manages client ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := userPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input, err := createInput(req)
	if err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return created(c, dto.NewTicketResponse(ticket))
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := userPrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListClientTickets(c.UserContext(), user.ID, filter)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketList(tickets))
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, err := userPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicketForClient(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// UpdateTicket PUT /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	user, err := userPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	update := service.TicketClientUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
	}
	if req.SuggestedDate != nil {
		if strings.TrimSpace(*req.SuggestedDate) == "" {
			update.ClearSuggestedDate = true
		} else if update.SuggestedDate, err = parseTimeField("suggested_date", req.SuggestedDate); err != nil {
			return err
		}
	}
	ticket, err := h.service.UpdateTicketAsClient(c.UserContext(), user, c.Params("id"), update)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.AddComment(c.UserContext(), p, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return created(c, dto.NewTicketResponse(ticket))
}

// CancelTicket POST /api/tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CancelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CancelTicket(c.UserContext(), p, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

func createInput(req dto.CreateTicketRequest) (service.TicketCreateInput, error) {
	suggested, err := parseTimeField("suggested_date", req.SuggestedDate)
	if err != nil {
		return service.TicketCreateInput{}, err
	}
	return service.TicketCreateInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Priority:      req.Priority,
		SuggestedDate: suggested,
	}, nil
}
