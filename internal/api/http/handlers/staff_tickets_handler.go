package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StaffTicketsHandler handles the staff ticket workflow endpoints.
type StaffTicketsHandler struct {
	tickets *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService}
}

// ListTickets GET /api/admin/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	filter.ClientID = optionalQuery(c, "client_id")
	filter.TechnicianID = optionalQuery(c, "technician_id")
	tickets, err := h.tickets.ListStaffTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketList(tickets))
}

// CreateTicket POST /api/admin/tickets files a ticket for a client.
func (h *StaffTicketsHandler) CreateTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AdminCreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input, err := createInput(req.CreateTicketRequest)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicketForClient(c.UserContext(), staff, req.ClientID, input)
	if err != nil {
		return err
	}
	return created(c, dto.NewTicketResponse(ticket))
}

// GetTicket GET /api/admin/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicketForStaff(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// UpdateTicket PUT /api/admin/tickets/:id.
func (h *StaffTicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StaffUpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.UpdateTicketAsStaff(c.UserContext(), staff, c.Params("id"), service.TicketStaffUpdate{
		Category: req.Category,
		Priority: req.Priority,
		Status:   req.Status,
	})
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// AppendProgress POST /api/admin/tickets/:id/progress.
func (h *StaffTicketsHandler) AppendProgress(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ProgressRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input, err := progressInput(req)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.AppendProgress(c.UserContext(), staff, c.Params("id"), input)
	if err != nil {
		return err
	}
	return created(c, dto.NewTicketResponse(ticket))
}

// AssignTechnician POST /api/admin/tickets/:id/assign.
func (h *StaffTicketsHandler) AssignTechnician(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AssignTechnician(c.UserContext(), staff, c.Params("id"), req.TechnicianID, req.Note)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// CloseTicket POST /api/admin/tickets/:id/close.
func (h *StaffTicketsHandler) CloseTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CloseRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.tickets.CloseTicket(c.UserContext(), staff, c.Params("id"), req.Resolution)
	if err != nil {
		return err
	}
	return respond(c, dto.NewTicketResponse(ticket))
}

// progressInput converts the request; a malformed scheduled_date is
// rejected before anything is appended.
func progressInput(req dto.ProgressRequest) (service.ProgressInput, error) {
	if req.Status == "" {
		return service.ProgressInput{}, apperrors.NewValidationError("status is required", nil)
	}
	scheduled, err := parseTimeField("scheduled_date", req.ScheduledDate)
	if err != nil {
		return service.ProgressInput{}, err
	}
	if req.Status == domain.ProgressScheduled && scheduled == nil {
		return service.ProgressInput{}, apperrors.NewValidationError("scheduled_date is required for scheduled", nil)
	}
	return service.ProgressInput{
		Status:        req.Status,
		Description:   req.Description,
		TechnicianID:  req.TechnicianID,
		ScheduledDate: scheduled,
	}, nil
}
