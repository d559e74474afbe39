package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StaffHandler exposes staff directory and client directory endpoints.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staffService}
}

// ListStaff handles GET /api/admin/staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	filters := service.StaffListFilters{Active: parseBoolQuery(c, "active")}
	if role := c.Query("role"); role != "" {
		r := domain.StaffRole(role)
		filters.Role = &r
	}
	filters.Limit, filters.Offset = pagination(c)

	list, err := h.staff.ListStaffMembers(c.UserContext(), filters)
	if err != nil {
		return err
	}
	resp := make([]dto.StaffResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewStaffResponse(&list[i]))
	}
	return respond(c, resp)
}

// CreateStaff handles POST /api/admin/staff.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StaffCreateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	staff, err := h.staff.CreateStaffMember(c.UserContext(), admin, service.StaffInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewStaffResponse(staff))
}

// UpdateStaff handles PUT /api/admin/staff/:id.
func (h *StaffHandler) UpdateStaff(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StaffUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.staff.UpdateStaffMember(c.UserContext(), admin, c.Params("id"), service.StaffUpdate{
		Name:   req.Name,
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		return err
	}
	return respond(c, dto.NewStaffResponse(updated))
}

// ListClients handles GET /api/admin/clients.
func (h *StaffHandler) ListClients(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	filters := service.ClientListFilters{
		CompanyName: optionalQuery(c, "company"),
		SearchTerm:  optionalQuery(c, "search"),
	}
	filters.Limit, filters.Offset = pagination(c)

	users, err := h.staff.ListClients(c.UserContext(), filters)
	if err != nil {
		return err
	}
	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, dto.NewUserResponse(&users[i]))
	}
	return respond(c, resp)
}
