package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// CountersHandler exposes the invoice and quote number sequences.
type CountersHandler struct {
	counters *service.CounterService
}

// NewCountersHandler constructs handler.
func NewCountersHandler(counterService *service.CounterService) *CountersHandler {
	return &CountersHandler{counters: counterService}
}

// Get handles GET /api/admin/counters/:type.
func (h *CountersHandler) Get(c *fiber.Ctx) error {
	counter, err := h.counters.Get(c.UserContext(), domain.CounterName(c.Params("type")))
	if err != nil {
		return err
	}
	return respond(c, dto.NewCounterResponse(counter))
}

// Update handles PUT /api/admin/counters/:type.
func (h *CountersHandler) Update(c *fiber.Ctx) error {
	var req dto.CounterUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	counter, err := h.counters.Apply(c.UserContext(), domain.CounterName(c.Params("type")), service.CounterAction(req.Action), req.Value)
	if err != nil {
		return err
	}
	return respond(c, dto.NewCounterResponse(counter))
}
