package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NotificationsHandler serves the caller's notification inbox.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notificationService}
}

// List handles GET /api/notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	list, err := h.notifications.List(c.UserContext(), p.Subject(), parseIntQuery(c, "limit", 0))
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, dto.NewNotificationResponse(&list.Items[i]))
	}
	return respond(c, dto.NotificationListResponse{Items: items, UnreadCount: list.UnreadCount})
}

// Create handles POST /api/notifications. Only staff may notify others.
func (h *NotificationsHandler) Create(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return apperrors.NewForbidden("staff role required")
	}
	var req dto.CreateNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.RecipientID == "" {
		return apperrors.NewValidationError("recipient_id is required", nil)
	}
	recipient := domain.Subject{Type: req.RecipientType, ID: req.RecipientID}
	n, err := h.notifications.CreateNotification(c.UserContext(), recipient, req.Text, req.TicketID)
	if err != nil {
		return err
	}
	return created(c, dto.NewNotificationResponse(n))
}

// MarkRead handles POST /api/notifications/mark-read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.MarkReadRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return apperrors.NewValidationError("ids are required", nil)
	}
	unread, err := h.notifications.MarkRead(c.UserContext(), p.Subject(), req.IDs)
	if err != nil {
		return err
	}
	return respond(c, dto.UnreadResponse{UnreadCount: unread})
}

// MarkAllRead handles POST /api/notifications/mark-all-read.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	unread, err := h.notifications.MarkAllRead(c.UserContext(), p.Subject())
	if err != nil {
		return err
	}
	return respond(c, dto.UnreadResponse{UnreadCount: unread})
}
