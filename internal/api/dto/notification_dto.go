package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationResponse is one persisted notification.
type NotificationResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	TicketID  *string   `json:"ticket_id,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationListResponse pairs the latest notifications with the unread total.
type NotificationListResponse struct {
	Items       []NotificationResponse `json:"items"`
	UnreadCount int                    `json:"unread_count"`
}

// MarkReadRequest payload.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

// UnreadResponse reports the remaining unread count.
type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// CreateNotificationRequest is a manual notification from staff.
type CreateNotificationRequest struct {
	RecipientType domain.SubjectType `json:"recipient_type"`
	RecipientID   string             `json:"recipient_id"`
	Text          string             `json:"text"`
	TicketID      *string            `json:"ticket_id"`
}

// NewNotificationResponse maps a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Text:      n.Text,
		TicketID:  n.TicketID,
		Link:      n.Link(),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
