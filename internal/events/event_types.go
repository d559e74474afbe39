package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketUpdated    EventType = "ticket_updated"
	EventProgressAppended EventType = "ticket_progress_appended"
	EventTicketAssigned   EventType = "ticket_assigned"
	EventCommentAdded     EventType = "ticket_comment_added"
	EventTicketClosed     EventType = "ticket_closed"
	EventTicketCancelled  EventType = "ticket_cancelled"
)

// AllTicketEvents lists every ticket event type, for subscribers that want them all.
var AllTicketEvents = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventProgressAppended,
	EventTicketAssigned,
	EventCommentAdded,
	EventTicketClosed,
	EventTicketCancelled,
}

// Event represents a domain event emitted by services. Ticket is the state
// after the change was committed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	Actor     domain.Subject `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Ticket    *domain.Ticket `json:"-"`
	Payload   interface{}    `json:"payload,omitempty"`
}

// NewTicketEvent stamps a ticket event with a fresh id and time.
func NewTicketEvent(eventType EventType, actor domain.Subject, ticket *domain.Ticket, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Ticket:    ticket,
		Payload:   payload,
	}
}

// ProgressAppendedPayload payload.
type ProgressAppendedPayload struct {
	Status        domain.ProgressStatus `json:"status"`
	Description   string                `json:"description,omitempty"`
	ScheduledDate *time.Time            `json:"scheduled_date,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TechnicianID       string  `json:"technician_id"`
	TechnicianName     string  `json:"technician_name"`
	PreviousTechnician *string `json:"previous_technician_id,omitempty"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	BodyPreview string `json:"body_preview"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Resolution string `json:"resolution,omitempty"`
}

// TicketCancelledPayload payload.
type TicketCancelledPayload struct {
	Reason string `json:"reason"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Fields    []string            `json:"fields,omitempty"`
}
