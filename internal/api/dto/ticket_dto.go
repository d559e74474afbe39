package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      domain.TicketCategory `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	SuggestedDate *string               `json:"suggested_date"`
}

// AdminCreateTicketRequest files a ticket on a client's behalf.
type AdminCreateTicketRequest struct {
	ClientID string `json:"client_id"`
	CreateTicketRequest
}

// UpdateTicketRequest is the client edit payload. An empty suggested_date
// clears it.
type UpdateTicketRequest struct {
	Title         *string                `json:"title"`
	Description   *string                `json:"description"`
	Category      *domain.TicketCategory `json:"category"`
	Priority      *domain.TicketPriority `json:"priority"`
	SuggestedDate *string                `json:"suggested_date"`
}

// StaffUpdateTicketRequest is the triage edit payload.
type StaffUpdateTicketRequest struct {
	Category *domain.TicketCategory `json:"category"`
	Priority *domain.TicketPriority `json:"priority"`
	Status   *domain.TicketStatus   `json:"status"`
}

// ProgressRequest appends a progress step. scheduled_date is RFC3339.
type ProgressRequest struct {
	Status        domain.ProgressStatus `json:"status"`
	Description   string                `json:"description"`
	TechnicianID  *string               `json:"technician_id"`
	ScheduledDate *string               `json:"scheduled_date"`
}

// AssignRequest payload.
type AssignRequest struct {
	TechnicianID string `json:"technician_id"`
	Note         string `json:"note"`
}

// CloseRequest payload.
type CloseRequest struct {
	Resolution string `json:"resolution"`
}

// CancelRequest payload.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CommentRequest payload.
type CommentRequest struct {
	Content string `json:"content"`
}

// ProgressResponse is one progress step.
type ProgressResponse struct {
	Seq           int64                 `json:"seq"`
	Status        domain.ProgressStatus `json:"status"`
	Description   string                `json:"description"`
	Date          time.Time             `json:"date"`
	ScheduledDate *time.Time            `json:"scheduled_date,omitempty"`
	TechnicianID  *string               `json:"technician_id,omitempty"`
}

// CommentResponse is one thread message.
type CommentResponse struct {
	ID         string             `json:"id"`
	AuthorType domain.SubjectType `json:"author_type"`
	AuthorID   string             `json:"author_id"`
	Content    string             `json:"content"`
	CreatedAt  time.Time          `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID            string                `json:"id"`
	ExternalKey   string                `json:"external_key"`
	ClientID      string                `json:"client_id"`
	TechnicianID  *string               `json:"technician_id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      domain.TicketCategory `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	SuggestedDate *time.Time            `json:"suggested_date"`
	Resolution    string                `json:"resolution,omitempty"`
	CancelReason  string                `json:"cancel_reason,omitempty"`
	Progress      []ProgressResponse    `json:"progress"`
	Comments      []CommentResponse     `json:"comments"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	ClosedAt      *time.Time            `json:"closed_at"`
}

// NewTicketResponse maps a ticket with its progress and comments.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	progress := make([]ProgressResponse, 0, len(t.Progress))
	for _, p := range t.Progress {
		progress = append(progress, ProgressResponse{
			Seq:           p.Seq,
			Status:        p.Status,
			Description:   p.Description,
			Date:          p.Date,
			ScheduledDate: p.ScheduledDate,
			TechnicianID:  p.TechnicianID,
		})
	}
	comments := make([]CommentResponse, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, CommentResponse{
			ID:         c.ID,
			AuthorType: c.AuthorType,
			AuthorID:   c.AuthorID,
			Content:    c.Content,
			CreatedAt:  c.CreatedAt,
		})
	}
	return TicketResponse{
		ID:            t.ID,
		ExternalKey:   t.ExternalKey,
		ClientID:      t.ClientID,
		TechnicianID:  t.TechnicianID,
		Title:         t.Title,
		Description:   t.Description,
		Category:      t.Category,
		Priority:      t.Priority,
		Status:        t.Status,
		SuggestedDate: t.SuggestedDate,
		Resolution:    t.Resolution,
		CancelReason:  t.CancelReason,
		Progress:      progress,
		Comments:      comments,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		ClosedAt:      t.ClosedAt,
	}
}

// NewTicketList maps a page of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}
