package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further comments or progress may be appended.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketCategory classifies the reported problem.
type TicketCategory string

const (
	TicketCategoryHardware TicketCategory = "hardware"
	TicketCategorySoftware TicketCategory = "software"
	TicketCategoryNetwork  TicketCategory = "network"
	TicketCategorySecurity TicketCategory = "security"
	TicketCategoryOther    TicketCategory = "other"
)

// Valid reports whether the category is known.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryHardware, TicketCategorySoftware, TicketCategoryNetwork, TicketCategorySecurity, TicketCategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Progress and Comments are
// loaded alongside the ticket row and are ordered oldest first.
type Ticket struct {
	ID            string
	ExternalKey   string
	ClientID      string
	TechnicianID  *string
	Title         string
	Description   string
	Category      TicketCategory
	Priority      TicketPriority
	Status        TicketStatus
	SuggestedDate *time.Time
	Resolution    string
	CancelReason  string
	Progress      []ProgressEvent
	Comments      []Comment
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// IsTerminal reports whether the ticket is closed or cancelled.
func (t *Ticket) IsTerminal() bool {
	return t.Status.Terminal()
}

// HasProgress reports whether any progress entry carries the status.
func (t *Ticket) HasProgress(status ProgressStatus) bool {
	return t.FirstProgress(status) != nil
}

// FirstProgress returns the earliest entry with the status, or nil.
func (t *Ticket) FirstProgress(status ProgressStatus) *ProgressEvent {
	for i := range t.Progress {
		if t.Progress[i].Status == status {
			return &t.Progress[i]
		}
	}
	return nil
}

// Room returns the realtime room key for the ticket.
func (t *Ticket) Room() string {
	return TicketRoom(t.ID)
}

// TicketRoom returns the realtime room key for a ticket id.
func TicketRoom(ticketID string) string {
	return "ticket:" + ticketID
}
