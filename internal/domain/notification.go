package domain

import "time"

// Notification is a persisted per-recipient message about a ticket change.
type Notification struct {
	ID        string
	Recipient Subject
	Text      string
	TicketID  *string
	Read      bool
	CreatedAt time.Time
}

// Link builds the navigation path for the recipient, empty without a ticket.
func (n *Notification) Link() string {
	if n.TicketID == nil || *n.TicketID == "" {
		return ""
	}
	if n.Recipient.Type == SubjectTypeStaff {
		return "/admin/tickets/" + *n.TicketID
	}
	return "/tickets/" + *n.TicketID
}

// UserRoom returns the realtime room every connection of a subject joins.
func UserRoom(s Subject) string {
	return "user:" + string(s.Type) + ":" + s.ID
}

// AdminRoom is the shared room for staff connections.
const AdminRoom = "admin"
