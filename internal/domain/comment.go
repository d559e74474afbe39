package domain

import "time"

// Comment is a message appended to a ticket thread.
type Comment struct {
	ID         string
	TicketID   string
	AuthorType SubjectType
	AuthorID   string
	Content    string
	CreatedAt  time.Time
}
