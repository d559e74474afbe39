package domain

import "time"

// ProgressStatus is the closed vocabulary of progress steps.
type ProgressStatus string

const (
	ProgressLogged          ProgressStatus = "logged"
	ProgressAssigned        ProgressStatus = "assigned"
	ProgressQuoteSent       ProgressStatus = "quote-sent"
	ProgressHardwareOrdered ProgressStatus = "hardware-ordered"
	ProgressScheduled       ProgressStatus = "scheduled"
	ProgressClosed          ProgressStatus = "closed"
)

var progressStatuses = map[ProgressStatus]struct{}{
	ProgressLogged:          {},
	ProgressAssigned:        {},
	ProgressQuoteSent:       {},
	ProgressHardwareOrdered: {},
	ProgressScheduled:       {},
	ProgressClosed:          {},
}

// Valid reports whether the status belongs to the vocabulary.
func (s ProgressStatus) Valid() bool {
	_, ok := progressStatuses[s]
	return ok
}

// Repeatable reports whether the step may appear more than once.
// Only scheduling can be repeated, to allow rescheduling a visit.
func (s ProgressStatus) Repeatable() bool {
	return s == ProgressScheduled
}

// ProgressEvent is one immutable step in a ticket's history.
type ProgressEvent struct {
	Seq           int64
	TicketID      string
	Status        ProgressStatus
	Description   string
	Date          time.Time
	ScheduledDate *time.Time
	TechnicianID  *string
}
