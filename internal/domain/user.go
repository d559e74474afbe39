package domain

import "time"

// UserStatus represents lifecycle states for a client account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is a client who files tickets on behalf of a company.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CompanyName  string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject returns the user as a notification/event subject.
func (u *User) Subject() Subject {
	return Subject{Type: SubjectTypeUser, ID: u.ID}
}
