package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleTechnician StaffRole = "TECHNICIAN"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// Valid reports whether the role is known.
func (r StaffRole) Valid() bool {
	return r == StaffRoleTechnician || r == StaffRoleAdmin
}

// StaffMember models a technician or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject returns the staff member as a notification/event subject.
func (s *StaffMember) Subject() Subject {
	return Subject{Type: SubjectTypeStaff, ID: s.ID}
}
