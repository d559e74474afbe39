package domain

// SubjectType differentiates users vs staff tokens.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)

// Subject identifies a principal independent of its backing table.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id"`
}
