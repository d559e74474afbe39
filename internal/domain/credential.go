package domain

import "time"

// CredentialKind separates network device entries from remote access entries.
type CredentialKind string

const (
	CredentialKindNetworkDevice CredentialKind = "network_device"
	CredentialKindRemoteAccess  CredentialKind = "remote_access"
)

// Valid reports whether the kind is known.
func (k CredentialKind) Valid() bool {
	return k == CredentialKindNetworkDevice || k == CredentialKindRemoteAccess
}

// SecretField carries a secret across the persistence boundary. Plaintext is
// only populated in memory when a caller sets it; the repository seals dirty
// fields on save and only ever loads Sealed.
type SecretField struct {
	plaintext string
	dirty     bool
	Sealed    []byte
}

// Set replaces the plaintext and marks the field modified.
func (s *SecretField) Set(plaintext string) {
	s.plaintext = plaintext
	s.dirty = true
}

// Modified reports whether Set was called since the last seal.
func (s *SecretField) Modified() bool {
	return s.dirty
}

// Plaintext returns the pending plaintext of a modified field.
func (s *SecretField) Plaintext() string {
	return s.plaintext
}

// MarkSealed stores the sealed bytes and drops the plaintext.
func (s *SecretField) MarkSealed(sealed []byte) {
	s.Sealed = sealed
	s.plaintext = ""
	s.dirty = false
}

// Empty reports whether no secret is stored or pending.
func (s *SecretField) Empty() bool {
	if s.dirty {
		return s.plaintext == ""
	}
	return len(s.Sealed) == 0
}

// CompanyCredential is a network device or remote access entry for a company.
type CompanyCredential struct {
	ID          string
	CompanyName string
	Kind        CredentialKind
	Label       string
	Type        string
	Host        string
	Port        int
	Username    string
	Notes       string
	Secret      SecretField
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
