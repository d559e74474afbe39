package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CredentialRequest creates or patches an entry. On update omitted fields
// stay unchanged; an empty secret clears the stored one.
type CredentialRequest struct {
	Label    *string `json:"label"`
	Type     *string `json:"type"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Username *string `json:"username"`
	Notes    *string `json:"notes"`
	Secret   *string `json:"secret"`
}

// CredentialResponse never carries the secret itself.
type CredentialResponse struct {
	ID          string                `json:"id"`
	CompanyName string                `json:"company_name"`
	Kind        domain.CredentialKind `json:"kind"`
	Label       string                `json:"label"`
	Type        string                `json:"type"`
	Host        string                `json:"host"`
	Port        int                   `json:"port"`
	Username    string                `json:"username"`
	Notes       string                `json:"notes"`
	HasSecret   bool                  `json:"has_secret"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// SecretResponse is returned by the explicit reveal endpoint.
type SecretResponse struct {
	Secret string `json:"secret"`
}

// NewCredentialResponse maps a credential entry.
func NewCredentialResponse(c *domain.CompanyCredential) CredentialResponse {
	return CredentialResponse{
		ID:          c.ID,
		CompanyName: c.CompanyName,
		Kind:        c.Kind,
		Label:       c.Label,
		Type:        c.Type,
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Notes:       c.Notes,
		HasSecret:   !c.Secret.Empty(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
