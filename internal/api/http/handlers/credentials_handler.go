package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// CredentialsHandler manages a company's credential entries of one kind.
// The router mounts one instance for network devices and one for remote
// access.
type CredentialsHandler struct {
	credentials *service.CredentialService
	kind        domain.CredentialKind
}

// NewCredentialsHandler constructs a handler bound to kind.
func NewCredentialsHandler(credentialService *service.CredentialService, kind domain.CredentialKind) *CredentialsHandler {
	return &CredentialsHandler{credentials: credentialService, kind: kind}
}

// List handles GET .../companies/:name/<kind>.
func (h *CredentialsHandler) List(c *fiber.Ctx) error {
	list, err := h.credentials.List(c.UserContext(), c.Params("name"), h.kind)
	if err != nil {
		return err
	}
	resp := make([]dto.CredentialResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewCredentialResponse(&list[i]))
	}
	return respond(c, resp)
}

// Create handles POST .../companies/:name/<kind>.
func (h *CredentialsHandler) Create(c *fiber.Ctx) error {
	var req dto.CredentialRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input := service.CredentialInput{
		Label:    deref(req.Label),
		Type:     deref(req.Type),
		Host:     deref(req.Host),
		Username: deref(req.Username),
		Notes:    deref(req.Notes),
		Secret:   deref(req.Secret),
	}
	if req.Port != nil {
		input.Port = *req.Port
	}
	cred, err := h.credentials.Create(c.UserContext(), c.Params("name"), h.kind, input)
	if err != nil {
		return err
	}
	return created(c, dto.NewCredentialResponse(cred))
}

// Update handles PUT .../companies/:name/<kind>/:id.
func (h *CredentialsHandler) Update(c *fiber.Ctx) error {
	var req dto.CredentialRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cred, err := h.credentials.Update(c.UserContext(), c.Params("name"), h.kind, c.Params("id"), service.CredentialPatch{
		Label:    req.Label,
		Type:     req.Type,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Notes:    req.Notes,
		Secret:   req.Secret,
	})
	if err != nil {
		return err
	}
	return respond(c, dto.NewCredentialResponse(cred))
}

// Delete handles DELETE .../companies/:name/<kind>/:id.
func (h *CredentialsHandler) Delete(c *fiber.Ctx) error {
	if err := h.credentials.Delete(c.UserContext(), c.Params("name"), h.kind, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Reveal handles GET .../companies/:name/<kind>/:id/secret.
func (h *CredentialsHandler) Reveal(c *fiber.Ctx) error {
	secret, err := h.credentials.Reveal(c.UserContext(), c.Params("name"), h.kind, c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return respond(c, dto.SecretResponse{Secret: secret})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
