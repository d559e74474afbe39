package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/secure"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// SecretOpener decrypts a sealed secret bound to its record id.
type SecretOpener interface {
	Open(blob []byte, recordID string) ([]byte, error)
}

// CredentialInput is the payload for a new credential entry.
type CredentialInput struct {
	Label    string
	Type     string
	Host     string
	Port     int
	Username string
	Notes    string
	Secret   string
}

// CredentialPatch lists mutable fields. Nil leaves a field unchanged; an
// empty Secret clears the stored secret.
type CredentialPatch struct {
	Label    *string
	Type     *string
	Host     *string
	Port     *int
	Username *string
	Notes    *string
	Secret   *string
}

// CredentialService manages per-company network device and remote access entries.
type CredentialService struct {
	repo   repository.CredentialRepository
	opener SecretOpener
	logger *zap.Logger
}

// NewCredentialService constructs the service.
func NewCredentialService(repo repository.CredentialRepository, opener SecretOpener, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{repo: repo, opener: opener, logger: logger}
}

// List returns the company's entries of one kind.
func (s *CredentialService) List(ctx context.Context, company string, kind domain.CredentialKind) ([]domain.CompanyCredential, error) {
	company, err := requireCompany(company, kind)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCompany(ctx, company, kind)
}

// Create stores a new entry; the secret is sealed by the repository.
func (s *CredentialService) Create(ctx context.Context, company string, kind domain.CredentialKind, input CredentialInput) (*domain.CompanyCredential, error) {
	company, err := requireCompany(company, kind)
	if err != nil {
		return nil, err
	}
	cred := &domain.CompanyCredential{
		CompanyName: company,
		Kind:        kind,
		Label:       strings.TrimSpace(input.Label),
		Type:        strings.TrimSpace(input.Type),
		Host:        strings.TrimSpace(input.Host),
		Port:        input.Port,
		Username:    strings.TrimSpace(input.Username),
		Notes:       input.Notes,
	}
	if err := validateCredential(cred); err != nil {
		return nil, err
	}
	if input.Secret != "" {
		cred.Secret.Set(input.Secret)
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, s.mapCryptoErr(err, cred.ID)
	}
	return cred, nil
}

// Update applies a patch. The secret is resealed only when provided.
func (s *CredentialService) Update(ctx context.Context, company string, kind domain.CredentialKind, id string, patch CredentialPatch) (*domain.CompanyCredential, error) {
	cred, err := s.get(ctx, company, kind, id)
	if err != nil {
		return nil, err
	}
	if patch.Label != nil {
		cred.Label = strings.TrimSpace(*patch.Label)
	}
	if patch.Type != nil {
		cred.Type = strings.TrimSpace(*patch.Type)
	}
	if patch.Host != nil {
		cred.Host = strings.TrimSpace(*patch.Host)
	}
	if patch.Port != nil {
		cred.Port = *patch.Port
	}
	if patch.Username != nil {
		cred.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Notes != nil {
		cred.Notes = *patch.Notes
	}
	if err := validateCredential(cred); err != nil {
		return nil, err
	}
	if patch.Secret != nil {
		cred.Secret.Set(*patch.Secret)
	}
	if err := s.repo.Update(ctx, cred); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("credential", nil)
		}
		return nil, s.mapCryptoErr(err, cred.ID)
	}
	return cred, nil
}

// Delete removes an entry.
func (s *CredentialService) Delete(ctx context.Context, company string, kind domain.CredentialKind, id string) error {
	cred, err := s.get(ctx, company, kind, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, cred.CompanyName, cred.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("credential", nil)
		}
		return err
	}
	return nil
}

// Reveal decrypts the stored secret. An entry without a secret yields "".
func (s *CredentialService) Reveal(ctx context.Context, company string, kind domain.CredentialKind, id string) (string, error) {
	cred, err := s.get(ctx, company, kind, id)
	if err != nil {
		return "", err
	}
	if len(cred.Secret.Sealed) == 0 {
		return "", nil
	}
	plaintext, err := s.opener.Open(cred.Secret.Sealed, cred.ID)
	if err != nil {
		return "", s.mapCryptoErr(err, cred.ID)
	}
	return string(plaintext), nil
}

func (s *CredentialService) get(ctx context.Context, company string, kind domain.CredentialKind, id string) (*domain.CompanyCredential, error) {
	company, err := requireCompany(company, kind)
	if err != nil {
		return nil, err
	}
	cred, err := s.repo.GetByID(ctx, company, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("credential", nil)
		}
		return nil, err
	}
	if cred.Kind != kind {
		return nil, apperrors.NewNotFound("credential", nil)
	}
	return cred, nil
}

// mapCryptoErr turns key problems into opaque 500s. They are configuration
// faults, never caller errors.
func (s *CredentialService) mapCryptoErr(err error, id string) error {
	if errors.Is(err, secure.ErrMissingKey) || errors.Is(err, secure.ErrDecrypt) {
		s.logger.Error("credential crypto failure", zap.String("credential_id", id), zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	return err
}

func requireCompany(company string, kind domain.CredentialKind) (string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return "", apperrors.NewValidationError("company name is required", nil)
	}
	if !kind.Valid() {
		return "", apperrors.NewValidationError("invalid credential kind", map[string]any{"kind": kind})
	}
	return company, nil
}

func validateCredential(cred *domain.CompanyCredential) error {
	if cred.Label == "" {
		return apperrors.NewValidationError("label is required", nil)
	}
	if cred.Port < 0 || cred.Port > 65535 {
		return apperrors.NewValidationError("port out of range", map[string]any{"port": cred.Port})
	}
	return nil
}
