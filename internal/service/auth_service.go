package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const minPasswordLength = 8

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo  repository.UserRepository
	StaffRepo repository.StaffRepository
}

// RegisterInput is the client self-registration payload.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	CompanyName string
}

// IssuedToken is a signed access token.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		staff:      deps.StaffRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterUser creates a new client account.
func (s *AuthService) RegisterUser(ctx context.Context, input RegisterInput) (*domain.User, IssuedToken, error) {
	name := strings.TrimSpace(input.Name)
	company := strings.TrimSpace(input.CompanyName)
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	if name == "" {
		return nil, IssuedToken{}, apperrors.NewValidationError("name is required", nil)
	}
	if company == "" {
		return nil, IssuedToken{}, apperrors.NewValidationError("companyName is required", nil)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, IssuedToken{}, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, IssuedToken{}, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CompanyName:  company,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, IssuedToken{}, apperrors.NewConflict("email already registered", nil)
		}
		return nil, IssuedToken{}, err
	}

	token, err := s.issue(user.Subject(), nil)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	return user, token, nil
}

// LoginUser authenticates a client.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*domain.User, IssuedToken, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			auth.CompareUnknownAccount(password, s.bcryptCost)
			return nil, IssuedToken{}, invalidCredentials()
		}
		return nil, IssuedToken{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, IssuedToken{}, invalidCredentials()
	}
	if user.Status != domain.UserStatusActive {
		return nil, IssuedToken{}, apperrors.NewForbidden("account suspended")
	}
	token, err := s.issue(user.Subject(), nil)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	return user, token, nil
}

// LoginStaff authenticates staff and returns role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, IssuedToken, error) {
	staff, err := s.staff.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			auth.CompareUnknownAccount(password, s.bcryptCost)
			return nil, IssuedToken{}, invalidCredentials()
		}
		return nil, IssuedToken{}, err
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, IssuedToken{}, invalidCredentials()
	}
	if !staff.Active {
		return nil, IssuedToken{}, apperrors.NewForbidden("staff account disabled")
	}
	token, err := s.issue(staff.Subject(), &staff.Role)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	return staff, token, nil
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, subject domain.Subject, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	switch subject.Type {
	case domain.SubjectTypeUser:
		user, err := s.users.GetByID(ctx, subject.ID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
			return invalidCredentials()
		}
		user.PasswordHash = hash
		return s.users.Update(ctx, user)
	case domain.SubjectTypeStaff:
		staff, err := s.staff.GetByID(ctx, subject.ID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if err := auth.ComparePassword(staff.PasswordHash, currentPassword); err != nil {
			return invalidCredentials()
		}
		staff.PasswordHash = hash
		return s.staff.Update(ctx, staff)
	default:
		return apperrors.NewValidationError("unknown subject", nil)
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(subject domain.Subject, role *domain.StaffRole) (IssuedToken, error) {
	token, exp, err := s.tokenMgr.GenerateToken(subject, role)
	if err != nil {
		return IssuedToken{}, apperrors.NewInternalError(err)
	}
	return IssuedToken{Token: token, ExpiresAt: exp}, nil
}

func invalidCredentials() error {
	return apperrors.NewUnauthorized("invalid credentials")
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", apperrors.NewValidationError("invalid email", map[string]any{"email": raw})
	}
	return strings.ToLower(addr.Address), nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.NewValidationError("password must be at least 8 characters", map[string]any{"min": minPasswordLength})
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperrors.NewValidationError("password is too long", map[string]any{"max_bytes": auth.MaxPasswordBytes})
	}
	return nil
}
