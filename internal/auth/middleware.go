package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	User        *domain.User
	Staff       *domain.StaffMember
}

// Subject returns the caller as a domain subject.
func (p *Principal) Subject() domain.Subject {
	if p.Staff != nil {
		return p.Staff.Subject()
	}
	if p.User != nil {
		return p.User.Subject()
	}
	return domain.Subject{Type: p.SubjectType}
}

// IsStaff reports whether the caller is a staff member.
func (p *Principal) IsStaff() bool {
	return p.SubjectType == domain.SubjectTypeStaff && p.Staff != nil
}

// IsAdmin reports whether the caller is an administrator.
func (p *Principal) IsAdmin() bool {
	return p.IsStaff() && p.Staff.Role == domain.StaffRoleAdmin
}

// UserLookup loads clients by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// StaffLookup loads staff members by id.
type StaffLookup interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

var (
	_ UserLookup  = (repository.UserRepository)(nil)
	_ StaffLookup = (repository.StaffRepository)(nil)
)

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  UserLookup
	staff  StaffLookup
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users UserLookup, staff StaffLookup) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	principal, err := m.Authenticate(c.UserContext(), strings.TrimSpace(parts[1]))
	if err != nil {
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate resolves a raw token into a principal. Suspended clients and
// deactivated staff are rejected.
func (m *AuthMiddleware) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorized("missing token")
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.SubjectType}

	switch claims.SubjectType {
	case domain.SubjectTypeUser:
		user, err := m.users.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewUnauthorized("user not found")
			}
			return nil, apperrors.MapError(err)
		}
		if user.Status != domain.UserStatusActive {
			return nil, apperrors.NewUnauthorized("account suspended")
		}
		principal.User = user
	case domain.SubjectTypeStaff:
		staff, err := m.staff.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewUnauthorized("staff not found")
			}
			return nil, apperrors.MapError(err)
		}
		if !staff.Active {
			return nil, apperrors.NewUnauthorized("account disabled")
		}
		principal.Staff = staff
	default:
		return nil, apperrors.NewUnauthorized("unknown subject")
	}
	return principal, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
