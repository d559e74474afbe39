package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StaffService manages staff accounts and the client directory.
type StaffService struct {
	staff      repository.StaffRepository
	users      repository.UserRepository
	bcryptCost int
}

// StaffDependencies encapsulates repositories required for staff management.
type StaffDependencies struct {
	StaffRepo repository.StaffRepository
	UserRepo  repository.UserRepository
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role   *domain.StaffRole
	Active *bool
	Limit  int
	Offset int
}

// ClientListFilters define client directory parameters.
type ClientListFilters struct {
	CompanyName *string
	SearchTerm  *string
	Limit       int
	Offset      int
}

// StaffInput is the payload for creating a staff account.
type StaffInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.StaffRole
}

// StaffUpdate lists mutable staff fields. Nil leaves a field unchanged.
type StaffUpdate struct {
	Name   *string
	Role   *domain.StaffRole
	Active *bool
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.Config, deps StaffDependencies) *StaffService {
	return &StaffService{
		staff:      deps.StaffRepo,
		users:      deps.UserRepo,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateStaffMember adds a new staff account.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor *domain.StaffMember, input StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.createStaff(ctx, input)
}

// BootstrapAdmin creates an administrator without an acting admin. It is
// used by the CLI to seed the first account.
func (s *StaffService) BootstrapAdmin(ctx context.Context, name, email, password string) (*domain.StaffMember, error) {
	return s.createStaff(ctx, StaffInput{Name: name, Email: email, Password: password, Role: domain.StaffRoleAdmin})
}

func (s *StaffService) createStaff(ctx context.Context, input StaffInput) (*domain.StaffMember, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	staff := &domain.StaffMember{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListStaffMembers lists staff with filters. Any staff member may list, so
// technicians can be picked for assignment.
func (s *StaffService) ListStaffMembers(ctx context.Context, filters StaffListFilters) ([]domain.StaffMember, error) {
	repoFilter := repository.StaffFilter{
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}
	if filters.Role != nil {
		if !filters.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *filters.Role})
		}
		repoFilter.Roles = []domain.StaffRole{*filters.Role}
	}
	return s.staff.List(ctx, repoFilter)
}

// UpdateStaffMember updates staff details. Admins cannot deactivate or
// demote themselves.
func (s *StaffService) UpdateStaffMember(ctx context.Context, actor *domain.StaffMember, staffID string, update StaffUpdate) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("staff member", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name is required", nil)
		}
		staff.Name = name
	}
	if update.Role != nil {
		if !update.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *update.Role})
		}
		if staff.ID == actor.ID && *update.Role != domain.StaffRoleAdmin {
			return nil, apperrors.NewConflict("cannot demote yourself", nil)
		}
		staff.Role = *update.Role
	}
	if update.Active != nil {
		if staff.ID == actor.ID && !*update.Active {
			return nil, apperrors.NewConflict("cannot deactivate yourself", nil)
		}
		staff.Active = *update.Active
	}
	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListClients lists client accounts for staff.
func (s *StaffService) ListClients(ctx context.Context, filters ClientListFilters) ([]domain.User, error) {
	return s.users.List(ctx, repository.UserFilter{
		CompanyName: filters.CompanyName,
		SearchTerm:  filters.SearchTerm,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
	})
}
