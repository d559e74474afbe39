package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// CounterAction selects a counter operation.
type CounterAction string

const (
	CounterIncrement CounterAction = "increment"
	CounterSet       CounterAction = "set"
	CounterReset     CounterAction = "reset"
)

// CounterService issues invoice and quote numbers.
type CounterService struct {
	repo   repository.CounterRepository
	logger *zap.Logger
}

// NewCounterService constructs the service.
func NewCounterService(repo repository.CounterRepository, logger *zap.Logger) *CounterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterService{repo: repo, logger: logger}
}

// Get returns the current value, creating the counter at 1 if missing.
func (s *CounterService) Get(ctx context.Context, name domain.CounterName) (*domain.Counter, error) {
	if !name.Valid() {
		return nil, apperrors.NewNotFound("counter", map[string]any{"type": name})
	}
	return s.repo.Get(ctx, name)
}

// Increment adds one and returns the new value.
func (s *CounterService) Increment(ctx context.Context, name domain.CounterName) (*domain.Counter, error) {
	if !name.Valid() {
		return nil, apperrors.NewNotFound("counter", map[string]any{"type": name})
	}
	return s.repo.Increment(ctx, name)
}

// Set overrides the value. Values below 1 are rejected; lowering the value
// is allowed but logged since it can reissue numbers.
func (s *CounterService) Set(ctx context.Context, name domain.CounterName, value int64) (*domain.Counter, error) {
	if !name.Valid() {
		return nil, apperrors.NewNotFound("counter", map[string]any{"type": name})
	}
	if value < 1 {
		return nil, apperrors.NewValidationError("counter value must be at least 1", map[string]any{"value": value})
	}
	current, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if value <= current.Value {
		s.logger.Warn("counter set to a non-increasing value",
			zap.String("counter", string(name)),
			zap.Int64("from", current.Value),
			zap.Int64("to", value),
		)
	}
	return s.repo.Set(ctx, name, value)
}

// Reset sets the counter to value, or 1 when value is nil.
func (s *CounterService) Reset(ctx context.Context, name domain.CounterName, value *int64) (*domain.Counter, error) {
	target := int64(1)
	if value != nil {
		target = *value
	}
	return s.Set(ctx, name, target)
}

// Apply dispatches an action from the API.
func (s *CounterService) Apply(ctx context.Context, name domain.CounterName, action CounterAction, value *int64) (*domain.Counter, error) {
	if !name.Valid() {
		return nil, apperrors.NewNotFound("counter", map[string]any{"type": name})
	}
	switch action {
	case CounterIncrement:
		return s.Increment(ctx, name)
	case CounterSet:
		if value == nil {
			return nil, apperrors.NewValidationError("value is required for set", nil)
		}
		return s.Set(ctx, name, *value)
	case CounterReset:
		return s.Reset(ctx, name, value)
	default:
		return nil, apperrors.NewValidationError("invalid action", map[string]any{"action": action})
	}
}
