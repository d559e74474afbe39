package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CounterRepository stores billing sequences. Every method is a single
// statement so concurrent callers never observe a lost update.
type CounterRepository interface {
	Get(ctx context.Context, name domain.CounterName) (*domain.Counter, error)
	Increment(ctx context.Context, name domain.CounterName) (*domain.Counter, error)
	Set(ctx context.Context, name domain.CounterName, value int64) (*domain.Counter, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository builds repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Get(ctx context.Context, name domain.CounterName) (*domain.Counter, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING name, value, updated_at`
	return r.scan(ctx, query, name)
}

func (r *counterRepository) Increment(ctx context.Context, name domain.CounterName) (*domain.Counter, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, 2)
        ON CONFLICT (name) DO UPDATE SET value = counters.value + 1, updated_at = NOW()
        RETURNING name, value, updated_at`
	return r.scan(ctx, query, name)
}

func (r *counterRepository) Set(ctx context.Context, name domain.CounterName, value int64) (*domain.Counter, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
        RETURNING name, value, updated_at`
	return r.scan(ctx, query, name, value)
}

func (r *counterRepository) scan(ctx context.Context, query string, args ...any) (*domain.Counter, error) {
	var c domain.Counter
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&c.Name, &c.Value, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
