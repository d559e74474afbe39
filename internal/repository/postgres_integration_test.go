package repository

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// These tests run against a real database and are skipped unless
// TEST_POSTGRES_DSN points at a disposable Postgres instance.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := persistence.Migrate(ctx, pool, zap.NewNop(), persistence.MigrateUp); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedTicket(t *testing.T, pool *pgxpool.Pool) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	client := &domain.User{
		Name:         "Dana",
		Email:        "dana-" + uuid.NewString() + "@example.com",
		PasswordHash: "x",
		CompanyName:  "Acme",
		Status:       domain.UserStatusActive,
	}
	if err := NewUserRepository(pool).Create(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}
	ticket := &domain.Ticket{
		ExternalKey: "TCK-" + uuid.NewString(),
		ClientID:    client.ID,
		Title:       "printer jammed",
		Description: "tray 2",
		Category:    domain.TicketCategoryHardware,
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
	}
	if err := NewTicketRepository(pool).Create(ctx, ticket, domain.ProgressEvent{Status: domain.ProgressLogged}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func appendStatus(status domain.ProgressStatus) TicketMutation {
	return func(ticket *domain.Ticket) (TicketChange, error) {
		ticket.Status = domain.TicketStatusInProgress
		return TicketChange{Progress: &domain.ProgressEvent{Status: status}}, nil
	}
}

func TestProgressUniquenessInPostgres(t *testing.T) {
	pool := testPool(t)
	repo := NewTicketRepository(pool)
	ctx := context.Background()

	cases := []struct {
		name    string
		status  domain.ProgressStatus
		wantErr error
	}{
		{"first quote", domain.ProgressQuoteSent, nil},
		{"second quote", domain.ProgressQuoteSent, ErrDuplicateProgress},
		{"first visit", domain.ProgressScheduled, nil},
		{"second visit", domain.ProgressScheduled, nil},
		{"logged again", domain.ProgressLogged, ErrDuplicateProgress},
	}
	ticket := seedTicket(t, pool)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.Mutate(ctx, ticket.ID, appendStatus(tc.status))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	got, err := repo.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Progress) != 4 {
		t.Fatalf("expected 4 progress rows, got %d", len(got.Progress))
	}
}

func TestMutateSerializesConcurrentWriters(t *testing.T) {
	pool := testPool(t)
	repo := NewTicketRepository(pool)
	ticket := seedTicket(t, pool)

	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)
	for _, status := range []domain.ProgressStatus{domain.ProgressQuoteSent, domain.ProgressHardwareOrdered} {
		wg.Add(1)
		go func(status domain.ProgressStatus) {
			defer wg.Done()
			_, err := repo.Mutate(context.Background(), ticket.ID, func(tk *domain.Ticket) (TicketChange, error) {
				mu.Lock()
				seen = append(seen, len(tk.Progress))
				mu.Unlock()
				return appendStatus(status)(tk)
			})
			if err != nil {
				t.Errorf("mutate %s: %v", status, err)
			}
		}(status)
	}
	wg.Wait()

	// The row lock makes the second writer see the first writer's entry.
	sort.Ints(seen)
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("writers observed progress lengths %v", seen)
	}
	got, err := repo.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Progress) != 3 || got.Progress[1].Seq == got.Progress[2].Seq {
		t.Fatalf("unexpected progress %+v", got.Progress)
	}
}

func TestConcurrentDuplicateProgressHasOneWinner(t *testing.T) {
	pool := testPool(t)
	repo := NewTicketRepository(pool)
	ticket := seedTicket(t, pool)

	const writers = 4
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(context.Background(), ticket.ID, appendStatus(domain.ProgressQuoteSent))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateProgress):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != writers-1 {
		t.Fatalf("ok=%d duplicates=%d", ok, dup)
	}
}

func TestCounterIncrementUnderConcurrency(t *testing.T) {
	pool := testPool(t)
	repo := NewCounterRepository(pool)
	ctx := context.Background()

	if _, err := repo.Set(ctx, domain.CounterQuote, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}

	const n = 25
	values := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := repo.Increment(ctx, domain.CounterQuote)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			values <- c.Value
		}()
	}
	wg.Wait()
	close(values)

	seen := map[int64]bool{}
	for v := range values {
		if seen[v] {
			t.Fatalf("value %d handed out twice", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct values, got %d", n, len(seen))
	}
	final, err := repo.Get(ctx, domain.CounterQuote)
	if err != nil {
		t.Fatal(err)
	}
	if final.Value != 1+n {
		t.Fatalf("final value %d, want %d", final.Value, 1+n)
	}
}
