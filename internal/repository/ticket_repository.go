package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrDuplicateProgress is returned when a non-repeatable progress status is
// appended a second time.
var ErrDuplicateProgress = errors.New("progress status already recorded")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	ClientID     *string
	TechnicianID *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Categories   []domain.TicketCategory
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketChange describes the rows a mutation appends besides the ticket update.
type TicketChange struct {
	Progress *domain.ProgressEvent
	Comment  *domain.Comment
}

// TicketMutation runs against the locked ticket (progress loaded) and may
// modify its scalar fields. Returning an error aborts the transaction.
type TicketMutation func(ticket *domain.Ticket) (TicketChange, error)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, first domain.ProgressEvent) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Mutate(ctx context.Context, id string, fn TicketMutation) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, client_id, technician_id, title, description, category, priority,
       status, suggested_date, resolution, cancel_reason, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, first domain.ProgressEvent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
        INSERT INTO tickets (external_key, client_id, technician_id, title, description, category, priority, status, suggested_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, query,
			ticket.ExternalKey,
			ticket.ClientID,
			ticket.TechnicianID,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Priority,
			ticket.Status,
			ticket.SuggestedDate,
		).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return err
		}
		first.TicketID = ticket.ID
		if err := insertProgress(ctx, tx, &first); err != nil {
			return err
		}
		ticket.Progress = []domain.ProgressEvent{first}
		ticket.Comments = []domain.Comment{}
		return nil
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, normalizeErr(err)
	}
	if ticket.Progress, err = listProgress(ctx, r.pool, ticket.ID); err != nil {
		return nil, err
	}
	if ticket.Comments, err = listComments(ctx, r.pool, ticket.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) Mutate(ctx context.Context, id string, fn TicketMutation) (*domain.Ticket, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return normalizeErr(err)
		}
		if ticket.Progress, err = listProgress(ctx, tx, ticket.ID); err != nil {
			return err
		}

		change, err := fn(ticket)
		if err != nil {
			return err
		}

		const update = `
        UPDATE tickets SET technician_id=$1, title=$2, description=$3, category=$4, priority=$5, status=$6,
            suggested_date=$7, resolution=$8, cancel_reason=$9, closed_at=$10, updated_at=NOW()
        WHERE id=$11`
		if _, err := tx.Exec(ctx, update,
			ticket.TechnicianID,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Priority,
			ticket.Status,
			ticket.SuggestedDate,
			ticket.Resolution,
			ticket.CancelReason,
			ticket.ClosedAt,
			ticket.ID,
		); err != nil {
			return err
		}

		if change.Progress != nil {
			change.Progress.TicketID = ticket.ID
			if err := insertProgress(ctx, tx, change.Progress); err != nil {
				return err
			}
		}
		if change.Comment != nil {
			change.Comment.TicketID = ticket.ID
			if err := insertComment(ctx, tx, change.Comment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if filter.TechnicianID != nil {
		args = append(args, *filter.TechnicianID)
		clauses = append(clauses, fmt.Sprintf("technician_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, enumStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, enumStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if len(filter.Categories) > 0 {
		args = append(args, enumStrings(filter.Categories))
		clauses = append(clauses, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.SearchTerm))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(external_key) LIKE %s)", placeholder, placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 20)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	tickets, err := collectTickets(rows)
	if err != nil {
		return nil, err
	}
	return tickets, r.attachProgress(ctx, tickets)
}

// attachProgress loads progress for a page of tickets in one query.
func (r *ticketRepository) attachProgress(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	index := make(map[string]int, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
		index[tickets[i].ID] = i
		tickets[i].Progress = []domain.ProgressEvent{}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+progressColumns+` FROM ticket_progress WHERE ticket_id = ANY($1) ORDER BY seq ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		event, err := scanProgress(rows)
		if err != nil {
			return err
		}
		if i, ok := index[event.TicketID]; ok {
			tickets[i].Progress = append(tickets[i].Progress, event)
		}
	}
	return rows.Err()
}

const progressColumns = `seq, ticket_id, status, description, event_date, scheduled_date, technician_id`

func insertProgress(ctx context.Context, tx pgx.Tx, event *domain.ProgressEvent) error {
	const query = `
        INSERT INTO ticket_progress (ticket_id, status, description, event_date, scheduled_date, technician_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING seq`
	if event.Date.IsZero() {
		event.Date = time.Now().UTC()
	}
	err := tx.QueryRow(ctx, query,
		event.TicketID,
		event.Status,
		event.Description,
		event.Date,
		event.ScheduledDate,
		event.TechnicianID,
	).Scan(&event.Seq)
	if isUniqueViolation(err) {
		return ErrDuplicateProgress
	}
	return err
}

func insertComment(ctx context.Context, tx pgx.Tx, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, author_type, author_id, content)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return tx.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorType,
		comment.AuthorID,
		comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt)
}

func listProgress(ctx context.Context, q querier, ticketID string) ([]domain.ProgressEvent, error) {
	rows, err := q.Query(ctx, `SELECT `+progressColumns+` FROM ticket_progress WHERE ticket_id=$1 ORDER BY seq ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.ProgressEvent{}
	for rows.Next() {
		event, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func listComments(ctx context.Context, q querier, ticketID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, author_type, author_id, content, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorType, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanProgress(row pgx.Row) (domain.ProgressEvent, error) {
	var event domain.ProgressEvent
	err := row.Scan(
		&event.Seq,
		&event.TicketID,
		&event.Status,
		&event.Description,
		&event.Date,
		&event.ScheduledDate,
		&event.TechnicianID,
	)
	return event, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.ClientID,
		&ticket.TechnicianID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.SuggestedDate,
		&ticket.Resolution,
		&ticket.CancelReason,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func collectTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
