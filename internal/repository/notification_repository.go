package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationRepository persists per-recipient notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, recipient domain.Subject, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipient domain.Subject) (int, error)
	MarkRead(ctx context.Context, recipient domain.Subject, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipient domain.Subject) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_type, recipient_id, text, ticket_id, read_flag)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		n.Recipient.Type,
		n.Recipient.ID,
		n.Text,
		n.TicketID,
		n.Read,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipient domain.Subject, limit int) ([]domain.Notification, error) {
	limit, _ = normalizePage(limit, 0, 100)
	const query = `
        SELECT id, recipient_type, recipient_id, text, ticket_id, read_flag, created_at
        FROM notifications WHERE recipient_type=$1 AND recipient_id=$2
        ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, recipient.Type, recipient.ID, limit)
	if err != nil {
		return nil, normalizeErr(err)
	}
	defer rows.Close()

	result := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.Recipient.Type,
			&n.Recipient.ID,
			&n.Text,
			&n.TicketID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipient domain.Subject) (int, error) {
	const query = `
        SELECT COUNT(*) FROM notifications
        WHERE recipient_type=$1 AND recipient_id=$2 AND read_flag = FALSE`
	var count int
	err := r.pool.QueryRow(ctx, query, recipient.Type, recipient.ID).Scan(&count)
	return count, err
}

// MarkRead flags the recipient's own notifications; ids of other recipients
// and already-read rows are left untouched.
func (r *notificationRepository) MarkRead(ctx context.Context, recipient domain.Subject, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
        UPDATE notifications SET read_flag = TRUE
        WHERE recipient_type=$1 AND recipient_id=$2 AND read_flag = FALSE AND id::text = ANY($3)`
	cmd, err := r.pool.Exec(ctx, query, recipient.Type, recipient.ID, ids)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipient domain.Subject) (int64, error) {
	const query = `
        UPDATE notifications SET read_flag = TRUE
        WHERE recipient_type=$1 AND recipient_id=$2 AND read_flag = FALSE`
	cmd, err := r.pool.Exec(ctx, query, recipient.Type, recipient.ID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
