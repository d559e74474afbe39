package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	defaultNotificationLimit = 50
	maxNotificationText      = 500
	adminPageSize            = 100
)

// Presenter renders domain values for realtime frames. Nil functions fall
// back to the raw domain value.
type Presenter struct {
	Ticket       func(*domain.Ticket) any
	Notification func(*domain.Notification) any
}

func (p Presenter) ticket(t *domain.Ticket) any {
	if p.Ticket == nil {
		return t
	}
	return p.Ticket(t)
}

func (p Presenter) notification(n *domain.Notification) any {
	if p.Notification == nil {
		return n
	}
	return p.Notification(n)
}

// TicketUpdatedFrame is the payload of realtime.EventTicketUpdated.
type TicketUpdatedFrame struct {
	Ticket           any    `json:"ticket"`
	NotificationText string `json:"notificationText,omitempty"`
}

// NewTicketFrame is the payload of realtime.EventAdminNewTicket.
type NewTicketFrame struct {
	TicketID string `json:"ticketId"`
}

// NotificationFrame is the payload of realtime.EventNotificationNew.
type NotificationFrame struct {
	Notification any `json:"notification"`
}

// NotificationService turns ticket events into realtime frames and
// persisted per-recipient notifications.
type NotificationService struct {
	dispatcher    events.Dispatcher
	notifications repository.NotificationRepository
	users         repository.UserRepository
	staff         repository.StaffRepository
	broadcaster   realtime.Broadcaster
	presenter     Presenter
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher       events.Dispatcher
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	StaffRepo        repository.StaffRepository
	Broadcaster      realtime.Broadcaster
	Presenter        Presenter
	Logger           *zap.Logger
}

// NotificationList is a recipient's notifications with the unread total.
type NotificationList struct {
	Items       []domain.Notification
	UnreadCount int
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:    deps.Dispatcher,
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		staff:         deps.StaffRepo,
		broadcaster:   deps.Broadcaster,
		presenter:     deps.Presenter,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handleTicketEvent)
}

func (n *NotificationService) handleTicketEvent(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if ticket == nil {
		return fmt.Errorf("event %s carries no ticket", event.ID)
	}
	text := NotificationText(event)
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.String("actor_id", event.Actor.ID),
	)

	frame := TicketUpdatedFrame{
		Ticket:           n.presenter.ticket(ticket),
		NotificationText: text,
	}
	n.emit(ctx, ticket.Room(), realtime.EventTicketUpdated, frame)
	switch event.Type {
	case events.EventTicketCreated:
		n.emit(ctx, domain.AdminRoom, realtime.EventAdminNewTicket, NewTicketFrame{TicketID: ticket.ID})
	case events.EventProgressAppended, events.EventTicketAssigned, events.EventTicketClosed, events.EventTicketCancelled:
		// The admin dashboard follows every progress change without joining ticket rooms.
		n.emit(ctx, domain.AdminRoom, realtime.EventTicketUpdated, frame)
	}

	recipients, err := n.recipients(ctx, event)
	if err != nil {
		return err
	}
	var errs []error
	for _, recipient := range recipients {
		notification := &domain.Notification{
			Recipient: recipient,
			Text:      text,
			TicketID:  &ticket.ID,
		}
		if err := n.deliver(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recipients applies the fan-out rule: a client's action notifies the
// assigned technician and every active admin; a staff action notifies the
// client and the assigned technician. The actor is never notified.
func (n *NotificationService) recipients(ctx context.Context, event events.Event) ([]domain.Subject, error) {
	ticket := event.Ticket
	seen := map[domain.Subject]struct{}{event.Actor: {}}
	var out []domain.Subject
	add := func(s domain.Subject) {
		if s.ID == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if ticket.TechnicianID != nil {
		add(domain.Subject{Type: domain.SubjectTypeStaff, ID: *ticket.TechnicianID})
	}
	if event.Actor.Type == domain.SubjectTypeStaff {
		add(domain.Subject{Type: domain.SubjectTypeUser, ID: ticket.ClientID})
		return out, nil
	}

	active := true
	filter := repository.StaffFilter{
		Roles:  []domain.StaffRole{domain.StaffRoleAdmin},
		Active: &active,
		Limit:  adminPageSize,
	}
	for {
		admins, err := n.staff.List(ctx, filter)
		if err != nil {
			return out, fmt.Errorf("list admins: %w", err)
		}
		for i := range admins {
			add(admins[i].Subject())
		}
		if len(admins) < adminPageSize {
			return out, nil
		}
		filter.Offset += adminPageSize
	}
}

func (n *NotificationService) deliver(ctx context.Context, notification *domain.Notification) error {
	if err := n.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification for %s %s: %w", notification.Recipient.Type, notification.Recipient.ID, err)
	}
	n.emit(ctx, domain.UserRoom(notification.Recipient), realtime.EventNotificationNew, NotificationFrame{
		Notification: n.presenter.notification(notification),
	})
	return nil
}

func (n *NotificationService) emit(ctx context.Context, room, event string, data any) {
	if n.broadcaster == nil {
		return
	}
	n.broadcaster.Emit(ctx, room, event, data)
}

// List returns the recipient's latest notifications and unread count.
func (n *NotificationService) List(ctx context.Context, recipient domain.Subject, limit int) (*NotificationList, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	items, err := n.notifications.ListByRecipient(ctx, recipient, limit)
	if err != nil {
		return nil, err
	}
	unread, err := n.notifications.CountUnread(ctx, recipient)
	if err != nil {
		return nil, err
	}
	return &NotificationList{Items: items, UnreadCount: unread}, nil
}

// MarkRead marks the given notifications read and returns the remaining
// unread count. Unknown, foreign or already-read ids are ignored.
func (n *NotificationService) MarkRead(ctx context.Context, recipient domain.Subject, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
			valid = append(valid, strings.TrimSpace(id))
		}
	}
	if len(ids) > 0 && len(valid) == 0 {
		return 0, apperrors.NewValidationError("no valid notification ids", nil)
	}
	if len(valid) > 0 {
		if _, err := n.notifications.MarkRead(ctx, recipient, valid); err != nil {
			return 0, err
		}
	}
	return n.notifications.CountUnread(ctx, recipient)
}

// MarkAllRead marks every notification of the recipient read.
func (n *NotificationService) MarkAllRead(ctx context.Context, recipient domain.Subject) (int, error) {
	if _, err := n.notifications.MarkAllRead(ctx, recipient); err != nil {
		return 0, err
	}
	return n.notifications.CountUnread(ctx, recipient)
}

// CreateNotification sends a manual notification from staff to any recipient.
func (n *NotificationService) CreateNotification(ctx context.Context, recipient domain.Subject, text string, ticketID *string) (*domain.Notification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	if len(text) > maxNotificationText {
		return nil, apperrors.NewValidationError("text is too long", map[string]any{"max": maxNotificationText})
	}
	if err := n.requireRecipient(ctx, recipient); err != nil {
		return nil, err
	}
	if ticketID != nil && strings.TrimSpace(*ticketID) == "" {
		ticketID = nil
	}

	notification := &domain.Notification{Recipient: recipient, Text: text, TicketID: ticketID}
	if err := n.deliver(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

func (n *NotificationService) requireRecipient(ctx context.Context, recipient domain.Subject) error {
	var err error
	switch recipient.Type {
	case domain.SubjectTypeUser:
		_, err = n.users.GetByID(ctx, recipient.ID)
	case domain.SubjectTypeStaff:
		_, err = n.staff.GetByID(ctx, recipient.ID)
	default:
		return apperrors.NewValidationError("invalid recipient type", map[string]any{"type": recipient.Type})
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewValidationError("recipient not found", map[string]any{"id": recipient.ID})
	}
	return err
}

// NotificationText renders the human readable line for a ticket event.
func NotificationText(event events.Event) string {
	key := event.TicketID
	if event.Ticket != nil && event.Ticket.ExternalKey != "" {
		key = event.Ticket.ExternalKey
	}

	switch event.Type {
	case events.EventTicketCreated:
		title := ""
		if event.Ticket != nil {
			title = event.Ticket.Title
		}
		return fmt.Sprintf("New ticket %s: %s", key, stringPreview(title, 80))
	case events.EventProgressAppended:
		if p, ok := event.Payload.(events.ProgressAppendedPayload); ok {
			if p.Status == domain.ProgressScheduled && p.ScheduledDate != nil {
				return fmt.Sprintf("Ticket %s scheduled for %s", key, p.ScheduledDate.Format("2006-01-02 15:04 MST"))
			}
			return fmt.Sprintf("Ticket %s progress: %s", key, p.Status)
		}
	case events.EventTicketAssigned:
		if p, ok := event.Payload.(events.TicketAssignedPayload); ok {
			return fmt.Sprintf("Ticket %s assigned to %s", key, p.TechnicianName)
		}
	case events.EventCommentAdded:
		return fmt.Sprintf("New comment on ticket %s", key)
	case events.EventTicketClosed:
		return fmt.Sprintf("Ticket %s has been closed", key)
	case events.EventTicketCancelled:
		if p, ok := event.Payload.(events.TicketCancelledPayload); ok {
			return fmt.Sprintf("Ticket %s was cancelled: %s", key, stringPreview(p.Reason, 120))
		}
	case events.EventTicketUpdated:
		if p, ok := event.Payload.(events.TicketUpdatedPayload); ok && p.OldStatus != p.NewStatus {
			return fmt.Sprintf("Ticket %s status changed to %s", key, p.NewStatus)
		}
	}
	return fmt.Sprintf("Ticket %s was updated", key)
}
