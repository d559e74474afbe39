package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	maxTitleLength   = 200
	maxContentLength = 5000
)

// TicketService coordinates ticket workflows. Every mutation runs inside
// TicketRepository.Mutate so checks see the locked row.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	StaffRepo  repository.StaffRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title         string
	Description   string
	Category      domain.TicketCategory
	Priority      domain.TicketPriority
	SuggestedDate *time.Time
}

// TicketClientUpdate lists the fields a client may edit. Nil leaves a field unchanged.
type TicketClientUpdate struct {
	Title              *string
	Description        *string
	Category           *domain.TicketCategory
	Priority           *domain.TicketPriority
	SuggestedDate      *time.Time
	ClearSuggestedDate bool
}

// TicketStaffUpdate lists the fields staff may edit directly.
type TicketStaffUpdate struct {
	Category *domain.TicketCategory
	Priority *domain.TicketPriority
	Status   *domain.TicketStatus
}

// ProgressInput describes a progress append.
type ProgressInput struct {
	Status        domain.ProgressStatus
	Description   string
	TechnicianID  *string
	ScheduledDate *time.Time
}

// TicketListFilter describes listing filters shared by clients and staff.
type TicketListFilter struct {
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

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateTicket creates a ticket for a client with the implicit "logged" step.
func (s *TicketService) CreateTicket(ctx context.Context, client *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	ticket, err := s.createTicket(ctx, client, input)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketCreated, client.Subject(), ticket, nil))
	return ticket, nil
}

// CreateTicketForClient lets staff file a ticket on a client's behalf.
func (s *TicketService) CreateTicketForClient(ctx context.Context, actor *domain.StaffMember, clientID string, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.NewValidationError("clientId is required", nil)
	}
	client, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("client not found", map[string]any{"clientId": clientID})
		}
		return nil, err
	}
	if client.Status != domain.UserStatusActive {
		return nil, apperrors.NewValidationError("client account is suspended", map[string]any{"clientId": clientID})
	}
	ticket, err := s.createTicket(ctx, client, input)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketCreated, actor.Subject(), ticket, nil))
	return ticket, nil
}

func (s *TicketService) createTicket(ctx context.Context, client *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", nil)
	}

	category := input.Category
	if category == "" {
		category = domain.TicketCategoryOther
	}
	if !category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": category})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	now := s.now()
	ticket := &domain.Ticket{
		ExternalKey:   generateTicketKey(),
		ClientID:      client.ID,
		Title:         title,
		Description:   description,
		Category:      category,
		Priority:      priority,
		Status:        domain.TicketStatusOpen,
		SuggestedDate: normalizeOptionalTime(input.SuggestedDate),
	}
	first := domain.ProgressEvent{
		Status:      domain.ProgressLogged,
		Description: "Ticket logged",
		Date:        now,
	}
	if err := s.tickets.Create(ctx, ticket, first); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

// ListClientTickets lists the caller's own tickets.
func (s *TicketService) ListClientTickets(ctx context.Context, clientID string, filter TicketListFilter) ([]domain.Ticket, error) {
	filter.ClientID = &clientID
	return s.listTickets(ctx, filter)
}

// ListStaffTickets lists every ticket matching the filter.
func (s *TicketService) ListStaffTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.listTickets(ctx, filter)
}

func (s *TicketService) listTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": st})
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": p})
		}
	}
	for _, c := range filter.Categories {
		if !c.Valid() {
			return nil, apperrors.NewValidationError("invalid category filter", map[string]any{"category": c})
		}
	}
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		ClientID:     filter.ClientID,
		TechnicianID: filter.TechnicianID,
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		Categories:   filter.Categories,
		SearchTerm:   filter.SearchTerm,
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// GetTicketForClient returns the ticket when the client owns it. Foreign
// tickets are reported as not found.
func (s *TicketService) GetTicketForClient(ctx context.Context, clientID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketErr(err)
	}
	if ticket.ClientID != clientID {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

// GetTicketForStaff returns any ticket.
func (s *TicketService) GetTicketForStaff(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketErr(err)
	}
	return ticket, nil
}

// CanWatchTicket decides whether the caller may join the ticket's realtime room.
func (s *TicketService) CanWatchTicket(ctx context.Context, principal *auth.Principal, ticketID string) (bool, error) {
	if principal.IsStaff() {
		return true, nil
	}
	if principal.User == nil {
		return false, nil
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ticket.ClientID == principal.User.ID, nil
}

// AppendProgress records a progress step. "closed" closes the ticket and
// "assigned" assigns the given technician.
func (s *TicketService) AppendProgress(ctx context.Context, actor *domain.StaffMember, ticketID string, input ProgressInput) (*domain.Ticket, error) {
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid progress status", map[string]any{"status": input.Status})
	}
	description := strings.TrimSpace(input.Description)

	switch input.Status {
	case domain.ProgressClosed:
		return s.CloseTicket(ctx, actor, ticketID, description)
	case domain.ProgressAssigned:
		if input.TechnicianID == nil || strings.TrimSpace(*input.TechnicianID) == "" {
			return nil, apperrors.NewValidationError("technicianId is required for assigned", nil)
		}
		return s.AssignTechnician(ctx, actor, ticketID, *input.TechnicianID, description)
	case domain.ProgressLogged:
		return nil, apperrors.NewValidationError("logged is recorded when the ticket is created", nil)
	case domain.ProgressScheduled:
		if input.ScheduledDate == nil || input.ScheduledDate.IsZero() {
			return nil, apperrors.NewValidationError("scheduledDate is required for scheduled", nil)
		}
	}

	var technicianID *string
	if input.TechnicianID != nil && strings.TrimSpace(*input.TechnicianID) != "" {
		tech, err := s.requireTechnician(ctx, *input.TechnicianID)
		if err != nil {
			return nil, err
		}
		technicianID = &tech.ID
	}

	event := &domain.ProgressEvent{
		Status:        input.Status,
		Description:   description,
		Date:          s.now(),
		TechnicianID:  technicianID,
		ScheduledDate: normalizeOptionalTime(input.ScheduledDate),
	}
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		if !event.Status.Repeatable() && t.HasProgress(event.Status) {
			return repository.TicketChange{}, duplicateConflict(event.Status)
		}
		if t.Status == domain.TicketStatusOpen {
			t.Status = domain.TicketStatusInProgress
		}
		return repository.TicketChange{Progress: event}, nil
	})
	if err != nil {
		return nil, mapProgressErr(err, input.Status)
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventProgressAppended, actor.Subject(), ticket, events.ProgressAppendedPayload{
		Status:        event.Status,
		Description:   event.Description,
		ScheduledDate: event.ScheduledDate,
	}))
	return ticket, nil
}

// AssignTechnician sets the ticket's technician. The first assignment
// appends an "assigned" step; later ones only change the technician.
func (s *TicketService) AssignTechnician(ctx context.Context, actor *domain.StaffMember, ticketID, technicianID, note string) (*domain.Ticket, error) {
	tech, err := s.requireTechnician(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	var previous *string
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		previous = t.TechnicianID
		t.TechnicianID = &tech.ID
		if t.Status == domain.TicketStatusOpen {
			t.Status = domain.TicketStatusInProgress
		}
		if t.HasProgress(domain.ProgressAssigned) {
			return repository.TicketChange{}, nil
		}
		description := strings.TrimSpace(note)
		if description == "" {
			description = "Assigned to " + tech.Name
		}
		return repository.TicketChange{Progress: &domain.ProgressEvent{
			Status:       domain.ProgressAssigned,
			Description:  description,
			Date:         s.now(),
			TechnicianID: &tech.ID,
		}}, nil
	})
	if err != nil {
		return nil, mapProgressErr(err, domain.ProgressAssigned)
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketAssigned, actor.Subject(), ticket, events.TicketAssignedPayload{
		TechnicianID:       tech.ID,
		TechnicianName:     tech.Name,
		PreviousTechnician: previous,
	}))
	return ticket, nil
}

// AddComment appends to the ticket thread. Clients may only comment on
// their own tickets.
func (s *TicketService) AddComment(ctx context.Context, actor *auth.Principal, ticketID, content string) (*domain.Ticket, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}
	if len(content) > maxContentLength {
		return nil, apperrors.NewValidationError("content is too long", map[string]any{"max": maxContentLength})
	}
	subject := actor.Subject()

	comment := &domain.Comment{
		AuthorType: subject.Type,
		AuthorID:   subject.ID,
		Content:    content,
	}
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if !actor.IsStaff() && t.ClientID != subject.ID {
			return repository.TicketChange{}, apperrors.NewNotFound("ticket", nil)
		}
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		return repository.TicketChange{Comment: comment}, nil
	})
	if err != nil {
		return nil, mapTicketErr(err)
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventCommentAdded, subject, ticket, events.CommentAddedPayload{
		CommentID:   comment.ID,
		BodyPreview: stringPreview(content, 140),
	}))
	return ticket, nil
}

// CloseTicket closes the ticket with an optional resolution and appends the
// "closed" step.
func (s *TicketService) CloseTicket(ctx context.Context, actor *domain.StaffMember, ticketID, resolution string) (*domain.Ticket, error) {
	resolution = strings.TrimSpace(resolution)
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		now := s.now()
		t.Status = domain.TicketStatusClosed
		t.Resolution = resolution
		t.ClosedAt = &now
		if t.HasProgress(domain.ProgressClosed) {
			return repository.TicketChange{}, nil
		}
		description := resolution
		if description == "" {
			description = "Ticket closed"
		}
		return repository.TicketChange{Progress: &domain.ProgressEvent{
			Status:      domain.ProgressClosed,
			Description: description,
			Date:        now,
		}}, nil
	})
	if err != nil {
		return nil, mapProgressErr(err, domain.ProgressClosed)
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketClosed, actor.Subject(), ticket, events.TicketClosedPayload{Resolution: resolution}))
	return ticket, nil
}

// CancelTicket cancels a non-terminal ticket. Staff may cancel any ticket,
// clients only their own. A reason is mandatory.
func (s *TicketService) CancelTicket(ctx context.Context, actor *auth.Principal, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("reason is required", nil)
	}
	subject := actor.Subject()

	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if !actor.IsStaff() && t.ClientID != subject.ID {
			return repository.TicketChange{}, apperrors.NewNotFound("ticket", nil)
		}
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		now := s.now()
		t.Status = domain.TicketStatusCancelled
		t.CancelReason = reason
		t.ClosedAt = &now
		return repository.TicketChange{}, nil
	})
	if err != nil {
		return nil, mapTicketErr(err)
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketCancelled, subject, ticket, events.TicketCancelledPayload{Reason: reason}))
	return ticket, nil
}

// UpdateTicketAsClient edits the descriptive fields of the client's own ticket.
func (s *TicketService) UpdateTicketAsClient(ctx context.Context, client *domain.User, ticketID string, update TicketClientUpdate) (*domain.Ticket, error) {
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if err := validateTitle(trimmed); err != nil {
			return nil, err
		}
		update.Title = &trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("description is required", nil)
		}
		update.Description = &trimmed
	}
	if update.Category != nil && !update.Category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": *update.Category})
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *update.Priority})
	}

	var fields []string
	var oldStatus domain.TicketStatus
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if t.ClientID != client.ID {
			return repository.TicketChange{}, apperrors.NewNotFound("ticket", nil)
		}
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		oldStatus = t.Status
		if update.Title != nil && *update.Title != t.Title {
			t.Title = *update.Title
			fields = append(fields, "title")
		}
		if update.Description != nil && *update.Description != t.Description {
			t.Description = *update.Description
			fields = append(fields, "description")
		}
		if update.Category != nil && *update.Category != t.Category {
			t.Category = *update.Category
			fields = append(fields, "category")
		}
		if update.Priority != nil && *update.Priority != t.Priority {
			t.Priority = *update.Priority
			fields = append(fields, "priority")
		}
		if update.ClearSuggestedDate {
			if t.SuggestedDate != nil {
				t.SuggestedDate = nil
				fields = append(fields, "suggestedDate")
			}
		} else if update.SuggestedDate != nil {
			t.SuggestedDate = normalizeOptionalTime(update.SuggestedDate)
			fields = append(fields, "suggestedDate")
		}
		return repository.TicketChange{}, nil
	})
	if err != nil {
		return nil, mapTicketErr(err)
	}

	if len(fields) > 0 {
		s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketUpdated, client.Subject(), ticket, events.TicketUpdatedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Fields:    fields,
		}))
	}
	return ticket, nil
}

// UpdateTicketAsStaff edits triage fields. Status may move between open,
// in-progress and resolved; closing and cancelling have dedicated operations.
func (s *TicketService) UpdateTicketAsStaff(ctx context.Context, actor *domain.StaffMember, ticketID string, update TicketStaffUpdate) (*domain.Ticket, error) {
	if update.Category != nil && !update.Category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": *update.Category})
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *update.Priority})
	}
	if update.Status != nil {
		switch *update.Status {
		case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved:
		case domain.TicketStatusClosed, domain.TicketStatusCancelled:
			return nil, apperrors.NewValidationError("use the close or cancel operation", map[string]any{"status": *update.Status})
		default:
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *update.Status})
		}
	}

	var fields []string
	var oldStatus domain.TicketStatus
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.TicketChange, error) {
		if t.IsTerminal() {
			return repository.TicketChange{}, terminalConflict(t)
		}
		oldStatus = t.Status
		if update.Category != nil && *update.Category != t.Category {
			t.Category = *update.Category
			fields = append(fields, "category")
		}
		if update.Priority != nil && *update.Priority != t.Priority {
			t.Priority = *update.Priority
			fields = append(fields, "priority")
		}
		if update.Status != nil && *update.Status != t.Status {
			t.Status = *update.Status
			fields = append(fields, "status")
		}
		return repository.TicketChange{}, nil
	})
	if err != nil {
		return nil, mapTicketErr(err)
	}

	if len(fields) > 0 {
		s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketUpdated, actor.Subject(), ticket, events.TicketUpdatedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Fields:    fields,
		}))
	}
	return ticket, nil
}

func (s *TicketService) requireTechnician(ctx context.Context, id string) (*domain.StaffMember, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewValidationError("technicianId is required", nil)
	}
	tech, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("technician not found", map[string]any{"technicianId": id})
		}
		return nil, err
	}
	if tech.Role != domain.StaffRoleTechnician || !tech.Active {
		return nil, apperrors.NewValidationError("user is not an active technician", map[string]any{"technicianId": id})
	}
	return tech, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	// Handlers must outlive the request context.
	_ = s.dispatcher.Publish(context.WithoutCancel(ctx), event)
}

func validateTitle(title string) error {
	if title == "" {
		return apperrors.NewValidationError("title is required", nil)
	}
	if len(title) > maxTitleLength {
		return apperrors.NewValidationError("title is too long", map[string]any{"max": maxTitleLength})
	}
	return nil
}

func terminalConflict(t *domain.Ticket) error {
	return apperrors.NewConflict("ticket is "+string(t.Status), map[string]any{"status": t.Status})
}

func duplicateConflict(status domain.ProgressStatus) error {
	return apperrors.NewConflict("progress step already recorded", map[string]any{"status": status})
}

func mapTicketErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", nil)
	}
	return err
}

func mapProgressErr(err error, status domain.ProgressStatus) error {
	if errors.Is(err, repository.ErrDuplicateProgress) {
		return duplicateConflict(status)
	}
	return mapTicketErr(err)
}

func normalizeOptionalTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// stringPreview shortens body to at most max bytes without splitting a
// UTF-8 sequence.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	suffix := "..."
	if max <= len(suffix) {
		suffix = ""
	}
	cut := max - len(suffix)
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + suffix
}
