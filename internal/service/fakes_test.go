package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	seq     int64
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.Progress = append([]domain.ProgressEvent(nil), t.Progress...)
	c.Comments = append([]domain.Comment(nil), t.Comments...)
	return &c
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket, first domain.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now().UTC()
	ticket.UpdatedAt = ticket.CreatedAt
	r.seq++
	first.Seq = r.seq
	first.TicketID = ticket.ID
	ticket.Progress = []domain.ProgressEvent{first}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(t), nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Ticket{}
	for _, t := range r.tickets {
		if filter.ClientID != nil && t.ClientID != *filter.ClientID {
			continue
		}
		if filter.TechnicianID != nil && (t.TechnicianID == nil || *t.TechnicianID != *filter.TechnicianID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.SearchTerm != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*filter.SearchTerm)) {
			continue
		}
		out = append(out, *cloneTicket(t))
	}
	return out, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Mutate serializes like the row lock and enforces the one-per-status index.
func (r *fakeTicketRepo) Mutate(_ context.Context, id string, fn repository.TicketMutation) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	working := cloneTicket(stored)
	change, err := fn(working)
	if err != nil {
		return nil, err
	}
	if p := change.Progress; p != nil {
		if !p.Status.Repeatable() {
			for _, existing := range working.Progress {
				if existing.Status == p.Status {
					return nil, repository.ErrDuplicateProgress
				}
			}
		}
		r.seq++
		p.Seq = r.seq
		p.TicketID = id
		if p.Date.IsZero() {
			p.Date = time.Now().UTC()
		}
		working.Progress = append(working.Progress, *p)
	}
	if c := change.Comment; c != nil {
		c.ID = uuid.NewString()
		c.TicketID = id
		c.CreatedAt = time.Now().UTC()
		working.Comments = append(working.Comments, *c)
	}
	working.UpdatedAt = time.Now().UTC()
	r.tickets[id] = working
	return cloneTicket(working), nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.User{}
	for _, u := range r.users {
		if filter.CompanyName != nil && u.CompanyName != *filter.CompanyName {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

type fakeStaffRepo struct {
	mu    sync.Mutex
	staff map[string]*domain.StaffMember
}

func newFakeStaffRepo(members ...*domain.StaffMember) *fakeStaffRepo {
	r := &fakeStaffRepo{staff: map[string]*domain.StaffMember{}}
	for _, m := range members {
		r.staff[m.ID] = m
	}
	return r
}

func (r *fakeStaffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.staff {
		if strings.EqualFold(s.Email, staff.Email) {
			return repository.ErrEmailTaken
		}
	}
	staff.ID = uuid.NewString()
	copied := *staff
	r.staff[staff.ID] = &copied
	return nil
}

func (r *fakeStaffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.staff[staff.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *staff
	r.staff[staff.ID] = &copied
	return nil
}

func (r *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.staff[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.staff {
		if strings.EqualFold(s.Email, email) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeStaffRepo) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.StaffMember{}
	for _, s := range r.staff {
		if len(filter.Roles) > 0 {
			match := false
			for _, role := range filter.Roles {
				if s.Role == role {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset >= len(out) {
		return []domain.StaffMember{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type fakeNotificationRepo struct {
	mu    sync.Mutex
	items []*domain.Notification
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	copied := *n
	r.items = append(r.items, &copied)
	return nil
}

func (r *fakeNotificationRepo) ListByRecipient(_ context.Context, recipient domain.Subject, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Notification{}
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].Recipient == recipient {
			out = append(out, *r.items[i])
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, recipient domain.Subject) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Recipient == recipient && !item.Read {
			n++
		}
	}
	return n, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, recipient domain.Subject, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var changed int64
	for _, item := range r.items {
		if item.Recipient == recipient && want[item.ID] && !item.Read {
			item.Read = true
			changed++
		}
	}
	return changed, nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, recipient domain.Subject) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, item := range r.items {
		if item.Recipient == recipient && !item.Read {
			item.Read = true
			changed++
		}
	}
	return changed, nil
}

func (r *fakeNotificationRepo) forRecipient(s domain.Subject) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, item := range r.items {
		if item.Recipient == s {
			out = append(out, *item)
		}
	}
	return out
}

func (r *fakeNotificationRepo) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out
}

type fakeCounterRepo struct {
	mu     sync.Mutex
	values map[domain.CounterName]int64
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{values: map[domain.CounterName]int64{}}
}

func (r *fakeCounterRepo) Get(_ context.Context, name domain.CounterName) (*domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[name]; !ok {
		r.values[name] = 1
	}
	return &domain.Counter{Name: name, Value: r.values[name]}, nil
}

func (r *fakeCounterRepo) Increment(_ context.Context, name domain.CounterName) (*domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[name]; !ok {
		r.values[name] = 1
	}
	r.values[name]++
	return &domain.Counter{Name: name, Value: r.values[name]}, nil
}

func (r *fakeCounterRepo) Set(_ context.Context, name domain.CounterName, value int64) (*domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
	return &domain.Counter{Name: name, Value: value}, nil
}

type fakeCredentialRepo struct {
	mu     sync.Mutex
	sealer repository.SecretSealer
	items  map[string]*domain.CompanyCredential
}

func newFakeCredentialRepo(sealer repository.SecretSealer) *fakeCredentialRepo {
	return &fakeCredentialRepo{sealer: sealer, items: map[string]*domain.CompanyCredential{}}
}

func (r *fakeCredentialRepo) store(cred *domain.CompanyCredential) error {
	sealed, modified, err := repository.SealSecret(r.sealer, cred)
	if err != nil {
		return err
	}
	if modified {
		cred.Secret.MarkSealed(sealed)
	}
	stored := *cred
	stored.Secret = domain.SecretField{Sealed: append([]byte(nil), cred.Secret.Sealed...)}
	r.items[cred.ID] = &stored
	return nil
}

func (r *fakeCredentialRepo) Create(_ context.Context, cred *domain.CompanyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	return r.store(cred)
}

func (r *fakeCredentialRepo) Update(_ context.Context, cred *domain.CompanyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[cred.ID]; !ok {
		return pgx.ErrNoRows
	}
	return r.store(cred)
}

func (r *fakeCredentialRepo) Delete(_ context.Context, company, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.CompanyName != company {
		return pgx.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

func (r *fakeCredentialRepo) GetByID(_ context.Context, company, id string) (*domain.CompanyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.CompanyName != company {
		return nil, pgx.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (r *fakeCredentialRepo) ListByCompany(_ context.Context, company string, kind domain.CredentialKind) ([]domain.CompanyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.CompanyCredential{}
	for _, item := range r.items {
		if item.CompanyName == company && item.Kind == kind {
			out = append(out, *item)
		}
	}
	return out, nil
}

type emitted struct {
	Room  string
	Event string
	Data  any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames []emitted
}

func (b *recordingBroadcaster) Emit(_ context.Context, room, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, emitted{Room: room, Event: event, Data: data})
}

func (b *recordingBroadcaster) inRoom(room string) []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emitted
	for _, f := range b.frames {
		if f.Room == room {
			out = append(out, f)
		}
	}
	return out
}
