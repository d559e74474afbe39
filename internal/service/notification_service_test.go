package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
)

type notificationFixture struct {
	*ticketFixture
	notes       *fakeNotificationRepo
	broadcaster *recordingBroadcaster
	notifier    *NotificationService
	staff       *fakeStaffRepo
	retired     *domain.StaffMember
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	tf := &ticketFixture{
		tickets: newFakeTicketRepo(),
		client:  &domain.User{ID: "client-1", Name: "Ada", Status: domain.UserStatusActive},
		other:   &domain.User{ID: "client-2", Name: "Bob", Status: domain.UserStatusActive},
		admin:   &domain.StaffMember{ID: "admin-1", Name: "Root", Role: domain.StaffRoleAdmin, Active: true},
		tech:    &domain.StaffMember{ID: "tech-1", Name: "Tess", Role: domain.StaffRoleTechnician, Active: true},
		tech2:   &domain.StaffMember{ID: "tech-2", Name: "Theo", Role: domain.StaffRoleTechnician, Active: true},
	}
	f := &notificationFixture{
		ticketFixture: tf,
		notes:         &fakeNotificationRepo{},
		broadcaster:   &recordingBroadcaster{},
		retired:       &domain.StaffMember{ID: "admin-2", Name: "Old", Role: domain.StaffRoleAdmin, Active: false},
	}
	users := newFakeUserRepo(tf.client, tf.other)
	staff := newFakeStaffRepo(tf.admin, tf.tech, tf.tech2, f.retired)
	f.staff = staff
	dispatcher := events.NewInMemoryDispatcher(nil)

	f.notifier = NewNotificationService(NotificationDependencies{
		Dispatcher:       dispatcher,
		NotificationRepo: f.notes,
		UserRepo:         users,
		StaffRepo:        staff,
		Broadcaster:      f.broadcaster,
	})
	f.notifier.RegisterHandlers()
	tf.svc = NewTicketService(TicketDependencies{
		TicketRepo: tf.tickets,
		UserRepo:   users,
		StaffRepo:  staff,
		Dispatcher: dispatcher,
	})
	return f
}

func TestClientTicketNotifiesActiveAdmins(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.create(t)

	if got := f.notes.forRecipient(f.admin.Subject()); len(got) != 1 {
		t.Fatalf("expected admin notification, got %d", len(got))
	} else if !strings.Contains(got[0].Text, ticket.ExternalKey) || got[0].TicketID == nil || *got[0].TicketID != ticket.ID {
		t.Fatalf("unexpected notification %+v", got[0])
	}
	if got := f.notes.forRecipient(f.retired.Subject()); len(got) != 0 {
		t.Fatalf("inactive admin must not be notified")
	}
	if got := f.notes.forRecipient(f.client.Subject()); len(got) != 0 {
		t.Fatalf("actor must not be notified")
	}

	adminFrames := f.broadcaster.inRoom(domain.AdminRoom)
	if len(adminFrames) != 1 || adminFrames[0].Event != realtime.EventAdminNewTicket {
		t.Fatalf("expected admin:newTicket, got %+v", adminFrames)
	}
	if frame, ok := adminFrames[0].Data.(NewTicketFrame); !ok || frame.TicketID != ticket.ID {
		t.Fatalf("unexpected frame payload %+v", adminFrames[0].Data)
	}
	roomFrames := f.broadcaster.inRoom(ticket.Room())
	if len(roomFrames) != 1 || roomFrames[0].Event != realtime.EventTicketUpdated {
		t.Fatalf("expected ticket:updated in ticket room, got %+v", roomFrames)
	}
	personal := f.broadcaster.inRoom(domain.UserRoom(f.admin.Subject()))
	if len(personal) != 1 || personal[0].Event != realtime.EventNotificationNew {
		t.Fatalf("expected notification:new in admin user room, got %+v", personal)
	}
}

func TestStaffActionNotifiesClientAndTechnician(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.AssignTechnician(ctx, f.admin, ticket.ID, f.tech.ID, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	clientNotes := f.notes.forRecipient(f.client.Subject())
	if len(clientNotes) != 1 || !strings.Contains(clientNotes[0].Text, "assigned to Tess") {
		t.Fatalf("unexpected client notifications %+v", clientNotes)
	}
	if got := f.notes.forRecipient(f.tech.Subject()); len(got) != 1 {
		t.Fatalf("technician should be notified of the assignment, got %d", len(got))
	}

	before := len(f.notes.forRecipient(f.tech.Subject()))
	if _, err := f.svc.AppendProgress(ctx, f.tech, ticket.ID, ProgressInput{Status: domain.ProgressQuoteSent}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := f.notes.forRecipient(f.tech.Subject()); len(got) != before {
		t.Fatalf("acting technician must not notify themselves")
	}
	if got := f.notes.forRecipient(f.client.Subject()); len(got) != 2 {
		t.Fatalf("client should have 2 notifications, got %d", len(got))
	}
}

func TestClientCommentNotifiesTechnicianAndAdmins(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.create(t)
	ctx := context.Background()
	if _, err := f.svc.AssignTechnician(ctx, f.admin, ticket.ID, f.tech.ID, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}

	adminBefore := len(f.notes.forRecipient(f.admin.Subject()))
	techBefore := len(f.notes.forRecipient(f.tech.Subject()))
	if _, err := f.svc.AddComment(ctx, clientPrincipal(f.client), ticket.ID, "Thanks!"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if got := len(f.notes.forRecipient(f.admin.Subject())); got != adminBefore+1 {
		t.Fatalf("admin not notified: %d -> %d", adminBefore, got)
	}
	if got := len(f.notes.forRecipient(f.tech.Subject())); got != techBefore+1 {
		t.Fatalf("technician not notified: %d -> %d", techBefore, got)
	}
	if got := f.notes.forRecipient(f.tech2.Subject()); len(got) != 0 {
		t.Fatalf("unassigned technician must not be notified")
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := newNotificationFixture(t)
	f.create(t)
	f.create(t)
	ctx := context.Background()
	admin := f.admin.Subject()

	list, err := f.notifier.List(ctx, admin, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Items) != 2 || list.UnreadCount != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	unread, err := f.notifier.MarkRead(ctx, admin, []string{list.Items[0].ID, "not-a-uuid"})
	if err != nil || unread != 1 {
		t.Fatalf("MarkRead: unread=%d err=%v", unread, err)
	}
	if _, err := f.notifier.MarkRead(ctx, admin, []string{"nope"}); err == nil {
		t.Fatalf("expected validation error for only invalid ids")
	}

	for i := 0; i < 2; i++ {
		unread, err = f.notifier.MarkAllRead(ctx, admin)
		if err != nil || unread != 0 {
			t.Fatalf("MarkAllRead #%d: unread=%d err=%v", i, unread, err)
		}
	}
}

func TestMarkReadIgnoresForeignNotifications(t *testing.T) {
	f := newNotificationFixture(t)
	f.create(t)
	ctx := context.Background()
	adminNotes := f.notes.forRecipient(f.admin.Subject())

	if _, err := f.notifier.MarkRead(ctx, f.tech.Subject(), []string{adminNotes[0].ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	list, _ := f.notifier.List(ctx, f.admin.Subject(), 10)
	if list.UnreadCount != 1 {
		t.Fatalf("foreign mark must not change unread count, got %d", list.UnreadCount)
	}
}

func TestCreateNotification(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	_, err := f.notifier.CreateNotification(ctx, domain.Subject{Type: domain.SubjectTypeUser, ID: "ghost"}, "hello", nil)
	assertCode(t, err, "VALIDATION_FAILED")
	_, err = f.notifier.CreateNotification(ctx, f.client.Subject(), "  ", nil)
	assertCode(t, err, "VALIDATION_FAILED")

	n, err := f.notifier.CreateNotification(ctx, f.client.Subject(), "Invoice ready", nil)
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if n.ID == "" || n.Link() != "" {
		t.Fatalf("unexpected notification %+v", n)
	}
	frames := f.broadcaster.inRoom(domain.UserRoom(f.client.Subject()))
	if len(frames) != 1 || frames[0].Event != realtime.EventNotificationNew {
		t.Fatalf("expected pushed notification, got %+v", frames)
	}
}

func TestNotificationText(t *testing.T) {
	ticket := &domain.Ticket{ID: "t1", ExternalKey: "TCK-ABCD1234", Title: "VPN down"}
	when := time.Date(2026, 5, 4, 14, 30, 0, 0, time.UTC)
	cases := []struct {
		name  string
		event events.Event
		want  string
	}{
		{"created", events.NewTicketEvent(events.EventTicketCreated, domain.Subject{}, ticket, nil), "New ticket TCK-ABCD1234: VPN down"},
		{"scheduled", events.NewTicketEvent(events.EventProgressAppended, domain.Subject{}, ticket, events.ProgressAppendedPayload{Status: domain.ProgressScheduled, ScheduledDate: &when}), "Ticket TCK-ABCD1234 scheduled for 2026-05-04 14:30 UTC"},
		{"progress", events.NewTicketEvent(events.EventProgressAppended, domain.Subject{}, ticket, events.ProgressAppendedPayload{Status: domain.ProgressQuoteSent}), "Ticket TCK-ABCD1234 progress: quote-sent"},
		{"closed", events.NewTicketEvent(events.EventTicketClosed, domain.Subject{}, ticket, events.TicketClosedPayload{}), "Ticket TCK-ABCD1234 has been closed"},
		{"field update", events.NewTicketEvent(events.EventTicketUpdated, domain.Subject{}, ticket, events.TicketUpdatedPayload{OldStatus: "open", NewStatus: "open"}), "Ticket TCK-ABCD1234 was updated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NotificationText(tc.event); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProgressChangesReachAdminRoom(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.AssignTechnician(ctx, f.admin, ticket.ID, f.tech.ID, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.AppendProgress(ctx, f.tech, ticket.ID, ProgressInput{Status: domain.ProgressQuoteSent}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.svc.AddComment(ctx, clientPrincipal(f.client), ticket.ID, "thanks"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := f.svc.CloseTicket(ctx, f.tech, ticket.ID, "toner replaced"); err != nil {
		t.Fatalf("close: %v", err)
	}

	frames := f.broadcaster.inRoom(domain.AdminRoom)
	want := []string{
		realtime.EventAdminNewTicket,
		realtime.EventTicketUpdated,
		realtime.EventTicketUpdated,
		realtime.EventTicketUpdated,
	}
	if len(frames) != len(want) {
		t.Fatalf("admin room got %d frames, want %d: %+v", len(frames), len(want), frames)
	}
	for i, ev := range want {
		if frames[i].Event != ev {
			t.Fatalf("frame %d is %q, want %q", i, frames[i].Event, ev)
		}
	}
	last, ok := frames[len(frames)-1].Data.(TicketUpdatedFrame)
	if !ok || !strings.Contains(last.NotificationText, "closed") {
		t.Fatalf("unexpected close frame %+v", frames[len(frames)-1].Data)
	}
}

func TestCancellationReachesAdminRoom(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.create(t)

	if _, err := f.svc.CancelTicket(context.Background(), clientPrincipal(f.client), ticket.ID, "fixed itself"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	frames := f.broadcaster.inRoom(domain.AdminRoom)
	if len(frames) != 2 || frames[1].Event != realtime.EventTicketUpdated {
		t.Fatalf("expected ticket:updated after admin:newTicket, got %+v", frames)
	}
}

func TestClientActionNotifiesEveryActiveAdmin(t *testing.T) {
	f := newNotificationFixture(t)
	const extra = 250
	f.staff.mu.Lock()
	for i := 0; i < extra; i++ {
		id := fmt.Sprintf("admin-x%03d", i)
		f.staff.staff[id] = &domain.StaffMember{ID: id, Role: domain.StaffRoleAdmin, Active: true}
	}
	f.staff.mu.Unlock()
	f.create(t)

	notified := map[string]bool{}
	for _, n := range f.notes.all() {
		if n.Recipient.Type == domain.SubjectTypeStaff {
			notified[n.Recipient.ID] = true
		}
	}
	if len(notified) != extra+1 {
		t.Fatalf("notified %d admins, want %d", len(notified), extra+1)
	}
	if notified[f.retired.ID] {
		t.Fatal("inactive admin notified")
	}
}

func TestNotificationTextStaysValidUTF8(t *testing.T) {
	ticket := &domain.Ticket{ID: "t1", ExternalKey: "TCK-ABCD1234", Title: strings.Repeat("é", 60)}
	created := NotificationText(events.NewTicketEvent(events.EventTicketCreated, domain.Subject{}, ticket, nil))
	cancelled := NotificationText(events.NewTicketEvent(events.EventTicketCancelled, domain.Subject{}, ticket,
		events.TicketCancelledPayload{Reason: strings.Repeat("ü", 80)}))

	for name, text := range map[string]string{"created": created, "cancelled": cancelled} {
		if !utf8.ValidString(text) {
			t.Fatalf("%s text is not valid UTF-8: %q", name, text)
		}
		if !strings.HasSuffix(text, "...") {
			t.Fatalf("%s text should be truncated: %q", name, text)
		}
	}
}
