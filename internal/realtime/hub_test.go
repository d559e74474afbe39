package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var (
	clientSubject = domain.Subject{Type: domain.SubjectTypeUser, ID: "u1"}
	staffSubject  = domain.Subject{Type: domain.SubjectTypeStaff, ID: "s1"}
)

func recv(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.Send():
		if !ok {
			t.Fatal("send queue closed")
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send():
		t.Fatalf("unexpected frame %s", raw)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRegisterJoinsPersonalRoom(t *testing.T) {
	hub := NewHub(nil, 4)
	c := hub.Register(clientSubject, false)

	if hub.RoomSize(domain.UserRoom(clientSubject)) != 1 {
		t.Fatal("client should be in its personal room")
	}
	hub.Emit(context.Background(), domain.UserRoom(clientSubject), EventNotificationNew, map[string]string{"text": "hi"})
	if f := recv(t, c); f.Event != EventNotificationNew {
		t.Fatalf("unexpected event %q", f.Event)
	}
}

func TestEmitOnlyReachesRoomMembers(t *testing.T) {
	hub := NewHub(nil, 4)
	a := hub.Register(clientSubject, false)
	b := hub.Register(staffSubject, true)

	hub.Join(a, domain.TicketRoom("t1"))
	hub.Join(b, domain.AdminRoom)

	hub.Emit(context.Background(), domain.TicketRoom("t1"), EventTicketUpdated, nil)
	recv(t, a)
	expectNothing(t, b)

	hub.Emit(context.Background(), domain.AdminRoom, EventAdminNewTicket, map[string]string{"ticketId": "t2"})
	expectNothing(t, a)
	if f := recv(t, b); f.Event != EventAdminNewTicket {
		t.Fatalf("unexpected event %q", f.Event)
	}

	hub.Leave(a, domain.TicketRoom("t1"))
	hub.Emit(context.Background(), domain.TicketRoom("t1"), EventTicketUpdated, nil)
	expectNothing(t, a)
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(nil, 1)
	slow := hub.Register(clientSubject, false)
	fast := hub.Register(staffSubject, true)
	hub.Join(slow, "room")
	hub.Join(fast, "room")

	done := make(chan struct{})
	go func() {
		hub.Emit(context.Background(), "room", "e1", nil)
		<-fast.Send()
		hub.Emit(context.Background(), "room", "e2", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full queue")
	}
	if hub.Dropped() != 1 {
		t.Fatalf("expected one dropped frame, got %d", hub.Dropped())
	}
	if f := recv(t, slow); f.Event != "e1" {
		t.Fatalf("slow client should keep the first frame, got %q", f.Event)
	}
	if f := recv(t, fast); f.Event != "e2" {
		t.Fatalf("fast client should get the second frame, got %q", f.Event)
	}
}

func TestUnregisterTearsDownSubscriptions(t *testing.T) {
	hub := NewHub(nil, 4)
	c := hub.Register(clientSubject, false)
	hub.Join(c, domain.TicketRoom("t1"))
	hub.Join(c, domain.AdminRoom)

	hub.Unregister(c)
	hub.Unregister(c)

	if hub.Connections() != 0 {
		t.Fatalf("expected no connections, got %d", hub.Connections())
	}
	for _, room := range []string{domain.TicketRoom("t1"), domain.AdminRoom, domain.UserRoom(clientSubject)} {
		if hub.RoomSize(room) != 0 {
			t.Fatalf("room %s still has members", room)
		}
	}
	if _, ok := <-c.Send(); ok {
		t.Fatal("send queue should be closed")
	}
	hub.Join(c, "late")
	if hub.RoomSize("late") != 0 {
		t.Fatal("closed client must not join rooms")
	}
	if n := hub.Deliver(domain.TicketRoom("t1"), []byte(`{}`)); n != 0 {
		t.Fatalf("delivered to %d connections after unregister", n)
	}
}
