package messaging

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

type testConn struct {
	id     string
	mu     sync.Mutex
	events []presence.Event
}

func (c *testConn) UserID() string { return c.id }

func (c *testConn) Send(ev presence.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *testConn) ofType(typ string) []presence.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []presence.Event
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type notes struct {
	mu   sync.Mutex
	sent []string
}

func (n *notes) Notify(_ context.Context, recipient, title, _ string, _ map[string]any) (models.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recipient+":"+title)
	return models.Notification{}, nil
}

func (n *notes) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type chatFixture struct {
	ctx      context.Context
	st       *sqlitestore.Store
	registry *presence.Registry
	rooms    *presence.Rooms
	notes    *notes
	svc      *Service
	booking  string
}

func newChat(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	for _, u := range []models.User{
		{ID: "r1", Name: "Rita", Role: models.RoleCommunityMember},
		{ID: "p1", Name: "Pat", Role: models.RoleServiceProvider},
		{ID: "x1", Name: "Xavier", Role: models.RoleCommunityMember},
	} {
		if err := st.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now().UTC()
	req := models.ServiceRequest{ID: "req1", RequesterID: "r1", TypeOfWork: "plumbing", Status: models.RequestWaiting,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
	if err := st.CreateRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	_, _, err = st.AcceptRequest(ctx, store.RequestTransition{
		ID:             "req1",
		Allowed:        []store.Precondition{{Status: models.RequestWaiting}},
		To:             models.RequestWorking,
		AssignProvider: "p1",
		Now:            now,
	}, models.Booking{ID: "b1", RequesterID: "r1", ProviderID: "p1", Status: models.BookingWorking, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatal(err)
	}

	f := &chatFixture{
		ctx:      ctx,
		st:       st,
		registry: presence.NewRegistry(st, zerolog.Nop()),
		rooms:    presence.NewRooms(zerolog.Nop()),
		notes:    &notes{},
		booking:  "b1",
	}
	f.svc = NewService(st, f.registry, f.rooms, f.notes, zerolog.Nop())
	return f
}

func (f *chatFixture) connect(id string) *testConn {
	c := &testConn{id: id}
	f.registry.Register(f.ctx, id, c)
	return c
}

func TestJoinRoomAuthorization(t *testing.T) {
	f := newChat(t)
	stranger := f.connect("x1")
	if _, err := f.svc.JoinRoom(f.ctx, stranger, f.booking); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if f.rooms.HasMember(presence.BookingRoom(f.booking), "x1") {
		t.Fatal("stranger must not be subscribed")
	}
	if _, err := f.svc.JoinRoom(f.ctx, stranger, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOfflineCounterpartGetsFeedNotification(t *testing.T) {
	f := newChat(t)
	rita := f.connect("r1")
	if _, err := f.svc.JoinRoom(f.ctx, rita, f.booking); err != nil {
		t.Fatal(err)
	}

	m, err := f.svc.SendMessage(f.ctx, "r1", f.booking, "  is tomorrow ok?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Status != models.MessageSent || m.Body != "is tomorrow ok?" {
		t.Fatalf("unexpected message %+v", m)
	}
	if f.notes.count() != 1 || f.notes.sent[0] != "p1:New message" {
		t.Fatalf("offline provider should get a feed entry, got %v", f.notes.sent)
	}
	if got := rita.ofType(EventNewMessage); len(got) != 1 {
		t.Fatalf("sender's room should see the message, got %d", len(got))
	}

	pat := f.connect("p1")
	history, err := f.svc.JoinRoom(f.ctx, pat, f.booking)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != models.MessageDelivered {
		t.Fatalf("joining should deliver waiting messages: %+v", history)
	}
	if got := pat.ofType(EventChatHistory); len(got) != 1 {
		t.Fatalf("expected chat-history on join, got %d", len(got))
	}
}

func TestPresentButUnsubscribedCounterpart(t *testing.T) {
	f := newChat(t)
	pat := f.connect("p1")
	if _, err := f.svc.SendMessage(f.ctx, "r1", f.booking, "hello"); err != nil {
		t.Fatal(err)
	}
	got := pat.ofType(EventMessageNotification)
	if len(got) != 1 {
		t.Fatalf("expected one message-notification, got %d", len(got))
	}
	data := got[0].Data.(map[string]any)
	if data["fromName"] != "Rita" || data["bookingId"] != f.booking {
		t.Fatalf("unexpected notification payload %v", data)
	}
	if f.notes.count() != 0 {
		t.Fatal("present users should not get a feed entry for chat")
	}
}

func TestSubscribedCounterpartMarksDelivered(t *testing.T) {
	f := newChat(t)
	rita, pat := f.connect("r1"), f.connect("p1")
	f.svc.JoinRoom(f.ctx, rita, f.booking)
	f.svc.JoinRoom(f.ctx, pat, f.booking)

	m, err := f.svc.SendMessage(f.ctx, "p1", f.booking, "on my way")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != models.MessageDelivered {
		t.Fatalf("expected delivered, got %s", m.Status)
	}
	if len(rita.ofType(EventNewMessage)) != 1 || len(pat.ofType(EventNewMessage)) != 1 {
		t.Fatal("both room members should receive new-message")
	}
	if len(rita.ofType(EventMessageNotification)) != 0 || f.notes.count() != 0 {
		t.Fatal("no out-of-band notice when the counterpart is in the room")
	}

	_, err = f.svc.SendMessage(f.ctx, "x1", f.booking, "hi")
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
	if _, err := f.svc.SendMessage(f.ctx, "p1", f.booking, "   "); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	f := newChat(t)
	pat := f.connect("p1")
	f.svc.JoinRoom(f.ctx, pat, f.booking)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.SendMessage(f.ctx, "r1", f.booking, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.SendMessage(f.ctx, "p1", f.booking, "reply"); err != nil {
		t.Fatal(err)
	}

	changed, err := f.svc.MarkSeen(f.ctx, "p1", f.booking)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 3 {
		t.Fatalf("expected three changed messages, got %d", len(changed))
	}
	first := seenSets(t, f)

	again, err := f.svc.MarkSeen(f.ctx, "p1", f.booking)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second markSeen should change nothing, got %d", len(again))
	}
	second := seenSets(t, f)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("seen sets changed: %v vs %v", first, second)
	}
	if got := pat.ofType(EventMessageSeenUpdate); len(got) != 3 {
		t.Fatalf("expected three seen updates, got %d", len(got))
	}

	msgs, _ := f.st.ListMessages(f.ctx, f.booking)
	for _, m := range msgs {
		if m.SenderID == "p1" && (m.Status == models.MessageSeen || m.SeenByUser("p1")) {
			t.Fatalf("own messages must not be marked seen: %+v", m)
		}
	}
}

func seenSets(t *testing.T, f *chatFixture) map[string][]string {
	t.Helper()
	msgs, err := f.st.ListMessages(f.ctx, f.booking)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string][]string{}
	for _, m := range msgs {
		for _, r := range m.SeenBy {
			out[m.ID] = append(out[m.ID], r.UserID+"@"+r.SeenAt.String())
		}
	}
	return out
}

func TestMarkMessageSeen(t *testing.T) {
	f := newChat(t)
	rita := f.connect("r1")
	f.svc.JoinRoom(f.ctx, rita, f.booking)
	m, err := f.svc.SendMessage(f.ctx, "r1", f.booking, "photo attached")
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.MarkMessageSeen(f.ctx, "p1", f.booking, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.MessageSeen || !got.SeenByUser("p1") {
		t.Fatalf("unexpected message %+v", got)
	}
	updates := rita.ofType(EventMessageSeenUpdate)
	if len(updates) != 1 || updates[0].Data.(map[string]any)["seenByName"] != "Pat" {
		t.Fatalf("sender should see the receipt: %+v", updates)
	}
	if _, err := f.svc.MarkMessageSeen(f.ctx, "p1", f.booking, m.ID); err != nil {
		t.Fatal(err)
	}
	if len(rita.ofType(EventMessageSeenUpdate)) != 1 {
		t.Fatal("repeated seen must not emit another update")
	}
	if _, err := f.svc.MarkMessageSeen(f.ctx, "p1", f.booking, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTypingIsRelayedToOthersOnly(t *testing.T) {
	f := newChat(t)
	rita, pat := f.connect("r1"), f.connect("p1")
	if err := f.svc.Typing("r1", f.booking, true); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden before join, got %v", err)
	}
	f.svc.JoinRoom(f.ctx, rita, f.booking)
	f.svc.JoinRoom(f.ctx, pat, f.booking)

	if err := f.svc.Typing("r1", f.booking, true); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Typing("r1", f.booking, false); err != nil {
		t.Fatal(err)
	}
	if len(pat.ofType(EventTyping)) != 1 || len(pat.ofType(EventStopTyping)) != 1 {
		t.Fatal("counterpart should see typing and stop-typing")
	}
	if len(rita.ofType(EventTyping)) != 0 {
		t.Fatal("typing must not echo to the typist")
	}
	msgs, _ := f.st.ListMessages(f.ctx, f.booking)
	if len(msgs) != 0 {
		t.Fatal("typing must not be persisted")
	}
}

func TestBroadcastOrderMatchesPersistence(t *testing.T) {
	f := newChat(t)
	watcher := f.connect("p1")
	f.svc.JoinRoom(f.ctx, watcher, f.booking)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "r1"
			if i%2 == 0 {
				sender = "p1"
			}
			if _, err := f.svc.SendMessage(f.ctx, sender, f.booking, fmt.Sprintf("m%d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := f.st.ListMessages(f.ctx, f.booking)
	if err != nil {
		t.Fatal(err)
	}
	got := watcher.ofType(EventNewMessage)
	if len(got) != len(msgs) {
		t.Fatalf("broadcast %d messages, stored %d", len(got), len(msgs))
	}
	for i, ev := range got {
		if ev.Data.(models.ChatMessage).ID != msgs[i].ID {
			t.Fatalf("position %d: broadcast order differs from persistence order", i)
		}
	}

	chats, err := f.svc.ListChats(f.ctx, "p1")
	if err != nil || len(chats) != 1 || chats[0].LastMessage == nil || chats[0].Unread != 10 {
		t.Fatalf("unexpected chat list %v %+v", err, chats)
	}
}
