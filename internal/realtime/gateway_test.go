package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/alerts"
	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/events"
	"github.com/sudo-init-do/handyhub/internal/marketplace"
	"github.com/sudo-init-do/handyhub/internal/messaging"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
	"github.com/sudo-init-do/handyhub/internal/utils"
)

const testSecret = "gateway-secret"

type env struct {
	st       *sqlitestore.Store
	registry *presence.Registry
	market   *marketplace.Service
	tickets  *auth.Tickets
	srv      *httptest.Server
	request  models.ServiceRequest
	booking  models.Booking
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "rt.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	for _, u := range []models.User{
		{ID: "r1", Name: "Rita", Role: models.RoleCommunityMember},
		{ID: "p1", Name: "Pat", Role: models.RoleServiceProvider, Skills: []string{"plumbing"}},
		{ID: "x1", Name: "Xavier", Role: models.RoleCommunityMember},
	} {
		if err := st.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	log := zerolog.Nop()
	registry := presence.NewRegistry(st, log)
	rooms := presence.NewRooms(log)
	dispatcher := alerts.NewDispatcher(st, registry, nil, log)
	market := marketplace.NewService(st, rooms, dispatcher, events.Noop{}, log)
	chat := messaging.NewService(st, registry, rooms, dispatcher, log)
	tickets := auth.NewTickets(time.Minute)
	authn := &auth.Authenticator{Verifier: auth.NewVerifier(testSecret), Users: st, Log: log}

	member := auth.Identity{UserID: "r1", Role: models.RoleCommunityMember}
	provider := auth.Identity{UserID: "p1", Role: models.RoleServiceProvider}
	r, err := market.CreateRequest(ctx, member, marketplace.RequestInput{TypeOfWork: "Plumbing"})
	if err != nil {
		t.Fatal(err)
	}
	r, b, err := market.Accept(ctx, provider, r.ID)
	if err != nil {
		t.Fatal(err)
	}

	g := NewGateway(authn, tickets, registry, rooms, chat, market, log)
	e := echo.New()
	e.GET("/ws", g.Handle)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &env{st: st, registry: registry, market: market, tickets: tickets, srv: srv, request: r, booking: b}
}

func (e *env) url(query string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?" + query
}

func (e *env) dial(t *testing.T, userID, role string) *websocket.Conn {
	t.Helper()
	tok, err := utils.SignIdentityToken(testSecret, utils.TokenSpec{UserID: userID, Role: role, TTL: time.Hour}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(e.url("token="+tok), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { ws.Close() })
	eventually(t, func() bool { _, ok := e.registry.Lookup(userID); return ok })
	return ws
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func send(t *testing.T, ws *websocket.Conn, typ string, data map[string]any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"type": typ, "data": data}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// expect reads frames until one of type typ arrives.
func expect(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer ws.SetReadDeadline(time.Time{})
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f.Data
		}
	}
}

func TestGatewayChatFlow(t *testing.T) {
	e := newEnv(t)
	bookingID := e.booking.ID
	rita := e.dial(t, "r1", "CommunityMember")
	pat := e.dial(t, "p1", "ServiceProvider")

	send(t, pat, "join-chat", map[string]any{"bookingId": bookingID})
	if got := expect(t, pat, "chat-history"); got["bookingId"] != bookingID {
		t.Fatalf("unexpected history frame %v", got)
	}
	send(t, rita, "join-chat", map[string]any{"bookingId": bookingID})
	expect(t, rita, "chat-history")

	send(t, rita, "send-message", map[string]any{"bookingId": bookingID, "body": "hello there"})
	msg := expect(t, pat, "new-message")
	if msg["body"] != "hello there" || msg["sender_id"] != "r1" {
		t.Fatalf("unexpected message %v", msg)
	}

	send(t, pat, "typing", map[string]any{"bookingId": bookingID})
	if got := expect(t, rita, "typing"); got["userId"] != "p1" {
		t.Fatalf("unexpected typing frame %v", got)
	}

	send(t, pat, "message-seen", map[string]any{"bookingId": bookingID, "messageId": msg["id"]})
	if got := expect(t, rita, "message-seen-update"); got["messageId"] != msg["id"] || got["seenByName"] != "Pat" {
		t.Fatalf("unexpected seen update %v", got)
	}

	send(t, rita, "join-service-request", map[string]any{"requestId": e.request.ID})
	// frames are handled in order, so the error for this one means the join is done
	send(t, rita, "ping-check", nil)
	expect(t, rita, "error")
	if _, err := e.market.CancelRequest(context.Background(), auth.Identity{UserID: "r1", Role: models.RoleCommunityMember}, e.request.ID); err != nil {
		t.Fatal(err)
	}
	if got := expect(t, rita, "service-request-updated"); got["action"] != "cancelled" {
		t.Fatalf("unexpected request update %v", got)
	}
	if got := expect(t, pat, "booking-updated"); got["newStatus"] != string(models.BookingCancelled) {
		t.Fatalf("unexpected booking update %v", got)
	}
}

func TestGatewayErrorsKeepConnectionOpen(t *testing.T) {
	e := newEnv(t)
	outsider := e.dial(t, "x1", "CommunityMember")

	send(t, outsider, "join-chat", map[string]any{"bookingId": e.booking.ID})
	got := expect(t, outsider, "error")
	if got["event"] != "join-chat" || got["kind"] != string(models.KindForbidden) {
		t.Fatalf("unexpected error frame %v", got)
	}

	send(t, outsider, "join-service-request", map[string]any{"requestId": e.request.ID})
	if got := expect(t, outsider, "error"); got["kind"] != string(models.KindForbidden) {
		t.Fatalf("unexpected error frame %v", got)
	}

	send(t, outsider, "dance", nil)
	if got := expect(t, outsider, "error"); got["kind"] != string(models.KindValidation) {
		t.Fatalf("unexpected error frame %v", got)
	}
	if err := outsider.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	expect(t, outsider, "error")
}

func TestGatewayPresenceLifecycle(t *testing.T) {
	e := newEnv(t)
	ws := e.dial(t, "p1", "ServiceProvider")
	eventually(t, func() bool {
		u, err := e.st.GetUser(context.Background(), "p1")
		return err == nil && u.Online
	})

	ws.Close()
	eventually(t, func() bool { _, ok := e.registry.Lookup("p1"); return !ok })
	eventually(t, func() bool {
		u, err := e.st.GetUser(context.Background(), "p1")
		return err == nil && !u.Online
	})
}

func TestGatewayRejectsUnauthenticated(t *testing.T) {
	e := newEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(e.url(""), nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	bad, _ := utils.SignIdentityToken("wrong", utils.TokenSpec{UserID: "r1", Role: "CommunityMember"}, time.Now())
	_, resp, err = websocket.DefaultDialer.Dial(e.url("token="+bad), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %v", err)
	}
}

func TestGatewayTicketIsSingleUse(t *testing.T) {
	e := newEnv(t)
	ticket, _, err := e.tickets.Issue(auth.Identity{UserID: "r1", Role: models.RoleCommunityMember})
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(e.url("ticket="+ticket), nil)
	if err != nil {
		t.Fatalf("dial with ticket: %v", err)
	}
	defer ws.Close()
	eventually(t, func() bool { _, ok := e.registry.Lookup("r1"); return ok })

	_, resp, err := websocket.DefaultDialer.Dial(e.url("ticket="+ticket), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("ticket reuse should fail with 401, got %v", err)
	}
}
