// Package realtime serves the websocket channel: it authenticates a
// connection, registers its presence and dispatches client events to the
// chat and request services.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
)

// Client to server event names.
const (
	EventJoinChat           = "join-chat"
	EventSendMessage        = "send-message"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventMessageSeen        = "message-seen"
	EventJoinServiceRequest = "join-service-request"

	EventError = "error"
)

const handlerTimeout = 15 * time.Second

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

type TicketRedeemer interface {
	Redeem(value string) (auth.Identity, error)
}

type Presence interface {
	Register(ctx context.Context, id string, conn presence.Conn)
	Release(ctx context.Context, id string, conn presence.Conn) bool
}

type Rooms interface {
	Join(room string, c presence.Conn)
	LeaveAll(c presence.Conn)
}

// Chat is the part of the chat service driven by socket events.
type Chat interface {
	JoinRoom(ctx context.Context, conn presence.Conn, bookingID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, senderID, bookingID, body string) (models.ChatMessage, error)
	MarkSeen(ctx context.Context, readerID, bookingID string) ([]models.ChatMessage, error)
	MarkMessageSeen(ctx context.Context, readerID, bookingID, messageID string) (models.ChatMessage, error)
	Typing(userID, bookingID string, typing bool) error
}

// Requests authorizes watching a request's updates.
type Requests interface {
	GetRequest(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, error)
}

type Gateway struct {
	Auth     Authenticator
	Tickets  TicketRedeemer
	Presence Presence
	Rooms    Rooms
	Chat     Chat
	Requests Requests
	Log      zerolog.Logger

	upgrader websocket.Upgrader
}

func NewGateway(a Authenticator, tickets TicketRedeemer, p Presence, rooms Rooms, chat Chat, requests Requests, logger zerolog.Logger) *Gateway {
	return &Gateway{
		Auth:     a,
		Tickets:  tickets,
		Presence: p,
		Rooms:    rooms,
		Chat:     chat,
		Requests: requests,
		Log:      logger.With().Str("component", "realtime").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// inbound is a client frame. Fields not used by an event are ignored.
type inbound struct {
	Type string `json:"type"`
	Data struct {
		BookingID string `json:"bookingId"`
		RequestID string `json:"requestId"`
		MessageID string `json:"messageId"`
		Body      string `json:"body"`
		Message   string `json:"message"`
	} `json:"data"`
}

// identify resolves the caller from ?ticket=, ?token= or a bearer header.
func (g *Gateway) identify(r *http.Request) (auth.Identity, error) {
	q := r.URL.Query()
	if ticket := q.Get("ticket"); ticket != "" {
		if g.Tickets == nil {
			return auth.Identity{}, models.Unauthorized("tickets are not enabled")
		}
		return g.Tickets.Redeem(ticket)
	}
	token := q.Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		return auth.Identity{}, models.Unauthorized("missing token")
	}
	return g.Auth.Authenticate(r.Context(), token)
}

// Handle upgrades an authenticated request and runs the connection until
// the client goes away.
func (g *Gateway) Handle(c echo.Context) error {
	id, err := g.identify(c.Request())
	if err != nil {
		status := http.StatusUnauthorized
		switch models.KindOf(err) {
		case models.KindForbidden:
			status = http.StatusForbidden
		case "":
			g.Log.Error().Err(err).Msg("authenticate socket")
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "authentication failed"})
		}
		return c.JSON(status, echo.Map{"success": false, "error": err.Error()})
	}

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.Log.Debug().Err(err).Str("user_id", id.UserID).Msg("upgrade")
		return nil
	}
	cl := newClient(id, ws)
	g.Presence.Register(context.Background(), id.UserID, cl)
	g.Log.Debug().Str("user_id", id.UserID).Msg("connected")

	go cl.writePump()
	g.readPump(cl)

	cl.close()
	g.Rooms.LeaveAll(cl)
	g.Presence.Release(context.Background(), id.UserID, cl)
	g.Log.Debug().Str("user_id", id.UserID).Msg("disconnected")
	return nil
}

func (g *Gateway) readPump(cl *client) {
	cl.ws.SetReadLimit(maxMessageSize)
	_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.SetPongHandler(func(string) error {
		return cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := cl.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.Log.Debug().Err(err).Str("user_id", cl.UserID()).Msg("read")
			}
			return
		}
		_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame inbound
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			g.fail(cl, frame.Type, "", models.Validation("malformed frame"))
			continue
		}
		g.dispatch(cl, frame)
	}
}

// dispatch runs one client event. In-flight work is not tied to the
// connection, so a disconnect does not cancel it.
func (g *Gateway) dispatch(cl *client, f inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	bookingID := strings.TrimSpace(f.Data.BookingID)
	var err error
	switch f.Type {
	case EventJoinChat:
		if bookingID == "" {
			err = models.Validation("bookingId is required")
			break
		}
		_, err = g.Chat.JoinRoom(ctx, cl, bookingID)
	case EventSendMessage:
		body := f.Data.Body
		if body == "" {
			body = f.Data.Message
		}
		_, err = g.Chat.SendMessage(ctx, cl.UserID(), bookingID, body)
	case EventTyping, EventStopTyping:
		err = g.Chat.Typing(cl.UserID(), bookingID, f.Type == EventTyping)
	case EventMessageSeen:
		if f.Data.MessageID != "" {
			_, err = g.Chat.MarkMessageSeen(ctx, cl.UserID(), bookingID, f.Data.MessageID)
		} else {
			_, err = g.Chat.MarkSeen(ctx, cl.UserID(), bookingID)
		}
	case EventJoinServiceRequest:
		err = g.watchRequest(ctx, cl, strings.TrimSpace(f.Data.RequestID))
	default:
		err = models.Validation("unknown event " + f.Type)
	}
	if err != nil {
		g.fail(cl, f.Type, bookingID, err)
	}
}

func (g *Gateway) watchRequest(ctx context.Context, cl *client, requestID string) error {
	if requestID == "" {
		return models.Validation("requestId is required")
	}
	if _, err := g.Requests.GetRequest(ctx, cl.id, requestID); err != nil {
		return err
	}
	g.Rooms.Join(presence.RequestRoom(requestID), cl)
	return nil
}

// fail reports err to the client as an error event. The connection stays
// open.
func (g *Gateway) fail(cl *client, event, bookingID string, err error) {
	reason := err.Error()
	if models.KindOf(err) == "" {
		g.Log.Error().Err(err).Str("user_id", cl.UserID()).Str("event", event).Msg("socket event failed")
		reason = "internal error"
	}
	data := map[string]any{"event": event, "reason": reason}
	if kind := models.KindOf(err); kind != "" {
		data["kind"] = kind
	}
	if bookingID != "" {
		data["bookingId"] = bookingID
	}
	if sendErr := cl.Send(presence.Event{Type: EventError, Data: data}); sendErr != nil {
		g.Log.Debug().Err(sendErr).Str("user_id", cl.UserID()).Msg("send error event")
	}
}
