// Package messaging runs the per-booking chat rooms: membership, history,
// delivery and seen receipts, and typing indicators.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store"
)

// Realtime event names.
const (
	EventChatHistory         = "chat-history"
	EventNewMessage          = "new-message"
	EventMessageNotification = "message-notification"
	EventMessageSeenUpdate   = "message-seen-update"
	EventTyping              = "typing"
	EventStopTyping          = "stop-typing"
)

const maxBodyLen = 4000

type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	store.Messages
}

// Presence finds and reaches a user's live connection.
type Presence interface {
	Lookup(id string) (presence.Conn, bool)
	Push(id string, ev presence.Event) (bool, error)
}

type Rooms interface {
	Join(room string, c presence.Conn)
	HasMember(room, userID string) bool
	Broadcast(room string, ev presence.Event) int
	BroadcastOthers(room, exceptUserID string, ev presence.Event) int
}

type Notifier interface {
	Notify(ctx context.Context, recipientID, title, message string, meta map[string]any) (models.Notification, error)
}

type Service struct {
	Store    Store
	Presence Presence
	Rooms    Rooms
	Notifier Notifier
	Now      func() time.Time
	Log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(st Store, p Presence, rooms Rooms, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		Store:    st,
		Presence: p,
		Rooms:    rooms,
		Notifier: notifier,
		Now:      time.Now,
		Log:      logger.With().Str("component", "chat").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// roomLock serializes persist-then-broadcast within one room.
func (s *Service) roomLock(bookingID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[bookingID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[bookingID] = l
	}
	return l
}

// membership loads the booking and checks userID takes part in it.
func (s *Service) membership(ctx context.Context, userID, bookingID string) (models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Booking{}, models.NotFound("booking not found")
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("load booking: %w", err)
	}
	if !b.Participant(userID) {
		return models.Booking{}, models.Forbidden("not a participant of this booking")
	}
	return b, nil
}

// JoinRoom subscribes conn to the booking's room and replays its history.
// Messages waiting for the joining user are marked delivered first.
func (s *Service) JoinRoom(ctx context.Context, conn presence.Conn, bookingID string) ([]models.ChatMessage, error) {
	userID := conn.UserID()
	if _, err := s.membership(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	s.Rooms.Join(presence.BookingRoom(bookingID), conn)

	if _, err := s.Store.MarkDelivered(ctx, bookingID, userID); err != nil {
		s.Log.Warn().Err(err).Str("booking_id", bookingID).Msg("mark delivered")
	}
	history, err := s.Store.ListMessages(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if history == nil {
		history = []models.ChatMessage{}
	}
	if err := conn.Send(presence.Event{
		Type: EventChatHistory,
		Data: map[string]any{"bookingId": bookingID, "messages": history},
	}); err != nil {
		s.Log.Debug().Err(err).Str("user_id", userID).Msg("send chat history")
	}
	return history, nil
}

// History returns the room's messages to a participant.
func (s *Service) History(ctx context.Context, userID, bookingID string) ([]models.ChatMessage, error) {
	if _, err := s.membership(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	msgs, err := s.Store.ListMessages(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

// SendMessage persists a message and broadcasts it to the room. A
// counterpart who is online elsewhere gets a message-notification; one who
// is offline gets a feed notification.
func (s *Service) SendMessage(ctx context.Context, senderID, bookingID, body string) (models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.ChatMessage{}, models.Validation("message body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyLen {
		return models.ChatMessage{}, models.Validation("message body is too long")
	}
	b, err := s.membership(ctx, senderID, bookingID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	counterpart := b.Counterpart(senderID)
	room := presence.BookingRoom(bookingID)

	lock := s.roomLock(bookingID)
	lock.Lock()
	m := models.ChatMessage{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		SenderID:  senderID,
		Body:      body,
		Status:    models.MessageSent,
		SeenBy:    []models.SeenReceipt{},
		CreatedAt: s.now(),
	}
	if err := s.Store.CreateMessage(ctx, m); err != nil {
		lock.Unlock()
		return models.ChatMessage{}, fmt.Errorf("persist message: %w", err)
	}
	watching := s.Rooms.HasMember(room, counterpart)
	if watching {
		if _, err := s.Store.MarkDelivered(ctx, bookingID, counterpart); err != nil {
			s.Log.Warn().Err(err).Str("booking_id", bookingID).Msg("mark delivered")
		} else {
			m.Status = models.MessageDelivered
		}
	}
	s.Rooms.Broadcast(room, presence.Event{Type: EventNewMessage, Data: m})
	lock.Unlock()

	if !watching {
		s.reachCounterpart(ctx, counterpart, m)
	}
	return m, nil
}

func (s *Service) reachCounterpart(ctx context.Context, counterpart string, m models.ChatMessage) {
	if counterpart == "" {
		return
	}
	fromName := s.displayName(ctx, m.SenderID)
	if s.Presence != nil {
		if _, online := s.Presence.Lookup(counterpart); online {
			if _, err := s.Presence.Push(counterpart, presence.Event{
				Type: EventMessageNotification,
				Data: map[string]any{"bookingId": m.BookingID, "message": m, "fromName": fromName},
			}); err != nil {
				s.Log.Warn().Err(err).Str("user_id", counterpart).Msg("push message notification")
			}
			return
		}
	}
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.Notify(ctx, counterpart, "New message", fromName+": "+preview(m.Body), map[string]any{
		"bookingId": m.BookingID,
		"messageId": m.ID,
	}); err != nil {
		s.Log.Error().Err(err).Str("user_id", counterpart).Msg("notify new message")
	}
}

// MarkSeen records readerID as having seen every message in the room they
// did not send. Calling it again changes nothing.
func (s *Service) MarkSeen(ctx context.Context, readerID, bookingID string) ([]models.ChatMessage, error) {
	b, err := s.membership(ctx, readerID, bookingID)
	if err != nil {
		return nil, err
	}
	changed, err := s.Store.MarkSeen(ctx, bookingID, readerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	if len(changed) > 0 {
		name := s.displayName(ctx, readerID)
		for _, m := range changed {
			s.seenUpdate(b, m, readerID, name)
		}
	}
	if changed == nil {
		changed = []models.ChatMessage{}
	}
	return changed, nil
}

// MarkMessageSeen is MarkSeen for a single message.
func (s *Service) MarkMessageSeen(ctx context.Context, readerID, bookingID, messageID string) (models.ChatMessage, error) {
	b, err := s.membership(ctx, readerID, bookingID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	m, changed, err := s.Store.MarkMessageSeen(ctx, bookingID, messageID, readerID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return models.ChatMessage{}, models.NotFound("message not found")
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("mark seen: %w", err)
	}
	if changed {
		s.seenUpdate(b, m, readerID, s.displayName(ctx, readerID))
	}
	return m, nil
}

func (s *Service) seenUpdate(b models.Booking, m models.ChatMessage, readerID, readerName string) {
	room := presence.BookingRoom(b.ID)
	ev := presence.Event{
		Type: EventMessageSeenUpdate,
		Data: map[string]any{
			"messageId":  m.ID,
			"bookingId":  b.ID,
			"seenBy":     readerID,
			"seenByName": readerName,
		},
	}
	s.Rooms.Broadcast(room, ev)
	if s.Presence != nil && !s.Rooms.HasMember(room, m.SenderID) {
		if _, err := s.Presence.Push(m.SenderID, ev); err != nil {
			s.Log.Debug().Err(err).Str("user_id", m.SenderID).Msg("push seen update")
		}
	}
}

// Typing relays a typing indicator to the rest of the room. Only users
// already in the room may send one; nothing is stored.
func (s *Service) Typing(userID, bookingID string, typing bool) error {
	room := presence.BookingRoom(bookingID)
	if !s.Rooms.HasMember(room, userID) {
		return models.Forbidden("join the chat before typing")
	}
	typ := EventTyping
	if !typing {
		typ = EventStopTyping
	}
	s.Rooms.BroadcastOthers(room, userID, presence.Event{
		Type: typ,
		Data: map[string]any{"bookingId": bookingID, "userId": userID},
	})
	return nil
}

// ListChats returns the caller's bookings with their last message and
// unread count.
func (s *Service) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	chats, err := s.Store.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	return chats, nil
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	u, err := s.Store.GetUser(ctx, userID)
	if err != nil || u.Name == "" {
		return "Someone"
	}
	return u.Name
}

func preview(body string) string {
	const limit = 80
	if utf8.RuneCountInString(body) <= limit {
		return body
	}
	r := []rune(body)
	return string(r[:limit]) + "..."
}
