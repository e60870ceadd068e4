package models

import "time"

// Notification is a durable feed entry for one recipient.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Meta        map[string]any `json:"meta,omitempty"`
	Read        bool           `json:"read"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MessageStatus is the delivery state of a ChatMessage.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageSeen      MessageStatus = "seen"
)

// SeenReceipt records when a user saw a message.
type SeenReceipt struct {
	UserID string    `json:"user_id"`
	SeenAt time.Time `json:"seen_at"`
}

// ChatMessage belongs to the room keyed by BookingID.
type ChatMessage struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	SenderID  string        `json:"sender_id"`
	Body      string        `json:"body"`
	Status    MessageStatus `json:"status"`
	SeenBy    []SeenReceipt `json:"seen_by"`
	CreatedAt time.Time     `json:"created_at"`
}

// SeenByUser reports whether userID already has a receipt on m.
func (m ChatMessage) SeenByUser(userID string) bool {
	for _, r := range m.SeenBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Booking     Booking      `json:"booking"`
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	Unread      int          `json:"unread"`
}
