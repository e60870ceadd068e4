package alerts

import "time"

// Task type constants
const (
	TaskNotificationEmail = "email:notification"
)

// Queue names
const (
	QueueEmails = "emails"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationEmailPayload mirrors a feed entry to the recipient's inbox.
// The address is resolved when the task runs.
type NotificationEmailPayload struct {
	NotificationID string        `json:"notification_id"`
	RecipientID    string        `json:"recipient_id"`
	Envelope       EmailEnvelope `json:"envelope"`
	SentAt         time.Time     `json:"sent_at"`
}
