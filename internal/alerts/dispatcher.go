// Package alerts persists notifications, pushes them to present recipients
// and mirrors them to email through background tasks.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const EventNewNotification = "new-notification"

// Pusher delivers an event to an identity's live connection, if any.
type Pusher interface {
	Push(id string, ev presence.Event) (bool, error)
}

// EmailEnqueuer schedules an email copy of a notification.
type EmailEnqueuer interface {
	EnqueueNotificationEmail(ctx context.Context, n models.Notification) error
}

// Dispatcher writes the feed entry first and treats every delivery after
// that as best-effort.
type Dispatcher struct {
	store    store.Notifications
	presence Pusher
	email    EmailEnqueuer
	log      zerolog.Logger

	Now func() time.Time
}

func NewDispatcher(st store.Notifications, p Pusher, email EmailEnqueuer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		presence: p,
		email:    email,
		log:      logger.With().Str("component", "dispatcher").Logger(),
		Now:      time.Now,
	}
}

// Notify persists a notification for recipientID and pushes it if the
// recipient is connected. Only the persistence error is returned.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, title, message string, meta map[string]any) (models.Notification, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	n := models.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Meta:        meta,
		CreatedAt:   d.Now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return models.Notification{}, fmt.Errorf("persist notification: %w", err)
	}

	present, err := d.push(n)
	if err != nil {
		d.log.Warn().Err(err).Str("recipient", recipientID).Str("notification", n.ID).Msg("push failed")
	}
	if !present && d.email != nil {
		if err := d.email.EnqueueNotificationEmail(ctx, n); err != nil {
			d.log.Warn().Err(err).Str("recipient", recipientID).Msg("enqueue notification email")
		}
	}
	return n, nil
}

func (d *Dispatcher) push(n models.Notification) (bool, error) {
	if d.presence == nil {
		return false, nil
	}
	return d.presence.Push(n.RecipientID, presence.Event{
		Type: EventNewNotification,
		Data: map[string]any{
			"id":        n.ID,
			"title":     n.Title,
			"message":   n.Message,
			"meta":      n.Meta,
			"createdAt": n.CreatedAt,
		},
	})
}
