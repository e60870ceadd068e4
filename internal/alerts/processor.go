package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/store"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Processor handles email tasks.
type Processor struct {
	Users  store.Users
	Mailer Sender
	Log    zerolog.Logger
}

// Register wires the processor's handlers into mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskNotificationEmail, p.handleNotificationEmail)
}

func (p *Processor) handleNotificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	to := payload.Envelope.To
	if to == "" {
		u, err := p.Users.GetUser(ctx, payload.RecipientID)
		if errors.Is(err, store.ErrNotFound) {
			p.Log.Warn().Str("recipient", payload.RecipientID).Msg("notification email: unknown recipient")
			return nil
		}
		if err != nil {
			return err
		}
		to = u.Email
	}
	if to == "" {
		p.Log.Debug().Str("recipient", payload.RecipientID).Msg("notification email: no address on file")
		return nil
	}
	if err := p.Mailer.Send(ctx, to, payload.Envelope.Subject, payload.Envelope.Body); err != nil {
		if errors.Is(err, ErrMailerNotConfigured) {
			p.Log.Warn().Str("notification", payload.NotificationID).Msg("notification email skipped: mailer not configured")
			return nil
		}
		p.Log.Error().Err(err).Str("notification", payload.NotificationID).Msg("notification email send failed")
		return err
	}
	p.Log.Info().Str("notification", payload.NotificationID).Str("to", to).Msg("notification email sent")
	return nil
}
