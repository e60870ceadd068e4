package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/handyhub/internal/models"
)

// Queue enqueues email tasks on asynq.
type Queue struct {
	client *asynq.Client
	appURL string
}

func NewQueue(client *asynq.Client, appURL string) *Queue {
	if appURL == "" {
		appURL = "http://localhost:3000"
	}
	return &Queue{client: client, appURL: strings.TrimRight(appURL, "/")}
}

// NewNotificationEmailTask builds the task that mails n to its recipient.
func NewNotificationEmailTask(n models.Notification, appURL string) (*asynq.Task, error) {
	body := fmt.Sprintf("%s\n\nOpen HandyHub: %s/notifications\n\nIf the link doesn't work, copy and paste the URL above.", n.Message, appURL)
	payload := NotificationEmailPayload{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Envelope:       EmailEnvelope{Subject: n.Title, Body: body},
		SentAt:         time.Now(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationEmail, b, asynq.Queue(QueueEmails), asynq.MaxRetry(5)), nil
}

// EnqueueNotificationEmail schedules an email copy of n.
func (q *Queue) EnqueueNotificationEmail(ctx context.Context, n models.Notification) error {
	task, err := NewNotificationEmailTask(n, q.appURL)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task)
	return err
}
