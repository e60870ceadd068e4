package sqlitestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	meta := n.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal notification meta: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO notifications (id, recipient_id, title, message, meta, read, created_at)
		VALUES (?,?,?,?,?,?,?)`, n.ID, n.RecipientID, n.Title, n.Message, string(data), n.Read, nanos(n.CreatedAt))
	return err
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, recipient_id, title, message, meta, read, created_at
		FROM notifications WHERE recipient_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Notification
	for rows.Next() {
		var (
			n       models.Notification
			meta    string
			created int64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &meta, &n.Read, &created); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &n.Meta)
		}
		n.CreatedAt = fromNanos(created)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=? AND read=0`, recipientID).Scan(&count)
	return count, err
}

// MarkNotificationRead is idempotent; it only fails when the notification
// does not belong to recipientID.
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND recipient_id=?`, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE recipient_id=? AND read=0`, recipientID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
