package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	meta := n.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := s.DB.Exec(ctx, `INSERT INTO notifications (id, recipient_id, title, message, meta, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, n.ID, n.RecipientID, n.Title, n.Message, meta, n.Read, n.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `SELECT id, recipient_id, title, message, meta, read, created_at
		FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT read`, recipientID).Scan(&count)
	return count, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE recipient_id=$1 AND NOT read`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const messageColumns = `id, booking_id, sender_id, body, status, created_at`

func scanMessage(row pgx.Row) (models.ChatMessage, error) {
	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.BookingID, &m.SenderID, &m.Body, &m.Status, &m.CreatedAt); err != nil {
		return m, notFound(err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.SeenBy = []models.SeenReceipt{}
	return m, nil
}

func (s *Store) CreateMessage(ctx context.Context, m models.ChatMessage) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO chat_messages (`+messageColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.BookingID, m.SenderID, m.Body, string(m.Status), m.CreatedAt)
	return err
}

func (s *Store) ListMessages(ctx context.Context, bookingID string) ([]models.ChatMessage, error) {
	return listMessages(ctx, s.DB, bookingID)
}

func listMessages(ctx context.Context, q querier, bookingID string) ([]models.ChatMessage, error) {
	rows, err := q.Query(ctx, `SELECT `+messageColumns+` FROM chat_messages
		WHERE booking_id=$1 ORDER BY created_at, seq`, bookingID)
	if err != nil {
		return nil, err
	}
	var msgs []models.ChatMessage
	index := map[string]int{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	receipts, err := q.Query(ctx, `SELECT s.message_id, s.user_id, s.seen_at FROM message_seen s
		JOIN chat_messages m ON m.id = s.message_id
		WHERE m.booking_id=$1 ORDER BY s.seen_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer receipts.Close()
	for receipts.Next() {
		var (
			msgID string
			r     models.SeenReceipt
		)
		if err := receipts.Scan(&msgID, &r.UserID, &r.SeenAt); err != nil {
			return nil, err
		}
		r.SeenAt = r.SeenAt.UTC()
		if i, ok := index[msgID]; ok {
			msgs[i].SeenBy = append(msgs[i].SeenBy, r)
		}
	}
	return msgs, receipts.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, bookingID, recipientID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `UPDATE chat_messages SET status=$1
		WHERE booking_id=$2 AND sender_id<>$3 AND status=$4`,
		string(models.MessageDelivered), bookingID, recipientID, string(models.MessageSent))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) MarkSeen(ctx context.Context, bookingID, readerID string, at time.Time) ([]models.ChatMessage, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `INSERT INTO message_seen (message_id, user_id, seen_at)
		SELECT id, $2::text, $3::timestamptz FROM chat_messages WHERE booking_id=$1 AND sender_id<>$2
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id`, bookingID, readerID, at)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE chat_messages SET status=$1 WHERE id = ANY($2)`,
		string(models.MessageSeen), ids); err != nil {
		return nil, err
	}
	all, err := listMessages(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return pick(all, ids), nil
}

func (s *Store) MarkMessageSeen(ctx context.Context, bookingID, messageID, readerID string, at time.Time) (models.ChatMessage, bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return models.ChatMessage{}, false, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1 AND booking_id=$2`,
		messageID, bookingID))
	if err != nil {
		return m, false, err
	}
	changed := false
	if m.SenderID != readerID {
		tag, err := tx.Exec(ctx, `INSERT INTO message_seen (message_id, user_id, seen_at) VALUES ($1,$2,$3)
			ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, readerID, at)
		if err != nil {
			return m, false, err
		}
		if tag.RowsAffected() > 0 {
			changed = true
			if _, err := tx.Exec(ctx, `UPDATE chat_messages SET status=$1 WHERE id=$2`, string(models.MessageSeen), messageID); err != nil {
				return m, false, err
			}
		}
	}
	all, err := listMessages(ctx, tx, bookingID)
	if err != nil {
		return m, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return m, false, err
	}
	if picked := pick(all, []string{messageID}); len(picked) == 1 {
		m = picked[0]
	}
	return m, changed, nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	bookings, err := s.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChatSummary, 0, len(bookings))
	for _, b := range bookings {
		summary := models.ChatSummary{Booking: b}
		last, err := scanMessage(s.DB.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages
			WHERE booking_id=$1 ORDER BY created_at DESC, seq DESC LIMIT 1`, b.ID))
		switch {
		case err == nil:
			summary.LastMessage = &last
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages m
			WHERE booking_id=$1 AND sender_id<>$2
			AND NOT EXISTS (SELECT 1 FROM message_seen s WHERE s.message_id=m.id AND s.user_id=$2)`,
			b.ID, userID).Scan(&summary.Unread); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func pick(all []models.ChatMessage, ids []string) []models.ChatMessage {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []models.ChatMessage
	for _, m := range all {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}
