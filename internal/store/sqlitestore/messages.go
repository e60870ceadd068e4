package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const messageColumns = `id, booking_id, sender_id, body, status, created_at`

func scanMessage(row rowScanner) (models.ChatMessage, error) {
	var (
		m       models.ChatMessage
		status  string
		created int64
	)
	if err := row.Scan(&m.ID, &m.BookingID, &m.SenderID, &m.Body, &status, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, store.ErrNotFound
		}
		return m, err
	}
	m.Status = models.MessageStatus(status)
	m.CreatedAt = fromNanos(created)
	m.SeenBy = []models.SeenReceipt{}
	return m, nil
}

func (s *Store) CreateMessage(ctx context.Context, m models.ChatMessage) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO chat_messages (`+messageColumns+`) VALUES (?,?,?,?,?,?)`,
		m.ID, m.BookingID, m.SenderID, m.Body, string(m.Status), nanos(m.CreatedAt))
	return err
}

// ListMessages returns the room history in persistence order with receipts.
func (s *Store) ListMessages(ctx context.Context, bookingID string) ([]models.ChatMessage, error) {
	return listMessages(ctx, s.DB, bookingID)
}

func listMessages(ctx context.Context, q queryer, bookingID string) ([]models.ChatMessage, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+messageColumns+` FROM chat_messages
		WHERE booking_id=? ORDER BY created_at, rowid`, bookingID)
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

	receipts, err := q.QueryContext(ctx, `SELECT s.message_id, s.user_id, s.seen_at FROM message_seen s
		JOIN chat_messages m ON m.id = s.message_id
		WHERE m.booking_id=? ORDER BY s.seen_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer receipts.Close()
	for receipts.Next() {
		var (
			msgID string
			r     models.SeenReceipt
			at    int64
		)
		if err := receipts.Scan(&msgID, &r.UserID, &at); err != nil {
			return nil, err
		}
		r.SeenAt = fromNanos(at)
		if i, ok := index[msgID]; ok {
			msgs[i].SeenBy = append(msgs[i].SeenBy, r)
		}
	}
	return msgs, receipts.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, bookingID, recipientID string) (int, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE chat_messages SET status=?
		WHERE booking_id=? AND sender_id<>? AND status=?`,
		string(models.MessageDelivered), bookingID, recipientID, string(models.MessageSent))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkSeen adds a receipt for readerID to every message in the room that
// readerID did not send and has not seen, and returns the changed messages.
func (s *Store) MarkSeen(ctx context.Context, bookingID, readerID string, at time.Time) ([]models.ChatMessage, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chat_messages m
		WHERE booking_id=? AND sender_id<>?
		AND NOT EXISTS (SELECT 1 FROM message_seen s WHERE s.message_id=m.id AND s.user_id=?)
		ORDER BY created_at, rowid`, bookingID, readerID, readerID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO message_seen (message_id, user_id, seen_at) VALUES (?,?,?)
			ON CONFLICT(message_id, user_id) DO NOTHING`, id, readerID, nanos(at)); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE chat_messages SET status=? WHERE id=?`, string(models.MessageSeen), id); err != nil {
			return nil, err
		}
	}
	all, err := listMessages(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pick(all, ids), nil
}

func (s *Store) MarkMessageSeen(ctx context.Context, bookingID, messageID, readerID string, at time.Time) (models.ChatMessage, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ChatMessage{}, false, err
	}
	defer tx.Rollback()

	m, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id=? AND booking_id=?`,
		messageID, bookingID))
	if err != nil {
		return m, false, err
	}
	changed := false
	if m.SenderID != readerID {
		res, err := tx.ExecContext(ctx, `INSERT INTO message_seen (message_id, user_id, seen_at) VALUES (?,?,?)
			ON CONFLICT(message_id, user_id) DO NOTHING`, messageID, readerID, nanos(at))
		if err != nil {
			return m, false, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed = true
			if _, err := tx.ExecContext(ctx, `UPDATE chat_messages SET status=? WHERE id=?`, string(models.MessageSeen), messageID); err != nil {
				return m, false, err
			}
		}
	}
	all, err := listMessages(ctx, tx, bookingID)
	if err != nil {
		return m, false, err
	}
	if err := tx.Commit(); err != nil {
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
		last, err := scanMessage(s.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages
			WHERE booking_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, b.ID))
		switch {
		case err == nil:
			summary.LastMessage = &last
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages m
			WHERE booking_id=? AND sender_id<>?
			AND NOT EXISTS (SELECT 1 FROM message_seen s WHERE s.message_id=m.id AND s.user_id=?)`,
			b.ID, userID, userID).Scan(&summary.Unread); err != nil {
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
