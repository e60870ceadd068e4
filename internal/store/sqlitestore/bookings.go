package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const bookingColumns = `id, requester_id, provider_id, service_request_id, status, completion_proof, completion_comment, created_at, updated_at`

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b                models.Booking
		status, proof    string
		created, updated int64
	)
	err := row.Scan(&b.ID, &b.RequesterID, &b.ProviderID, &b.ServiceRequestID, &status, &proof,
		&b.CompletionComment, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, store.ErrNotFound
		}
		return b, err
	}
	b.Status = models.BookingStatus(status)
	if b.CompletionProof, err = decodeStrings("completion_proof", proof); err != nil {
		return b, err
	}
	b.CreatedAt = fromNanos(created)
	b.UpdatedAt = fromNanos(updated)
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var res []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func insertBooking(ctx context.Context, q queryer, b models.Booking) error {
	_, err := q.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		b.ID, b.RequesterID, b.ProviderID, b.ServiceRequestID, string(b.Status), encodeStrings(b.CompletionProof),
		b.CompletionComment, nanos(b.CreatedAt), nanos(b.UpdatedAt))
	return err
}

func (s *Store) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	return scanBooking(s.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=?`, id))
}

func (s *Store) GetBookingByRequest(ctx context.Context, requestID string) (models.Booking, error) {
	return scanBooking(s.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE service_request_id=?`, requestID))
}

func (s *Store) ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE requester_id=? OR provider_id=? ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListAllBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// TransitionBooking applies t and, when t.RequestTo is set, mirrors the
// change onto the booking's request in the same transaction.
func (s *Store) TransitionBooking(ctx context.Context, t store.BookingTransition) (models.Booking, error) {
	if len(t.From) == 0 {
		return models.Booking{}, fmt.Errorf("transition %s: no source states", t.ID)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Booking{}, err
	}
	defer tx.Rollback()

	sets := []string{"status=?", "updated_at=?"}
	args := []any{string(t.To), nanos(t.Now)}
	if t.To == models.BookingComplete {
		sets = append(sets, "completion_proof=?", "completion_comment=?")
		args = append(args, encodeStrings(t.Proof), t.Comment)
	}
	conds := []string{"id=?", "status IN (" + placeholders(len(t.From)) + ")"}
	args = append(args, t.ID)
	for _, st := range t.From {
		args = append(args, string(st))
	}
	if t.ProviderID != "" {
		conds = append(conds, "provider_id=?")
		args = append(args, t.ProviderID)
	}
	if t.ParticipantID != "" {
		conds = append(conds, "(requester_id=? OR provider_id=?)")
		args = append(args, t.ParticipantID, t.ParticipantID)
	}
	b, err := scanBooking(tx.QueryRowContext(ctx, `UPDATE bookings SET `+strings.Join(sets, ", ")+
		` WHERE `+strings.Join(conds, " AND ")+` RETURNING `+bookingColumns, args...))
	if errors.Is(err, store.ErrNotFound) {
		return b, store.ErrNotApplied
	}
	if err != nil {
		return b, err
	}

	if t.RequestTo != "" && len(t.RequestFrom) > 0 {
		assigned := "NULL"
		if assignsProvider(t.RequestTo) {
			assigned = "assigned_provider_id"
		}
		rargs := []any{string(t.RequestTo), nanos(t.Now), b.ServiceRequestID}
		for _, st := range t.RequestFrom {
			rargs = append(rargs, string(st))
		}
		if _, err := tx.ExecContext(ctx, `UPDATE service_requests SET status=?, updated_at=?, assigned_provider_id=`+assigned+`
			WHERE id=? AND status IN (`+placeholders(len(t.RequestFrom))+`)`, rargs...); err != nil {
			return b, fmt.Errorf("mirror request status: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return b, err
	}
	return b, nil
}
