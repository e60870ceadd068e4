package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const bookingColumns = `id, requester_id, provider_id, service_request_id, status, completion_proof, completion_comment, created_at, updated_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.RequesterID, &b.ProviderID, &b.ServiceRequestID, &b.Status,
		&b.CompletionProof, &b.CompletionComment, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, notFound(err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
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

func bookingStatusArgs(in []models.BookingStatus) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func requestStatusArgs(in []models.RequestStatus) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func insertBooking(ctx context.Context, q querier, b models.Booking) error {
	_, err := q.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.RequesterID, b.ProviderID, b.ServiceRequestID, string(b.Status), nonNil(b.CompletionProof),
		b.CompletionComment, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *Store) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	return scanBooking(s.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
}

func (s *Store) GetBookingByRequest(ctx context.Context, requestID string) (models.Booking, error) {
	return scanBooking(s.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE service_request_id=$1`, requestID))
}

func (s *Store) ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE requester_id=$1 OR provider_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListAllBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) TransitionBooking(ctx context.Context, t store.BookingTransition) (models.Booking, error) {
	if len(t.From) == 0 {
		return models.Booking{}, fmt.Errorf("transition %s: no source states", t.ID)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return models.Booking{}, err
	}
	defer tx.Rollback(ctx)

	var p params
	sets := []string{"status=" + p.add(string(t.To)), "updated_at=" + p.add(t.Now)}
	if t.To == models.BookingComplete {
		sets = append(sets, "completion_proof="+p.add(nonNil(t.Proof)), "completion_comment="+p.add(t.Comment))
	}
	conds := []string{"id=" + p.add(t.ID), "status IN (" + p.list(bookingStatusArgs(t.From)...) + ")"}
	if t.ProviderID != "" {
		conds = append(conds, "provider_id="+p.add(t.ProviderID))
	}
	if t.ParticipantID != "" {
		ph := p.add(t.ParticipantID)
		conds = append(conds, "(requester_id="+ph+" OR provider_id="+ph+")")
	}
	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET `+strings.Join(sets, ", ")+
		` WHERE `+strings.Join(conds, " AND ")+` RETURNING `+bookingColumns, p...))
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
		var rp params
		query := `UPDATE service_requests SET status=` + rp.add(string(t.RequestTo)) +
			`, updated_at=` + rp.add(t.Now) + `, assigned_provider_id=` + assigned +
			` WHERE id=` + rp.add(b.ServiceRequestID) +
			` AND status IN (` + rp.list(requestStatusArgs(t.RequestFrom)...) + `)`
		if _, err := tx.Exec(ctx, query, rp...); err != nil {
			return b, fmt.Errorf("mirror request status: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return b, err
	}
	return b, nil
}
