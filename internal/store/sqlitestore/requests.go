package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const requestColumns = `id, requester_id, type_of_work, budget, notes, lat, lng, preferred_date, preferred_time,
	status, assigned_provider_id, target_provider_id, expires_at, created_at, updated_at`

func scanRequest(row rowScanner) (models.ServiceRequest, error) {
	var (
		r                         models.ServiceRequest
		budget, lat, lng          sql.NullFloat64
		assigned, target          sql.NullString
		status                    string
		expires, created, updated int64
	)
	err := row.Scan(&r.ID, &r.RequesterID, &r.TypeOfWork, &budget, &r.Notes, &lat, &lng,
		&r.PreferredDate, &r.PreferredTime, &status, &assigned, &target, &expires, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, store.ErrNotFound
		}
		return r, err
	}
	r.Status = models.RequestStatus(status)
	if budget.Valid {
		v := budget.Float64
		r.Budget = &v
	}
	if lat.Valid && lng.Valid {
		r.Location = &models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if assigned.Valid {
		v := assigned.String
		r.AssignedProviderID = &v
	}
	if target.Valid {
		v := target.String
		r.TargetProviderID = &v
	}
	r.ExpiresAt = fromNanos(expires)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return r, nil
}

func collectRequests(rows *sql.Rows) ([]models.ServiceRequest, error) {
	defer rows.Close()
	var res []models.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func location(r models.ServiceRequest) (lat, lng any) {
	if r.Location == nil {
		return nil, nil
	}
	return r.Location.Lat, r.Location.Lng
}

func strPtr(p *string) any {
	if p == nil {
		return nil
	}
	return nullable(*p)
}

func (s *Store) CreateRequest(ctx context.Context, r models.ServiceRequest) error {
	lat, lng := location(r)
	_, err := s.DB.ExecContext(ctx, `INSERT INTO service_requests (`+requestColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.RequesterID, r.TypeOfWork, nullFloat(r.Budget), r.Notes, lat, lng, r.PreferredDate, r.PreferredTime,
		string(r.Status), strPtr(r.AssignedProviderID), strPtr(r.TargetProviderID),
		nanos(r.ExpiresAt), nanos(r.CreatedAt), nanos(r.UpdatedAt))
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	return scanRequest(s.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id=?`, id))
}

// UpdateRequestDetails rewrites the editable fields of a Waiting request
// owned by r.RequesterID.
func (s *Store) UpdateRequestDetails(ctx context.Context, r models.ServiceRequest) (models.ServiceRequest, error) {
	lat, lng := location(r)
	out, err := scanRequest(s.DB.QueryRowContext(ctx, `UPDATE service_requests SET
			type_of_work=?, budget=?, notes=?, lat=?, lng=?, preferred_date=?, preferred_time=?, expires_at=?, updated_at=?
		WHERE id=? AND requester_id=? AND status=?
		RETURNING `+requestColumns,
		r.TypeOfWork, nullFloat(r.Budget), r.Notes, lat, lng, r.PreferredDate, r.PreferredTime,
		nanos(r.ExpiresAt), nanos(r.UpdatedAt), r.ID, r.RequesterID, string(models.RequestWaiting)))
	if errors.Is(err, store.ErrNotFound) {
		return out, store.ErrNotApplied
	}
	return out, err
}

func (s *Store) ListOpenRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=? AND expires_at > ? ORDER BY created_at DESC`, string(models.RequestWaiting), nanos(now))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListOffers(ctx context.Context, providerID string, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=? AND target_provider_id=? AND expires_at > ? ORDER BY created_at DESC`,
		string(models.RequestOffered), providerID, nanos(now))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListRequestsByRequester(ctx context.Context, requesterID string) ([]models.ServiceRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE requester_id=? ORDER BY created_at DESC`, requesterID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListExpiredWaiting(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=? AND expires_at < ? ORDER BY expires_at`, string(models.RequestWaiting), nanos(now))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func assignsProvider(s models.RequestStatus) bool {
	return s == models.RequestWorking || s == models.RequestComplete
}

// transitionRequest builds and runs the conditional UPDATE for t.
func transitionRequest(ctx context.Context, q queryer, t store.RequestTransition) (models.ServiceRequest, error) {
	var (
		sets []string
		args []any
	)
	sets = append(sets, "status=?", "updated_at=?")
	args = append(args, string(t.To), nanos(t.Now))
	if assignsProvider(t.To) {
		sets = append(sets, "assigned_provider_id=COALESCE(?, assigned_provider_id)")
		args = append(args, nullable(t.AssignProvider))
	} else {
		sets = append(sets, "assigned_provider_id=NULL")
	}
	switch {
	case t.ClearTarget:
		sets = append(sets, "target_provider_id=NULL")
	case t.SetTarget != "":
		sets = append(sets, "target_provider_id=?")
		args = append(args, t.SetTarget)
	}

	conds := []string{"id=?"}
	args = append(args, t.ID)
	var ors []string
	for _, p := range t.Allowed {
		if p.TargetProviderID != "" {
			ors = append(ors, "(status=? AND target_provider_id=?)")
			args = append(args, string(p.Status), p.TargetProviderID)
			continue
		}
		ors = append(ors, "status=?")
		args = append(args, string(p.Status))
	}
	if len(ors) == 0 {
		return models.ServiceRequest{}, fmt.Errorf("transition %s: no preconditions", t.ID)
	}
	conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	if t.RequesterID != "" {
		conds = append(conds, "requester_id=?")
		args = append(args, t.RequesterID)
	}
	if !t.NotExpiredAt.IsZero() {
		conds = append(conds, "expires_at > ?")
		args = append(args, nanos(t.NotExpiredAt))
	}

	query := `UPDATE service_requests SET ` + strings.Join(sets, ", ") +
		` WHERE ` + strings.Join(conds, " AND ") + ` RETURNING ` + requestColumns
	r, err := scanRequest(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, store.ErrNotFound) {
		return r, store.ErrNotApplied
	}
	return r, err
}

func (s *Store) TransitionRequest(ctx context.Context, t store.RequestTransition) (models.ServiceRequest, error) {
	return transitionRequest(ctx, s.DB, t)
}

// AcceptRequest applies t and inserts the booking in one transaction.
func (s *Store) AcceptRequest(ctx context.Context, t store.RequestTransition, b models.Booking) (models.ServiceRequest, models.Booking, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ServiceRequest{}, models.Booking{}, err
	}
	defer tx.Rollback()

	r, err := transitionRequest(ctx, tx, t)
	if err != nil {
		return r, models.Booking{}, err
	}
	b.ServiceRequestID = r.ID
	if err := insertBooking(ctx, tx, b); err != nil {
		return r, b, fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return r, b, err
	}
	return r, b, nil
}

// CancelRequest applies t and cancels the request's open booking, if any.
func (s *Store) CancelRequest(ctx context.Context, t store.RequestTransition) (models.ServiceRequest, *models.Booking, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ServiceRequest{}, nil, err
	}
	defer tx.Rollback()

	r, err := transitionRequest(ctx, tx, t)
	if err != nil {
		return r, nil, err
	}
	open := models.BookingSourcesFor(models.BookingCancelled)
	args := []any{string(models.BookingCancelled), nanos(t.Now), r.ID}
	for _, st := range open {
		args = append(args, string(st))
	}
	b, err := scanBooking(tx.QueryRowContext(ctx, `UPDATE bookings SET status=?, updated_at=?
		WHERE service_request_id=? AND status IN (`+placeholders(len(open))+`)
		RETURNING `+bookingColumns, args...))
	var cancelled *models.Booking
	switch {
	case err == nil:
		cancelled = &b
	case errors.Is(err, store.ErrNotFound):
	default:
		return r, nil, fmt.Errorf("cancel booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return r, nil, err
	}
	return r, cancelled, nil
}

func (s *Store) ExpireRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `UPDATE service_requests SET status=?, updated_at=?
		WHERE status=? AND expires_at < ?
		RETURNING `+requestColumns,
		string(models.RequestExpired), nanos(now), string(models.RequestWaiting), nanos(now))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}
