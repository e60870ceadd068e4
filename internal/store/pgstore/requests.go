package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const requestColumns = `id, requester_id, type_of_work, budget, notes, lat, lng, preferred_date, preferred_time,
	status, assigned_provider_id, target_provider_id, expires_at, created_at, updated_at`

func scanRequest(row pgx.Row) (models.ServiceRequest, error) {
	var (
		r        models.ServiceRequest
		lat, lng *float64
	)
	err := row.Scan(&r.ID, &r.RequesterID, &r.TypeOfWork, &r.Budget, &r.Notes, &lat, &lng,
		&r.PreferredDate, &r.PreferredTime, &r.Status, &r.AssignedProviderID, &r.TargetProviderID,
		&r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, notFound(err)
	}
	if lat != nil && lng != nil {
		r.Location = &models.GeoPoint{Lat: *lat, Lng: *lng}
	}
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func collectRequests(rows pgx.Rows) ([]models.ServiceRequest, error) {
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

func location(r models.ServiceRequest) (lat, lng *float64) {
	if r.Location == nil {
		return nil, nil
	}
	return &r.Location.Lat, &r.Location.Lng
}

func (s *Store) CreateRequest(ctx context.Context, r models.ServiceRequest) error {
	lat, lng := location(r)
	_, err := s.DB.Exec(ctx, `INSERT INTO service_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.RequesterID, r.TypeOfWork, r.Budget, r.Notes, lat, lng, r.PreferredDate, r.PreferredTime,
		string(r.Status), r.AssignedProviderID, r.TargetProviderID, r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	return scanRequest(s.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id=$1`, id))
}

func (s *Store) UpdateRequestDetails(ctx context.Context, r models.ServiceRequest) (models.ServiceRequest, error) {
	lat, lng := location(r)
	out, err := scanRequest(s.DB.QueryRow(ctx, `UPDATE service_requests SET
			type_of_work=$1, budget=$2, notes=$3, lat=$4, lng=$5, preferred_date=$6, preferred_time=$7,
			expires_at=$8, updated_at=$9
		WHERE id=$10 AND requester_id=$11 AND status=$12
		RETURNING `+requestColumns,
		r.TypeOfWork, r.Budget, r.Notes, lat, lng, r.PreferredDate, r.PreferredTime,
		r.ExpiresAt, r.UpdatedAt, r.ID, r.RequesterID, string(models.RequestWaiting)))
	if errors.Is(err, store.ErrNotFound) {
		return out, store.ErrNotApplied
	}
	return out, err
}

func (s *Store) ListOpenRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=$1 AND expires_at > $2 ORDER BY created_at DESC`, string(models.RequestWaiting), now)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListOffers(ctx context.Context, providerID string, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=$1 AND target_provider_id=$2 AND expires_at > $3 ORDER BY created_at DESC`,
		string(models.RequestOffered), providerID, now)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListRequestsByRequester(ctx context.Context, requesterID string) ([]models.ServiceRequest, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE requester_id=$1 ORDER BY created_at DESC`, requesterID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListExpiredWaiting(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+requestColumns+` FROM service_requests
		WHERE status=$1 AND expires_at < $2 ORDER BY expires_at`, string(models.RequestWaiting), now)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func assignsProvider(s models.RequestStatus) bool {
	return s == models.RequestWorking || s == models.RequestComplete
}

func transitionRequest(ctx context.Context, q querier, t store.RequestTransition) (models.ServiceRequest, error) {
	if len(t.Allowed) == 0 {
		return models.ServiceRequest{}, fmt.Errorf("transition %s: no preconditions", t.ID)
	}
	var p params
	sets := []string{"status=" + p.add(string(t.To)), "updated_at=" + p.add(t.Now)}
	if assignsProvider(t.To) {
		sets = append(sets, "assigned_provider_id=COALESCE("+p.add(nullable(t.AssignProvider))+"::text, assigned_provider_id)")
	} else {
		sets = append(sets, "assigned_provider_id=NULL")
	}
	switch {
	case t.ClearTarget:
		sets = append(sets, "target_provider_id=NULL")
	case t.SetTarget != "":
		sets = append(sets, "target_provider_id="+p.add(t.SetTarget))
	}

	conds := []string{"id=" + p.add(t.ID)}
	var ors []string
	for _, pre := range t.Allowed {
		if pre.TargetProviderID != "" {
			ors = append(ors, "(status="+p.add(string(pre.Status))+" AND target_provider_id="+p.add(pre.TargetProviderID)+")")
			continue
		}
		ors = append(ors, "status="+p.add(string(pre.Status)))
	}
	conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	if t.RequesterID != "" {
		conds = append(conds, "requester_id="+p.add(t.RequesterID))
	}
	if !t.NotExpiredAt.IsZero() {
		conds = append(conds, "expires_at > "+p.add(t.NotExpiredAt))
	}

	r, err := scanRequest(q.QueryRow(ctx, `UPDATE service_requests SET `+strings.Join(sets, ", ")+
		` WHERE `+strings.Join(conds, " AND ")+` RETURNING `+requestColumns, p...))
	if errors.Is(err, store.ErrNotFound) {
		return r, store.ErrNotApplied
	}
	return r, err
}

func (s *Store) TransitionRequest(ctx context.Context, t store.RequestTransition) (models.ServiceRequest, error) {
	return transitionRequest(ctx, s.DB, t)
}

func (s *Store) AcceptRequest(ctx context.Context, t store.RequestTransition, b models.Booking) (models.ServiceRequest, models.Booking, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return models.ServiceRequest{}, models.Booking{}, err
	}
	defer tx.Rollback(ctx)

	r, err := transitionRequest(ctx, tx, t)
	if err != nil {
		return r, models.Booking{}, err
	}
	b.ServiceRequestID = r.ID
	if err := insertBooking(ctx, tx, b); err != nil {
		return r, b, fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return r, b, err
	}
	return r, b, nil
}

func (s *Store) CancelRequest(ctx context.Context, t store.RequestTransition) (models.ServiceRequest, *models.Booking, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return models.ServiceRequest{}, nil, err
	}
	defer tx.Rollback(ctx)

	r, err := transitionRequest(ctx, tx, t)
	if err != nil {
		return r, nil, err
	}
	var p params
	set := "status=" + p.add(string(models.BookingCancelled)) + ", updated_at=" + p.add(t.Now)
	where := "service_request_id=" + p.add(r.ID) + " AND status IN (" + p.list(bookingStatusArgs(models.BookingSourcesFor(models.BookingCancelled))...) + ")"
	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET `+set+` WHERE `+where+` RETURNING `+bookingColumns, p...))
	var cancelled *models.Booking
	switch {
	case err == nil:
		cancelled = &b
	case errors.Is(err, store.ErrNotFound):
	default:
		return r, nil, fmt.Errorf("cancel booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return r, nil, err
	}
	return r, cancelled, nil
}

func (s *Store) ExpireRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error) {
	rows, err := s.DB.Query(ctx, `UPDATE service_requests SET status=$1, updated_at=$2
		WHERE status=$3 AND expires_at < $2
		RETURNING `+requestColumns,
		string(models.RequestExpired), now, string(models.RequestWaiting))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}
