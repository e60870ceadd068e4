// Package marketplace carries service requests from creation to a finished
// or abandoned booking: matching, offers, acceptance and expiry.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/events"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store"
)

// Realtime event names.
const (
	EventServiceRequestUpdated = "service-request-updated"
	EventBookingUpdated        = "booking-updated"
)

// DefaultHorizon is how long a request without a preferred date stays open.
const DefaultHorizon = 24 * time.Hour

// Store is the persistence the marketplace needs.
type Store interface {
	store.Users
	store.Requests
	store.Bookings
}

// Broadcaster fans an event out to a room.
type Broadcaster interface {
	Broadcast(room string, ev presence.Event) int
}

// Notifier writes a feed entry for a user and pushes it when possible.
type Notifier interface {
	Notify(ctx context.Context, recipientID, title, message string, meta map[string]any) (models.Notification, error)
}

// Service owns every request and booking transition. Each mutation commits
// first; room events, notifications and domain events follow and never
// change the outcome.
type Service struct {
	Store    Store
	Matcher  Matcher
	Rooms    Broadcaster
	Notifier Notifier
	Events   events.Publisher
	Horizon  time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
}

func NewService(st Store, rooms Broadcaster, notifier Notifier, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		Store:    st,
		Matcher:  Matcher{Tolerance: DefaultBudgetTolerance},
		Rooms:    rooms,
		Notifier: notifier,
		Events:   pub,
		Horizon:  DefaultHorizon,
		Now:      time.Now,
		Log:      logger.With().Str("component", "marketplace").Logger(),
	}
}

// RequestInput is the editable part of a ServiceRequest.
type RequestInput struct {
	TypeOfWork       string           `json:"type_of_work"`
	Budget           *float64         `json:"budget"`
	Notes            string           `json:"notes"`
	Location         *models.GeoPoint `json:"location"`
	PreferredDate    string           `json:"preferred_date"`
	PreferredTime    string           `json:"preferred_time"`
	TargetProviderID string           `json:"target_provider_id"`
}

func (in *RequestInput) normalize() error {
	in.TypeOfWork = strings.TrimSpace(in.TypeOfWork)
	in.Notes = strings.TrimSpace(in.Notes)
	in.PreferredDate = strings.TrimSpace(in.PreferredDate)
	in.PreferredTime = strings.TrimSpace(in.PreferredTime)
	in.TargetProviderID = strings.TrimSpace(in.TargetProviderID)
	if in.TypeOfWork == "" {
		return models.Validation("type_of_work is required")
	}
	if in.Budget != nil && *in.Budget < 0 {
		return models.Validation("budget must not be negative")
	}
	if l := in.Location; l != nil && (l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180) {
		return models.Validation("location is out of range")
	}
	if in.PreferredTime != "" && in.PreferredDate == "" {
		return models.Validation("preferred_time needs a preferred_date")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) horizon() time.Duration {
	if s.Horizon <= 0 {
		return DefaultHorizon
	}
	return s.Horizon
}

// CreateRequest opens a request for a community member and tells the
// providers it matches, or only its target when one is named.
func (s *Service) CreateRequest(ctx context.Context, actor auth.Identity, in RequestInput) (models.ServiceRequest, error) {
	if actor.Role != models.RoleCommunityMember {
		return models.ServiceRequest{}, models.Forbidden("only community members can create requests")
	}
	if err := in.normalize(); err != nil {
		return models.ServiceRequest{}, err
	}
	now := s.now()
	expires, err := models.ExpiresAtFor(in.PreferredDate, in.PreferredTime, now, s.horizon())
	if err != nil {
		return models.ServiceRequest{}, err
	}
	r := models.ServiceRequest{
		ID:            uuid.New().String(),
		RequesterID:   actor.UserID,
		TypeOfWork:    in.TypeOfWork,
		Budget:        in.Budget,
		Notes:         in.Notes,
		Location:      in.Location,
		PreferredDate: in.PreferredDate,
		PreferredTime: in.PreferredTime,
		Status:        models.RequestWaiting,
		ExpiresAt:     expires,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.TargetProviderID != "" {
		if _, err := s.provider(ctx, in.TargetProviderID); err != nil {
			return models.ServiceRequest{}, err
		}
		target := in.TargetProviderID
		r.TargetProviderID = &target
	}
	if err := s.Store.CreateRequest(ctx, r); err != nil {
		return models.ServiceRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.announce(ctx, r)
	s.publish(ctx, events.RequestCreated, r)
	return r, nil
}

// announce notifies the online providers r matches.
func (s *Service) announce(ctx context.Context, r models.ServiceRequest) {
	if !r.Matchable(s.now()) {
		return
	}
	providers, err := s.Store.ListOnlineProviders(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Str("request_id", r.ID).Msg("list online providers")
		return
	}
	for _, p := range s.Matcher.Candidates(r, providers) {
		title, message := "New service request", fmt.Sprintf("A new %s request matches your profile", r.TypeOfWork)
		targeted := r.IsTargetedAt(p.ID)
		if targeted {
			title, message = "You were requested", fmt.Sprintf("A requester asked you directly for %s", r.TypeOfWork)
		}
		s.notify(ctx, p.ID, title, message, map[string]any{
			"requestId":  r.ID,
			"typeOfWork": r.TypeOfWork,
			"targeted":   targeted,
		})
	}
}

// UpdateRequest edits a request while it is still Waiting.
func (s *Service) UpdateRequest(ctx context.Context, actor auth.Identity, id string, in RequestInput) (models.ServiceRequest, error) {
	if err := in.normalize(); err != nil {
		return models.ServiceRequest{}, err
	}
	now := s.now()
	cur, err := s.loadRequest(ctx, id)
	if err != nil {
		return cur, err
	}
	if cur.RequesterID != actor.UserID {
		return models.ServiceRequest{}, models.Forbidden("only the requester can edit this request")
	}
	switch cur.EffectiveStatus(now) {
	case models.RequestWaiting:
	case models.RequestExpired:
		return models.ServiceRequest{}, models.Expired("service request has expired")
	default:
		return models.ServiceRequest{}, models.Conflictf("service request is %s and can no longer be edited", cur.Status)
	}
	expires, err := models.ExpiresAtFor(in.PreferredDate, in.PreferredTime, cur.CreatedAt, s.horizon())
	if err != nil {
		return models.ServiceRequest{}, err
	}

	next := cur
	next.TypeOfWork = in.TypeOfWork
	next.Budget = in.Budget
	next.Notes = in.Notes
	next.Location = in.Location
	next.PreferredDate = in.PreferredDate
	next.PreferredTime = in.PreferredTime
	next.ExpiresAt = expires
	next.UpdatedAt = now

	r, err := s.Store.UpdateRequestDetails(ctx, next)
	if errors.Is(err, store.ErrNotApplied) {
		return models.ServiceRequest{}, s.requestFailure(ctx, id, now)
	}
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("update request: %w", err)
	}
	s.requestUpdated(r, "updated")
	s.publish(ctx, events.RequestUpdated, r)
	return r, nil
}

// ListMatching returns the open requests the calling provider may accept.
// Lookup failures degrade to an empty list.
func (s *Service) ListMatching(ctx context.Context, actor auth.Identity) ([]models.ServiceRequest, error) {
	if actor.Role != models.RoleServiceProvider {
		return nil, models.Forbidden("only service providers can browse matching requests")
	}
	now := s.now()
	p, err := s.Store.GetUser(ctx, actor.UserID)
	if err != nil {
		s.Log.Warn().Err(err).Str("provider_id", actor.UserID).Msg("load provider for matching")
		return []models.ServiceRequest{}, nil
	}
	open, err := s.Store.ListOpenRequests(ctx, now)
	if err != nil {
		s.Log.Warn().Err(err).Msg("list open requests")
		return []models.ServiceRequest{}, nil
	}
	return s.Matcher.Match(p, open, now), nil
}

// ListOffers returns the live offers addressed to the calling provider.
func (s *Service) ListOffers(ctx context.Context, actor auth.Identity) ([]models.ServiceRequest, error) {
	if actor.Role != models.RoleServiceProvider {
		return nil, models.Forbidden("only service providers have offers")
	}
	offers, err := s.Store.ListOffers(ctx, actor.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	if offers == nil {
		offers = []models.ServiceRequest{}
	}
	return offers, nil
}

// ListMyRequests returns the caller's requests with lazily applied expiry.
func (s *Service) ListMyRequests(ctx context.Context, actor auth.Identity) ([]models.ServiceRequest, error) {
	rs, err := s.Store.ListRequestsByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	now := s.now()
	out := make([]models.ServiceRequest, 0, len(rs))
	for _, r := range rs {
		r.Status = r.EffectiveStatus(now)
		out = append(out, r)
	}
	return out, nil
}

// GetRequest returns a request to anyone with a stake in it: the requester,
// its target or assigned provider, an admin, or a provider it matches.
func (s *Service) GetRequest(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, error) {
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return r, err
	}
	now := s.now()
	visible := actor.Role == models.RoleAdmin ||
		r.RequesterID == actor.UserID ||
		r.IsTargetedAt(actor.UserID) ||
		(r.AssignedProviderID != nil && *r.AssignedProviderID == actor.UserID)
	if !visible && actor.Role == models.RoleServiceProvider && r.Matchable(now) {
		if p, err := s.Store.GetUser(ctx, actor.UserID); err == nil && s.Matcher.Eligible(p, r) {
			visible = true
		}
	}
	if !visible {
		return models.ServiceRequest{}, models.Forbidden("not allowed to view this request")
	}
	r.Status = r.EffectiveStatus(now)
	return r, nil
}

// OfferToProvider reserves a Waiting request for one provider.
func (s *Service) OfferToProvider(ctx context.Context, actor auth.Identity, id, providerID string) (models.ServiceRequest, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return models.ServiceRequest{}, models.Validation("provider_id is required")
	}
	cur, err := s.loadRequest(ctx, id)
	if err != nil {
		return cur, err
	}
	if cur.RequesterID != actor.UserID {
		return models.ServiceRequest{}, models.Forbidden("only the requester can make an offer")
	}
	p, err := s.provider(ctx, providerID)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	now := s.now()
	r, err := s.Store.TransitionRequest(ctx, store.RequestTransition{
		ID:           id,
		Allowed:      []store.Precondition{{Status: models.RequestWaiting}},
		RequesterID:  actor.UserID,
		NotExpiredAt: now,
		To:           models.RequestOffered,
		SetTarget:    p.ID,
		Now:          now,
	})
	if errors.Is(err, store.ErrNotApplied) {
		return models.ServiceRequest{}, s.requestFailure(ctx, id, now)
	}
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("offer request: %w", err)
	}

	s.requestUpdated(r, "offered")
	s.notify(ctx, p.ID, "New offer", fmt.Sprintf("You received an offer for %s", r.TypeOfWork), map[string]any{
		"requestId": r.ID,
		"action":    "offered",
	})
	s.publish(ctx, events.RequestUpdated, r)
	return r, nil
}

// Accept assigns a Waiting request, or an Offered one addressed to the
// caller, to the calling provider and opens its booking. Of any number of
// concurrent callers exactly one succeeds; the rest get Conflict.
func (s *Service) Accept(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, models.Booking, error) {
	return s.accept(ctx, actor, id, []store.Precondition{
		{Status: models.RequestWaiting},
		{Status: models.RequestOffered, TargetProviderID: actor.UserID},
	})
}

// AcceptOffer accepts an Offered request addressed to the caller.
func (s *Service) AcceptOffer(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, models.Booking, error) {
	return s.accept(ctx, actor, id, []store.Precondition{
		{Status: models.RequestOffered, TargetProviderID: actor.UserID},
	})
}

func (s *Service) accept(ctx context.Context, actor auth.Identity, id string, allowed []store.Precondition) (models.ServiceRequest, models.Booking, error) {
	if actor.Role != models.RoleServiceProvider {
		return models.ServiceRequest{}, models.Booking{}, models.Forbidden("only service providers can accept requests")
	}
	cur, err := s.loadRequest(ctx, id)
	if err != nil {
		return cur, models.Booking{}, err
	}
	if cur.Status == models.RequestOffered && !cur.IsTargetedAt(actor.UserID) {
		return models.ServiceRequest{}, models.Booking{}, models.Forbidden("this offer is addressed to another provider")
	}

	now := s.now()
	b := models.Booking{
		ID:          uuid.New().String(),
		RequesterID: cur.RequesterID,
		ProviderID:  actor.UserID,
		Status:      models.BookingWorking,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r, b, err := s.Store.AcceptRequest(ctx, store.RequestTransition{
		ID:             id,
		Allowed:        allowed,
		NotExpiredAt:   now,
		To:             models.RequestWorking,
		AssignProvider: actor.UserID,
		ClearTarget:    true,
		Now:            now,
	}, b)
	if errors.Is(err, store.ErrNotApplied) {
		return models.ServiceRequest{}, models.Booking{}, s.requestFailure(ctx, id, now)
	}
	if err != nil {
		return models.ServiceRequest{}, models.Booking{}, fmt.Errorf("accept request: %w", err)
	}

	s.requestUpdated(r, "accepted")
	s.notify(ctx, r.RequesterID, "Request accepted", fmt.Sprintf("A provider accepted your %s request", r.TypeOfWork), map[string]any{
		"requestId": r.ID,
		"bookingId": b.ID,
		"action":    "accepted",
	})
	s.publish(ctx, events.RequestAccepted, map[string]any{"request": r, "booking": b})
	return r, b, nil
}

// RejectOffer returns an Offered request to the open pool. The target of a
// Waiting request may decline it the same way, which drops the targeting.
func (s *Service) RejectOffer(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, error) {
	cur, err := s.loadRequest(ctx, id)
	if err != nil {
		return cur, err
	}
	if !cur.IsTargetedAt(actor.UserID) {
		return models.ServiceRequest{}, models.Forbidden("this offer is not addressed to you")
	}
	now := s.now()
	r, err := s.Store.TransitionRequest(ctx, store.RequestTransition{
		ID:          id,
		Allowed: []store.Precondition{
			{Status: models.RequestOffered, TargetProviderID: actor.UserID},
			{Status: models.RequestWaiting, TargetProviderID: actor.UserID},
		},
		To:          models.RequestWaiting,
		ClearTarget: true,
		Now:         now,
	})
	if errors.Is(err, store.ErrNotApplied) {
		return models.ServiceRequest{}, s.requestFailure(ctx, id, now)
	}
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("reject offer: %w", err)
	}

	s.requestUpdated(r, "rejected")
	s.notify(ctx, r.RequesterID, "Offer declined", fmt.Sprintf("The provider declined your %s offer", r.TypeOfWork), map[string]any{
		"requestId": r.ID,
		"action":    "rejected",
	})
	s.publish(ctx, events.RequestUpdated, r)
	return r, nil
}

// CancelRequest cancels a live request on behalf of its requester or an
// admin, along with its open booking.
func (s *Service) CancelRequest(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, error) {
	cur, err := s.loadRequest(ctx, id)
	if err != nil {
		return cur, err
	}
	admin := actor.Role == models.RoleAdmin
	if !admin && cur.RequesterID != actor.UserID {
		return models.ServiceRequest{}, models.Forbidden("only the requester or an admin can cancel this request")
	}
	now := s.now()
	if cur.EffectiveStatus(now) == models.RequestExpired {
		return models.ServiceRequest{}, models.Expired("service request has expired")
	}

	t := store.RequestTransition{ID: id, To: models.RequestCancelled, Now: now}
	for _, from := range models.RequestSourcesFor(models.RequestCancelled) {
		t.Allowed = append(t.Allowed, store.Precondition{Status: from})
	}
	if !admin {
		t.RequesterID = actor.UserID
	}
	r, booking, err := s.Store.CancelRequest(ctx, t)
	if errors.Is(err, store.ErrNotApplied) {
		return models.ServiceRequest{}, s.requestFailure(ctx, id, now)
	}
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("cancel request: %w", err)
	}

	s.requestUpdated(r, "cancelled")
	meta := map[string]any{"requestId": r.ID, "action": "cancelled"}
	message := fmt.Sprintf("The %s request was cancelled", r.TypeOfWork)
	if admin && r.RequesterID != actor.UserID {
		s.notify(ctx, r.RequesterID, "Request cancelled", message, meta)
	}
	switch {
	case booking != nil:
		s.bookingUpdated(*booking, "cancelled")
		meta["bookingId"] = booking.ID
		s.notify(ctx, booking.ProviderID, "Request cancelled", message, meta)
	case r.TargetProviderID != nil:
		s.notify(ctx, *r.TargetProviderID, "Request cancelled", message, meta)
	}
	s.publish(ctx, events.RequestCancelled, r)
	return r, nil
}

// CompleteBooking lets the assigned provider close a booking with proof of
// work. The request moves to Complete in the same transaction.
func (s *Service) CompleteBooking(ctx context.Context, actor auth.Identity, id string, proof []string, comment string) (models.Booking, error) {
	cur, err := s.loadBooking(ctx, id)
	if err != nil {
		return cur, err
	}
	if cur.ProviderID != actor.UserID {
		return models.Booking{}, models.Forbidden("only the assigned provider can complete this booking")
	}
	clean := make([]string, 0, len(proof))
	for _, p := range proof {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	now := s.now()
	b, err := s.Store.TransitionBooking(ctx, store.BookingTransition{
		ID:          id,
		From:        models.BookingSourcesFor(models.BookingComplete),
		To:          models.BookingComplete,
		ProviderID:  actor.UserID,
		Proof:       clean,
		Comment:     strings.TrimSpace(comment),
		RequestFrom: []models.RequestStatus{models.RequestWorking},
		RequestTo:   models.RequestComplete,
		Now:         now,
	})
	if errors.Is(err, store.ErrNotApplied) {
		return models.Booking{}, s.bookingFailure(ctx, id)
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("complete booking: %w", err)
	}

	s.bookingUpdated(b, "completed")
	s.requestUpdated(models.ServiceRequest{ID: b.ServiceRequestID, Status: models.RequestComplete}, "completed")
	s.notify(ctx, b.RequesterID, "Booking completed", "Your provider marked the job as complete", map[string]any{
		"bookingId": b.ID,
		"requestId": b.ServiceRequestID,
		"action":    "completed",
	})
	s.publish(ctx, events.BookingCompleted, b)
	return b, nil
}

// CancelBooking lets either participant abandon an open booking. Its
// request is cancelled with it.
func (s *Service) CancelBooking(ctx context.Context, actor auth.Identity, id string) (models.Booking, error) {
	cur, err := s.loadBooking(ctx, id)
	if err != nil {
		return cur, err
	}
	if !cur.Participant(actor.UserID) {
		return models.Booking{}, models.Forbidden("not a participant of this booking")
	}
	now := s.now()
	b, err := s.Store.TransitionBooking(ctx, store.BookingTransition{
		ID:            id,
		From:          models.BookingSourcesFor(models.BookingCancelled),
		To:            models.BookingCancelled,
		ParticipantID: actor.UserID,
		RequestFrom:   models.RequestSourcesFor(models.RequestCancelled),
		RequestTo:     models.RequestCancelled,
		Now:           now,
	})
	if errors.Is(err, store.ErrNotApplied) {
		return models.Booking{}, s.bookingFailure(ctx, id)
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("cancel booking: %w", err)
	}

	s.bookingUpdated(b, "cancelled")
	s.requestUpdated(models.ServiceRequest{ID: b.ServiceRequestID, Status: models.RequestCancelled}, "cancelled")
	s.notify(ctx, b.Counterpart(actor.UserID), "Booking cancelled", "The other party cancelled the booking", map[string]any{
		"bookingId": b.ID,
		"requestId": b.ServiceRequestID,
		"action":    "cancelled",
	})
	s.publish(ctx, events.BookingUpdated, b)
	return b, nil
}

// UpdateBookingStatus moves a booking to status on behalf of a participant.
// Complete and Cancelled carry their own rules and delegate.
func (s *Service) UpdateBookingStatus(ctx context.Context, actor auth.Identity, id string, status models.BookingStatus) (models.Booking, error) {
	if !status.Valid() {
		return models.Booking{}, models.Validation("unknown booking status")
	}
	switch status {
	case models.BookingComplete:
		return s.CompleteBooking(ctx, actor, id, nil, "")
	case models.BookingCancelled:
		return s.CancelBooking(ctx, actor, id)
	}
	cur, err := s.loadBooking(ctx, id)
	if err != nil {
		return cur, err
	}
	if !cur.Participant(actor.UserID) {
		return models.Booking{}, models.Forbidden("not a participant of this booking")
	}
	from := models.BookingSourcesFor(status)
	if len(from) == 0 {
		return models.Booking{}, models.Conflictf("a booking cannot move to %s", status)
	}
	b, err := s.Store.TransitionBooking(ctx, store.BookingTransition{
		ID:            id,
		From:          from,
		To:            status,
		ParticipantID: actor.UserID,
		Now:           s.now(),
	})
	if errors.Is(err, store.ErrNotApplied) {
		return models.Booking{}, s.bookingFailure(ctx, id)
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("update booking: %w", err)
	}

	s.bookingUpdated(b, "status-updated")
	s.notify(ctx, b.Counterpart(actor.UserID), "Booking updated", fmt.Sprintf("Booking is now %s", b.Status), map[string]any{
		"bookingId": b.ID,
		"action":    "status-updated",
		"newStatus": b.Status,
	})
	s.publish(ctx, events.BookingUpdated, b)
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, actor auth.Identity) ([]models.Booking, error) {
	bs, err := s.Store.ListBookingsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bs == nil {
		bs = []models.Booking{}
	}
	return bs, nil
}

// ListAllBookings is the admin view across every user.
func (s *Service) ListAllBookings(ctx context.Context, actor auth.Identity, limit int) ([]models.Booking, error) {
	if actor.Role != models.RoleAdmin {
		return nil, models.Forbidden("admin only")
	}
	bs, err := s.Store.ListAllBookings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bs == nil {
		bs = []models.Booking{}
	}
	return bs, nil
}

func (s *Service) GetBooking(ctx context.Context, actor auth.Identity, id string) (models.Booking, error) {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return b, err
	}
	if !b.Participant(actor.UserID) && actor.Role != models.RoleAdmin {
		return models.Booking{}, models.Forbidden("not a participant of this booking")
	}
	return b, nil
}

func (s *Service) loadRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	r, err := s.Store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.ServiceRequest{}, models.NotFound("service request not found")
	}
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("load request: %w", err)
	}
	return r, nil
}

func (s *Service) loadBooking(ctx context.Context, id string) (models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Booking{}, models.NotFound("booking not found")
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

// provider loads a user who can receive offers.
func (s *Service) provider(ctx context.Context, id string) (models.User, error) {
	p, err := s.Store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, models.NotFound("provider not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load provider: %w", err)
	}
	if p.Role != models.RoleServiceProvider {
		return models.User{}, models.Validation("target user is not a service provider")
	}
	if p.Banned {
		return models.User{}, models.Validation("provider is unavailable")
	}
	return p, nil
}

// requestFailure explains why a conditional request update did not apply.
func (s *Service) requestFailure(ctx context.Context, id string, now time.Time) error {
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return err
	}
	if r.EffectiveStatus(now) == models.RequestExpired {
		return models.Expired("service request has expired")
	}
	return models.Conflictf("service request is %s", r.Status)
}

func (s *Service) bookingFailure(ctx context.Context, id string) error {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	return models.Conflictf("booking is %s", b.Status)
}

func (s *Service) requestUpdated(r models.ServiceRequest, action string) {
	if s.Rooms == nil {
		return
	}
	s.Rooms.Broadcast(presence.RequestRoom(r.ID), presence.Event{
		Type: EventServiceRequestUpdated,
		Data: map[string]any{"requestId": r.ID, "action": action, "status": r.Status},
	})
}

func (s *Service) bookingUpdated(b models.Booking, action string) {
	if s.Rooms == nil {
		return
	}
	s.Rooms.Broadcast(presence.BookingRoom(b.ID), presence.Event{
		Type: EventBookingUpdated,
		Data: map[string]any{"bookingId": b.ID, "action": action, "newStatus": b.Status},
	})
}

func (s *Service) notify(ctx context.Context, recipientID, title, message string, meta map[string]any) {
	if s.Notifier == nil || recipientID == "" {
		return
	}
	if _, err := s.Notifier.Notify(ctx, recipientID, title, message, meta); err != nil {
		s.Log.Error().Err(err).Str("recipient", recipientID).Str("title", title).Msg("notify")
	}
}

func (s *Service) publish(ctx context.Context, key string, data any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, key, events.NewEnvelope(key, data)); err != nil {
		s.Log.Warn().Err(err).Str("routing_key", key).Msg("publish domain event")
	}
}
