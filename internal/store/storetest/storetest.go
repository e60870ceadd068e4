// Package storetest holds the behavioural contract every store.Store
// implementation must satisfy. Ids are random so the suite can run against
// a shared database.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

type suite struct {
	st  store.Store
	ctx context.Context
	now time.Time

	member, provider, banned string
}

// Run exercises st against the store contract.
func Run(t *testing.T, st store.Store) {
	s := &suite{
		st:       st,
		ctx:      context.Background(),
		now:      time.Now().UTC().Truncate(time.Second),
		member:   "m-" + uuid.NewString(),
		provider: "p-" + uuid.NewString(),
		banned:   "b-" + uuid.NewString(),
	}
	t.Run("Users", s.users)
	t.Run("RequestLifecycle", s.requestLifecycle)
	t.Run("Expiry", s.expiry)
	t.Run("Bookings", s.bookings)
	t.Run("Notifications", s.notifications)
	t.Run("Messages", s.messages)
}

func (s *suite) users(t *testing.T) {
	if _, err := s.st.GetUser(s.ctx, "missing-"+uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rate := 300.0
	for _, u := range []models.User{
		{ID: s.member, Name: "Member", Role: models.RoleCommunityMember},
		{ID: s.provider, Name: "Provider", Role: models.RoleServiceProvider, Skills: []string{"Plumbing", " tiling "}, Rate: &rate},
		{ID: s.banned, Name: "Banned", Role: models.RoleServiceProvider, Banned: true},
	} {
		if err := s.st.UpsertUser(s.ctx, u); err != nil {
			t.Fatalf("upsert %s: %v", u.ID, err)
		}
	}
	u, err := s.st.GetUser(s.ctx, s.provider)
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != models.RoleServiceProvider || u.Rate == nil || *u.Rate != rate || len(u.Skills) != 2 {
		t.Fatalf("unexpected provider %+v", u)
	}

	for _, id := range []string{s.provider, s.banned, s.member} {
		if err := s.st.SetOnline(s.ctx, id, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.st.SetOnline(s.ctx, "missing-"+uuid.NewString(), true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	online, err := s.st.ListOnlineProviders(s.ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, p := range online {
		seen[p.ID] = true
	}
	if !seen[s.provider] || seen[s.banned] || seen[s.member] {
		t.Fatalf("online providers should hold only the unbanned provider: %v", seen)
	}
}

func (s *suite) request(t *testing.T, expiresIn time.Duration) models.ServiceRequest {
	t.Helper()
	budget := 250.0
	r := models.ServiceRequest{
		ID:          uuid.NewString(),
		RequesterID: s.member,
		TypeOfWork:  "Plumbing",
		Budget:      &budget,
		Notes:       "leaking tap",
		Location:    &models.GeoPoint{Lat: 6.5, Lng: 3.4},
		Status:      models.RequestWaiting,
		ExpiresAt:   s.now.Add(expiresIn),
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
	if err := s.st.CreateRequest(s.ctx, r); err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

func (s *suite) booking(r models.ServiceRequest) models.Booking {
	return models.Booking{
		ID:          uuid.NewString(),
		RequesterID: r.RequesterID,
		ProviderID:  s.provider,
		Status:      models.BookingWorking,
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
}

func (s *suite) accept(t *testing.T, r models.ServiceRequest) (models.ServiceRequest, models.Booking) {
	t.Helper()
	got, b, err := s.st.AcceptRequest(s.ctx, store.RequestTransition{
		ID:             r.ID,
		Allowed:        []store.Precondition{{Status: models.RequestWaiting}},
		NotExpiredAt:   s.now,
		To:             models.RequestWorking,
		AssignProvider: s.provider,
		ClearTarget:    true,
		Now:            s.now,
	}, s.booking(r))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return got, b
}

func (s *suite) requestLifecycle(t *testing.T) {
	r := s.request(t, time.Hour)
	got, err := s.st.GetRequest(s.ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TypeOfWork != "Plumbing" || got.Status != models.RequestWaiting || got.Budget == nil || got.Location == nil {
		t.Fatalf("unexpected request %+v", got)
	}

	r.Notes = "tap and sink"
	r.UpdatedAt = s.now.Add(time.Second)
	updated, err := s.st.UpdateRequestDetails(s.ctx, r)
	if err != nil || updated.Notes != "tap and sink" {
		t.Fatalf("update details: %+v %v", updated, err)
	}

	offer := store.RequestTransition{
		ID:          r.ID,
		Allowed:     []store.Precondition{{Status: models.RequestWaiting}},
		RequesterID: s.member,
		To:          models.RequestOffered,
		SetTarget:   s.provider,
		Now:         s.now,
	}
	offered, err := s.st.TransitionRequest(s.ctx, offer)
	if err != nil {
		t.Fatal(err)
	}
	if offered.Status != models.RequestOffered || offered.TargetProviderID == nil || *offered.TargetProviderID != s.provider {
		t.Fatalf("unexpected offered request %+v", offered)
	}
	if _, err := s.st.TransitionRequest(s.ctx, offer); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("second offer should not apply, got %v", err)
	}
	offers, err := s.st.ListOffers(s.ctx, s.provider, s.now)
	if err != nil || !contains(offers, r.ID) {
		t.Fatalf("offer missing from provider's offers: %v", err)
	}

	wrongTarget := store.RequestTransition{
		ID:             r.ID,
		Allowed:        []store.Precondition{{Status: models.RequestOffered, TargetProviderID: s.banned}},
		To:             models.RequestWorking,
		AssignProvider: s.banned,
		ClearTarget:    true,
		Now:            s.now,
	}
	if _, _, err := s.st.AcceptRequest(s.ctx, wrongTarget, s.booking(r)); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("accept by non-target should not apply, got %v", err)
	}

	accept := store.RequestTransition{
		ID:             r.ID,
		Allowed:        []store.Precondition{{Status: models.RequestOffered, TargetProviderID: s.provider}},
		To:             models.RequestWorking,
		AssignProvider: s.provider,
		ClearTarget:    true,
		Now:            s.now,
	}
	working, b, err := s.st.AcceptRequest(s.ctx, accept, s.booking(r))
	if err != nil {
		t.Fatal(err)
	}
	if working.Status != models.RequestWorking || working.TargetProviderID != nil ||
		working.AssignedProviderID == nil || *working.AssignedProviderID != s.provider {
		t.Fatalf("unexpected accepted request %+v", working)
	}
	if b.ServiceRequestID != r.ID {
		t.Fatalf("booking not linked: %+v", b)
	}
	if _, _, err := s.st.AcceptRequest(s.ctx, accept, s.booking(r)); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("second accept should not apply, got %v", err)
	}
	only, err := s.st.GetBookingByRequest(s.ctx, r.ID)
	if err != nil || only.ID != b.ID {
		t.Fatalf("expected the first booking to stand, got %+v %v", only, err)
	}

	mine, err := s.st.ListRequestsByRequester(s.ctx, s.member)
	if err != nil || !contains(mine, r.ID) {
		t.Fatalf("request missing from requester list: %v", err)
	}
}

func (s *suite) expiry(t *testing.T) {
	overdue := s.request(t, -time.Minute)
	fresh := s.request(t, time.Hour)

	if _, err := s.st.TransitionRequest(s.ctx, store.RequestTransition{
		ID:           overdue.ID,
		Allowed:      []store.Precondition{{Status: models.RequestWaiting}},
		NotExpiredAt: s.now,
		To:           models.RequestOffered,
		SetTarget:    s.provider,
		Now:          s.now,
	}); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("overdue request should not transition, got %v", err)
	}

	open, err := s.st.ListOpenRequests(s.ctx, s.now)
	if err != nil {
		t.Fatal(err)
	}
	if contains(open, overdue.ID) || !contains(open, fresh.ID) {
		t.Fatal("open list should hold only the fresh request")
	}
	pending, err := s.st.ListExpiredWaiting(s.ctx, s.now)
	if err != nil || !contains(pending, overdue.ID) || contains(pending, fresh.ID) {
		t.Fatalf("unexpected pending expiry list: %v", err)
	}

	expired, err := s.st.ExpireRequests(s.ctx, s.now)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(expired, overdue.ID) || contains(expired, fresh.ID) {
		t.Fatal("sweep should expire only the overdue request")
	}
	got, _ := s.st.GetRequest(s.ctx, overdue.ID)
	if got.Status != models.RequestExpired {
		t.Fatalf("expected Expired, got %s", got.Status)
	}
	again, err := s.st.ExpireRequests(s.ctx, s.now)
	if err != nil || contains(again, overdue.ID) {
		t.Fatalf("expiry must not repeat: %v", err)
	}
}

func (s *suite) bookings(t *testing.T) {
	r, b := s.accept(t, s.request(t, time.Hour))

	complete := store.BookingTransition{
		ID:          b.ID,
		From:        []models.BookingStatus{models.BookingAvailable, models.BookingWorking},
		To:          models.BookingComplete,
		ProviderID:  s.banned,
		Proof:       []string{"https://img/1.jpg"},
		Comment:     "fixed",
		RequestFrom: []models.RequestStatus{models.RequestWorking},
		RequestTo:   models.RequestComplete,
		Now:         s.now,
	}
	if _, err := s.st.TransitionBooking(s.ctx, complete); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("completion by another provider should not apply, got %v", err)
	}
	complete.ProviderID = s.provider
	done, err := s.st.TransitionBooking(s.ctx, complete)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.BookingComplete || len(done.CompletionProof) != 1 || done.CompletionComment != "fixed" {
		t.Fatalf("unexpected completed booking %+v", done)
	}
	if got, _ := s.st.GetRequest(s.ctx, r.ID); got.Status != models.RequestComplete {
		t.Fatalf("request should mirror completion, got %s", got.Status)
	}

	cancel := store.RequestTransition{
		ID:      r.ID,
		Allowed: []store.Precondition{{Status: models.RequestWaiting}, {Status: models.RequestOffered}, {Status: models.RequestWorking}},
		To:      models.RequestCancelled,
		Now:     s.now,
	}
	if _, _, err := s.st.CancelRequest(s.ctx, cancel); !errors.Is(err, store.ErrNotApplied) {
		t.Fatalf("completed request should not cancel, got %v", err)
	}

	r2, b2 := s.accept(t, s.request(t, time.Hour))
	cancel.ID = r2.ID
	cancelled, cb, err := s.st.CancelRequest(s.ctx, cancel)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != models.RequestCancelled || cb == nil || cb.ID != b2.ID || cb.Status != models.BookingCancelled {
		t.Fatalf("cancel should cascade to the booking: %+v %+v", cancelled, cb)
	}

	mine, err := s.st.ListBookingsForUser(s.ctx, s.provider)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, x := range mine {
		ids[x.ID] = true
	}
	if !ids[b.ID] || !ids[b2.ID] {
		t.Fatalf("provider bookings missing entries: %v", ids)
	}
	all, err := s.st.ListAllBookings(s.ctx, 1)
	if err != nil || len(all) != 1 {
		t.Fatalf("limit not applied: %d %v", len(all), err)
	}
	if _, err := s.st.GetBooking(s.ctx, "missing-"+uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func (s *suite) notifications(t *testing.T) {
	first := models.Notification{ID: uuid.NewString(), RecipientID: s.member, Title: "one", Message: "first",
		Meta: map[string]any{"requestId": "r1"}, CreatedAt: s.now}
	second := models.Notification{ID: uuid.NewString(), RecipientID: s.member, Title: "two", Message: "second",
		CreatedAt: s.now.Add(time.Second)}
	for _, n := range []models.Notification{first, second} {
		if err := s.st.CreateNotification(s.ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.st.ListNotifications(s.ctx, s.member, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) < 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[1].Meta["requestId"] != "r1" {
		t.Fatalf("meta lost: %+v", list[1].Meta)
	}

	if n, _ := s.st.CountUnreadNotifications(s.ctx, s.member); n != 2 {
		t.Fatalf("expected 2 unread, got %d", n)
	}
	if err := s.st.MarkNotificationRead(s.ctx, first.ID, s.provider); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign read should be ErrNotFound, got %v", err)
	}
	if err := s.st.MarkNotificationRead(s.ctx, first.ID, s.member); err != nil {
		t.Fatal(err)
	}
	if err := s.st.MarkNotificationRead(s.ctx, first.ID, s.member); err != nil {
		t.Fatalf("marking read twice should succeed: %v", err)
	}
	if n, _ := s.st.MarkAllNotificationsRead(s.ctx, s.member); n != 1 {
		t.Fatalf("expected 1 newly read, got %d", n)
	}
	if n, _ := s.st.CountUnreadNotifications(s.ctx, s.member); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}
}

func (s *suite) messages(t *testing.T) {
	_, b := s.accept(t, s.request(t, time.Hour))
	fromMember := models.ChatMessage{ID: uuid.NewString(), BookingID: b.ID, SenderID: s.member, Body: "hi",
		Status: models.MessageSent, CreatedAt: s.now}
	fromProvider := models.ChatMessage{ID: uuid.NewString(), BookingID: b.ID, SenderID: s.provider, Body: "hello",
		Status: models.MessageSent, CreatedAt: s.now.Add(time.Second)}
	for _, m := range []models.ChatMessage{fromMember, fromProvider} {
		if err := s.st.CreateMessage(s.ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	if n, err := s.st.MarkDelivered(s.ctx, b.ID, s.provider); err != nil || n != 1 {
		t.Fatalf("expected 1 delivered, got %d %v", n, err)
	}

	changed, err := s.st.MarkSeen(s.ctx, b.ID, s.provider, s.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0].ID != fromMember.ID || !changed[0].SeenByUser(s.provider) ||
		changed[0].Status != models.MessageSeen {
		t.Fatalf("unexpected seen result %+v", changed)
	}
	if again, err := s.st.MarkSeen(s.ctx, b.ID, s.provider, s.now); err != nil || len(again) != 0 {
		t.Fatalf("mark seen must be idempotent: %+v %v", again, err)
	}

	m, ok, err := s.st.MarkMessageSeen(s.ctx, b.ID, fromProvider.ID, s.member, s.now)
	if err != nil || !ok || !m.SeenByUser(s.member) {
		t.Fatalf("single seen: %+v %v %v", m, ok, err)
	}
	if _, ok, err := s.st.MarkMessageSeen(s.ctx, b.ID, fromProvider.ID, s.member, s.now); err != nil || ok {
		t.Fatalf("second single seen should not change: %v %v", ok, err)
	}
	if _, _, err := s.st.MarkMessageSeen(s.ctx, b.ID, "missing-"+uuid.NewString(), s.member, s.now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	history, err := s.st.ListMessages(s.ctx, b.ID)
	if err != nil || len(history) != 2 || history[0].ID != fromMember.ID {
		t.Fatalf("history out of order: %+v %v", history, err)
	}

	chats, err := s.st.ListChats(s.ctx, s.member)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chats {
		if c.Booking.ID != b.ID {
			continue
		}
		if c.LastMessage == nil || c.LastMessage.ID != fromProvider.ID || c.Unread != 0 {
			t.Fatalf("unexpected chat summary %+v", c)
		}
		return
	}
	t.Fatal("booking missing from chat list")
}

func contains(reqs []models.ServiceRequest, id string) bool {
	for _, r := range reqs {
		if r.ID == id {
			return true
		}
	}
	return false
}
