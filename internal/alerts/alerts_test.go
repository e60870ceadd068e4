package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

type fakePusher struct {
	present bool
	err     error
	pushed  []presence.Event
}

func (f *fakePusher) Push(_ string, ev presence.Event) (bool, error) {
	if !f.present {
		return false, nil
	}
	f.pushed = append(f.pushed, ev)
	return true, f.err
}

type fakeEnqueuer struct {
	queued []models.Notification
}

func (f *fakeEnqueuer) EnqueueNotificationEmail(_ context.Context, n models.Notification) error {
	f.queued = append(f.queued, n)
	return nil
}

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestNotifyPersistsWhenPushFails(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	pusher := &fakePusher{present: true, err: errors.New("broken pipe")}
	email := &fakeEnqueuer{}
	d := NewDispatcher(st, pusher, email, zerolog.Nop())

	n, err := d.Notify(ctx, "u1", "New request", "Plumbing nearby", map[string]any{"requestId": "r1"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0].Type != EventNewNotification {
		t.Fatalf("expected one push attempt, got %+v", pusher.pushed)
	}
	if len(email.queued) != 0 {
		t.Fatal("present recipients should not get email copies")
	}
	feed, err := st.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].ID != n.ID || feed[0].Meta["requestId"] != "r1" {
		t.Fatalf("notification not persisted: %+v", feed)
	}
}

func TestNotifyOfflineQueuesEmail(t *testing.T) {
	st := openStore(t)
	email := &fakeEnqueuer{}
	d := NewDispatcher(st, &fakePusher{}, email, zerolog.Nop())
	if _, err := d.Notify(context.Background(), "u2", "Booking updated", "Complete", nil); err != nil {
		t.Fatal(err)
	}
	if len(email.queued) != 1 || email.queued[0].RecipientID != "u2" {
		t.Fatalf("expected an email task for the offline recipient, got %+v", email.queued)
	}
}

func TestFeedHandlers(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	d := NewDispatcher(st, nil, nil, zerolog.Nop())
	first, _ := d.Notify(ctx, "u1", "one", "", nil)
	d.Notify(ctx, "u1", "two", "", nil)
	d.Notify(ctx, "u2", "other", "", nil)

	h := &Handler{Store: st}
	e := echo.New()
	call := func(method, target string, fn echo.HandlerFunc, params ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("user_id", "u1")
		if len(params) == 2 {
			c.SetParamNames(params[0])
			c.SetParamValues(params[1])
		}
		if err := fn(c); err != nil {
			t.Fatal(err)
		}
		return rec
	}

	rec := call(http.MethodGet, "/notifications/unread", h.UnreadCount)
	if !strings.Contains(rec.Body.String(), `"unread":2`) {
		t.Fatalf("unexpected unread body %s", rec.Body.String())
	}

	rec = call(http.MethodPost, "/notifications/"+first.ID+"/read", h.MarkNotificationRead, "id", first.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rec.Code)
	}
	rec = call(http.MethodPost, "/notifications/missing/read", h.MarkNotificationRead, "id", "missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = call(http.MethodPost, "/notifications/read-all", h.MarkAllRead)
	if !strings.Contains(rec.Body.String(), `"updated":1`) {
		t.Fatalf("unexpected read-all body %s", rec.Body.String())
	}

	rec = call(http.MethodGet, "/notifications", h.ListNotifications)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Notifications) != 2 || body.Notifications[0].Title != "two" {
		t.Fatalf("expected newest first for u1 only, got %+v", body.Notifications)
	}
}

type fakeSender struct {
	to, subject string
	err         error
}

func (f *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	f.to, f.subject = to, subject
	return f.err
}

func TestProcessorResolvesRecipientAddress(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	if err := st.UpsertUser(ctx, models.User{ID: "u1", Email: "u1@example.com", Role: models.RoleCommunityMember}); err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	p := &Processor{Users: st, Mailer: sender, Log: zerolog.Nop()}

	task, err := NewNotificationEmailTask(models.Notification{ID: "n1", RecipientID: "u1", Title: "Hello"}, "http://app")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.handleNotificationEmail(ctx, task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.to != "u1@example.com" || sender.subject != "Hello" {
		t.Fatalf("unexpected send %+v", sender)
	}

	sender.err = ErrMailerNotConfigured
	if err := p.handleNotificationEmail(ctx, task); err != nil {
		t.Fatalf("unconfigured mailer should not retry, got %v", err)
	}

	bad := asynq.NewTask(TaskNotificationEmail, []byte("{"))
	if err := p.handleNotificationEmail(ctx, bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a bad payload, got %v", err)
	}
}

func TestMailerPlunk(t *testing.T) {
	var got plunkSendBody
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMailer(MailConfig{PlunkAPIKey: "key", PlunkAPIURL: srv.URL, PlunkFrom: "noreply@handyhub.local"})
	if err := m.Send(context.Background(), "a@b.c", "subj", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer key" || got.To != "a@b.c" || got.From != "noreply@handyhub.local" {
		t.Fatalf("unexpected request auth=%q body=%+v", auth, got)
	}

	if err := NewMailer(MailConfig{}).Send(context.Background(), "a@b.c", "s", "b"); !errors.Is(err, ErrMailerNotConfigured) {
		t.Fatalf("expected ErrMailerNotConfigured, got %v", err)
	}
}
