package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/auth"
	mware "github.com/sudo-init-do/handyhub/internal/middleware"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

type fakeMarket struct {
	swept     int
	cancelled []string
}

func (f *fakeMarket) CancelRequest(_ context.Context, actor auth.Identity, id string) (models.ServiceRequest, error) {
	if id == "missing" {
		return models.ServiceRequest{}, models.NotFound("request not found")
	}
	f.cancelled = append(f.cancelled, actor.UserID+":"+id)
	return models.ServiceRequest{ID: id, Status: models.RequestCancelled}, nil
}

func (f *fakeMarket) ListAllBookings(context.Context, auth.Identity, int) ([]models.Booking, error) {
	return []models.Booking{{ID: "b1"}}, nil
}

func (f *fakeMarket) Sweep(context.Context) (int, error) {
	f.swept++
	return 2, nil
}

func (f *fakeMarket) PendingExpiry(context.Context) ([]models.ServiceRequest, error) {
	return nil, nil
}

type fakePresence struct{ dropped []string }

func (f *fakePresence) Online() int { return 4 }

func (f *fakePresence) Unregister(_ context.Context, id string) { f.dropped = append(f.dropped, id) }

type adminEnv struct {
	e        *echo.Echo
	market   *fakeMarket
	presence *fakePresence
	st       *sqlitestore.Store
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	for _, u := range []models.User{
		{ID: "p1", Name: "Pat", Role: models.RoleServiceProvider, Online: true},
		{ID: "a1", Name: "Ada", Role: models.RoleAdmin},
	} {
		if err := st.UpsertUser(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	env := &adminEnv{e: echo.New(), market: &fakeMarket{}, presence: &fakePresence{}, st: st}
	h := &Handler{Market: env.market, Users: st, Presence: env.presence}
	g := env.e.Group("/admin")
	// stand-in for the JWT middleware: identity comes from test headers
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := models.ParseRole(c.Request().Header.Get("X-Role"))
			auth.SetIdentity(c, auth.Identity{UserID: c.Request().Header.Get("X-User"), Role: role})
			return next(c)
		}
	})
	g.Use(mware.AdminGuard)
	h.Register(g)
	return env
}

func (env *adminEnv) do(method, target, user string, role models.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-User", user)
	req.Header.Set("X-Role", string(role))
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newAdminEnv(t)
	if rec := env.do(http.MethodPost, "/admin/sweep", "p1", models.RoleServiceProvider); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider, got %d", rec.Code)
	}
	if env.market.swept != 0 {
		t.Fatal("sweep ran for a non-admin")
	}

	rec := env.do(http.MethodPost, "/admin/sweep", "a1", models.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Expired int `json:"expired"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Expired != 2 {
		t.Fatalf("unexpected sweep body %s", rec.Body.String())
	}
}

func TestAdminCancelRequest(t *testing.T) {
	env := newAdminEnv(t)
	if rec := env.do(http.MethodPost, "/admin/requests/r9/cancel", "a1", models.RoleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(env.market.cancelled) != 1 || env.market.cancelled[0] != "a1:r9" {
		t.Fatalf("unexpected cancels %v", env.market.cancelled)
	}
	if rec := env.do(http.MethodPost, "/admin/requests/missing/cancel", "a1", models.RoleAdmin); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminSuspendAndReinstate(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	if rec := env.do(http.MethodPost, "/admin/users/p1/suspend", "a1", models.RoleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	u, err := env.st.GetUser(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !u.Banned || u.Online {
		t.Fatalf("expected banned and offline, got %+v", u)
	}
	if len(env.presence.dropped) != 1 || env.presence.dropped[0] != "p1" {
		t.Fatalf("expected presence drop, got %v", env.presence.dropped)
	}

	if rec := env.do(http.MethodPost, "/admin/users/p1/reinstate", "a1", models.RoleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if u, _ := env.st.GetUser(ctx, "p1"); u.Banned {
		t.Fatal("expected reinstated user")
	}

	if rec := env.do(http.MethodPost, "/admin/users/a1/suspend", "a1", models.RoleAdmin); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 suspending an admin, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/admin/users/nobody/suspend", "a1", models.RoleAdmin); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminStatsAndLists(t *testing.T) {
	env := newAdminEnv(t)
	rec := env.do(http.MethodGet, "/admin/stats", "a1", models.RoleAdmin)
	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["connections"] != 4 || stats["online_providers"] != 1 || stats["pending_expiry"] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}

	rec = env.do(http.MethodGet, "/admin/requests/expiring", "a1", models.RoleAdmin)
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"requests\":[]}\n" {
		t.Fatalf("unexpected expiring body %q", rec.Body.String())
	}
	rec = env.do(http.MethodGet, "/admin/bookings?limit=5", "a1", models.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
