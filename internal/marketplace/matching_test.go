package marketplace

import (
	"testing"
	"time"

	"github.com/sudo-init-do/handyhub/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestSkillMatch(t *testing.T) {
	cases := []struct {
		skills []string
		work   string
		want   bool
	}{
		{nil, "anything", true},
		{[]string{"plumbing"}, "Plumbing", true},
		{[]string{"plumb"}, "Emergency plumbing repair", true},
		{[]string{"electrical wiring"}, "wiring", true},
		{[]string{"painting"}, "Plumbing", false},
		{[]string{"  "}, "Plumbing", false},
		{[]string{"painting", "PLUMBING"}, "plumbing", true},
	}
	for _, tc := range cases {
		if got := SkillMatch(tc.skills, tc.work); got != tc.want {
			t.Errorf("SkillMatch(%v, %q) = %v, want %v", tc.skills, tc.work, got, tc.want)
		}
	}
}

func TestBudgetMatch(t *testing.T) {
	m := Matcher{Tolerance: 200}
	if !m.BudgetMatch(nil, ptr(1000.0)) || !m.BudgetMatch(ptr(10.0), nil) {
		t.Fatal("unset budget or rate must match")
	}
	if !m.BudgetMatch(ptr(500.0), ptr(700.0)) {
		t.Fatal("difference equal to tolerance must match")
	}
	if m.BudgetMatch(ptr(500.0), ptr(700.01)) {
		t.Fatal("difference above tolerance must not match")
	}
}

func TestMatchOrderingAndTargeting(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Matcher{Tolerance: 200}
	p := models.User{ID: "p1", Role: models.RoleServiceProvider, Skills: []string{"plumbing"}, Rate: ptr(450.0), Online: true}

	open := func(id, work string, created time.Duration, budget *float64) models.ServiceRequest {
		return models.ServiceRequest{
			ID: id, TypeOfWork: work, Budget: budget, Status: models.RequestWaiting,
			CreatedAt: now.Add(-created), ExpiresAt: now.Add(time.Hour),
		}
	}
	generalOld := open("g-old", "plumbing", 3*time.Hour, ptr(500.0))
	generalNew := open("g-new", "Plumbing leak", time.Hour, nil)
	painting := open("paint", "painting", time.Minute, nil)
	pricey := open("pricey", "plumbing", time.Minute, ptr(5000.0))
	targetedOld := open("t-old", "roofing", 5*time.Hour, ptr(9000.0))
	targetedOld.TargetProviderID = ptr("p1")
	targetedNew := open("t-new", "gardening", 2*time.Hour, nil)
	targetedNew.TargetProviderID = ptr("p1")
	forOther := open("other", "plumbing", time.Minute, nil)
	forOther.TargetProviderID = ptr("p9")
	stale := open("stale", "plumbing", time.Minute, nil)
	stale.ExpiresAt = now.Add(-time.Second)
	offered := open("offered", "plumbing", time.Minute, nil)
	offered.Status = models.RequestOffered

	in := []models.ServiceRequest{generalOld, painting, targetedOld, generalNew, pricey, targetedNew, forOther, stale, offered, generalNew}
	got := m.Match(p, in, now)

	want := []string{"t-new", "t-old", "other", "g-new", "g-old"}
	if len(got) != len(want) {
		t.Fatalf("got %d results %v, want %v", len(got), ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, ids(got), want)
		}
	}
	for _, r := range got {
		if r.Status != models.RequestWaiting || !r.ExpiresAt.After(now) {
			t.Fatalf("unmatchable request returned: %+v", r)
		}
	}
}

func TestMatchOfflineProviderGetsNothing(t *testing.T) {
	now := time.Now()
	r := models.ServiceRequest{ID: "r", TypeOfWork: "x", Status: models.RequestWaiting, ExpiresAt: now.Add(time.Hour)}
	got := Matcher{Tolerance: 200}.Match(models.User{ID: "p"}, []models.ServiceRequest{r}, now)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestCandidates(t *testing.T) {
	m := Matcher{Tolerance: 200}
	providers := []models.User{
		{ID: "plumber", Role: models.RoleServiceProvider, Skills: []string{"plumbing"}, Online: true},
		{ID: "painter", Role: models.RoleServiceProvider, Skills: []string{"painting"}, Online: true},
		{ID: "anyone", Role: models.RoleServiceProvider, Online: true},
		{ID: "offline", Role: models.RoleServiceProvider, Online: false},
		{ID: "banned", Role: models.RoleServiceProvider, Online: true, Banned: true},
	}
	r := models.ServiceRequest{ID: "r", TypeOfWork: "Plumbing"}
	if got := userIDs(m.Candidates(r, providers)); len(got) != 2 || got[0] != "plumber" || got[1] != "anyone" {
		t.Fatalf("unexpected candidates %v", got)
	}
	r.TargetProviderID = ptr("painter")
	got := userIDs(m.Candidates(r, providers))
	if len(got) != 3 || got[0] != "plumber" || got[1] != "painter" || got[2] != "anyone" {
		t.Fatalf("targeted request should reach its target and eligible providers, got %v", got)
	}
}

func ids(rs []models.ServiceRequest) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func userIDs(us []models.User) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.ID
	}
	return out
}
