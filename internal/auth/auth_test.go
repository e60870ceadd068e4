package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	tok := sign(t, secret, jwt.MapClaims{
		"user_id": "u1",
		"role":    "ServiceProvider",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	claims, err := NewVerifier(secret).Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "ServiceProvider" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier(secret)
	cases := map[string]string{
		"empty":        "",
		"wrong secret": sign(t, "other", jwt.MapClaims{"user_id": "u1", "role": "Admin"}),
		"expired":      sign(t, secret, jwt.MapClaims{"user_id": "u1", "role": "Admin", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no subject":   sign(t, secret, jwt.MapClaims{"role": "Admin"}),
		"garbage":      "not-a-token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(tok); !errors.Is(err, models.ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := BearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestAuthenticatorMirrorsAndRejectsBanned(t *testing.T) {
	ctx := context.Background()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	a := &Authenticator{Verifier: NewVerifier(secret), Users: st, Log: zerolog.Nop()}
	tok := sign(t, secret, jwt.MapClaims{"user_id": "p1", "role": "ServiceProvider", "skills": []string{"Plumbing"}})
	id, err := a.Authenticate(ctx, tok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Role != models.RoleServiceProvider {
		t.Fatalf("unexpected role %s", id.Role)
	}
	u, err := st.GetUser(ctx, "p1")
	if err != nil {
		t.Fatalf("expected mirrored user: %v", err)
	}
	if len(u.Skills) != 1 || u.Skills[0] != "plumbing" {
		t.Fatalf("expected normalized skills, got %v", u.Skills)
	}

	u.Banned = true
	if err := st.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Authenticate(ctx, tok); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden for banned user, got %v", err)
	}
}

func TestTicketsSingleUseAndTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tickets := NewTickets(time.Minute)
	tickets.Now = func() time.Time { return now }

	id := Identity{UserID: "u1", Role: models.RoleCommunityMember}
	value, _, err := tickets.Issue(id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tickets.Redeem(value)
	if err != nil || got != id {
		t.Fatalf("redeem: %v %+v", err, got)
	}
	if _, err := tickets.Redeem(value); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("second redeem should fail, got %v", err)
	}

	stale, _, _ := tickets.Issue(id)
	now = now.Add(2 * time.Minute)
	if _, err := tickets.Redeem(stale); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expired ticket should fail, got %v", err)
	}

	tickets.Issue(id)
	now = now.Add(2 * time.Minute)
	if n := tickets.Sweep(); n != 1 {
		t.Fatalf("expected one swept ticket, got %d", n)
	}
}
