package utils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.Unauthorized("x"), http.StatusUnauthorized},
		{models.Forbidden("x"), http.StatusForbidden},
		{models.NotFound("x"), http.StatusNotFound},
		{models.Conflict("x"), http.StatusConflict},
		{models.Expired("x"), http.StatusGone},
		{models.Validation("x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", models.Conflict("taken")), http.StatusConflict},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := ErrorStatus(tc.err); got != tc.want {
			t.Errorf("%v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := Fail(c, fmt.Errorf("pq: connection refused")); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "pq:") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignIdentityToken(t *testing.T) {
	now := time.Now()
	rate := 40.0
	tok, err := SignIdentityToken("s3cret", TokenSpec{UserID: "p1", Role: "ServiceProvider", Skills: []string{"plumbing"}, Rate: &rate, TTL: time.Hour}, now)
	if err != nil {
		t.Fatal(err)
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil }); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["user_id"] != "p1" || claims["rate"] != 40.0 {
		t.Fatalf("unexpected claims %v", claims)
	}
	if _, err := SignIdentityToken("", TokenSpec{UserID: "p1", Role: "Admin"}, now); err == nil {
		t.Fatal("expected error without secret")
	}
}
