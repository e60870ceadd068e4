package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenSpec describes an identity token to mint for local development and
// tests. Production tokens come from the identity service.
type TokenSpec struct {
	UserID string
	Role   string
	Name   string
	Email  string
	Skills []string
	Rate   *float64
	TTL    time.Duration
}

// SignIdentityToken returns an HS256 token carrying spec in the claim layout
// the API verifies.
func SignIdentityToken(secret string, spec TokenSpec, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("missing signing secret")
	}
	if spec.UserID == "" || spec.Role == "" {
		return "", errors.New("user id and role are required")
	}
	claims := jwt.MapClaims{
		"user_id": spec.UserID,
		"role":    spec.Role,
		"iat":     now.Unix(),
	}
	if spec.TTL > 0 {
		claims["exp"] = now.Add(spec.TTL).Unix()
	}
	if spec.Name != "" {
		claims["name"] = spec.Name
	}
	if spec.Email != "" {
		claims["email"] = spec.Email
	}
	if len(spec.Skills) > 0 {
		claims["skills"] = spec.Skills
	}
	if spec.Rate != nil {
		claims["rate"] = *spec.Rate
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
