package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

// Identity is the verified caller of a request or connection.
type Identity struct {
	UserID string
	Role   models.Role
}

// Claims is the identity token payload issued by the identity service.
type Claims struct {
	UserID string   `json:"user_id"`
	Role   string   `json:"role"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Skills []string `json:"skills,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 identity tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses tokenStr and returns its claims.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, models.Unauthorized("missing token")
	}
	if len(v.secret) == 0 {
		return nil, models.Unauthorized("token verification not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.Unauthorized("invalid or expired token")
	}
	if claims.UserID == "" {
		return nil, models.Unauthorized("invalid token claims")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Authenticator turns a token into an Identity, mirroring unknown users
// into the local store and refusing banned ones.
type Authenticator struct {
	Verifier *Verifier
	Users    store.Users
	Log      zerolog.Logger
}

func (a *Authenticator) Authenticate(ctx context.Context, tokenStr string) (Identity, error) {
	claims, err := a.Verifier.Verify(tokenStr)
	if err != nil {
		return Identity{}, err
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok {
		return Identity{}, models.Unauthorized("unknown role")
	}
	id := Identity{UserID: claims.UserID, Role: role}
	if a.Users == nil {
		return id, nil
	}

	u, err := a.Users.GetUser(ctx, claims.UserID)
	switch {
	case err == nil:
		if u.Banned {
			return Identity{}, models.Forbidden("account suspended")
		}
		id.Role = u.Role
	case errors.Is(err, store.ErrNotFound):
		mirror := models.User{ID: claims.UserID, Name: claims.Name, Email: claims.Email, Role: role, Skills: claims.Skills, Rate: claims.Rate}
		if err := a.Users.UpsertUser(ctx, mirror); err != nil {
			a.Log.Warn().Err(err).Str("user_id", claims.UserID).Msg("mirror identity")
		}
	default:
		return Identity{}, err
	}
	return id, nil
}
