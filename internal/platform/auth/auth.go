// Package auth verifies bearer credentials and binds the resulting identity
// to request contexts. The same TokenVerifier backs both the HTTP middleware
// and the realtime authenticate event, so a token is interpreted identically
// on either surface.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Roles recognized by the platform.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "user_role"
)

// Identity is an authenticated user as seen by every other component.
type Identity struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

// Claims is the JWT payload issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenVerifier validates a bearer credential and yields the identity it
// carries.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// HMACVerifier verifies HS256-signed access tokens.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the embedded identity.
func (v *HMACVerifier) Verify(tokenStr string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("token subject is not a user id: %w", err)
	}
	if claims.Role != RolePatient && claims.Role != RoleDoctor {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	return &Identity{UserID: userID, Role: claims.Role}, nil
}

// Middleware authenticates every request with the given verifier and stores
// the identity on the request context.
func Middleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			identity, err := verifier.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			// For the rate limiter key
			c.Set("user_id", identity.UserID.String())

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, identity.UserID)
			ctx = context.WithValue(ctx, RoleKey, identity.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRole rejects requests whose authenticated role is not in the allowed
// set.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if !allowed[role] {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// IdentityFromContext returns the authenticated identity, or nil when the
// request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	uid, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok {
		return nil
	}
	role, _ := ctx.Value(RoleKey).(string)
	return &Identity{UserID: uid, Role: role}
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	uid, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}
