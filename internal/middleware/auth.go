package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bazaarpay/bazaarpay/internal/guard"
	"github.com/bazaarpay/bazaarpay/internal/identity"
)

const (
	// LocalUserID holds the authenticated user id.
	LocalUserID = "user_id"
	// LocalRole holds the authenticated user's role.
	LocalRole = "role"
)

// Claims are the access-token claims issued by the identity service.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth verifies HS256 bearer tokens and loads the subject from the
// directory. Clients that keep presenting bad tokens are refused with 429
// until the guard's window passes. tracker may be nil.
func JWTAuth(secret []byte, dir identity.Directory, tracker *guard.Tracker) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	reject := func(c *fiber.Ctx, msg string) error {
		if tracker != nil && tracker.Fail(c.IP()) {
			return fiber.NewError(http.StatusTooManyRequests, "too many failed authentication attempts, try again later")
		}
		return fiber.NewError(http.StatusUnauthorized, msg)
	}

	return func(c *fiber.Ctx) error {
		if tracker != nil && tracker.Blocked(c.IP()) {
			return fiber.NewError(http.StatusTooManyRequests, "too many failed authentication attempts, try again later")
		}

		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
			return reject(c, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(tokenStr, claims, keyFunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return reject(c, "token expired")
			}
			return reject(c, "invalid token")
		}
		if claims.Subject == "" {
			return reject(c, "invalid token")
		}

		user, err := dir.FindByID(c.UserContext(), claims.Subject)
		if errors.Is(err, identity.ErrUserNotFound) {
			return reject(c, "unknown user")
		}
		if err != nil {
			return err
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalRole, user.Role)
		return c.Next()
	}
}

// RequireRole allows only users with role through. It must run after JWTAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals(LocalRole).(string); got != role {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside JWTAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUserID).(string)
	return uid
}
