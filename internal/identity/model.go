package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// Roles understood by the HTTP layer.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the read-only view of an account owner. Registration, profile and
// credentials live in the identity service that owns the users table.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user may run administrative operations.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Directory resolves users for money movement.
type Directory interface {
	FindByID(ctx context.Context, id string) (User, error)
	// Resolve finds a user by id, email, phone or username.
	Resolve(ctx context.Context, identifier string) (User, error)
}

func normalizeIdentifier(identifier string) string {
	return strings.TrimSpace(identifier)
}
