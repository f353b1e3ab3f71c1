package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryDirectory is an in-process Directory for development and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory seeds a directory with users.
func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put adds or replaces a user.
func (d *MemoryDirectory) Put(u User) {
	if u.Role == "" {
		u.Role = RoleUser
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// FindByID implements Directory.
func (d *MemoryDirectory) FindByID(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// Resolve implements Directory.
func (d *MemoryDirectory) Resolve(ctx context.Context, identifier string) (User, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return User{}, ErrUserNotFound
	}
	if u, err := d.FindByID(ctx, identifier); err == nil {
		return u, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if (u.Email != "" && strings.EqualFold(u.Email, identifier)) ||
			(u.Phone != "" && u.Phone == identifier) ||
			(u.Username != "" && u.Username == identifier) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}
