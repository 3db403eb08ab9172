package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fingenius/fingenius-go/internal/model"
)

// MemoryUserRepository is a process-local credential store. It enforces the
// same unique-email constraint as the MySQL schema.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*model.User
	byEmail map[string]string
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

// Create stores a copy of user.
func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}
	cp := *user
	r.byID[user.ID] = &cp
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByEmail retrieves a user by their normalized email address.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// GetByID retrieves a user by their ID.
func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// UpdateProfile persists the editable profile fields of user.
func (r *MemoryUserRepository) UpdateProfile(_ context.Context, user *model.User) error {
	return r.update(user.ID, func(u *model.User) {
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		u.Phone = user.Phone
		u.Location = user.Location
		u.Bio = user.Bio
		u.UpdatedAt = user.UpdatedAt
	})
}

// UpdatePassword replaces the password hash of a user.
func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id, hash string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

// UpdatePremium sets the premium flag of a user.
func (r *MemoryUserRepository) UpdatePremium(_ context.Context, id string, premium bool, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.IsPremium = premium
		u.UpdatedAt = at
	})
}

// TouchLogin records a successful login.
func (r *MemoryUserRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.LastLoginAt = &at
		u.UpdatedAt = at
	})
}

// Len returns the number of stored users.
func (r *MemoryUserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemoryUserRepository) update(id string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}
