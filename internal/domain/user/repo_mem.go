package user

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// repoMem is an in-memory Repository for development mode and tests.
type repoMem struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*User
	byName map[string]uuid.UUID
	tokens map[string]*PasswordResetToken
}

// NewRepoMem creates an empty in-memory user repository.
func NewRepoMem() Repository {
	return &repoMem{
		byID:   make(map[uuid.UUID]*User),
		byName: make(map[string]uuid.UUID),
		tokens: make(map[string]*PasswordResetToken),
	}
}

func (r *repoMem) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[u.Username]; exists {
		return fmt.Errorf("create %s: %w", u.Username, ErrConflict)
	}

	stored := *u
	r.byID[u.ID] = &stored
	r.byName[u.Username] = u.ID
	return nil
}

func (r *repoMem) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[username]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", username, ErrNotFound)
	}
	snapshot := *r.byID[id]
	return &snapshot, nil
}

func (r *repoMem) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	snapshot := *u
	return &snapshot, nil
}

func (r *repoMem) List(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	users := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		snapshot := *u
		users = append(users, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *repoMem) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(r.byName, u.Username)
	delete(r.byID, id)
	return nil
}

func (r *repoMem) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update password %s: %w", id, ErrNotFound)
	}
	updated := *u
	updated.PasswordHash = passwordHash
	r.byID[id] = &updated
	return nil
}

func (r *repoMem) CreateResetToken(_ context.Context, t *PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *t
	r.tokens[t.Token] = &stored
	return nil
}

func (r *repoMem) GetResetToken(_ context.Context, token string) (*PasswordResetToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[token]
	if !ok {
		return nil, fmt.Errorf("reset token: %w", ErrNotFound)
	}
	snapshot := *t
	return &snapshot, nil
}

func (r *repoMem) MarkResetTokenUsed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, t := range r.tokens {
		if t.ID == id {
			updated := *t
			updated.Used = true
			r.tokens[token] = &updated
			return nil
		}
	}
	return fmt.Errorf("mark reset token %s: %w", id, ErrNotFound)
}
