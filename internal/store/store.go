// Package store provides storage backends for CartCheck user profiles and
// conversation state.
//
// It includes an in-memory store (the default), an SQLite-backed store, and a
// PostgreSQL-backed store, all implementing the same Store interface so the
// flow engine's read-then-write contract is preserved regardless of backend.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/kindatcart/cartcheck/internal/models"
)

// Store defines persistence for user profiles and conversation state.
// GetProfile returns (nil, nil) when no profile exists; GetState returns
// StateNew when no state has been recorded. DeleteProfile removes both the
// profile and any associated conversation state.
type Store interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
	DeleteProfile(ctx context.Context, id string) error

	GetState(ctx context.Context, id string) (models.StateType, error)
	SetState(ctx context.Context, id string, state models.StateType) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite" otherwise. SQLite DSNs are plain file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a map-backed Store guarded by a RWMutex. It is the default
// backend and the one used throughout tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	states   map[string]models.StateType
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]models.UserProfile),
		states:   make(map[string]models.StateType),
	}
}

// GetProfile returns a copy of the stored profile, or (nil, nil) when absent.
func (s *InMemoryStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveProfile upserts a profile keyed by its ID.
func (s *InMemoryStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.ID == "" {
		return models.ErrEmptyRecipient
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = *profile
	return nil
}

// DeleteProfile removes the profile and any conversation state for the user.
func (s *InMemoryStore) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	delete(s.states, id)
	return nil
}

// GetState returns the user's conversation state, or StateNew when absent.
func (s *InMemoryStore) GetState(ctx context.Context, id string) (models.StateType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	if !ok {
		return models.StateNew, nil
	}
	return state, nil
}

// SetState records the user's conversation state.
func (s *InMemoryStore) SetState(ctx context.Context, id string, state models.StateType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = state
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
