package agent

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/biotwin/biotwin/internal/metrics"
)

const defaultRegistryCapacity = 1024

// Factory builds a fresh session for a user on first contact.
type Factory func(userID string) (*Session, error)

// Registry hands out one session per user, evicting the least recently
// used session when capacity is reached. Identity is the contract:
// concurrent callers for the same user always see the same session.
type Registry struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	factory  Factory
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewRegistry creates a session registry with the given capacity. A
// capacity at or below zero falls back to the default.
func NewRegistry(capacity int, factory Factory, logger zerolog.Logger, m *metrics.Metrics) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if capacity <= 0 {
		capacity = defaultRegistryCapacity
	}

	r := &Registry{
		factory: factory,
		logger:  logger,
		metrics: m,
	}

	cache, err := lru.NewWithEvict(capacity, func(userID string, _ *Session) {
		r.logger.Info().Str("user_id", userID).Msg("Session evicted")
		r.metrics.SessionEvicted()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	r.sessions = cache

	return r, nil
}

// GetOrCreate returns the user's session, building one on first contact.
func (r *Registry) GetOrCreate(userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions.Get(userID); ok {
		return session, nil
	}

	session, err := r.factory(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", userID, err)
	}

	r.sessions.Add(userID, session)
	r.metrics.SessionCreated()
	r.logger.Info().Str("user_id", userID).Msg("Session created")

	return session, nil
}

// Len reports how many sessions are currently live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Len()
}
