// Package session gives each authenticated user an isolated pair of job
// engines with their own queues, worker loops and records.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/core/download"
	"github.com/benasterisk/stemtube/internal/core/stems"
)

// Session is one user's engine pair. The managers run until the session is
// torn down.
type Session struct {
	ID          string
	Downloads   *download.Manager
	Extractions *stems.Manager

	cancel context.CancelFunc
}

// Factory builds the engines for a new session. The session id is passed
// through so callbacks can tag their events with the owning session.
type Factory struct {
	NewDownloads   func(sessionID string) *download.Manager
	NewExtractions func(sessionID string) *stems.Manager
}

// Registry lazily creates and caches sessions by id.
type Registry struct {
	mu       sync.Mutex
	baseCtx  context.Context
	factory  Factory
	sessions map[string]*Session
}

func NewRegistry(ctx context.Context, factory Factory) *Registry {
	return &Registry{
		baseCtx:  ctx,
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating and starting its engines on
// first use.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	s := &Session{
		ID:          id,
		Downloads:   r.factory.NewDownloads(id),
		Extractions: r.factory.NewExtractions(id),
		cancel:      cancel,
	}
	s.Downloads.Start(ctx)
	s.Extractions.Start(ctx)
	r.sessions[id] = s
	log.Debug().Str("session_id", id).Msg("session created")
	return s
}

// Teardown stops a session's worker loops and drops its records. Unknown
// ids are a no-op.
func (r *Registry) Teardown(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.cancel()
	delete(r.sessions, id)
	log.Debug().Str("session_id", id).Msg("session torn down")
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.cancel()
		delete(r.sessions, id)
	}
}
