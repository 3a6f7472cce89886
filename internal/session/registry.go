package session

import (
	"sync"
	"time"
)

// Registry tracks every live upstream session for a running aggregator.
// It is the single source of truth the Unified Tracking middleware uses
// to decide whether a request is the first on its connection, and what
// the App's shutdown path iterates to emit SESSION_END for still-live
// sessions).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session *Session
	started bool
}

// NewRegistry builds an empty session Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*entry{}}
}

// Open registers a new session, returning it unmodified for convenience.
func (r *Registry) Open(sess *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = &entry{session: sess}
	return sess
}

// MarkStarted reports whether this is the first call to MarkStarted for
// sessionID — true exactly once, used to gate the SESSION_START event.
func (r *Registry) MarkStarted(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok || e.started {
		return false
	}
	e.started = true
	return true
}

// Close removes a session from the registry, returning it if present.
func (r *Registry) Close(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)
	return e.session, true
}

// Live returns every session still open, for the shutdown drain path.
func (r *Registry) Live() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	return out
}

// Get returns the session for sessionID, if still open.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// SessionDuration is a small helper shared by the tracking middleware and
// the App's shutdown path to compute SESSION_END's duration_ms.
func SessionDuration(sess *Session) int64 {
	return time.Since(sess.StartedAt).Milliseconds()
}
