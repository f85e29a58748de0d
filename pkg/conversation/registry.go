package conversation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/prompts"
)

// Registry maps session handles to sessions. Different handles proceed in
// parallel; requests for the same handle are serialized.
type Registry struct {
	personas *prompts.Registry
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
	removed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(personas *prompts.Registry, logger *zap.Logger) *Registry {
	return &Registry{
		personas: personas,
		logger:   logger.Named("conversation"),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Acquire locks the session for handle, creating it if needed. The caller must
// call release when done.
func (r *Registry) Acquire(handle string) (*Session, func()) {
	for {
		e := r.lookup(handle)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		release := func() {
			e.lastUsed = r.now()
			e.mu.Unlock()
		}
		return e.session, release
	}
}

func (r *Registry) lookup(handle string) *entry {
	r.mu.RLock()
	e, ok := r.sessions[handle]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[handle]; ok {
		return e
	}
	e = &entry{session: NewSession(r.personas), lastUsed: r.now()}
	r.sessions[handle] = e
	return e
}

// Remove drops the session for handle once no request holds it.
func (r *Registry) Remove(handle string) {
	r.mu.Lock()
	e, ok := r.sessions[handle]
	if ok {
		delete(r.sessions, handle)
	}
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}

// Sweep drops sessions idle for longer than ttl. Sessions currently held by a
// request are skipped. Returns the number removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for handle, e := range r.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			e.removed = true
			delete(r.sessions, handle)
			removed++
		}
		e.mu.Unlock()
	}

	if removed > 0 {
		r.logger.Debug("Swept idle chat sessions",
			zap.Int("removed", removed),
			zap.Int("remaining", len(r.sessions)))
	}
	return removed
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
