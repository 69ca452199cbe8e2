package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/pluk/internal/apperror"
)

// DefaultIdleTimeout is how long an untouched recovery session survives.
const DefaultIdleTimeout = 15 * time.Minute

// Registry keeps in-flight sessions by id for the HTTP surface. Expired
// sessions are swept whenever the registry is used.
type Registry struct {
	machine *Machine
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(machine *Machine, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTimeout
	}
	return &Registry{
		machine:  machine,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Machine() *Machine {
	return r.machine
}

// Begin starts and registers a new session.
func (r *Registry) Begin(ctx context.Context) *Session {
	s := r.machine.Start(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	r.touch(s)
	r.sessions[s.id] = s
	return s
}

// Get returns the session and pushes its expiry forward. Unknown and
// expired ids are both NotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperror.NotFound("recovery session", id)
	}
	r.touch(s)
	return s, nil
}

// Cancel drops the session. Cancelling an unknown id is not an error.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Finish drops the session once it reached StepDone.
func (r *Registry) Finish(s *Session) {
	if s.Step() != StepDone {
		return
	}
	r.Cancel(s.id)
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.sessions)
}

func (r *Registry) touch(s *Session) {
	s.mu.Lock()
	s.expiresAt = r.now().Add(r.ttl)
	s.mu.Unlock()
}

func (r *Registry) sweepLocked() {
	now := r.now()
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := !now.Before(s.expiresAt)
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
		}
	}
}
