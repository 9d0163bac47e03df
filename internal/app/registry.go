package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"crmapp/internal/host"
)

type session struct {
	mu   sync.Mutex
	ctrl *Controller

	workspaceID atomic.Int64
	stale       atomic.Bool
	lastUsed    atomic.Int64
}

// Registry keeps one Controller per user and runs every action of a user
// under that user's lock.
type Registry struct {
	factory func() *Controller
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewRegistry creates controllers with factory on first use.
func NewRegistry(factory func() *Controller) *Registry {
	return &Registry{
		factory:  factory,
		now:      time.Now,
		sessions: make(map[int64]*session),
	}
}

func (r *Registry) session(userID int64) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{ctrl: r.factory()}
		s.lastUsed.Store(r.now().UnixNano())
		r.sessions[userID] = s
	}
	return s
}

// With runs fn on the user's controller with h as host. The controller is
// bootstrapped on first use and reloaded when another session changed its
// workspace. Only ErrNoIdentity prevents fn from running; load failures are
// reported to the user as notices.
func (r *Registry) With(ctx context.Context, userID int64, h host.Host, fn func(*Controller) error) error {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed.Store(r.now().UnixNano())
	c := s.ctrl
	c.SetHost(h)
	defer func() {
		c.SetHost(host.Nop{})
		s.workspaceID.Store(c.WorkspaceID())
	}()

	if s.stale.Swap(false) {
		c.Invalidate()
	}
	if c.UserID() == 0 {
		if err := c.Bootstrap(ctx); errors.Is(err, ErrNoIdentity) {
			return err
		}
	} else if c.Stale() {
		// A failed refresh keeps the previous snapshot and a notice.
		_ = c.EnsureFresh(ctx)
	}
	return fn(c)
}

// Publish marks every other session showing workspaceID as stale.
func (r *Registry) Publish(workspaceID, originUserID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, s := range r.sessions {
		if userID != originUserID && s.workspaceID.Load() == workspaceID {
			s.stale.Store(true)
		}
	}
}

// Sweep drops sessions idle for longer than idle and returns how many.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for userID, s := range r.sessions {
		if s.lastUsed.Load() < cutoff {
			delete(r.sessions, userID)
			n++
		}
	}
	return n
}

// Forget drops the session of userID and erases its persisted state.
func (r *Registry) Forget(ctx context.Context, userID int64) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if !ok {
		// A fresh controller still reaches the store.
		return r.factory().Forget(ctx, userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Forget(ctx, userID)
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Publishers fans a mutation out to several publishers.
type Publishers []Publisher

func (p Publishers) Publish(workspaceID, originUserID int64) {
	for _, pub := range p {
		pub.Publish(workspaceID, originUserID)
	}
}
