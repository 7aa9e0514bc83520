package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie carries the session id in the browser.
const SessionCookie = "dashboard_session"

type session struct {
	controller *Controller
	lastSeen   time.Time
}

// Registry keeps one Controller per browser session.
type Registry struct {
	factory func() *Controller
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(factory func() *Controller, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Get returns the controller for id. An empty or unknown id always gets a
// freshly minted session id, never the one the client offered. The returned
// id is the one to hand back to the client.
func (r *Registry) Get(id string) (string, *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.now()
		return id, s.controller
	}

	id = uuid.NewString()
	s := &session{controller: r.factory(), lastSeen: r.now()}
	r.sessions[id] = s
	r.logger.Debug("session created", "session_id", id, "sessions", len(r.sessions))
	return id, s.controller
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle longer than the TTL.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.ttl {
			delete(r.sessions, id)
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.Info("expired dashboard sessions", "dropped", dropped, "remaining", len(r.sessions))
	}
	return dropped
}

// Run sweeps expired sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close drops every session. It is registered as a shutdown hook.
func (r *Registry) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("closing dashboard sessions", "sessions", len(r.sessions))
	clear(r.sessions)
	return nil
}
