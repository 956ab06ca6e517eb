package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blockedby/survey-portal/internal/dashboard"
)

// Factory builds the dashboard controller of a new session.
type Factory func(sessionID string) *dashboard.Controller

// Gauge receives the number of live sessions.
type Gauge interface {
	SetActiveSessions(n int)
}

type entry struct {
	controller *dashboard.Controller
	lastSeen   time.Time
}

// Registry keeps one dashboard controller per browser session and evicts
// sessions that stayed idle longer than the configured TTL.
type Registry struct {
	factory Factory
	idle    time.Duration
	gauge   Gauge
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a registry. idle <= 0 disables eviction.
func NewRegistry(factory Factory, idle time.Duration, gauge Gauge, log *zerolog.Logger) *Registry {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "sessions").Logger()
	}
	return &Registry{
		factory: factory,
		idle:    idle,
		gauge:   gauge,
		log:     l,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Get returns the controller of a session, creating it on first use.
func (r *Registry) Get(sessionID string) *dashboard.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{controller: r.factory(sessionID)}
		r.entries[sessionID] = e
		r.log.Debug().Str("session_id", sessionID).Msg("session created")
		r.report()
	}
	e.lastSeen = r.now()
	return e.controller
}

// Lookup returns the controller of an existing session without touching it.
func (r *Registry) Lookup(sessionID string) (*dashboard.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.controller, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict drops every session idle since before now-TTL and returns how many
// were removed.
func (r *Registry) Evict(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Info().Int("evicted", removed).Int("remaining", len(r.entries)).Msg("idle sessions evicted")
		r.report()
	}
	return removed
}

// Run evicts idle sessions periodically until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.idle <= 0 {
		return
	}

	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict(r.now())
		}
	}
}

// report must be called with mu held.
func (r *Registry) report() {
	if r.gauge != nil {
		r.gauge.SetActiveSessions(len(r.entries))
	}
}
