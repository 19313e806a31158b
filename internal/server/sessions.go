package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"armp/internal/dashboard"
	"armp/internal/observability"
	"armp/internal/session"
)

// browserSession is everything the server keeps for one browser: its
// authentication state and the two dashboards.
type browserSession struct {
	id    string
	store *session.Store
	build dashboardBuilder

	mu        sync.Mutex
	requester *dashboard.Requester
	approver  *dashboard.Approver
	lastSeen  time.Time
}

func (b *browserSession) dashboards() (*dashboard.Requester, *dashboard.Approver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requester, b.approver
}

// dashboardBuilder returns fresh dashboards bound to one browser's store and
// API client.
type dashboardBuilder func() (*dashboard.Requester, *dashboard.Approver)

// sessionFactory builds the session store for a new browser and the builder
// for its dashboards. Both share one token store.
type sessionFactory func(sid string) (*session.Store, dashboardBuilder)

// sessionRegistry keeps browser sessions in memory keyed by cookie value and
// drops the ones idle for longer than idle. Tokens live in the token store,
// so an evicted browser rehydrates on its next request.
type sessionRegistry struct {
	idle    time.Duration
	now     func() time.Time
	factory sessionFactory

	mu      sync.Mutex
	entries map[string]*browserSession
}

func newSessionRegistry(idle time.Duration, factory sessionFactory) *sessionRegistry {
	return &sessionRegistry{
		idle:    idle,
		now:     time.Now,
		factory: factory,
		entries: make(map[string]*browserSession),
	}
}

// Get returns the session for sid, creating it on first sight.
func (r *sessionRegistry) Get(sid string) *browserSession {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if bs, ok := r.entries[sid]; ok {
		bs.mu.Lock()
		bs.lastSeen = now
		bs.mu.Unlock()
		return bs
	}

	store, build := r.factory(sid)
	req, appr := build()
	bs := &browserSession{id: sid, store: store, build: build, requester: req, approver: appr, lastSeen: now}
	r.entries[sid] = bs
	observability.ActiveSessions.Set(float64(len(r.entries)))
	return bs
}

// Reset replaces the dashboards of sid so a newly signed-in user never sees
// the previous user's view state. The session store is kept.
func (r *sessionRegistry) Reset(sid string) {
	r.mu.Lock()
	bs, ok := r.entries[sid]
	r.mu.Unlock()
	if !ok {
		return
	}
	req, appr := bs.build()
	bs.mu.Lock()
	bs.requester, bs.approver = req, appr
	bs.mu.Unlock()
}

// Remove forgets sid entirely.
func (r *sessionRegistry) Remove(sid string) {
	r.mu.Lock()
	delete(r.entries, sid)
	observability.ActiveSessions.Set(float64(len(r.entries)))
	r.mu.Unlock()
}

// Len is the number of live sessions.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts sessions idle for longer than the idle period and returns how
// many were removed.
func (r *sessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for sid, bs := range r.entries {
		bs.mu.Lock()
		stale := bs.lastSeen.Before(cutoff)
		bs.mu.Unlock()
		if stale {
			delete(r.entries, sid)
			removed++
		}
	}
	observability.ActiveSessions.Set(float64(len(r.entries)))
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *sessionRegistry) Run(ctx context.Context) {
	interval := r.idle / 4
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
			if n := r.Sweep(); n > 0 {
				observability.Logger.DebugContext(ctx, "evicted idle browser sessions", slog.Int("count", n))
			}
		}
	}
}
