package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "zviewer_session"

// Registry maps session ids to stores and evicts idle ones.
type Registry struct {
	mu      sync.Mutex
	stores  map[string]*Store
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRegistry creates a registry whose stores expire after ttl without use.
// A ttl <= 0 disables eviction.
func NewRegistry(ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		stores:  make(map[string]*Store),
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// Get returns the store for id. Unknown, expired or malformed ids get a fresh
// demo-initialized store under a new id; created reports whether that happened.
func (r *Registry) Get(id string) (sessionID string, store *Store, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := r.stores[id]; ok && !r.expired(s, now) {
			s.touch(now)
			return id, s, false
		}
	}

	sessionID = uuid.NewString()
	store = NewStore(r.metrics)
	store.touch(now)
	r.stores[sessionID] = store
	r.reportSize()

	r.logger.Debug("session created", "session_id", sessionID)
	return sessionID, store, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep removes expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.stores {
		if r.expired(s, now) {
			delete(r.stores, id)
			removed++
		}
	}
	if removed > 0 {
		r.reportSize()
		r.logger.Debug("expired sessions evicted", "count", removed, "remaining", len(r.stores))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) expired(s *Store, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.LastSeen()) > r.ttl
}

func (r *Registry) reportSize() {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.stores))
	}
}
