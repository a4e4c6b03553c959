package routes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnimsg/omnigate/internal/cache"
	"github.com/omnimsg/omnigate/internal/db"
)

const (
	// ResolveTTL bounds how long a resolution, positive or negative,
	// is served from cache.
	ResolveTTL = 30 * time.Second

	resolveCacheMax = 1000
)

// resolution is the cached outcome of one lookup. A nil Route is the
// remembered "no route" answer, so repeated misses skip the database
// too.
type resolution struct {
	Route *Route
}

// Metrics snapshot the resolver's cache behavior.
type Metrics struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Invalidations int64   `json:"invalidations"`
	CacheSize     int     `json:"cache_size"`
	HitRate       float64 `json:"hit_rate"`
	LastQueryMs   int64   `json:"last_query_ms"`
}

// Resolver answers "which agent handles this conversation" with a
// short-lived cache in front of the store.
type Resolver struct {
	store  Store
	cache  *cache.Cache[resolution]
	logger *slog.Logger

	mu            sync.Mutex
	invalidations int64
	lastQueryMs   int64
}

// NewResolver creates a resolver over store.
func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store: store,
		cache: cache.New[resolution](cache.Config{
			DefaultTTL: ResolveTTL,
			MaxSize:    resolveCacheMax,
		}),
		logger: log.With(slog.String("service", "route_resolver")),
	}
}

// Resolve returns the winning route for the conversation and person,
// or nil when no route matches and the tenant default applies. Both
// outcomes are cached.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, chatID uuid.UUID, personID *string) (*Route, error) {
	key := cacheKey(tenantID, chatID, personID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.Route, nil
	}

	start := time.Now()
	route, err := r.store.FindBest(ctx, tenantID, chatID, personID)
	r.recordQuery(time.Since(start))

	if errors.Is(err, db.ErrNotFound) {
		r.cache.Set(key, resolution{})
		r.logger.Debug("no route matched",
			slog.String("tenant_id", tenantID),
			slog.String("chat_id", chatID.String()),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, resolution{Route: &route})
	r.logger.Debug("route resolved",
		slog.String("tenant_id", tenantID),
		slog.String("chat_id", chatID.String()),
		slog.String("route_id", route.ID.String()),
		slog.String("scope", string(route.Scope)),
	)
	return &route, nil
}

// InvalidateRoute drops cached resolutions after a route change.
// There is no reverse index from route to cache keys, so the whole
// cache goes; route CRUD is rare enough for that to be fine.
func (r *Resolver) InvalidateRoute(routeID uuid.UUID) {
	r.clear()
	r.logger.Debug("route cache invalidated", slog.String("route_id", routeID.String()))
}

// InvalidateTenant drops cached resolutions for a tenant change.
func (r *Resolver) InvalidateTenant(tenantID string) {
	r.clear()
	r.logger.Debug("tenant route cache invalidated", slog.String("tenant_id", tenantID))
}

func (r *Resolver) clear() {
	r.cache.Clear()
	r.mu.Lock()
	r.invalidations++
	r.mu.Unlock()
}

func (r *Resolver) recordQuery(d time.Duration) {
	r.mu.Lock()
	r.lastQueryMs = d.Milliseconds()
	r.mu.Unlock()
}

// Metrics reports cache behavior for the stats endpoint.
func (r *Resolver) Metrics() Metrics {
	stats := r.cache.Stats()
	r.mu.Lock()
	defer r.mu.Unlock()
	return Metrics{
		Hits:          stats.Hits,
		Misses:        stats.Misses,
		Invalidations: r.invalidations,
		CacheSize:     stats.Size,
		HitRate:       r.cache.HitRate(),
		LastQueryMs:   r.lastQueryMs,
	}
}

func cacheKey(tenantID string, chatID uuid.UUID, personID *string) string {
	person := "null"
	if personID != nil {
		person = *personID
	}
	return tenantID + ":" + chatID.String() + ":" + person
}
