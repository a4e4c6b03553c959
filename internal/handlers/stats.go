package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/cache"
)

// StatsProvider exposes a snapshot of one named cache.
type StatsProvider interface {
	Stats() cache.Stats
	HitRate() float64
}

// StatsHandler reports cache effectiveness for operators.
type StatsHandler struct {
	caches map[string]StatsProvider
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler over named caches.
func NewStatsHandler(log *slog.Logger, caches map[string]StatsProvider) *StatsHandler {
	return &StatsHandler{
		caches: caches,
		logger: log.With(slog.String("handler", "stats")),
	}
}

// Register registers the stats route.
func (h *StatsHandler) Register(e *echo.Echo) {
	e.GET("/stats/cache", h.CacheStats)
}

type cacheStatsEntry struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
}

func (h *StatsHandler) CacheStats(c echo.Context) error {
	out := make(map[string]cacheStatsEntry, len(h.caches))
	for name, provider := range h.caches {
		out[name] = cacheStatsEntry{
			Stats:   provider.Stats(),
			HitRate: provider.HitRate(),
		}
	}
	return c.JSON(http.StatusOK, out)
}
