package apikeys

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pendingUsage struct {
	count    int64
	lastUsed time.Time
}

// UsageRecorder batches per-key usage counters in memory and flushes
// them to the store in one pass. Record is cheap and never touches
// the database; Flush is the awaitable write, run on a schedule and
// once more at shutdown.
type UsageRecorder struct {
	mu      sync.Mutex
	pending map[uuid.UUID]pendingUsage
	store   Store
	logger  *slog.Logger
}

// NewUsageRecorder creates an empty recorder over store.
func NewUsageRecorder(log *slog.Logger, store Store) *UsageRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &UsageRecorder{
		pending: make(map[uuid.UUID]pendingUsage),
		store:   store,
		logger:  log.With(slog.String("service", "apikey_usage")),
	}
}

// Record notes one use of a key at now.
func (r *UsageRecorder) Record(id uuid.UUID) {
	now := time.Now().UTC()
	r.mu.Lock()
	p := r.pending[id]
	p.count++
	if now.After(p.lastUsed) {
		p.lastUsed = now
	}
	r.pending[id] = p
	r.mu.Unlock()
}

// Pending returns the number of keys with unflushed usage.
func (r *UsageRecorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes all batched counters to the store. Counters for keys
// whose write fails are restored so the next flush retries them.
func (r *UsageRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[uuid.UUID]pendingUsage)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var errs []error
	for id, p := range batch {
		if err := r.store.BumpUsage(ctx, id, p.count, p.lastUsed); err != nil {
			errs = append(errs, err)
			r.restore(id, p)
			r.logger.Warn("flush key usage failed",
				slog.String("key_id", id.String()),
				slog.Any("error", err),
			)
		}
	}
	if len(errs) == 0 {
		r.logger.Debug("flushed key usage", slog.Int("keys", len(batch)))
	}
	return errors.Join(errs...)
}

func (r *UsageRecorder) restore(id uuid.UUID, p pendingUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.pending[id]
	cur.count += p.count
	if p.lastUsed.After(cur.lastUsed) {
		cur.lastUsed = p.lastUsed
	}
	r.pending[id] = cur
}
