package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// Checker runs one check pass.
type Checker interface {
	Run(ctx context.Context, ds domain.Dataset) (*resultlog.Log, error)
}

// SnapshotCache shares encoded result snapshots between replicas.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedRunner serves result logs as snapshots that are recomputed once
// they are older than the TTL. Stale reads are tolerated up to the TTL;
// nothing invalidates a snapshot early.
type CachedRunner struct {
	runner  Checker
	shared  SnapshotCache
	clock   clockwork.Clock
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	slots map[domain.Dataset]*slot
}

// slot serializes passes for one dataset so a slow recompute only blocks
// readers of that dataset.
type slot struct {
	mu  sync.Mutex
	log *resultlog.Log
}

// NewCachedRunner wraps runner. shared may be nil for a process-local cache.
func NewCachedRunner(runner Checker, shared SnapshotCache, clock clockwork.Clock, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *CachedRunner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedRunner{
		runner:  runner,
		shared:  shared,
		clock:   clock,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		slots:   make(map[domain.Dataset]*slot),
	}
}

func snapshotKey(ds domain.Dataset) string { return "case-qc:snapshot:" + string(ds) }

func (c *CachedRunner) fresh(log *resultlog.Log) bool {
	return log != nil && c.clock.Since(log.LoadedAt()) <= c.ttl
}

func (c *CachedRunner) slotFor(ds domain.Dataset) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[ds]
	if !ok {
		s = &slot{}
		c.slots[ds] = s
	}
	return s
}

// Get returns the snapshot for ds, running a new pass when the cached one
// has expired.
func (c *CachedRunner) Get(ctx context.Context, ds domain.Dataset) (*resultlog.Log, error) {
	s := c.slotFor(ds)
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.fresh(s.log) {
		c.metrics.SnapshotCache.WithLabelValues("hit").Inc()
		return s.log, nil
	}

	if log := c.loadShared(ctx, ds); c.fresh(log) {
		c.metrics.SnapshotCache.WithLabelValues("hit").Inc()
		s.log = log
		return log, nil
	}

	c.metrics.SnapshotCache.WithLabelValues("miss").Inc()
	return c.refreshLocked(ctx, ds, s)
}

// Refresh runs a new pass for ds regardless of the cached snapshot's age.
func (c *CachedRunner) Refresh(ctx context.Context, ds domain.Dataset) (*resultlog.Log, error) {
	s := c.slotFor(ds)
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.refreshLocked(ctx, ds, s)
}

func (c *CachedRunner) refreshLocked(ctx context.Context, ds domain.Dataset, s *slot) (*resultlog.Log, error) {
	log, err := c.runner.Run(ctx, ds)
	if err != nil {
		return nil, err
	}
	s.log = log
	c.storeShared(ctx, ds, log)
	return log, nil
}

func (c *CachedRunner) loadShared(ctx context.Context, ds domain.Dataset) *resultlog.Log {
	if c.shared == nil {
		return nil
	}
	data, ok, err := c.shared.Get(ctx, snapshotKey(ds))
	if err != nil {
		c.logger.Warn("snapshot cache read failed", "dataset", ds, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	log, err := resultlog.UnmarshalSnapshot(data, c.clock)
	if err != nil {
		c.logger.Warn("snapshot cache entry unreadable", "dataset", ds, "error", err)
		return nil
	}
	return log
}

func (c *CachedRunner) storeShared(ctx context.Context, ds domain.Dataset, log *resultlog.Log) {
	if c.shared == nil {
		return
	}
	data, err := log.MarshalSnapshot()
	if err != nil {
		c.logger.Warn("snapshot encode failed", "dataset", ds, "error", err)
		return
	}
	if err := c.shared.Set(ctx, snapshotKey(ds), data, c.ttl); err != nil {
		c.logger.Warn("snapshot cache write failed", "dataset", ds, "error", err)
	}
}
