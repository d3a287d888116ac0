// Package dashboard runs the refresh sequence behind the dashboard view and
// tracks per-tenant sync status.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/m365dash/internal/aggregate"
	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/internal/cache"
	"github.com/kiranshivaraju/m365dash/internal/metrics"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

const (
	DefaultSyncSuccessReset = 3 * time.Second
	DefaultSyncErrorReset   = 5 * time.Second
)

// Backend is the subset of backend.Client the controller drives.
type Backend interface {
	Health(ctx context.Context) (*backend.HealthStatus, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	SyncTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// Aggregator merges per-tenant data. *aggregate.Aggregator satisfies it.
type Aggregator interface {
	Aggregate(ctx context.Context, tenants []models.Tenant) (*aggregate.Result, error)
}

// SnapshotRecorder persists successful refreshes. *store.PostgresStore satisfies it.
type SnapshotRecorder interface {
	CreateSnapshot(ctx context.Context, s *models.Snapshot) error
}

// Controller owns the dashboard state. Overlapping refreshes are not
// cancelled; a refresh only publishes its state if no newer refresh already did.
type Controller struct {
	backend    Backend
	aggregator Aggregator
	loader     *cache.Loader
	snapshots  SnapshotRecorder
	now        func() time.Time

	successReset time.Duration
	errorReset   time.Duration

	mu        sync.RWMutex
	state     State
	issued    uint64
	published uint64
	syncs     map[string]*syncEntry
}

type syncEntry struct {
	status models.SyncStatus
	timer  *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache lets the controller invalidate cached tenant data after a sync or a forced refresh.
func WithCache(l *cache.Loader) Option {
	return func(c *Controller) { c.loader = l }
}

func WithSnapshots(s SnapshotRecorder) Option {
	return func(c *Controller) { c.snapshots = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSyncResetDelays sets how long success and error statuses are shown before reverting to idle.
func WithSyncResetDelays(success, failure time.Duration) Option {
	return func(c *Controller) {
		c.successReset = success
		c.errorReset = failure
	}
}

func NewController(b Backend, a Aggregator, opts ...Option) *Controller {
	c := &Controller{
		backend:      b,
		aggregator:   a,
		now:          time.Now,
		successReset: DefaultSyncSuccessReset,
		errorReset:   DefaultSyncErrorReset,
		syncs:        make(map[string]*syncEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = zeroState(StatusPending, time.Time{})
	return c
}

// State returns the last published state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Refresh runs health probe, tenant listing and aggregation, publishes the
// resulting state and returns it. It never fails: every error degrades to a
// zero-valued state.
func (c *Controller) Refresh(ctx context.Context) State {
	c.mu.Lock()
	c.issued++
	gen := c.issued
	c.mu.Unlock()

	st := c.build(ctx)
	metrics.Refreshes.WithLabelValues(st.Status).Inc()

	c.mu.Lock()
	fresh := gen > c.published
	if fresh {
		c.state = st
		c.published = gen
	} else {
		slog.Info("discarding stale refresh", "generation", gen, "published", c.published)
	}
	c.mu.Unlock()

	if fresh && st.Status == StatusOK {
		c.recordSnapshot(ctx, st)
	}
	return st
}

// ForceRefresh drops every cached tenant payload before refreshing.
func (c *Controller) ForceRefresh(ctx context.Context) State {
	if c.loader != nil {
		if err := c.loader.Clear(ctx); err != nil {
			slog.Warn("cache clear failed", "error", err)
		}
	}
	return c.Refresh(ctx)
}

// StartAutoRefresh refreshes in the background, once immediately and then
// every interval, until ctx is done. The returned channel closes when the
// loop has exited. A non-positive interval refreshes once.
func (c *Controller) StartAutoRefresh(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Refresh(ctx)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}()
	return done
}

func (c *Controller) build(ctx context.Context) State {
	now := c.now()

	if _, err := c.backend.Health(ctx); err != nil {
		slog.Error("backend health check failed", "error", err)
		st := zeroState(StatusOffline, now)
		st.ConnectionError = fmt.Sprintf("cannot connect to backend: %v", err)
		return st
	}

	tenants, err := c.backend.ListTenants(ctx)
	if err != nil {
		slog.Warn("listing tenants failed, showing empty dashboard", "error", err)
		st := zeroState(StatusDegraded, now)
		st.Warning = fmt.Sprintf("listing tenants: %v", err)
		return st
	}

	active := models.ActiveTenants(tenants)
	if len(active) == 0 {
		slog.Info("no active tenants configured")
		return zeroState(StatusEmpty, now)
	}

	res, err := c.aggregator.Aggregate(ctx, active)
	if err != nil {
		slog.Warn("aggregation failed, showing empty dashboard", "active_tenants", len(active), "error", err)
		st := zeroState(StatusDegraded, now)
		st.ActiveTenants = len(active)
		st.Warning = err.Error()
		return st
	}

	st := State{
		Status:        StatusOK,
		RefreshedAt:   now,
		ActiveTenants: len(active),
		Tenants:       res.Tenants,
		Data:          res.AggregatedData,
		Charts:        buildCharts(res.AggregatedData, res.Tenants),
	}
	if failed := res.Failed(); failed > 0 {
		st.Warning = fmt.Sprintf("%d of %d tenants could not be reached", failed, len(active))
	}
	return st
}

func (c *Controller) recordSnapshot(ctx context.Context, st State) {
	if c.snapshots == nil {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		slog.Error("encoding snapshot failed", "error", err)
		return
	}
	snap := &models.Snapshot{
		ID:          uuid.New(),
		TakenAt:     st.RefreshedAt.UTC(),
		TenantCount: st.ActiveTenants,
		FailedCount: countFailed(st.Tenants),
		Metrics:     st.Data.Metrics,
		Payload:     payload,
	}
	if err := c.snapshots.CreateSnapshot(ctx, snap); err != nil {
		slog.Error("storing snapshot failed", "error", err)
	}
}

func countFailed(results []aggregate.TenantResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
