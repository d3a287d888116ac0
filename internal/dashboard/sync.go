package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/cache"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// SyncTenant asks the backend to resync one tenant. The tenant's status goes
// to syncing, then to success or error, and falls back to idle after the
// configured delay. A successful sync drops the tenant's cached data.
func (c *Controller) SyncTenant(ctx context.Context, id string) (*models.Tenant, error) {
	c.setSync(id, models.SyncSyncing, 0)

	t, err := c.backend.SyncTenant(ctx, id)
	if err != nil {
		slog.Warn("tenant sync failed", "tenant_id", id, "error", err)
		c.setSync(id, models.SyncError, c.errorReset)
		return nil, err
	}

	if c.loader != nil {
		if err := c.loader.ClearEntry(ctx, cache.TenantDataKey(id)); err != nil {
			slog.Warn("cache invalidation failed", "tenant_id", id, "error", err)
		}
	}
	c.setSync(id, models.SyncSuccess, c.successReset)
	slog.Info("tenant synced", "tenant_id", id, "user_count", t.UserCount, "license_count", t.LicenseCount)
	return t, nil
}

// SyncStatus returns the current sync status of a tenant, idle if unknown.
func (c *Controller) SyncStatus(id string) models.SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.syncs[id]; ok {
		return e.status
	}
	return models.SyncIdle
}

// SyncStatuses returns a copy of every non-idle status.
func (c *Controller) SyncStatuses() map[string]models.SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.SyncStatus, len(c.syncs))
	for id, e := range c.syncs {
		out[id] = e.status
	}
	return out
}

// setSync records status for id and, when resetAfter > 0, schedules the
// return to idle. A newer status cancels the pending reset.
func (c *Controller) setSync(id string, status models.SyncStatus, resetAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.syncs[id]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	e := &syncEntry{status: status}
	c.syncs[id] = e

	if resetAfter > 0 {
		e.timer = time.AfterFunc(resetAfter, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.syncs[id] == e {
				delete(c.syncs, id)
			}
		})
	}
}
