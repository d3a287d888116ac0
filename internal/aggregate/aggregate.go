// Package aggregate combines per-tenant directory data into one dashboard view.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/m365dash/internal/cache"
	"github.com/kiranshivaraju/m365dash/internal/metrics"
	"github.com/kiranshivaraju/m365dash/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoTenants         = errors.New("no tenants to aggregate")
	ErrNoReachableTenant = errors.New("no active tenant reachable")
)

// Fetcher loads the live data of one tenant. backend.HTTPClient satisfies it.
type Fetcher interface {
	TenantData(ctx context.Context, id string) (*models.TenantData, error)
}

// TenantResult is the outcome of fetching one tenant.
type TenantResult struct {
	Tenant  models.Tenant      `json:"tenant"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Data    *models.TenantData `json:"data,omitempty"`

	err error
}

// Err returns the fetch error of a failed tenant.
func (r TenantResult) Err() error { return r.err }

// Result holds every tenant outcome, in input order, and the merge of the successful ones.
type Result struct {
	Tenants        []TenantResult    `json:"tenants"`
	AggregatedData models.TenantData `json:"aggregatedData"`
}

// Failed counts the tenants that could not be fetched.
func (r *Result) Failed() int {
	n := 0
	for _, t := range r.Tenants {
		if !t.Success {
			n++
		}
	}
	return n
}

// Aggregator fans out one fetch per tenant and merges the results.
type Aggregator struct {
	fetcher        Fetcher
	loader         *cache.Loader
	maxConcurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache serves tenant data through l, keyed by cache.TenantDataKey.
func WithCache(l *cache.Loader) Option {
	return func(a *Aggregator) { a.loader = l }
}

// WithMaxConcurrency caps in-flight tenant fetches. Zero means one goroutine per tenant.
func WithMaxConcurrency(n int) Option {
	return func(a *Aggregator) { a.maxConcurrency = n }
}

func New(f Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{fetcher: f}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate fetches every tenant concurrently and waits for all of them. A
// failing tenant is recorded in the result instead of aborting the batch.
// It returns ErrNoTenants for empty input without touching the network, and
// ErrNoReachableTenant when every fetch failed.
func (a *Aggregator) Aggregate(ctx context.Context, tenants []models.Tenant) (*Result, error) {
	if len(tenants) == 0 {
		return nil, ErrNoTenants
	}

	results := make([]TenantResult, len(tenants))
	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	for i, t := range tenants {
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var (
		ok   []models.TenantData
		errs []error
	)
	for _, r := range results {
		if r.Success {
			ok = append(ok, *r.Data)
			continue
		}
		errs = append(errs, fmt.Errorf("tenant %s: %w", r.Tenant.ID, r.err))
	}
	if len(ok) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoReachableTenant, errors.Join(errs...))
	}

	slog.Info("tenants aggregated", "succeeded", len(ok), "failed", len(errs))
	return &Result{Tenants: results, AggregatedData: Merge(ok)}, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, t models.Tenant) (res TenantResult) {
	res.Tenant = t
	defer func() {
		if r := recover(); r != nil {
			res = failed(t, fmt.Errorf("panic: %v", r))
		}
		outcome := "success"
		if !res.Success {
			outcome = "failure"
			slog.Warn("tenant fetch failed", "tenant_id", t.ID, "tenant", t.Name, "error", res.err)
		}
		metrics.TenantFetches.WithLabelValues(outcome).Inc()
	}()

	data, err := a.TenantData(ctx, t.ID)
	if err != nil {
		return failed(t, err)
	}
	res.Success = true
	res.Data = data
	return res
}

// TenantData fetches one tenant through the cache, if any. It lets the
// aggregator stand in for its Fetcher wherever cached reads are wanted.
func (a *Aggregator) TenantData(ctx context.Context, id string) (*models.TenantData, error) {
	data, err := cache.GetOrFetch(ctx, a.loader, cache.TenantDataKey(id), func(ctx context.Context) (models.TenantData, error) {
		d, err := a.fetcher.TenantData(ctx, id)
		if err != nil {
			return models.TenantData{}, err
		}
		return *d, nil
	})
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func failed(t models.Tenant, err error) TenantResult {
	return TenantResult{Tenant: t, Success: false, Error: err.Error(), err: err}
}

// Merge sums the metrics of every input and concatenates their entity lists
// in input order. Lists are never nil.
func Merge(data []models.TenantData) models.TenantData {
	out := models.EmptyTenantData()
	for _, d := range data {
		out.Users = append(out.Users, d.Users...)
		out.Groups = append(out.Groups, d.Groups...)
		out.Sites = append(out.Sites, d.Sites...)
		out.Licenses = append(out.Licenses, d.Licenses...)
		out.Metrics.Add(d.Metrics)
	}
	return out
}
