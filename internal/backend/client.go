// Package backend is the typed client for the remote API that wraps
// Microsoft Graph. Every call goes through the retry wrapper.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/retry"
	"github.com/kiranshivaraju/m365dash/pkg/models"
	"golang.org/x/time/rate"
)

// Sentinel errors for backend responses. Transport failures surface as
// retry.ErrUnreachable / retry.ErrTimeout and non-2xx as *retry.StatusError.
var (
	ErrNotFound  = errors.New("backend resource not found")
	ErrUnhealthy = errors.New("backend reported unhealthy")
)

// Client is the interface for talking to the backend API.
type Client interface {
	Health(ctx context.Context) (*HealthStatus, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	CreateTenant(ctx context.Context, in models.TenantInput) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, id string, in models.TenantInput) (*models.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	TenantData(ctx context.Context, id string) (*models.TenantData, error)
	SyncTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h HealthStatus) Healthy() bool { return h.Status == "healthy" }

// HTTPClient implements Client over the backend's JSON API.
type HTTPClient struct {
	baseURL      string
	client       retry.HTTPDoer
	policy       retry.Policy
	healthPolicy retry.Policy
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithRetryPolicy sets the policy used by every call except Health.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *HTTPClient) { c.policy = p }
}

// WithHealthPolicy sets the policy of the health probe.
func WithHealthPolicy(p retry.Policy) Option {
	return func(c *HTTPClient) { c.healthPolicy = p }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.client = &throttledDoer{next: c.client, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
	}
}

// WithHTTPDoer replaces the underlying *http.Client. Apply it before WithRateLimit.
func WithHTTPDoer(d retry.HTTPDoer) Option {
	return func(c *HTTPClient) { c.client = d }
}

// NewHTTPClient creates a backend client rooted at baseURL, e.g. http://127.0.0.1:5000/api.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		policy:       retry.DefaultPolicy(),
		healthPolicy: retry.Policy{MaxAttempts: retry.DefaultMaxAttempts, Delay: time.Second, Exponential: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health probes GET /health with the health policy. A reachable backend
// that does not report "healthy" counts as a failed attempt and is retried
// like a transport error; after the last attempt it yields ErrUnhealthy.
func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var last *HealthStatus
	once := retry.Policy{MaxAttempts: 1}
	err := retry.Do(ctx, c.healthPolicy, func(ctx context.Context) error {
		var h HealthStatus
		if err := c.doWith(ctx, once, http.MethodGet, "/health", nil, &h); err != nil {
			last = nil
			return err
		}
		last = &h
		if !h.Healthy() {
			return fmt.Errorf("%w: status %q", ErrUnhealthy, h.Status)
		}
		return nil
	})
	return last, err
}

func (c *HTTPClient) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var body struct {
		Tenants []models.Tenant `json:"tenants"`
	}
	if err := c.do(ctx, http.MethodGet, "/tenants", nil, &body); err != nil {
		return nil, err
	}
	if body.Tenants == nil {
		return []models.Tenant{}, nil
	}
	return body.Tenants, nil
}

func (c *HTTPClient) CreateTenant(ctx context.Context, in models.TenantInput) (*models.Tenant, error) {
	var t models.Tenant
	if err := c.do(ctx, http.MethodPost, "/tenants", normalizeInput(in), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTenant replaces the tenant's fields. A blank ClientSecret is left out
// of the payload so the stored secret is kept.
func (c *HTTPClient) UpdateTenant(ctx context.Context, id string, in models.TenantInput) (*models.Tenant, error) {
	var t models.Tenant
	if err := c.do(ctx, http.MethodPut, tenantPath(id), normalizeInput(in), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) DeleteTenant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, tenantPath(id), nil, nil)
}

func (c *HTTPClient) TenantData(ctx context.Context, id string) (*models.TenantData, error) {
	var d models.TenantData
	if err := c.do(ctx, http.MethodGet, tenantPath(id)+"/data", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SyncTenant asks the backend to refresh the tenant from Graph and returns the
// updated record (lastSync, userCount, licenseCount).
func (c *HTTPClient) SyncTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	if err := c.do(ctx, http.MethodPost, tenantPath(id)+"/sync", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	return c.doWith(ctx, c.policy, method, path, in, out)
}

func (c *HTTPClient) doWith(ctx context.Context, p retry.Policy, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = b
	}

	resp, err := retry.DoHTTP(ctx, c.client, p, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		if retry.IsStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: %s %s: %v", ErrNotFound, method, path, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func tenantPath(id string) string {
	return "/tenants/" + url.PathEscape(id)
}

func normalizeInput(in models.TenantInput) models.TenantInput {
	in.Name = strings.TrimSpace(in.Name)
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ClientSecret = strings.TrimSpace(in.ClientSecret)
	return in
}

// throttledDoer waits on a token bucket before every request.
type throttledDoer struct {
	next    retry.HTTPDoer
	limiter *rate.Limiter
}

func (d *throttledDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return d.next.Do(req)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
