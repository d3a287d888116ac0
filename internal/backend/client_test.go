package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/retry"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// --- helpers ---

func backendServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	fast := retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}
	return NewHTTPClient(baseURL, 5*time.Second, WithRetryPolicy(fast), WithHealthPolicy(fast))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- Health ---

func TestHealth_Healthy(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(w, map[string]string{"status": "healthy", "message": "Flask backend is running"})
	})

	h, err := newTestClient(t, ts.URL+"/api").Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Healthy() {
		t.Errorf("expected healthy, got %q", h.Status)
	}
}

func TestHealth_UnhealthyStatus(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "degraded"})
	})

	_, err := newTestClient(t, ts.URL).Health(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
}

func TestHealth_UnhealthyStatusIsRetried(t *testing.T) {
	var calls int32
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, map[string]string{"status": "healthy"})
	})

	h, err := newTestClient(t, ts.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Healthy() {
		t.Errorf("expected healthy, got %q", h.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestHealth_UnhealthyExhaustsAttempts(t *testing.T) {
	var calls int32
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, map[string]string{"status": "degraded"})
	})

	h, err := newTestClient(t, ts.URL).Health(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
	if h == nil || h.Status != "degraded" {
		t.Errorf("expected last reported status, got %+v", h)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestHealth_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]string{"status": "healthy"})
	})

	if _, err := newTestClient(t, ts.URL).Health(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).Health(context.Background())
	if !errors.Is(err, retry.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

// --- Tenants ---

func TestListTenants(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/tenants" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"tenants":[
			{"id":"t1","name":"Contoso","tenantId":"tid-1","clientId":"cid-1","isActive":true,"lastSync":"","userCount":5,"licenseCount":10,"hasSecret":true,"clientSecret":"leaked"},
			{"id":"t2","name":"Fabrikam","tenantId":"tid-2","clientId":"cid-2","isActive":false}
		]}`))
	})

	tenants, err := newTestClient(t, ts.URL).ListTenants(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[0].Name != "Contoso" || !tenants[0].IsActive || tenants[0].UserCount != 5 || !tenants[0].HasSecret {
		t.Errorf("unexpected first tenant: %+v", tenants[0])
	}
	if tenants[0].ClientSecret != "" {
		t.Errorf("client secret must never be decoded, got %q", tenants[0].ClientSecret)
	}
}

func TestListTenants_MissingListIsEmpty(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})

	tenants, err := newTestClient(t, ts.URL).ListTenants(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenants == nil || len(tenants) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", tenants)
	}
}

func TestCreateTenant_SendsTrimmedPayload(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tenants" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Contoso" || body["clientSecret"] != "s3cret" {
			t.Errorf("unexpected payload: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"id": "new-id", "name": "Contoso", "isActive": true, "hasSecret": true})
	})

	created, err := newTestClient(t, ts.URL).CreateTenant(context.Background(), models.TenantInput{
		Name: "  Contoso ", TenantID: "tid", ClientID: "cid", ClientSecret: " s3cret ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "new-id" || !created.HasSecret {
		t.Errorf("unexpected tenant: %+v", created)
	}
}

func TestUpdateTenant_OmitsBlankSecret(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tenants/t1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["clientSecret"]; ok {
			t.Errorf("blank clientSecret must be omitted, payload: %v", body)
		}
		writeJSON(w, map[string]any{"id": "t1", "name": body["name"], "hasSecret": true})
	})

	updated, err := newTestClient(t, ts.URL).UpdateTenant(context.Background(), "t1", models.TenantInput{
		Name: "Renamed", TenantID: "tid", ClientID: "cid", ClientSecret: "   ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("unexpected name: %s", updated.Name)
	}
}

func TestUpdateTenant_SendsNewSecret(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["clientSecret"] != "rotated" {
			t.Errorf("expected rotated secret, payload: %v", body)
		}
		writeJSON(w, map[string]any{"id": "t1"})
	})

	_, err := newTestClient(t, ts.URL).UpdateTenant(context.Background(), "t1", models.TenantInput{
		Name: "n", TenantID: "tid", ClientID: "cid", ClientSecret: "rotated",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteTenant_NotFound(t *testing.T) {
	var calls int32
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method: %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Tenant not found"}`))
	})

	err := newTestClient(t, ts.URL).DeleteTenant(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// 4xx responses are retried like any other failure.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestTenantData(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenants/t 1/data" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"users":[{"id":"u1","displayName":"Ada","userPrincipalName":"ada@contoso.com","accountEnabled":false}],
			"groups":[{"id":"g1","displayName":"Staff"}],
			"sites":[],
			"licenses":[{"skuId":"s1","skuPartNumber":"E3","consumedUnits":3,"prepaidUnits":{"enabled":5}}],
			"metrics":{"totalUsers":1,"activeUsers":0,"disabledUsers":1,"totalLicenses":5,"usedLicenses":3,"availableLicenses":2,
				"userStatus":{"active":0,"disabled":1},"licenseStatus":{"used":3,"available":2}}
		}`))
	})

	data, err := newTestClient(t, ts.URL).TenantData(context.Background(), "t 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data.Users) != 1 || data.Users[0].Enabled() {
		t.Errorf("unexpected users: %+v", data.Users)
	}
	if data.Metrics.TotalLicenses != 5 || !data.Metrics.Consistent() {
		t.Errorf("unexpected metrics: %+v", data.Metrics)
	}
	if data.Licenses[0].PrepaidUnits.Enabled != 5 {
		t.Errorf("unexpected license: %+v", data.Licenses[0])
	}
}

func TestSyncTenant(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tenants/t1/sync" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, map[string]any{"id": "t1", "lastSync": "2024-05-01T09:00:00", "userCount": 12, "licenseCount": 20})
	})

	tenant, err := newTestClient(t, ts.URL).SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.UserCount != 12 || tenant.LicenseCount != 20 || tenant.LastSync == "" {
		t.Errorf("unexpected tenant: %+v", tenant)
	}
}

func TestDecodeError(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := newTestClient(t, ts.URL).TenantData(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected decode error")
	}
}

// --- legacy endpoints ---

func TestLegacyEndpointsSurfaceStatus(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"No default credentials configured."}`)
	})
	c := newTestClient(t, ts.URL)

	_, err := c.LegacyMetrics(context.Background())
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if _, err := c.Users(context.Background()); err == nil {
		t.Error("expected error from /users")
	}
	if _, err := c.Token(context.Background()); err == nil {
		t.Error("expected error from /token")
	}
}

// --- rate limit ---

func TestWithRateLimit_ThrottlesRequests(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"tenants": []any{}})
	})
	c := NewHTTPClient(ts.URL, 5*time.Second, WithRateLimit(10))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.ListTenants(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Burst of 10 at 10 rps: three calls should not wait.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unexpected throttling delay: %s", elapsed)
	}
}

func TestWithRateLimit_CancelledWait(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"tenants": []any{}})
	})
	c := NewHTTPClient(ts.URL, 5*time.Second,
		WithRetryPolicy(retry.Policy{MaxAttempts: 1}), WithRateLimit(0.001))

	// First call consumes the single token.
	if _, err := c.ListTenants(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ListTenants(ctx); err == nil {
		t.Fatal("expected throttled call to fail once the context expires")
	}
}
