package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/m365dash/internal/api/middleware"
	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/internal/metrics"
	"github.com/rs/cors"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil Auth serves every route without authentication. A nil handler answers 501.
type Dependencies struct {
	Auth               *mw.Auth
	RateLimit          *mw.RateLimit
	CORSAllowedOrigins []string

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	GetDashboard     http.HandlerFunc
	RefreshDashboard http.HandlerFunc

	ListTenants   http.HandlerFunc
	CreateTenant  http.HandlerFunc
	UpdateTenant  http.HandlerFunc
	DeleteTenant  http.HandlerFunc
	SyncTenant    http.HandlerFunc
	GetTenantData http.HandlerFunc

	SnapshotReport http.HandlerFunc
	UsersCSV       http.HandlerFunc
	UsersXLSX      http.HandlerFunc
	ListHistory    http.HandlerFunc
	GetHistory     http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(metrics.Instrument)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/dashboard", orNotImplemented(deps.GetDashboard))
		r.Get("/api/v1/tenants", orNotImplemented(deps.ListTenants))
		r.Get("/api/v1/tenants/{id}/data", orNotImplemented(deps.GetTenantData))

		r.Get("/api/v1/reports/snapshot.json", orNotImplemented(deps.SnapshotReport))
		r.Get("/api/v1/reports/users.csv", orNotImplemented(deps.UsersCSV))
		r.Get("/api/v1/reports/users.xlsx", orNotImplemented(deps.UsersXLSX))
		r.Get("/api/v1/reports/history", orNotImplemented(deps.ListHistory))
		r.Get("/api/v1/reports/history/{id}", orNotImplemented(deps.GetHistory))

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/dashboard/refresh", orNotImplemented(deps.RefreshDashboard))

			r.Post("/api/v1/tenants", orNotImplemented(deps.CreateTenant))
			r.Put("/api/v1/tenants/{id}", orNotImplemented(deps.UpdateTenant))
			r.Delete("/api/v1/tenants/{id}", orNotImplemented(deps.DeleteTenant))
			r.Post("/api/v1/tenants/{id}/sync", orNotImplemented(deps.SyncTenant))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not available in this deployment", nil)
	}
}
