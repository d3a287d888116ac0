package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// TenantBackend is the tenant CRUD surface of backend.Client.
type TenantBackend interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	CreateTenant(ctx context.Context, in models.TenantInput) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, id string, in models.TenantInput) (*models.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
}

// TenantSyncer triggers syncs and reports their status. *dashboard.Controller satisfies it.
type TenantSyncer interface {
	SyncTenant(ctx context.Context, id string) (*models.Tenant, error)
	SyncStatuses() map[string]models.SyncStatus
}

// TenantDataSource reads one tenant's data. *aggregate.Aggregator satisfies it through its cache.
type TenantDataSource interface {
	TenantData(ctx context.Context, id string) (*models.TenantData, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type tenantView struct {
	models.Tenant
	SyncStatus models.SyncStatus `json:"syncStatus"`
}

// NewListTenantsHandler returns GET /api/v1/tenants with each tenant's sync status.
func NewListTenantsHandler(b TenantBackend, s TenantSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := b.ListTenants(r.Context())
		if err != nil {
			writeBackendError(w, r, err)
			return
		}

		statuses := s.SyncStatuses()
		out := make([]tenantView, 0, len(tenants))
		for _, t := range tenants {
			st, ok := statuses[t.ID]
			if !ok {
				st = models.SyncIdle
			}
			out = append(out, tenantView{Tenant: t, SyncStatus: st})
		}
		response.JSON(w, out)
	}
}

// NewCreateTenantHandler returns POST /api/v1/tenants.
func NewCreateTenantHandler(b TenantBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeTenantInput(w, r)
		if !ok {
			return
		}
		if err := validate.Struct(in); err != nil {
			writeValidationError(w, err)
			return
		}

		t, err := b.CreateTenant(r.Context(), in)
		if err != nil {
			writeBackendError(w, r, err)
			return
		}
		response.Created(w, t)
	}
}

// NewUpdateTenantHandler returns PUT /api/v1/tenants/{id}. A blank clientSecret keeps the stored one.
func NewUpdateTenantHandler(b TenantBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		in, ok := decodeTenantInput(w, r)
		if !ok {
			return
		}
		if err := validate.StructExcept(in, "ClientSecret"); err != nil {
			writeValidationError(w, err)
			return
		}

		t, err := b.UpdateTenant(r.Context(), id, in)
		if err != nil {
			writeBackendError(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewDeleteTenantHandler returns DELETE /api/v1/tenants/{id}.
func NewDeleteTenantHandler(b TenantBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := b.DeleteTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeBackendError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewSyncTenantHandler returns POST /api/v1/tenants/{id}/sync.
func NewSyncTenantHandler(s TenantSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := s.SyncTenant(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeBackendError(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewTenantDataHandler returns GET /api/v1/tenants/{id}/data.
func NewTenantDataHandler(src TenantDataSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := src.TenantData(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeBackendError(w, r, err)
			return
		}
		response.JSON(w, data)
	}
}

func decodeTenantInput(w http.ResponseWriter, r *http.Request) (models.TenantInput, bool) {
	var in models.TenantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return in, false
	}
	in.Name = strings.TrimSpace(in.Name)
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ClientSecret = strings.TrimSpace(in.ClientSecret)
	return in, true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid tenant", fields)
}
