package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/internal/dashboard"
)

// Dashboard is the controller surface the HTTP layer reads. *dashboard.Controller satisfies it.
type Dashboard interface {
	State() dashboard.State
	Refresh(ctx context.Context) dashboard.State
	ForceRefresh(ctx context.Context) dashboard.State
}

// NewGetDashboardHandler returns the last published state, refreshing first
// if nothing has been published yet.
func NewGetDashboardHandler(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := d.State()
		if st.Status == dashboard.StatusPending {
			st = d.Refresh(r.Context())
		}
		response.JSON(w, dashboardResponse(st))
	}
}

// NewRefreshDashboardHandler runs a refresh now. ?force=true drops cached tenant data first.
func NewRefreshDashboardHandler(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := false
		if v := r.URL.Query().Get("force"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "force must be a boolean", nil)
				return
			}
			force = b
		}

		var st dashboard.State
		if force {
			st = d.ForceRefresh(r.Context())
		} else {
			st = d.Refresh(r.Context())
		}
		response.JSON(w, dashboardResponse(st))
	}
}

type dashboardView struct {
	dashboard.State
	Connected bool `json:"connected"`
}

func dashboardResponse(st dashboard.State) dashboardView {
	return dashboardView{State: st, Connected: st.Connected()}
}
