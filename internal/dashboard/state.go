package dashboard

import (
	"time"

	"github.com/kiranshivaraju/m365dash/internal/aggregate"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// Refresh outcomes, also used as the refresh metric label.
const (
	StatusOK       = "ok"
	StatusEmpty    = "empty"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
	StatusPending  = "pending"
)

// State is everything the dashboard renders after one refresh.
type State struct {
	Status          string                   `json:"status"`
	RefreshedAt     time.Time                `json:"refreshedAt"`
	ConnectionError string                   `json:"connectionError,omitempty"`
	Warning         string                   `json:"warning,omitempty"`
	ActiveTenants   int                      `json:"activeTenants"`
	Tenants         []aggregate.TenantResult `json:"tenants"`
	Data            models.TenantData        `json:"data"`
	Charts          Charts                   `json:"charts"`
}

// Connected is false only when the health probe failed.
func (s State) Connected() bool { return s.Status != StatusOffline }

// ChartPoint is one labelled value of a chart series.
type ChartPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Charts are the series derived from the aggregated data.
type Charts struct {
	UserStatus       []ChartPoint `json:"userStatus"`
	LicenseStatus    []ChartPoint `json:"licenseStatus"`
	UsersByTenant    []ChartPoint `json:"usersByTenant"`
	LicensesByTenant []ChartPoint `json:"licensesByTenant"`
}

func buildCharts(data models.TenantData, tenants []aggregate.TenantResult) Charts {
	m := data.Metrics
	c := Charts{
		UserStatus: []ChartPoint{
			{Label: "Active", Value: m.UserStatus.Active},
			{Label: "Disabled", Value: m.UserStatus.Disabled},
		},
		LicenseStatus: []ChartPoint{
			{Label: "Used", Value: m.LicenseStatus.Used},
			{Label: "Available", Value: m.LicenseStatus.Available},
		},
		UsersByTenant:    []ChartPoint{},
		LicensesByTenant: []ChartPoint{},
	}
	for _, t := range tenants {
		if !t.Success || t.Data == nil {
			continue
		}
		c.UsersByTenant = append(c.UsersByTenant, ChartPoint{Label: t.Tenant.Name, Value: t.Data.Metrics.TotalUsers})
		c.LicensesByTenant = append(c.LicensesByTenant, ChartPoint{Label: t.Tenant.Name, Value: t.Data.Metrics.TotalLicenses})
	}
	return c
}

// zeroState renders all-zero metrics so the dashboard keeps drawing when no data is available.
func zeroState(status string, at time.Time) State {
	data := models.EmptyTenantData()
	return State{
		Status:      status,
		RefreshedAt: at,
		Tenants:     []aggregate.TenantResult{},
		Data:        data,
		Charts:      buildCharts(data, nil),
	}
}
