// Package models contains the data shapes shared by the m365dash client, service and CLI.
package models

// Tenant is a Microsoft 365 organization registered with the backend. The backend
// assigns ID. ClientSecret is write-only: it is never decoded from a response.
type Tenant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TenantID     string `json:"tenantId"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"-"`
	IsActive     bool   `json:"isActive"`
	LastSync     string `json:"lastSync"`
	UserCount    int    `json:"userCount"`
	LicenseCount int    `json:"licenseCount"`
	HasSecret    bool   `json:"hasSecret"`
}

// TenantInput is the create/update payload for a tenant.
// On update a blank ClientSecret is dropped so the stored secret survives.
type TenantInput struct {
	Name         string `json:"name"                   validate:"required"`
	TenantID     string `json:"tenantId"               validate:"required"`
	ClientID     string `json:"clientId"               validate:"required"`
	ClientSecret string `json:"clientSecret,omitempty" validate:"required"`
	IsActive     *bool  `json:"isActive,omitempty"`
}

// ActiveTenants returns the tenants with IsActive set, preserving order.
func ActiveTenants(tenants []Tenant) []Tenant {
	active := make([]Tenant, 0, len(tenants))
	for _, t := range tenants {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active
}
