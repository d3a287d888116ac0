package models

// TenantData is the live directory snapshot of a tenant as returned by
// GET /tenants/{id}/data, or the merge of several of them.
type TenantData struct {
	Users    []User    `json:"users"`
	Groups   []Group   `json:"groups"`
	Sites    []Site    `json:"sites"`
	Licenses []License `json:"licenses"`
	Metrics  Metrics   `json:"metrics"`
}

// EmptyTenantData returns zero metrics with non-nil lists so it encodes as [] rather than null.
func EmptyTenantData() TenantData {
	return TenantData{
		Users:    []User{},
		Groups:   []Group{},
		Sites:    []Site{},
		Licenses: []License{},
	}
}

type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail,omitempty"`
	// AccountEnabled is nil when Graph omitted the field; the backend counts that as enabled.
	AccountEnabled *bool `json:"accountEnabled,omitempty"`
}

// Enabled treats a missing accountEnabled flag as enabled.
func (u User) Enabled() bool {
	return u.AccountEnabled == nil || *u.AccountEnabled
}

type Group struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Mail        string   `json:"mail,omitempty"`
	GroupTypes  []string `json:"groupTypes,omitempty"`
}

type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

type License struct {
	SkuID         string       `json:"skuId"`
	SkuPartNumber string       `json:"skuPartNumber"`
	ConsumedUnits int          `json:"consumedUnits"`
	PrepaidUnits  PrepaidUnits `json:"prepaidUnits"`
}

type PrepaidUnits struct {
	Enabled   int `json:"enabled"`
	Suspended int `json:"suspended"`
	Warning   int `json:"warning"`
}
