package models

// Metrics holds the user and license counters of one tenant or of an aggregate.
// ActiveUsers+DisabledUsers == TotalUsers and UsedLicenses+AvailableLicenses == TotalLicenses.
type Metrics struct {
	TotalUsers        int           `json:"totalUsers"`
	ActiveUsers       int           `json:"activeUsers"`
	DisabledUsers     int           `json:"disabledUsers"`
	TotalLicenses     int           `json:"totalLicenses"`
	UsedLicenses      int           `json:"usedLicenses"`
	AvailableLicenses int           `json:"availableLicenses"`
	UserStatus        UserStatus    `json:"userStatus"`
	LicenseStatus     LicenseStatus `json:"licenseStatus"`
}

type UserStatus struct {
	Active   int `json:"active"`
	Disabled int `json:"disabled"`
}

type LicenseStatus struct {
	Used      int `json:"used"`
	Available int `json:"available"`
}

// Add sums every counter of o into m.
func (m *Metrics) Add(o Metrics) {
	m.TotalUsers += o.TotalUsers
	m.ActiveUsers += o.ActiveUsers
	m.DisabledUsers += o.DisabledUsers
	m.TotalLicenses += o.TotalLicenses
	m.UsedLicenses += o.UsedLicenses
	m.AvailableLicenses += o.AvailableLicenses
	m.UserStatus.Active += o.UserStatus.Active
	m.UserStatus.Disabled += o.UserStatus.Disabled
	m.LicenseStatus.Used += o.LicenseStatus.Used
	m.LicenseStatus.Available += o.LicenseStatus.Available
}

// Consistent reports whether both partition invariants hold.
func (m Metrics) Consistent() bool {
	return m.ActiveUsers+m.DisabledUsers == m.TotalUsers &&
		m.UsedLicenses+m.AvailableLicenses == m.TotalLicenses
}
