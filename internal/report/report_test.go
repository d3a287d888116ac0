package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/aggregate"
	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/kiranshivaraju/m365dash/internal/report"
	"github.com/kiranshivaraju/m365dash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func boolPtr(b bool) *bool { return &b }

var now = time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)

func sampleState() dashboard.State {
	data := models.EmptyTenantData()
	data.Users = []models.User{
		{DisplayName: "Ada Lovelace", Mail: "ada@contoso.com", AccountEnabled: boolPtr(true)},
		{DisplayName: "Grace Hopper", UserPrincipalName: "grace@contoso.onmicrosoft.com", AccountEnabled: boolPtr(false)},
		{DisplayName: "Smith, John", Mail: "john@contoso.com"},
	}
	data.Metrics = models.Metrics{TotalUsers: 3, ActiveUsers: 2, DisabledUsers: 1, TotalLicenses: 5, UsedLicenses: 4, AvailableLicenses: 1}
	tenantData := data
	return dashboard.State{
		Status:        dashboard.StatusOK,
		RefreshedAt:   now.Add(-time.Minute),
		ActiveTenants: 2,
		Warning:       "1 of 2 tenants could not be reached",
		Tenants: []aggregate.TenantResult{
			{Tenant: models.Tenant{ID: "a", Name: "Contoso"}, Success: true, Data: &tenantData},
			{Tenant: models.Tenant{ID: "b", Name: "Fabrikam"}, Error: errors.New("timeout").Error()},
		},
		Data: data,
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "m365-users-2026-03-14.csv", report.FileName(report.KindUsers, "csv", now))
	assert.Equal(t, "m365-report-2026-03-14.json", report.FileName(report.KindReport, "json", now))
}

func TestUsersCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.UsersCSV(&buf, sampleState().Data.Users))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"User", "Email", "Status"},
		{"Ada Lovelace", "ada@contoso.com", "Active"},
		{"Grace Hopper", "grace@contoso.onmicrosoft.com", "Disabled"},
		{"Smith, John", "john@contoso.com", "Active"},
	}, rows)
}

func TestUsersCSV_NoUsersWritesHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.UsersCSV(&buf, nil))
	assert.Equal(t, "User,Email,Status\n", buf.String())
}

func TestSnapshot(t *testing.T) {
	b, err := report.Snapshot(sampleState(), now)
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, now, doc.GeneratedAt)
	assert.Equal(t, dashboard.StatusOK, doc.Status)
	assert.Equal(t, 3, doc.Metrics.TotalUsers)
	require.Len(t, doc.Tenants, 2)
	assert.Equal(t, report.TenantSummary{ID: "a", Name: "Contoso", Success: true, Users: 3, Licenses: 5}, doc.Tenants[0])
	assert.Equal(t, "timeout", doc.Tenants[1].Error)
	assert.Len(t, doc.Data.Users, 3)
}

func TestUsersXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.UsersXLSX(&buf, sampleState(), now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Users", "Tenants"}, f.GetSheetList())

	users, err := f.GetRows("Users")
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, []string{"User", "Email", "Status"}, users[0])
	assert.Equal(t, []string{"Grace Hopper", "grace@contoso.onmicrosoft.com", "Disabled"}, users[2])

	total, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "3", total)

	tenants, err := f.GetRows("Tenants")
	require.NoError(t, err)
	require.Len(t, tenants, 3)
	assert.Equal(t, "Fabrikam", tenants[2][0])
	assert.Equal(t, "No", tenants[2][1])
	assert.Equal(t, "timeout", tenants[2][4])
}
