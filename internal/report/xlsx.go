package report

import (
	"fmt"
	"io"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetUsers   = "Users"
	sheetTenants = "Tenants"
)

// UsersXLSX writes a workbook with Summary, Users and Tenants sheets.
func UsersXLSX(w io.Writer, st dashboard.State, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetUsers, sheetTenants} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	m := st.Data.Metrics
	summary := [][]any{
		{"Metric", "Value"},
		{"Generated", now.UTC().Format(time.RFC3339)},
		{"Total users", m.TotalUsers},
		{"Active users", m.ActiveUsers},
		{"Disabled users", m.DisabledUsers},
		{"Total licenses", m.TotalLicenses},
		{"Used licenses", m.UsedLicenses},
		{"Available licenses", m.AvailableLicenses},
		{"Active tenants", st.ActiveTenants},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}

	users := [][]any{{"User", "Email", "Status"}}
	for _, u := range st.Data.Users {
		users = append(users, []any{u.DisplayName, email(u), status(u)})
	}
	if err := writeRows(f, sheetUsers, users); err != nil {
		return err
	}

	tenants := [][]any{{"Tenant", "Reachable", "Users", "Licenses", "Error"}}
	for _, s := range summarize(st) {
		reachable := "No"
		if s.Success {
			reachable = "Yes"
		}
		tenants = append(tenants, []any{s.Name, reachable, s.Users, s.Licenses, s.Error})
	}
	if err := writeRows(f, sheetTenants, tenants); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
