// Package report renders the dashboard state as downloadable files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// Download kinds.
const (
	KindReport = "report"
	KindUsers  = "users"
)

// FileName returns the dated download name, e.g. m365-users-2026-03-14.csv.
func FileName(kind, ext string, now time.Time) string {
	return fmt.Sprintf("m365-%s-%s.%s", kind, now.Format("2006-01-02"), ext)
}

// Document is the JSON report snapshot.
type Document struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	RefreshedAt time.Time         `json:"refreshedAt"`
	Status      string            `json:"status"`
	Warning     string            `json:"warning,omitempty"`
	Metrics     models.Metrics    `json:"metrics"`
	Tenants     []TenantSummary   `json:"tenants"`
	Data        models.TenantData `json:"data"`
}

// TenantSummary is one tenant row of a report.
type TenantSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Users    int    `json:"users"`
	Licenses int    `json:"licenses"`
}

func NewDocument(st dashboard.State, now time.Time) Document {
	return Document{
		GeneratedAt: now.UTC(),
		RefreshedAt: st.RefreshedAt,
		Status:      st.Status,
		Warning:     st.Warning,
		Metrics:     st.Data.Metrics,
		Tenants:     summarize(st),
		Data:        st.Data,
	}
}

// Snapshot encodes the state as an indented JSON document.
func Snapshot(st dashboard.State, now time.Time) ([]byte, error) {
	b, err := json.MarshalIndent(NewDocument(st, now), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report snapshot: %w", err)
	}
	return b, nil
}

// UsersCSV writes one row per user under the header User,Email,Status.
func UsersCSV(w io.Writer, users []models.User) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"User", "Email", "Status"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, u := range users {
		if err := cw.Write([]string{u.DisplayName, email(u), status(u)}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func summarize(st dashboard.State) []TenantSummary {
	out := make([]TenantSummary, 0, len(st.Tenants))
	for _, r := range st.Tenants {
		s := TenantSummary{
			ID:      r.Tenant.ID,
			Name:    r.Tenant.Name,
			Success: r.Success,
			Error:   r.Error,
		}
		if r.Data != nil {
			s.Users = r.Data.Metrics.TotalUsers
			s.Licenses = r.Data.Metrics.TotalLicenses
		}
		out = append(out, s)
	}
	return out
}

func email(u models.User) string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

func status(u models.User) string {
	if u.Enabled() {
		return "Active"
	}
	return "Disabled"
}
