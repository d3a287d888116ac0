package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/kiranshivaraju/m365dash/internal/report"
	"github.com/kiranshivaraju/m365dash/internal/store"
	"github.com/kiranshivaraju/m365dash/pkg/models"
)

const maxHistoryLimit = 500

// SnapshotReader is the history part of store.Store.
type SnapshotReader interface {
	ListSnapshots(ctx context.Context, limit int) ([]*models.Snapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.Snapshot, error)
}

// Reports serves downloads of the current dashboard state and of stored snapshots.
type Reports struct {
	dashboard Dashboard
	now       func() time.Time
}

func NewReports(d Dashboard, now func() time.Time) *Reports {
	if now == nil {
		now = time.Now
	}
	return &Reports{dashboard: d, now: now}
}

// current is the published state, refreshed first if nothing was published yet.
func (h *Reports) current(r *http.Request) dashboard.State {
	st := h.dashboard.State()
	if st.Status == dashboard.StatusPending {
		st = h.dashboard.Refresh(r.Context())
	}
	return st
}

// Snapshot serves GET /api/v1/reports/snapshot.json.
func (h *Reports) Snapshot(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	b, err := report.Snapshot(h.current(r), now)
	if err != nil {
		slog.Error("building report snapshot failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build report", nil)
		return
	}
	response.Download(w, "application/json", report.FileName(report.KindReport, "json", now), b)
}

// UsersCSV serves GET /api/v1/reports/users.csv.
func (h *Reports) UsersCSV(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	var buf bytes.Buffer
	if err := report.UsersCSV(&buf, h.current(r).Data.Users); err != nil {
		slog.Error("building users csv failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build report", nil)
		return
	}
	response.Download(w, "text/csv; charset=utf-8", report.FileName(report.KindUsers, "csv", now), buf.Bytes())
}

// UsersXLSX serves GET /api/v1/reports/users.xlsx.
func (h *Reports) UsersXLSX(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	var buf bytes.Buffer
	if err := report.UsersXLSX(&buf, h.current(r), now); err != nil {
		slog.Error("building users workbook failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build report", nil)
		return
	}
	response.Download(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		report.FileName(report.KindUsers, "xlsx", now), buf.Bytes())
}

// NewListHistoryHandler returns GET /api/v1/reports/history?limit=N, newest first.
func NewListHistoryHandler(s SnapshotReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.DefaultSnapshotLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxHistoryLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit), nil)
				return
			}
			limit = n
		}

		snaps, err := s.ListSnapshots(r.Context(), limit)
		if err != nil {
			slog.Error("listing snapshots failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list history", nil)
			return
		}
		response.List(w, snaps, response.ListMeta{Count: len(snaps), Limit: limit})
	}
}

// NewGetHistoryHandler returns GET /api/v1/reports/history/{id}, the stored snapshot with its payload.
func NewGetHistoryHandler(s SnapshotReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be a UUID", nil)
			return
		}

		snap, err := s.GetSnapshot(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
			return
		}
		if err != nil {
			slog.Error("reading snapshot failed", "snapshot_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read snapshot", nil)
			return
		}
		response.JSON(w, snap)
	}
}
