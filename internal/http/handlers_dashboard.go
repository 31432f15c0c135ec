package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	applog "budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/views"
)

// handleDashboard returns the summary, category totals and time series of
// the requested period. Search and category filters do not apply.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode := views.SeriesMode(strings.TrimSpace(r.URL.Query().Get("mode")))
	switch mode {
	case "":
		mode = views.ModeCumulative
	case views.ModeAbsolute, views.ModeCumulative:
	default:
		writeError(w, r, fmt.Errorf("%w: mode %q", errInvalidQuery, mode))
		return
	}

	m, err := s.workspace(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := m.Project(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := ParseViewQuery(r.URL.Query(), p.Settings.DefaultDatePeriod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := m.FetchCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.transactions.List(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d := views.BuildDashboard(txs, views.IndexCategories(cats), p.Settings.Currency, q.Period, q.From, q.To, s.now(), mode)
	NewJSONResponse().Data(d).Write(w)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "csv", "text/csv; charset=utf-8", views.WriteCSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", views.WriteXLSX)
}

// export writes the rows of the current view with one column per custom
// field. The body is rendered in memory first so that a failure can still
// produce an error status.
func (s *Server) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, views.Table) error) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.loadView(r, pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	table := views.BuildTable(v.rows, v.cats, v.project.Settings.CustomFields)
	var buf bytes.Buffer
	if err := write(&buf, table); err != nil {
		writeError(w, r, fmt.Errorf("export %s: %w", ext, err))
		return
	}

	filename := views.ExportFilename(v.project.Name, s.now(), ext)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transactions exported",
		applog.FieldProjectID, pr.ProjectID,
		applog.FieldOperation, applog.OpExport,
		applog.FieldCount, len(table.Rows),
		"format", ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
