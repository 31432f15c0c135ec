package http

import (
	"net/http"
	"sync/atomic"

	"budgetbook/internal/core"
	"budgetbook/internal/services"
	"budgetbook/internal/views"
)

// viewState is the filtered and sorted table of a project for one request.
type viewState struct {
	project core.Project
	cats    views.Categories
	query   views.Query
	rows    []core.Transaction
}

// loadView reads the project's transactions and applies the view query
// string to them.
func (s *Server) loadView(r *http.Request, projectID string) (viewState, error) {
	m, err := s.workspace(r.Context(), projectID)
	if err != nil {
		return viewState{}, err
	}
	p, err := m.Project(r.Context())
	if err != nil {
		return viewState{}, err
	}
	q, err := ParseViewQuery(r.URL.Query(), p.Settings.DefaultDatePeriod)
	if err != nil {
		return viewState{}, err
	}
	cats, err := m.FetchCategories(r.Context())
	if err != nil {
		return viewState{}, err
	}
	txs, err := s.transactions.List(r.Context(), projectID)
	if err != nil {
		return viewState{}, err
	}
	idx := views.IndexCategories(cats)
	return viewState{
		project: p,
		cats:    idx,
		query:   q,
		rows:    views.Apply(txs, idx, q, s.now()),
	}, nil
}

type transactionRow struct {
	core.Transaction
	CategoryName string `json:"category_name"`
}

type transactionList struct {
	Transactions []transactionRow   `json:"transactions"`
	Sort         views.SortState    `json:"sort"`
	Period       core.Period        `json:"period"`
	Summary      core.PeriodSummary `json:"summary"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
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

	rows := make([]transactionRow, len(v.rows))
	for i, tx := range v.rows {
		rows[i] = transactionRow{Transaction: tx, CategoryName: v.cats.Name(tx.CategoryID)}
	}
	NewJSONResponse().Data(transactionList{
		Transactions: rows,
		Sort:         v.query.Sort,
		Period:       v.query.Period,
		Summary:      views.Summarize(v.rows),
	}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Get(r.Context(), pr.ProjectID, r.PathValue("transaction"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

// decodeTransaction reads a transaction body. An absent currency takes the
// project's default.
func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request, projectID string) (services.TransactionInput, error) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		return in, err
	}
	in.Description = sanitizeInput(in.Description)
	if in.Currency == "" {
		m, err := s.workspace(r.Context(), projectID)
		if err != nil {
			return in, err
		}
		settings, err := m.Settings(r.Context())
		if err != nil {
			return in, err
		}
		in.Currency = settings.Currency
	}
	return in, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.decodeTransaction(w, r, pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Create(r.Context(), pr.ProjectID, pr.UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.transactionsWritten, 1)
	NewJSONResponse().Status(http.StatusCreated).Data(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.decodeTransaction(w, r, pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Update(r.Context(), pr.ProjectID, r.PathValue("transaction"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), pr.ProjectID, r.PathValue("transaction")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type bulkDeletePayload struct {
	IDs []string `json:"ids" validate:"required_without=All,dive,required"`
	// All selects every row of the view described by the query string.
	All bool `json:"all"`
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in bulkDeletePayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	sel := views.NewSelection(in.IDs...)
	if in.All {
		v, err := s.loadView(r, pr.ProjectID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sel.SelectAll(v.rows)
	}
	if sel.Len() == 0 {
		NewJSONResponse().Data(map[string]int64{"deleted": 0}).Write(w)
		return
	}

	n, err := s.transactions.DeleteMany(r.Context(), pr.ProjectID, sel.IDs())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]int64{"deleted": n}).Write(w)
}

type navigation struct {
	Current  string `json:"current"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
	Prev     string `json:"prev,omitempty"`
	Next     string `json:"next,omitempty"`
}

// handleNavigation locates a transaction within the current view and returns
// its neighbours, for stepping through rows one at a time.
func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
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

	id := r.PathValue("transaction")
	ids := make([]string, len(v.rows))
	index := -1
	for i, tx := range v.rows {
		ids[i] = tx.ID
		if tx.ID == id {
			index = i
		}
	}
	if index < 0 {
		NotFoundError("transaction is not part of the current view").Write(w)
		return
	}

	nav := views.NavigatorAt(ids, index)
	pos, total := nav.Position()
	NewJSONResponse().Data(navigation{
		Current:  nav.Current(),
		Position: pos,
		Total:    total,
		Prev:     nav.PrevID(),
		Next:     nav.NextID(),
	}).Write(w)
}
