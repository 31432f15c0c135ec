package http

import (
	"net/http"
	"strconv"

	"budgetbook/internal/cashcount"
	"budgetbook/internal/core"
	"budgetbook/internal/services"
)

type cashCountView struct {
	cashcount.Worksheet
	Lines        []cashcount.Line `json:"lines"`
	CashTotal    core.Money       `json:"cash_total"`
	EntriesTotal core.Money       `json:"entries_total"`
	Total        core.Money       `json:"total"`
}

func newCashCountView(ws cashcount.Worksheet) cashCountView {
	return cashCountView{
		Worksheet:    ws,
		Lines:        ws.Lines(),
		CashTotal:    ws.CashTotal(),
		EntriesTotal: ws.EntriesTotal(),
		Total:        ws.Total(),
	}
}

// editCashCount loads today's worksheet, applies edit and saves it.
func (s *Server) editCashCount(w http.ResponseWriter, r *http.Request, edit func(*cashcount.Worksheet) error) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	day := core.DateOf(s.now())
	ws, err := s.cash.Load(r.Context(), pr.ProjectID, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := edit(&ws); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.cash.Save(r.Context(), ws); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(newCashCountView(ws)).Write(w)
}

func (s *Server) handleGetCashCount(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := s.cash.Load(r.Context(), pr.ProjectID, core.DateOf(s.now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"worksheet":     newCashCountView(ws),
		"denominations": cashcount.DefaultDenominations,
	}).Write(w)
}

type countPayload struct {
	Count int `json:"count" validate:"gte=0"`
}

func (s *Server) handleSetDenomination(w http.ResponseWriter, r *http.Request) {
	cents, err := strconv.ParseInt(r.PathValue("cents"), 10, 64)
	if err != nil {
		writeError(w, r, cashcount.ErrInvalidDenomination)
		return
	}
	var in countPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s.editCashCount(w, r, func(ws *cashcount.Worksheet) error {
		return ws.SetCount(cents, in.Count)
	})
}

type entryPayload struct {
	Name   string     `json:"name" validate:"max=100"`
	Amount core.Money `json:"amount"`
}

func (s *Server) handleAddCashEntry(w http.ResponseWriter, r *http.Request) {
	var in entryPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s.editCashCount(w, r, func(ws *cashcount.Worksheet) error {
		return ws.AddEntry(sanitizeInput(in.Name), in.Amount)
	})
}

func (s *Server) handleRemoveCashEntry(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.editCashCount(w, r, func(ws *cashcount.Worksheet) error {
		return ws.RemoveEntry(index)
	})
}

func (s *Server) handleResetCashCount(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.cash.Reset(r.Context(), pr.ProjectID, core.DateOf(s.now())); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
