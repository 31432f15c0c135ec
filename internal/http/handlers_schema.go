package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/schema"
	"budgetbook/internal/services"
)

// withWorkspace authorizes the request and resolves the project's schema
// manager.
func (s *Server) withWorkspace(w http.ResponseWriter, r *http.Request, need services.Access) (projectRequest, *schema.Manager, bool) {
	pr, err := s.authorize(r, need)
	if err != nil {
		writeError(w, r, err)
		return pr, nil, false
	}
	m, err := s.workspace(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return pr, nil, false
	}
	return pr, m, true
}

type movePayload struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

func decodeMove(w http.ResponseWriter, r *http.Request) (int, schema.Direction, error) {
	index, err := parseIndex(r, "index")
	if err != nil {
		return 0, schema.Up, err
	}
	var in movePayload
	if err := decodeJSON(w, r, &in); err != nil {
		return 0, schema.Up, err
	}
	dir, err := schema.ParseDirection(in.Direction)
	return index, dir, err
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.withWorkspace(w, r, services.AccessRead)
	if !ok {
		return
	}
	cats, err := m.FetchCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(cats).Write(w)
}

type categoryPayload struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	var in categoryPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	color := in.Color
	if color == "" {
		color = schema.DefaultCategoryColor
	}
	c, err := m.AddCategory(r.Context(), sanitizeInput(in.Name), color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpCreate)
	NewJSONResponse().Status(http.StatusCreated).Data(c).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	var patch core.CategoryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Name == nil && patch.Color == nil {
		writeError(w, r, fmt.Errorf("%w: nothing to update", errBadRequest))
		return
	}
	c, err := m.UpdateCategory(r.Context(), r.PathValue("category"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpUpdate)
	NewJSONResponse().Data(c).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	if err := m.DeleteCategory(r.Context(), r.PathValue("category")); err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpDelete)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMoveCategory(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	index, dir, err := decodeMove(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := m.MoveCategory(r.Context(), index, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(cats).Write(w)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.withWorkspace(w, r, services.AccessRead)
	if !ok {
		return
	}
	settings, err := m.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(settings.CustomFields).Write(w)
}

type fieldPayload struct {
	Name    string   `json:"name" validate:"required,max=100"`
	Type    string   `json:"type" validate:"omitempty,oneof=text number date select"`
	Options []string `json:"options" validate:"omitempty,dive,max=200"`
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	var in fieldPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	fieldType := core.FieldType(in.Type)
	if fieldType == "" {
		fieldType = core.FieldText
	}
	f, err := m.AddField(r.Context(), sanitizeInput(in.Name), fieldType, in.Options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpCreate)
	NewJSONResponse().Status(http.StatusCreated).Data(f).Write(w)
}

// handleRenameField returns the migration report. A sweep that stopped
// partway answers 500 with the report so the caller can see how far it got.
func (s *Server) handleRenameField(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	var in fieldPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := m.RenameField(r.Context(), r.PathValue("field"), schema.FieldEdit{
		Name:    sanitizeInput(in.Name),
		Type:    core.FieldType(in.Type),
		Options: in.Options,
	})
	if errors.Is(err, core.ErrPartialMigration) {
		s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpMigrate)
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Field rename left partially migrated",
			applog.FieldError, err,
			applog.FieldProjectID, pr.ProjectID)
		NewJSONResponse().
			Status(http.StatusInternalServerError).
			Data(errorBody{Error: err.Error(), Detail: report}).
			Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpRename)
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	if err := m.DeleteField(r.Context(), r.PathValue("field")); err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpDelete)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMoveField(w http.ResponseWriter, r *http.Request) {
	pr, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	index, dir, err := decodeMove(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := m.MoveField(r.Context(), index, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpMove)
	NewJSONResponse().Data(fields).Write(w)
}

type valuesPayload struct {
	Text string `json:"text"`
}

func (s *Server) handleImportFieldValues(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.withWorkspace(w, r, services.AccessWrite)
	if !ok {
		return
	}
	var in valuesPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	values, err := m.ImportFieldValues(r.Context(), r.PathValue("field"), in.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(values).Write(w)
}

func (s *Server) handleFieldSuggestions(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.withWorkspace(w, r, services.AccessRead)
	if !ok {
		return
	}
	values, err := m.FieldValueSuggestions(r.Context(), r.PathValue("field"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	prefix := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("prefix")))
	if prefix != "" {
		filtered := values[:0]
		for _, v := range values {
			if strings.HasPrefix(strings.ToLower(v), prefix) {
				filtered = append(filtered, v)
			}
		}
		values = filtered
	}
	NewJSONResponse().Data(values).Write(w)
}
