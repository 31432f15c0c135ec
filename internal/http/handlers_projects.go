package http

import (
	"net/http"
	"strings"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/schema"
	"budgetbook/internal/services"
)

type projectPayload struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, err := userFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := s.projects.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(ps).Write(w)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, err := userFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in projectPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.projects.Create(r.Context(), userID, sanitizeInput(in.Name), sanitizeInput(in.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(p).Write(w)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
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
	NewJSONResponse().Data(map[string]any{"project": p, "role": pr.Member.Role}).Write(w)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in projectPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.projects.Update(r.Context(), pr.ProjectID, sanitizeInput(in.Name), sanitizeInput(in.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.forgetWorkspace(pr.ProjectID)
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpUpdate)
	NewJSONResponse().Data(p).Write(w)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.projects.Delete(r.Context(), pr.ProjectID); err != nil {
		writeError(w, r, err)
		return
	}
	s.forgetWorkspace(pr.ProjectID)
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpDelete)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ms, err := s.projects.Members(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(ms).Write(w)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.projects.RemoveMember(r.Context(), pr.ProjectID, r.PathValue("user")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessRead)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.workspace(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := m.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(settings).Write(w)
}

type preferencesPayload struct {
	Currency             *string `json:"currency" validate:"omitempty,len=3"`
	DateFormat           *string `json:"date_format" validate:"omitempty,max=32"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	DefaultDatePeriod    *string `json:"default_date_period"`
}

func (p preferencesPayload) toPreferences() schema.Preferences {
	prefs := schema.Preferences{
		DateFormat:           p.DateFormat,
		NotificationsEnabled: p.NotificationsEnabled,
	}
	if p.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*p.Currency))
		prefs.Currency = &currency
	}
	if p.DefaultDatePeriod != nil {
		period := core.Period(*p.DefaultDatePeriod)
		prefs.DefaultDatePeriod = &period
	}
	return prefs
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in preferencesPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.workspace(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := m.UpdatePreferences(r.Context(), in.toPreferences())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.projects.NotifyChanged(r.Context(), pr.ProjectID, applog.OpUpdate)
	NewJSONResponse().Data(settings).Write(w)
}
