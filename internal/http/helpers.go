package http

import (
	"net/http"
	"strings"

	"budgetbook/internal/auth"
	"budgetbook/internal/core"
	"budgetbook/internal/services"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// projectRequest is the authorized caller of a project-scoped route.
type projectRequest struct {
	ProjectID string
	UserID    string
	Member    core.Member
}

// authorize checks that the authenticated user has the access need on the
// project named by the {project} path value.
func (s *Server) authorize(r *http.Request, need services.Access) (projectRequest, error) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		return projectRequest{}, auth.ErrMissingToken
	}
	projectID := r.PathValue("project")
	m, err := s.projects.Authorize(r.Context(), projectID, userID, need)
	if err != nil {
		return projectRequest{}, err
	}
	return projectRequest{ProjectID: projectID, UserID: userID, Member: m}, nil
}

func userFrom(r *http.Request) (string, error) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		return "", auth.ErrMissingToken
	}
	return userID, nil
}
