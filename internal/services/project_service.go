package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
)

// Access is the permission an operation needs on a project.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessOwner
)

// ProjectService manages projects and their memberships.
type ProjectService struct {
	store     store.Backend
	publisher Publisher
	logger    *applog.Logger
}

func NewProjectService(s store.Backend) *ProjectService {
	return &ProjectService{
		store:  s,
		logger: applog.ForComponent(applog.ComponentProject),
	}
}

// WithPublisher enables project-sync events.
func (s *ProjectService) WithPublisher(p Publisher) *ProjectService {
	s.publisher = p
	return s
}

// NotifyChanged announces a change to the project's exported data, such as
// a category rename or a custom field edit.
func (s *ProjectService) NotifyChanged(ctx context.Context, projectID, action string) {
	notify(ctx, s.publisher, s.logger, amqp.NewProjectSyncEvent(projectID, action))
}

// Create inserts the project with default settings and makes ownerID its
// owner. If the membership cannot be written the project is removed again.
func (s *ProjectService) Create(ctx context.Context, ownerID, name, description string) (core.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Project{}, core.ErrEmptyName
	}

	p, err := s.store.CreateProject(ctx, core.Project{
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
		Settings:    core.DefaultSettings(),
	})
	if err != nil {
		s.logger.Failure(ctx, "Failed to create project", err, applog.OpCreate, "")
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}

	if err := s.store.AddMember(ctx, core.Member{ProjectID: p.ID, UserID: ownerID, Role: core.RoleOwner}); err != nil {
		s.logger.Failure(ctx, "Failed to add project owner", err, applog.OpCreate, p.ID)
		if _, derr := s.store.DeleteProject(ctx, p.ID); derr != nil {
			s.logger.Failure(ctx, "Failed to remove project without owner", derr, applog.OpDelete, p.ID)
		}
		return core.Project{}, fmt.Errorf("add owner: %w", err)
	}

	s.logger.InfoContext(ctx, "Project created",
		applog.FieldProjectID, p.ID,
		applog.FieldUserID, ownerID)
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]core.Project, error) {
	ps, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return ps, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (core.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return core.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// Update changes name and description.
func (s *ProjectService) Update(ctx context.Context, id, name, description string) (core.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Project{}, core.ErrEmptyName
	}
	n, err := s.store.UpdateProject(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		s.logger.Failure(ctx, "Failed to update project", err, applog.OpUpdate, id)
		return core.Project{}, fmt.Errorf("update project: %w", err)
	}
	if n == 0 {
		return core.Project{}, core.ErrDenied
	}
	return s.Get(ctx, id)
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	n, err := s.store.DeleteProject(ctx, id)
	if err != nil {
		s.logger.Failure(ctx, "Failed to delete project", err, applog.OpDelete, id)
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return core.ErrDenied
	}
	s.logger.InfoContext(ctx, "Project deleted", applog.FieldProjectID, id)
	return nil
}

func (s *ProjectService) Members(ctx context.Context, projectID string) ([]core.Member, error) {
	ms, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return ms, nil
}

// RemoveMember drops a membership. The owner cannot be removed.
func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID string) error {
	m, err := s.store.GetMember(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if m.Role == core.RoleOwner {
		return fmt.Errorf("remove owner: %w", core.ErrForbidden)
	}
	n, err := s.store.RemoveMember(ctx, projectID, userID)
	if err != nil {
		s.logger.Failure(ctx, "Failed to remove member", err, applog.OpDelete, projectID)
		return fmt.Errorf("remove member: %w", err)
	}
	if n == 0 {
		return core.ErrDenied
	}
	return nil
}

// Authorize returns the user's membership if it grants the requested access.
// Viewers are read-only; owner access is reserved to the owner role.
func (s *ProjectService) Authorize(ctx context.Context, projectID, userID string, need Access) (core.Member, error) {
	m, err := s.store.GetMember(ctx, projectID, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Member{}, fmt.Errorf("user %s is not a member of %s: %w", userID, projectID, core.ErrForbidden)
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}

	switch need {
	case AccessWrite:
		if !m.Role.CanWrite() {
			return core.Member{}, fmt.Errorf("role %s is read-only: %w", m.Role, core.ErrForbidden)
		}
	case AccessOwner:
		if m.Role != core.RoleOwner {
			return core.Member{}, fmt.Errorf("owner access required: %w", core.ErrForbidden)
		}
	}
	return m, nil
}
