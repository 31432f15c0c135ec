// Package schema manages a project's mutable schema: its category collection
// and the custom-field list held in the settings document.
//
// A Manager keeps a local copy of both. Settings mutations read the stored
// document, change one sub-key, write the whole document back and only then
// update the local copy. Category rename/recolor is optimistic: the local copy
// changes first and is rebuilt from storage if the write fails or is denied.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
)

// DefaultCategoryColor is used for the auto-provisioned category.
const DefaultCategoryColor = "#6366f1"

// Store is the subset of the backend the manager needs.
type Store interface {
	store.ProjectStore
	store.CategoryStore
	store.TransactionStore
}

// Direction of a move operation.
type Direction int

const (
	Up Direction = iota
	Down
)

// ParseDirection accepts "up" and "down".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return Up, fmt.Errorf("%w: direction %q", core.ErrOutOfRange, s)
}

// provisioning is shared by every manager in the process so that concurrent
// fetches of an empty project create a single default category.
var provisioning singleflight.Group

type Manager struct {
	store     Store
	projectID string
	logger    *applog.Logger

	mu         sync.Mutex
	loaded     bool
	project    core.Project
	categories []core.Category
}

func New(s Store, projectID string) *Manager {
	return &Manager{
		store:     s,
		projectID: projectID,
		logger:    applog.ForComponent(applog.ComponentSchema),
	}
}

func (m *Manager) ProjectID() string { return m.projectID }

// Load reads the project settings and categories into the local copy.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) error {
	p, err := m.store.GetProject(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Project load failed", err, applog.OpRead, m.projectID)
		return fmt.Errorf("load project: %w", err)
	}
	m.project = p
	if _, err := m.fetchCategoriesLocked(ctx); err != nil {
		return err
	}
	m.loaded = true
	return nil
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	return m.loadLocked(ctx)
}

// Project returns the locally cached project with a copy of its settings.
func (m *Manager) Project(ctx context.Context) (core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return core.Project{}, err
	}
	p := m.project
	p.Settings = p.Settings.Clone()
	return p, nil
}

// Settings returns a copy of the local settings document.
func (m *Manager) Settings(ctx context.Context) (core.Settings, error) {
	p, err := m.Project(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	return p.Settings, nil
}

// Categories returns a copy of the local category list in display order.
func (m *Manager) Categories(ctx context.Context) ([]core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]core.Category(nil), m.categories...), nil
}

// Invalidate drops the local copy; the next read reloads from storage.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.loaded = false
	m.mu.Unlock()
}

// mutateSettings reads the stored document, applies fn to it and writes the
// whole document back. The local copy changes only after the write.
func (m *Manager) mutateSettings(ctx context.Context, op string, fn func(*core.Settings) error) (core.Settings, error) {
	p, err := m.store.GetProject(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Settings read failed", err, op, m.projectID)
		return core.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	next := p.Settings.Clone()
	if err := fn(&next); err != nil {
		return core.Settings{}, err
	}

	n, err := m.store.UpdateSettings(ctx, m.projectID, next)
	if err == nil && n == 0 {
		err = core.ErrDenied
	}
	if err != nil {
		m.logger.Failure(ctx, "Settings write failed", err, op, m.projectID)
		return core.Settings{}, fmt.Errorf("write settings: %w", err)
	}

	p.Settings = next
	m.project = p
	return next.Clone(), nil
}
