package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
)

// FetchCategories reloads the category list from storage. A project without
// categories gets a default one provisioned first.
func (m *Manager) FetchCategories(ctx context.Context) ([]core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cats, err := m.fetchCategoriesLocked(ctx)
	if err != nil {
		return nil, err
	}
	return append([]core.Category(nil), cats...), nil
}

func (m *Manager) fetchCategoriesLocked(ctx context.Context) ([]core.Category, error) {
	cats, err := m.store.ListCategories(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Category fetch failed", err, applog.OpList, m.projectID)
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		cats, err = m.provisionDefault(ctx)
		if err != nil {
			return nil, err
		}
	}
	m.categories = cats
	return cats, nil
}

func (m *Manager) provisionDefault(ctx context.Context) ([]core.Category, error) {
	v, err, _ := provisioning.Do(m.projectID, func() (any, error) {
		// Re-check inside the flight: another caller may have finished already.
		cats, err := m.store.ListCategories(ctx, m.projectID)
		if err != nil {
			return nil, err
		}
		if len(cats) > 0 {
			return cats, nil
		}
		created, err := m.store.CreateCategory(ctx, core.Category{
			ProjectID: m.projectID,
			Name:      core.DefaultCategoryName,
			Color:     DefaultCategoryColor,
			Order:     0,
		})
		if err != nil {
			return nil, err
		}
		m.logger.InfoContext(ctx, "Default category provisioned",
			applog.FieldProjectID, m.projectID,
			applog.FieldCategoryID, created.ID)
		return []core.Category{created}, nil
	})
	if err != nil {
		m.logger.Failure(ctx, "Default category provisioning failed", err, applog.OpProvision, m.projectID)
		return nil, fmt.Errorf("provision default category: %w", err)
	}
	return append([]core.Category(nil), v.([]core.Category)...), nil
}

// AddCategory appends a category with order equal to the current count.
func (m *Manager) AddCategory(ctx context.Context, name, color string) (core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return core.Category{}, err
	}

	c := core.Category{
		ProjectID: m.projectID,
		Name:      strings.TrimSpace(name),
		Color:     color,
		Order:     len(m.categories),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := m.store.CreateCategory(ctx, c)
	if err != nil {
		m.logger.Failure(ctx, "Category create failed", err, applog.OpCreate, m.projectID)
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	m.categories = append(m.categories, created)
	return created, nil
}

// UpdateCategory renames and/or recolors a category. The local copy is
// updated before the write; on error or denial it is rebuilt from storage.
func (m *Manager) UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) (core.Category, error) {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return core.Category{}, core.ErrEmptyName
		}
		patch.Name = &trimmed
	}
	if patch.Color != nil {
		if err := core.ValidateColor(*patch.Color); err != nil {
			return core.Category{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return core.Category{}, err
	}

	idx := m.categoryIndex(id)
	if idx < 0 {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if patch.Name != nil {
		m.categories[idx].Name = *patch.Name
	}
	if patch.Color != nil {
		m.categories[idx].Color = *patch.Color
	}
	optimistic := m.categories[idx]

	n, err := m.store.UpdateCategory(ctx, m.projectID, id, patch)
	if err == nil && n == 0 {
		err = core.ErrDenied
	}
	if err != nil {
		m.logger.Failure(ctx, "Category update failed, reconciling", err, applog.OpUpdate, m.projectID,
			applog.FieldCategoryID, id)
		m.reconcileLocked(ctx)
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	return optimistic, nil
}

// MoveCategory swaps the order of the category at index with its neighbour.
// When both share the same order only the moving category is renumbered.
// On any failure the local copy is rebuilt from storage.
func (m *Manager) MoveCategory(ctx context.Context, index int, dir Direction) ([]core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	neighbour := index - 1
	if dir == Down {
		neighbour = index + 1
	}
	if index < 0 || index >= len(m.categories) || neighbour < 0 || neighbour >= len(m.categories) {
		return nil, fmt.Errorf("move category %d: %w", index, core.ErrOutOfRange)
	}

	moving, other := m.categories[index], m.categories[neighbour]
	if err := m.swapOrders(ctx, moving, other, dir); err != nil {
		m.logger.Failure(ctx, "Category move failed, reconciling", err, applog.OpMove, m.projectID,
			applog.FieldCategoryID, moving.ID)
		m.reconcileLocked(ctx)
		return nil, fmt.Errorf("move category: %w", err)
	}

	sortCategories(m.categories)
	return append([]core.Category(nil), m.categories...), nil
}

func (m *Manager) swapOrders(ctx context.Context, moving, other core.Category, dir Direction) error {
	if moving.Order == other.Order {
		next := other.Order - 1
		if dir == Down {
			next = other.Order + 1
		}
		if err := m.setOrder(ctx, moving.ID, next); err != nil {
			return err
		}
		m.setLocalOrder(moving.ID, next)
		return nil
	}

	if err := m.setOrder(ctx, moving.ID, other.Order); err != nil {
		return err
	}
	if err := m.setOrder(ctx, other.ID, moving.Order); err != nil {
		// Put the first category back so storage never keeps half a swap.
		if restoreErr := m.setOrder(ctx, moving.ID, moving.Order); restoreErr != nil {
			m.logger.Failure(ctx, "Category order restore failed", restoreErr, applog.OpReconcile, m.projectID,
				applog.FieldCategoryID, moving.ID)
		}
		return err
	}
	m.setLocalOrder(moving.ID, other.Order)
	m.setLocalOrder(other.ID, moving.Order)
	return nil
}

func (m *Manager) setOrder(ctx context.Context, id string, order int) error {
	n, err := m.store.SetCategoryOrder(ctx, m.projectID, id, order)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrDenied
	}
	return nil
}

// DeleteCategory removes a category. Transactions that reference it are left
// as they are and resolve to the uncategorized label.
func (m *Manager) DeleteCategory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}

	n, err := m.store.DeleteCategory(ctx, m.projectID, id)
	if err == nil && n == 0 {
		err = core.ErrDenied
	}
	if err != nil {
		m.logger.Failure(ctx, "Category delete failed, reconciling", err, applog.OpDelete, m.projectID,
			applog.FieldCategoryID, id)
		m.reconcileLocked(ctx)
		return fmt.Errorf("delete category: %w", err)
	}

	if idx := m.categoryIndex(id); idx >= 0 {
		m.categories = append(m.categories[:idx], m.categories[idx+1:]...)
	}
	return nil
}

// reconcileLocked discards the local category list and reloads it.
func (m *Manager) reconcileLocked(ctx context.Context) {
	cats, err := m.store.ListCategories(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Category reconcile failed", err, applog.OpReconcile, m.projectID)
		m.loaded = false
		return
	}
	m.categories = cats
}

func (m *Manager) categoryIndex(id string) int {
	for i, c := range m.categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) setLocalOrder(id string, order int) {
	if idx := m.categoryIndex(id); idx >= 0 {
		m.categories[idx].Order = order
	}
}

func sortCategories(cats []core.Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Order != cats[j].Order {
			return cats[i].Order < cats[j].Order
		}
		return cats[i].CreatedAt.Before(cats[j].CreatedAt)
	})
}
