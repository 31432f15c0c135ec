package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbook/internal/core"
	"budgetbook/internal/store/memory"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps the memory store and fails selected calls.
type faultyStore struct {
	*memory.Store

	mu            sync.Mutex
	failOrderCall int // 1-based SetCategoryOrder call to fail, 0 = never
	orderCalls    int
	denyCategory  bool
	denySettings  bool
	failDataCall  int // 1-based UpdateCustomData call to fail, 0 = never
	dataCalls     int
	createCalls   int
}

func (f *faultyStore) SetCategoryOrder(ctx context.Context, projectID, id string, order int) (int64, error) {
	f.mu.Lock()
	f.orderCalls++
	fail := f.orderCalls == f.failOrderCall
	f.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return f.Store.SetCategoryOrder(ctx, projectID, id, order)
}

func (f *faultyStore) UpdateCategory(ctx context.Context, projectID, id string, patch core.CategoryPatch) (int64, error) {
	if f.denyCategory {
		return 0, nil
	}
	return f.Store.UpdateCategory(ctx, projectID, id, patch)
}

func (f *faultyStore) UpdateSettings(ctx context.Context, id string, s core.Settings) (int64, error) {
	if f.denySettings {
		return 0, nil
	}
	return f.Store.UpdateSettings(ctx, id, s)
}

func (f *faultyStore) UpdateCustomData(ctx context.Context, projectID, id string, data core.CustomData) (int64, error) {
	f.mu.Lock()
	f.dataCalls++
	fail := f.dataCalls == f.failDataCall
	f.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return f.Store.UpdateCustomData(ctx, projectID, id, data)
}

func (f *faultyStore) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.Store.CreateCategory(ctx, c)
}

func setup(t *testing.T) (*faultyStore, string) {
	t.Helper()
	fs := &faultyStore{Store: memory.New()}
	p, err := fs.CreateProject(context.Background(), core.Project{
		Name:     "Household",
		OwnerID:  "owner",
		Settings: core.DefaultSettings(),
	})
	require.NoError(t, err)
	return fs, p.ID
}

func seedCategories(t *testing.T, fs *faultyStore, projectID string, names ...string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range names {
		_, err := fs.Store.CreateCategory(context.Background(), core.Category{
			ProjectID: projectID,
			Name:      n,
			Color:     "#112233",
			Order:     i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func names(cats []core.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Name
	}
	return out
}

func orders(cats []core.Category) []int {
	out := make([]int, len(cats))
	for i, c := range cats {
		out[i] = c.Order
	}
	return out
}

func TestFetchCategories_ProvisionsDefaultOnce(t *testing.T) {
	fs, pid := setup(t)
	ctx := context.Background()
	m := New(fs, pid)

	cats, err := m.FetchCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, core.DefaultCategoryName, cats[0].Name)
	assert.Equal(t, 0, cats[0].Order)

	cats, err = m.FetchCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
	assert.Equal(t, 1, fs.createCalls)
}

func TestFetchCategories_ConcurrentManagersShareProvisioning(t *testing.T) {
	fs, pid := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := New(fs, pid).FetchCategories(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := fs.ListCategories(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestAddCategory_OrderIsCurrentCount(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "A", "B")
	m := New(fs, pid)

	c, err := m.AddCategory(context.Background(), "  Travel ", "#00ff00")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Order)
	assert.Equal(t, "Travel", c.Name)

	_, err = m.AddCategory(context.Background(), "Bad", "green")
	assert.ErrorIs(t, err, core.ErrInvalidColor)
}

func TestUpdateCategory_DeniedWriteReconciles(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "Food")
	ctx := context.Background()
	m := New(fs, pid)
	cats, err := m.Categories(ctx)
	require.NoError(t, err)

	fs.denyCategory = true
	name := "Groceries"
	_, err = m.UpdateCategory(ctx, cats[0].ID, core.CategoryPatch{Name: &name})
	require.ErrorIs(t, err, core.ErrDenied)

	local, err := m.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food"}, names(local))

	fs.denyCategory = false
	color := "#abcdef"
	updated, err := m.UpdateCategory(ctx, cats[0].ID, core.CategoryPatch{Name: &name, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Name)
	assert.Equal(t, "#abcdef", updated.Color)

	_, err = m.UpdateCategory(ctx, "missing", core.CategoryPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMoveCategory_SwapsOrders(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "A", "B", "C")
	ctx := context.Background()
	m := New(fs, pid)

	cats, err := m.MoveCategory(ctx, 1, Up)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, names(cats))
	assert.Equal(t, []int{0, 1, 2}, orders(cats))

	stored, err := fs.ListCategories(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, names(stored))
}

func TestMoveCategory_PartialFailureRestoresPriorOrder(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "A", "B", "C")
	ctx := context.Background()
	m := New(fs, pid)
	_, err := m.Categories(ctx)
	require.NoError(t, err)

	fs.failOrderCall = 2
	_, err = m.MoveCategory(ctx, 1, Up)
	require.ErrorIs(t, err, errInjected)

	cats, err := m.FetchCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(cats))
	assert.Equal(t, []int{0, 1, 2}, orders(cats))

	local, _ := m.Categories(ctx)
	assert.Equal(t, []string{"A", "B", "C"}, names(local))
}

func TestMoveCategory_EqualOrdersFallBack(t *testing.T) {
	fs, pid := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range []string{"A", "B"} {
		_, err := fs.Store.CreateCategory(ctx, core.Category{
			ProjectID: pid, Name: n, Color: "#000000", Order: 3, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	m := New(fs, pid)

	cats, err := m.MoveCategory(ctx, 1, Up)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names(cats))
	assert.Equal(t, []int{2, 3}, orders(cats))
	assert.Equal(t, 1, fs.orderCalls)
}

func TestMoveCategory_OutOfRange(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "A", "B")
	m := New(fs, pid)

	_, err := m.MoveCategory(context.Background(), 0, Up)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = m.MoveCategory(context.Background(), 1, Down)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestDeleteCategory(t *testing.T) {
	fs, pid := setup(t)
	seedCategories(t, fs, pid, "A", "B")
	ctx := context.Background()
	m := New(fs, pid)
	cats, err := m.Categories(ctx)
	require.NoError(t, err)

	require.NoError(t, m.DeleteCategory(ctx, cats[0].ID))
	local, _ := m.Categories(ctx)
	assert.Equal(t, []string{"B"}, names(local))

	assert.ErrorIs(t, m.DeleteCategory(ctx, "missing"), core.ErrDenied)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Down")
	require.NoError(t, err)
	assert.Equal(t, Down, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
