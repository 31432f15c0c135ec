package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"budgetbook/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedProject(t *testing.T, repo *SQLiteRepository) core.Project {
	t.Helper()
	ctx := context.Background()
	p, err := repo.CreateProject(ctx, core.Project{Name: "Home", OwnerID: "u1", Settings: core.DefaultSettings()})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if err := repo.AddMember(ctx, core.Member{ProjectID: p.ID, UserID: "u1", Role: core.RoleOwner}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	return p
}

func TestSQLiteRepository_ProjectSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := seedProject(t, repo)

	settings, err := core.DecodeSettings([]byte(`{"currency":"EUR","theme":"dark"}`))
	if err != nil {
		t.Fatalf("DecodeSettings() error = %v", err)
	}
	settings.CustomFields = []core.Field{{Name: "Vendor", Type: core.FieldText}}
	if n, err := repo.UpdateSettings(ctx, p.ID, settings); err != nil || n != 1 {
		t.Fatalf("UpdateSettings() = %d, %v", n, err)
	}

	got, err := repo.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.Settings.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", got.Settings.Currency)
	}
	if len(got.Settings.CustomFields) != 1 || got.Settings.CustomFields[0].Name != "Vendor" {
		t.Errorf("CustomFields = %+v", got.Settings.CustomFields)
	}
	doc, _ := got.Settings.Encode()
	if !strings.Contains(string(doc), `"theme":"dark"`) {
		t.Errorf("unknown key lost: %s", doc)
	}

	projects, err := repo.ListProjectsForUser(ctx, "u1")
	if err != nil || len(projects) != 1 {
		t.Fatalf("ListProjectsForUser() = %v, %v", projects, err)
	}
	if ids, err := repo.ListProjectIDs(ctx); err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Errorf("ListProjectIDs() = %v, %v", ids, err)
	}
	if _, err := repo.GetProject(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetProject(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_CategoriesScopedToProject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := seedProject(t, repo)

	b, err := repo.CreateCategory(ctx, core.Category{ProjectID: p.ID, Name: "B", Color: "#000000", Order: 1})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if _, err := repo.CreateCategory(ctx, core.Category{ProjectID: p.ID, Name: "A", Color: "#ffffff", Order: 0}); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	cats, err := repo.ListCategories(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "A" || cats[1].Name != "B" {
		t.Fatalf("ListCategories() order = %+v", cats)
	}

	name := "Groceries"
	if n, _ := repo.UpdateCategory(ctx, "other-project", b.ID, core.CategoryPatch{Name: &name}); n != 0 {
		t.Errorf("UpdateCategory(foreign project) affected %d rows, want 0", n)
	}
	if n, err := repo.UpdateCategory(ctx, p.ID, b.ID, core.CategoryPatch{Name: &name}); err != nil || n != 1 {
		t.Errorf("UpdateCategory() = %d, %v", n, err)
	}
	if n, err := repo.SetCategoryOrder(ctx, p.ID, b.ID, 5); err != nil || n != 1 {
		t.Errorf("SetCategoryOrder() = %d, %v", n, err)
	}
	if n, err := repo.DeleteCategory(ctx, p.ID, b.ID); err != nil || n != 1 {
		t.Errorf("DeleteCategory() = %d, %v", n, err)
	}
}

func TestSQLiteRepository_Transactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := seedProject(t, repo)

	tx, err := repo.CreateTransaction(ctx, core.Transaction{
		ProjectID:   p.ID,
		Amount:      core.Money{Cents: -1250},
		Currency:    "USD",
		Description: "Lunch",
		Date:        core.NewDate(2024, 3, 10),
		CustomData:  core.CustomData{"Vendor": "Cafe"},
		CreatedBy:   "u1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	got, err := repo.GetTransaction(ctx, p.ID, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.Amount.Cents != -1250 || got.Date.String() != "2024-03-10" || got.CustomData["Vendor"] != "Cafe" {
		t.Errorf("GetTransaction() = %+v", got)
	}

	if n, err := repo.UpdateCustomData(ctx, p.ID, tx.ID, core.CustomData{"Shop": "Cafe"}); err != nil || n != 1 {
		t.Fatalf("UpdateCustomData() = %d, %v", n, err)
	}
	got, _ = repo.GetTransaction(ctx, p.ID, tx.ID)
	if _, ok := got.CustomData["Vendor"]; ok {
		t.Errorf("custom data not replaced: %+v", got.CustomData)
	}

	if n, err := repo.DeleteTransactions(ctx, "other-project", []string{tx.ID}); err != nil || n != 0 {
		t.Errorf("DeleteTransactions(foreign) = %d, %v", n, err)
	}
	if n, err := repo.DeleteTransactions(ctx, p.ID, []string{tx.ID, "missing"}); err != nil || n != 1 {
		t.Errorf("DeleteTransactions() = %d, %v", n, err)
	}
}

func TestSQLiteRepository_Invitations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := seedProject(t, repo)
	now := time.Now().UTC()

	inv, err := repo.CreateInvitation(ctx, core.Invitation{
		ProjectID: p.ID,
		Email:     "Bob@Example.com",
		Role:      core.RoleMember,
		InvitedBy: "u1",
		Token:     "tok",
		Status:    core.InvitationPending,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now.Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	found, err := repo.FindPendingInvitation(ctx, p.ID, "bob@example.com")
	if err != nil || found.ID != inv.ID {
		t.Fatalf("FindPendingInvitation() = %+v, %v", found, err)
	}
	byToken, err := repo.GetInvitationByToken(ctx, "tok")
	if err != nil || byToken.ID != inv.ID {
		t.Fatalf("GetInvitationByToken() = %+v, %v", byToken, err)
	}

	inv.Status = core.InvitationAccepted
	if n, err := repo.UpdateInvitation(ctx, inv); err != nil || n != 1 {
		t.Fatalf("UpdateInvitation() = %d, %v", n, err)
	}
	if _, err := repo.FindPendingInvitation(ctx, p.ID, "bob@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindPendingInvitation() after accept error = %v, want ErrNotFound", err)
	}

	n, err := repo.DeleteInvitations(ctx, now.Add(-24*time.Hour), []core.InvitationStatus{core.InvitationAccepted})
	if err != nil || n != 1 {
		t.Errorf("DeleteInvitations() = %d, %v", n, err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if v := repo.SchemaVersion(); v != 1 {
			t.Errorf("open #%d: SchemaVersion() = %d, want 1", i+1, v)
		}
		repo.Close()
	}
}

func TestSQLiteRepository_DeleteInvitationsKeepsLivePending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := seedProject(t, repo)
	now := time.Now().UTC()

	for _, inv := range []core.Invitation{
		{Email: "live@x.io", Token: "live", ExpiresAt: now.Add(time.Hour)},
		{Email: "dead@x.io", Token: "dead", ExpiresAt: now.Add(-72 * time.Hour)},
	} {
		inv.ProjectID = p.ID
		inv.Role = core.RoleMember
		inv.Status = core.InvitationPending
		inv.CreatedAt = now.Add(-30 * 24 * time.Hour)
		if _, err := repo.CreateInvitation(ctx, inv); err != nil {
			t.Fatalf("CreateInvitation(%s) error = %v", inv.Email, err)
		}
	}

	n, err := repo.DeleteInvitations(ctx, now.Add(-24*time.Hour), []core.InvitationStatus{core.InvitationPending})
	if err != nil || n != 1 {
		t.Fatalf("DeleteInvitations() = %d, %v; want 1", n, err)
	}
	if _, err := repo.GetInvitationByToken(ctx, "live"); err != nil {
		t.Errorf("live invitation was deleted: %v", err)
	}
}
