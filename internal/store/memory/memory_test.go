package memory

import (
	"context"
	"testing"
	"time"

	"budgetbook/internal/core"
)

func TestCategoryUpdateScopedToProject(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, err := s.CreateCategory(ctx, core.Category{ProjectID: "p1", Name: "Food", Color: "#ffffff"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Groceries"
	n, err := s.UpdateCategory(ctx, "p2", c.ID, core.CategoryPatch{Name: &name})
	if err != nil || n != 0 {
		t.Fatalf("foreign project update must affect no rows: n=%d err=%v", n, err)
	}
	n, err = s.UpdateCategory(ctx, "p1", c.ID, core.CategoryPatch{Name: &name})
	if err != nil || n != 1 {
		t.Fatalf("update: n=%d err=%v", n, err)
	}
	cats, _ := s.ListCategories(ctx, "p1")
	if len(cats) != 1 || cats[0].Name != "Groceries" || cats[0].Color != "#ffffff" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
}

func TestCustomDataIsCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, _ := s.CreateTransaction(ctx, core.Transaction{
		ProjectID:  "p1",
		Date:       core.NewDate(2024, 3, 1),
		CustomData: core.CustomData{"Shop": "Aldi"},
	})
	got, _ := s.GetTransaction(ctx, "p1", tx.ID)
	got.CustomData["Shop"] = "Lidl"

	again, _ := s.GetTransaction(ctx, "p1", tx.ID)
	if again.CustomData["Shop"] != "Aldi" {
		t.Fatalf("stored custom data was mutated through a read copy")
	}
	if _, err := s.GetTransaction(ctx, "p2", tx.ID); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign project, got %v", err)
	}
}

func TestDeleteInvitationsByStatusAndAge(t *testing.T) {
	ctx := context.Background()
	s := New()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.CreateInvitation(ctx, core.Invitation{ProjectID: "p", Email: "a@x.io", Status: core.InvitationExpired, CreatedAt: old})
	s.CreateInvitation(ctx, core.Invitation{ProjectID: "p", Email: "b@x.io", Status: core.InvitationPending, CreatedAt: old})
	s.CreateInvitation(ctx, core.Invitation{ProjectID: "p", Email: "c@x.io", Status: core.InvitationAccepted, CreatedAt: old.AddDate(1, 0, 0)})

	n, err := s.DeleteInvitations(ctx, old.AddDate(0, 1, 0), []core.InvitationStatus{core.InvitationExpired, core.InvitationAccepted})
	if err != nil || n != 1 {
		t.Fatalf("expected one deletion, n=%d err=%v", n, err)
	}
	left, _ := s.ListInvitations(ctx, "p")
	if len(left) != 2 {
		t.Fatalf("expected two invitations left, got %d", len(left))
	}
}

func TestDeleteInvitationsKeepsUnexpiredPending(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cutoff := created.AddDate(0, 1, 0)
	s.CreateInvitation(ctx, core.Invitation{ProjectID: "p", Email: "live@x.io", Status: core.InvitationPending, CreatedAt: created, ExpiresAt: cutoff.Add(time.Hour)})
	s.CreateInvitation(ctx, core.Invitation{ProjectID: "p", Email: "dead@x.io", Status: core.InvitationPending, CreatedAt: created, ExpiresAt: created.AddDate(0, 0, 7)})

	n, err := s.DeleteInvitations(ctx, cutoff, []core.InvitationStatus{core.InvitationPending})
	if err != nil || n != 1 {
		t.Fatalf("expected one deletion, n=%d err=%v", n, err)
	}
	left, _ := s.ListInvitations(ctx, "p")
	if len(left) != 1 || left[0].Email != "live@x.io" {
		t.Fatalf("expected only the live invitation left, got %+v", left)
	}
}
