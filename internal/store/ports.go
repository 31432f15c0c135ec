// Package store declares the collections of the persistence backend.
//
// Writes that may be refused by access policy report the number of affected
// rows; callers treat zero as core.ErrDenied. Single-row reads return
// core.ErrNotFound when nothing matches.
package store

import (
	"context"
	"time"

	"budgetbook/internal/core"
)

// Ports for outbound adapters.
type (
	ProjectStore interface {
		CreateProject(ctx context.Context, p core.Project) (core.Project, error)
		GetProject(ctx context.Context, id string) (core.Project, error)
		// ListProjectsForUser returns projects the user is a member of.
		ListProjectsForUser(ctx context.Context, userID string) ([]core.Project, error)
		// ListProjectIDs returns every project id, oldest first.
		ListProjectIDs(ctx context.Context) ([]string, error)
		UpdateProject(ctx context.Context, id, name, description string) (int64, error)
		// UpdateSettings replaces the whole settings document.
		UpdateSettings(ctx context.Context, id string, s core.Settings) (int64, error)
		DeleteProject(ctx context.Context, id string) (int64, error)
	}

	MemberStore interface {
		AddMember(ctx context.Context, m core.Member) error
		GetMember(ctx context.Context, projectID, userID string) (core.Member, error)
		ListMembers(ctx context.Context, projectID string) ([]core.Member, error)
		RemoveMember(ctx context.Context, projectID, userID string) (int64, error)
	}

	CategoryStore interface {
		// ListCategories returns categories ordered by order, then creation time.
		ListCategories(ctx context.Context, projectID string) ([]core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, projectID, id string, patch core.CategoryPatch) (int64, error)
		SetCategoryOrder(ctx context.Context, projectID, id string, order int) (int64, error)
		DeleteCategory(ctx context.Context, projectID, id string) (int64, error)
	}

	TransactionStore interface {
		ListTransactions(ctx context.Context, projectID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, projectID, id string) (core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error)
		UpdateCustomData(ctx context.Context, projectID, id string, data core.CustomData) (int64, error)
		DeleteTransactions(ctx context.Context, projectID string, ids []string) (int64, error)
	}

	InvitationStore interface {
		CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error)
		UpdateInvitation(ctx context.Context, inv core.Invitation) (int64, error)
		// FindPendingInvitation returns the newest pending invitation for the pair.
		FindPendingInvitation(ctx context.Context, projectID, email string) (core.Invitation, error)
		GetInvitationByToken(ctx context.Context, token string) (core.Invitation, error)
		ListInvitations(ctx context.Context, projectID string) ([]core.Invitation, error)
		// DeleteInvitations removes invitations created before cutoff whose
		// status is one of statuses. Pending rows also need to have expired
		// before cutoff, so a resent invitation survives.
		DeleteInvitations(ctx context.Context, cutoff time.Time, statuses []core.InvitationStatus) (int64, error)
	}

	// Backend groups every collection.
	Backend interface {
		ProjectStore
		MemberStore
		CategoryStore
		TransactionStore
		InvitationStore
	}
)
