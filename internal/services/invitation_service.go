package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
)

// InvitationStore is the part of the backend invitations need.
type InvitationStore interface {
	store.InvitationStore
	store.MemberStore
}

// InviteRequest describes an invitation to send.
type InviteRequest struct {
	ProjectID string
	Email     string
	Role      core.Role
	InvitedBy string
	// Resend refreshes the token and expiry of an active invitation instead
	// of failing with core.ErrInvitationPending.
	Resend bool
}

type InvitationService struct {
	store     InvitationStore
	publisher Publisher
	ttl       time.Duration
	now       func() time.Time
	validate  *validator.Validate
	logger    *applog.Logger
}

func NewInvitationService(s InvitationStore, p Publisher, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = core.DefaultInvitationTTL
	}
	return &InvitationService{
		store:     s,
		publisher: p,
		ttl:       ttl,
		now:       time.Now,
		validate:  validator.New(),
		logger:    applog.ForComponent(applog.ComponentInvitation),
	}
}

// WithClock replaces the time source.
func (s *InvitationService) WithClock(now func() time.Time) *InvitationService {
	s.now = now
	return s
}

// Invite creates an invitation for the email. An active pending invitation
// for the same project and email is a conflict unless req.Resend is set, in
// which case it is refreshed. A stale pending row is marked expired first.
func (s *InvitationService) Invite(ctx context.Context, req InviteRequest) (core.Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return core.Invitation{}, fmt.Errorf("%w: %q", core.ErrInvalidEmail, req.Email)
	}
	if req.Role != core.RoleMember && req.Role != core.RoleViewer {
		return core.Invitation{}, fmt.Errorf("%w: %q", core.ErrInvalidRole, req.Role)
	}

	now := s.now()
	pending, err := s.store.FindPendingInvitation(ctx, req.ProjectID, email)
	switch {
	case err == nil && pending.Active(now):
		if !req.Resend {
			return core.Invitation{}, core.ErrInvitationPending
		}
		return s.refresh(ctx, pending, req.Role, now)
	case err == nil:
		if err := s.markExpired(ctx, pending); err != nil {
			return core.Invitation{}, err
		}
	case !errors.Is(err, core.ErrNotFound):
		s.logger.Failure(ctx, "Failed to look up pending invitation", err, applog.OpInvite, req.ProjectID)
		return core.Invitation{}, fmt.Errorf("find pending invitation: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return core.Invitation{}, err
	}
	inv, err := s.store.CreateInvitation(ctx, core.Invitation{
		ProjectID: req.ProjectID,
		Email:     email,
		Role:      req.Role,
		InvitedBy: req.InvitedBy,
		Token:     token,
		Status:    core.InvitationPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Failure(ctx, "Failed to create invitation", err, applog.OpInvite, req.ProjectID)
		return core.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}

	s.logger.InfoContext(ctx, "Invitation created",
		applog.FieldProjectID, inv.ProjectID,
		applog.FieldInvitationID, inv.ID)
	notify(ctx, s.publisher, s.logger, amqp.NewInvitationEvent(inv.ProjectID, "created", inv.ID))
	return inv, nil
}

func (s *InvitationService) refresh(ctx context.Context, inv core.Invitation, role core.Role, now time.Time) (core.Invitation, error) {
	token, err := newToken()
	if err != nil {
		return core.Invitation{}, err
	}
	inv.Token = token
	inv.Role = role
	inv.ExpiresAt = now.Add(s.ttl)

	n, err := s.store.UpdateInvitation(ctx, inv)
	if err != nil {
		s.logger.Failure(ctx, "Failed to refresh invitation", err, applog.OpInvite, inv.ProjectID)
		return core.Invitation{}, fmt.Errorf("refresh invitation: %w", err)
	}
	if n == 0 {
		return core.Invitation{}, core.ErrDenied
	}
	notify(ctx, s.publisher, s.logger, amqp.NewInvitationEvent(inv.ProjectID, "resent", inv.ID))
	return inv, nil
}

// Accept redeems token for userID. The user becomes a member with the
// invited role; an existing membership keeps its role.
func (s *InvitationService) Accept(ctx context.Context, token, userID string) (core.Member, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return core.Member{}, fmt.Errorf("find invitation: %w", err)
	}

	switch inv.EffectiveStatus(s.now()) {
	case core.InvitationAccepted:
		return core.Member{}, core.ErrInvitationUsed
	case core.InvitationExpired:
		if inv.Status == core.InvitationPending {
			if err := s.markExpired(ctx, inv); err != nil {
				return core.Member{}, err
			}
		}
		return core.Member{}, core.ErrInvitationExpired
	}

	member, err := s.store.GetMember(ctx, inv.ProjectID, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		member = core.Member{ProjectID: inv.ProjectID, UserID: userID, Role: inv.Role, CreatedAt: s.now()}
		if err := s.store.AddMember(ctx, member); err != nil {
			s.logger.Failure(ctx, "Failed to add member", err, applog.OpAccept, inv.ProjectID)
			return core.Member{}, fmt.Errorf("add member: %w", err)
		}
	case err != nil:
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}

	inv.Status = core.InvitationAccepted
	n, err := s.store.UpdateInvitation(ctx, inv)
	if err != nil {
		s.logger.Failure(ctx, "Failed to mark invitation accepted", err, applog.OpAccept, inv.ProjectID)
		return core.Member{}, fmt.Errorf("mark accepted: %w", err)
	}
	if n == 0 {
		return core.Member{}, core.ErrDenied
	}

	s.logger.InfoContext(ctx, "Invitation accepted",
		applog.FieldProjectID, inv.ProjectID,
		applog.FieldInvitationID, inv.ID,
		applog.FieldUserID, userID)
	notify(ctx, s.publisher, s.logger, amqp.NewInvitationEvent(inv.ProjectID, "accepted", inv.ID))
	return member, nil
}

// List returns the project's invitations, newest first. Pending rows past
// their expiry are written back as expired before being returned.
func (s *InvitationService) List(ctx context.Context, projectID string) ([]core.Invitation, error) {
	invs, err := s.store.ListInvitations(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	now := s.now()
	for i, inv := range invs {
		if inv.Status == core.InvitationPending && inv.EffectiveStatus(now) == core.InvitationExpired {
			if err := s.markExpired(ctx, inv); err != nil {
				s.logger.WarnContext(ctx, "Failed to expire invitation",
					applog.FieldInvitationID, inv.ID, applog.FieldError, err)
			}
			invs[i].Status = core.InvitationExpired
		}
	}
	return invs, nil
}

// Revoke expires a pending invitation immediately.
func (s *InvitationService) Revoke(ctx context.Context, projectID, id string) error {
	invs, err := s.store.ListInvitations(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list invitations: %w", err)
	}
	for _, inv := range invs {
		if inv.ID != id {
			continue
		}
		if inv.Status == core.InvitationAccepted {
			return core.ErrInvitationUsed
		}
		inv.ExpiresAt = s.now()
		if err := s.markExpired(ctx, inv); err != nil {
			return err
		}
		notify(ctx, s.publisher, s.logger, amqp.NewInvitationEvent(projectID, "revoked", id))
		return nil
	}
	return core.ErrNotFound
}

// Cleanup deletes accepted and expired invitations created more than
// retention ago. When retention is at least the invitation lifetime, pending
// rows are included once they expired more than retention ago; a resend
// moves the expiry and keeps the row.
func (s *InvitationService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	statuses := []core.InvitationStatus{core.InvitationAccepted, core.InvitationExpired}
	if retention >= s.ttl {
		statuses = append(statuses, core.InvitationPending)
	}

	n, err := s.store.DeleteInvitations(ctx, s.now().Add(-retention), statuses)
	if err != nil {
		s.logger.Failure(ctx, "Failed to clean up invitations", err, applog.OpCleanup, "")
		return 0, fmt.Errorf("delete invitations: %w", err)
	}
	s.logger.InfoContext(ctx, "Invitations cleaned up", applog.FieldCount, n)
	return n, nil
}

func (s *InvitationService) markExpired(ctx context.Context, inv core.Invitation) error {
	inv.Status = core.InvitationExpired
	if _, err := s.store.UpdateInvitation(ctx, inv); err != nil {
		s.logger.Failure(ctx, "Failed to mark invitation expired", err, applog.OpUpdate, inv.ProjectID,
			applog.FieldInvitationID, inv.ID)
		return fmt.Errorf("expire invitation: %w", err)
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
