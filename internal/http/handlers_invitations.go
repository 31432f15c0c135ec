package http

import (
	"net/http"

	"budgetbook/internal/core"
	"budgetbook/internal/services"
)

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invs, err := s.invitations.List(r.Context(), pr.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// tokens are shown once, when the invitation is issued
	for i := range invs {
		invs[i].Token = ""
	}
	NewJSONResponse().Data(invs).Write(w)
}

type invitePayload struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Role   string `json:"role" validate:"omitempty,oneof=member viewer"`
	Resend bool   `json:"resend"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in invitePayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	role := core.Role(in.Role)
	if role == "" {
		role = core.RoleMember
	}
	inv, err := s.invitations.Invite(r.Context(), services.InviteRequest{
		ProjectID: pr.ProjectID,
		Email:     in.Email,
		Role:      role,
		InvitedBy: pr.UserID,
		Resend:    in.Resend,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(inv).Write(w)
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	pr, err := s.authorize(r, services.AccessOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.invitations.Revoke(r.Context(), pr.ProjectID, r.PathValue("invitation")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type acceptPayload struct {
	Token string `json:"token" validate:"required,hexadecimal"`
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := userFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in acceptPayload
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.invitations.Accept(r.Context(), in.Token, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(m).Write(w)
}

// handleCleanupInvitations runs the same retention sweep as the housekeeping
// command. It only removes invitations that can no longer be redeemed.
func (s *Server) handleCleanupInvitations(w http.ResponseWriter, r *http.Request) {
	if _, err := userFrom(r); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.invitations.Cleanup(r.Context(), s.retention)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]int64{"deleted": n}).Write(w)
}
