package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

var _ store.Backend = (*Store)(nil)

// Store keeps every collection in process memory.
type Store struct {
	mu           sync.Mutex
	projects     map[string]core.Project
	members      map[string]map[string]core.Member // project -> user -> member
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	invitations  map[string]core.Invitation
	now          func() time.Time
}

func New() *Store {
	return &Store{
		projects:     map[string]core.Project{},
		members:      map[string]map[string]core.Member{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		invitations:  map[string]core.Invitation{},
		now:          time.Now,
	}
}

func (s *Store) CreateProject(_ context.Context, p core.Project) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.Settings = p.Settings.Clone()
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, core.ErrNotFound
	}
	p.Settings = p.Settings.Clone()
	return p, nil
}

func (s *Store) ListProjectsForUser(_ context.Context, userID string) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Project
	for id, ms := range s.members {
		if _, ok := ms[userID]; !ok {
			continue
		}
		if p, ok := s.projects[id]; ok {
			p.Settings = p.Settings.Clone()
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListProjectIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := make([]core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids, nil
}

func (s *Store) UpdateProject(_ context.Context, id, name, description string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return 0, nil
	}
	p.Name = name
	p.Description = description
	s.projects[id] = p
	return 1, nil
}

func (s *Store) UpdateSettings(_ context.Context, id string, settings core.Settings) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return 0, nil
	}
	p.Settings = settings.Clone()
	s.projects[id] = p
	return 1, nil
}

func (s *Store) DeleteProject(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return 0, nil
	}
	delete(s.projects, id)
	delete(s.members, id)
	for k, c := range s.categories {
		if c.ProjectID == id {
			delete(s.categories, k)
		}
	}
	for k, t := range s.transactions {
		if t.ProjectID == id {
			delete(s.transactions, k)
		}
	}
	for k, inv := range s.invitations {
		if inv.ProjectID == id {
			delete(s.invitations, k)
		}
	}
	return 1, nil
}

func (s *Store) AddMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if s.members[m.ProjectID] == nil {
		s.members[m.ProjectID] = map[string]core.Member{}
	}
	s.members[m.ProjectID][m.UserID] = m
	return nil
}

func (s *Store) GetMember(_ context.Context, projectID, userID string) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[projectID][userID]
	if !ok {
		return core.Member{}, core.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMembers(_ context.Context, projectID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0, len(s.members[projectID]))
	for _, m := range s.members[projectID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RemoveMember(_ context.Context, projectID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[projectID][userID]; !ok {
		return 0, nil
	}
	delete(s.members[projectID], userID)
	return 1, nil
}

func (s *Store) ListCategories(_ context.Context, projectID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, projectID, id string, patch core.CategoryPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.ProjectID != projectID {
		return 0, nil
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	s.categories[id] = c
	return 1, nil
}

func (s *Store) SetCategoryOrder(_ context.Context, projectID, id string, order int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.ProjectID != projectID {
		return 0, nil
	}
	c.Order = order
	s.categories[id] = c
	return 1, nil
}

func (s *Store) DeleteCategory(_ context.Context, projectID, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.ProjectID != projectID {
		return 0, nil
	}
	delete(s.categories, id)
	return 1, nil
}

func (s *Store) ListTransactions(_ context.Context, projectID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.ProjectID == projectID {
			t.CustomData = t.CustomData.Clone()
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, projectID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.ProjectID != projectID {
		return core.Transaction{}, core.ErrNotFound
	}
	t.CustomData = t.CustomData.Clone()
	return t, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.CustomData = t.CustomData.Clone()
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.transactions[t.ID]
	if !ok || old.ProjectID != t.ProjectID {
		return 0, nil
	}
	t.CreatedAt = old.CreatedAt
	t.CreatedBy = old.CreatedBy
	t.UpdatedAt = s.now()
	t.CustomData = t.CustomData.Clone()
	s.transactions[t.ID] = t
	return 1, nil
}

func (s *Store) UpdateCustomData(_ context.Context, projectID, id string, data core.CustomData) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.ProjectID != projectID {
		return 0, nil
	}
	t.CustomData = data.Clone()
	t.UpdatedAt = s.now()
	s.transactions[id] = t
	return 1, nil
}

func (s *Store) DeleteTransactions(_ context.Context, projectID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok && t.ProjectID == projectID {
			delete(s.transactions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateInvitation(_ context.Context, inv core.Invitation) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.invitations[inv.ID] = inv
	return inv, nil
}

func (s *Store) UpdateInvitation(_ context.Context, inv core.Invitation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.invitations[inv.ID]
	if !ok || old.ProjectID != inv.ProjectID {
		return 0, nil
	}
	inv.CreatedAt = old.CreatedAt
	s.invitations[inv.ID] = inv
	return 1, nil
}

func (s *Store) FindPendingInvitation(_ context.Context, projectID, email string) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found core.Invitation
		ok    bool
	)
	for _, inv := range s.invitations {
		if inv.ProjectID != projectID || inv.Status != core.InvitationPending {
			continue
		}
		if !strings.EqualFold(inv.Email, email) {
			continue
		}
		if !ok || inv.CreatedAt.After(found.CreatedAt) {
			found, ok = inv, true
		}
	}
	if !ok {
		return core.Invitation{}, core.ErrNotFound
	}
	return found, nil
}

func (s *Store) GetInvitationByToken(_ context.Context, token string) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return core.Invitation{}, core.ErrNotFound
}

func (s *Store) ListInvitations(_ context.Context, projectID string) ([]core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Invitation
	for _, inv := range s.invitations {
		if inv.ProjectID == projectID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteInvitations(_ context.Context, cutoff time.Time, statuses []core.InvitationStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[core.InvitationStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var n int64
	for id, inv := range s.invitations {
		if !inv.CreatedAt.Before(cutoff) || !want[inv.Status] {
			continue
		}
		if inv.Status == core.InvitationPending && !inv.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(s.invitations, id)
		n++
	}
	return n, nil
}
