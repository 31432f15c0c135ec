package views

import "budgetbook/internal/core"

// Selection is a set of transaction ids kept in the order they were added.
type Selection struct {
	order []string
	set   map[string]struct{}
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{set: make(map[string]struct{})}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Selection) Add(id string) {
	if _, ok := s.set[id]; ok || id == "" {
		return
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Selection) Remove(id string) {
	if _, ok := s.set[id]; !ok {
		return
	}
	delete(s.set, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle adds or removes id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	if s.Has(id) {
		s.Remove(id)
		return false
	}
	s.Add(id)
	return s.Has(id)
}

// SelectAll replaces the selection with the visible rows.
func (s *Selection) SelectAll(txs []core.Transaction) {
	s.Clear()
	for _, tx := range txs {
		s.Add(tx.ID)
	}
}

func (s *Selection) Clear() {
	s.order = nil
	s.set = make(map[string]struct{})
}

func (s *Selection) Has(id string) bool {
	_, ok := s.set[id]
	return ok
}

func (s *Selection) Len() int { return len(s.order) }

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	return append([]string(nil), s.order...)
}

// Navigator walks a fixed list of ids by index. The list is copied on
// construction and never re-queried.
type Navigator struct {
	ids []string
	pos int
}

func NewNavigator(ids []string) *Navigator {
	return &Navigator{ids: append([]string(nil), ids...)}
}

// NavigatorAt starts a navigator at index, clamped to the list.
func NavigatorAt(ids []string, index int) *Navigator {
	n := NewNavigator(ids)
	switch {
	case index < 0:
		n.pos = 0
	case index >= len(ids) && len(ids) > 0:
		n.pos = len(ids) - 1
	default:
		n.pos = index
	}
	return n
}

// Current returns the id under the cursor, or "" for an empty list.
func (n *Navigator) Current() string {
	if len(n.ids) == 0 {
		return ""
	}
	return n.ids[n.pos]
}

// Position returns the zero-based cursor and the list length.
func (n *Navigator) Position() (int, int) { return n.pos, len(n.ids) }

func (n *Navigator) HasNext() bool { return n.pos+1 < len(n.ids) }
func (n *Navigator) HasPrev() bool { return n.pos > 0 && len(n.ids) > 0 }

func (n *Navigator) Next() (string, bool) {
	if !n.HasNext() {
		return n.Current(), false
	}
	n.pos++
	return n.ids[n.pos], true
}

func (n *Navigator) Prev() (string, bool) {
	if !n.HasPrev() {
		return n.Current(), false
	}
	n.pos--
	return n.ids[n.pos], true
}

// PrevID and NextID peek at the neighbours without moving.
func (n *Navigator) PrevID() string {
	if !n.HasPrev() {
		return ""
	}
	return n.ids[n.pos-1]
}

func (n *Navigator) NextID() string {
	if !n.HasNext() {
		return ""
	}
	return n.ids[n.pos+1]
}
