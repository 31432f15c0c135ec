// Package memory is an in-process sheet mirror used by tests and by the
// worker when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	ports "budgetbook/internal/sheets"
)

var (
	_ ports.Mirror = (*Mirror)(nil)
	_ ports.Reader = (*Mirror)(nil)
)

type Mirror struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	writes int
}

func New() *Mirror {
	return &Mirror{tabs: map[string][][]string{}}
}

func (m *Mirror) ReplaceRows(_ context.Context, tab string, rows [][]any) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = strings.TrimSpace(fmt.Sprint(v))
		}
		out[i] = cells
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[tab] = out
	m.writes++
	return nil
}

func (m *Mirror) ReadRows(_ context.Context, tab string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("tab %q not found", tab)
	}
	return rows, nil
}

// Tabs returns the tab titles in name order.
func (m *Mirror) Tabs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tabs))
	for t := range m.tabs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Writes counts ReplaceRows calls.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
