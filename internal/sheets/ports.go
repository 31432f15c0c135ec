// Package sheets mirrors project exports into spreadsheet tabs.
package sheets

import (
	"context"
	"strings"
	"unicode/utf8"

	"budgetbook/internal/views"
)

// Ports for outbound adapters.
type (
	// Mirror owns one tab per project and rewrites it wholesale.
	Mirror interface {
		// ReplaceRows creates the tab if needed, clears it and writes rows
		// starting at the first cell.
		ReplaceRows(ctx context.Context, tab string, rows [][]any) error
	}

	// Reader returns the current contents of a tab as display strings.
	Reader interface {
		ReadRows(ctx context.Context, tab string) ([][]string, error)
	}
)

const maxTabName = 90

var tabReplacer = strings.NewReplacer("[", " ", "]", " ", ":", " ", "*", " ", "?", " ", "/", " ", "\\", " ", "'", " ")

// TabName derives a stable tab title from the project name and id. The id
// suffix keeps two projects with the same name apart.
func TabName(projectName, projectID string) string {
	name := strings.Join(strings.Fields(tabReplacer.Replace(projectName)), " ")
	for utf8.RuneCountInString(name) > maxTabName {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	suffix := projectID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if name == "" {
		return suffix
	}
	return name + " (" + suffix + ")"
}

// Values converts an export table into sheet rows: the header first, then
// one row per transaction with the amount as a number.
func Values(t views.Table) [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)

	for _, r := range t.Rows {
		row := make([]any, len(r.Cells))
		for i, c := range r.Cells {
			row[i] = c
		}
		if len(row) > 0 {
			row[len(row)-1] = r.Amount.Float()
		}
		out = append(out, row)
	}
	return out
}
