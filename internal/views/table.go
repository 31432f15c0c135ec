package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"budgetbook/internal/core"
)

type SortColumn string

const (
	SortDate     SortColumn = "date"
	SortCategory SortColumn = "category"
	SortAmount   SortColumn = "amount"
)

// AllCategories disables the category filter.
const AllCategories = "all"

func (c SortColumn) Valid() bool {
	switch c {
	case SortDate, SortCategory, SortAmount:
		return true
	}
	return false
}

// SortState is the active table column and direction.
type SortState struct {
	Column SortColumn `json:"column"`
	Desc   bool       `json:"desc"`
}

// DefaultSort orders by date, newest first.
func DefaultSort() SortState {
	return SortState{Column: SortDate, Desc: true}
}

// Toggle flips the direction when col is already active; a new column starts
// descending.
func (s SortState) Toggle(col SortColumn) SortState {
	if s.Column == col {
		return SortState{Column: col, Desc: !s.Desc}
	}
	return SortState{Column: col, Desc: true}
}

// Query is the table state: filters applied in order period, search,
// category, then the sort.
type Query struct {
	Period     core.Period
	From, To   core.Date
	Search     string
	CategoryID string
	Sort       SortState
	// Lang selects the collation used for category names.
	Lang language.Tag
}

// Categories resolves category ids to names.
type Categories map[string]core.Category

func IndexCategories(cats []core.Category) Categories {
	idx := make(Categories, len(cats))
	for _, c := range cats {
		idx[c.ID] = c
	}
	return idx
}

// Name returns the category name, or the uncategorized label when the id is
// empty or no longer exists.
func (c Categories) Name(id string) string {
	if cat, ok := c[id]; ok && id != "" {
		return cat.Name
	}
	return core.UncategorizedName
}

// MatchSearch reports a case-insensitive substring match against the
// stringified custom field values. Other attributes are not searched.
func MatchSearch(tx core.Transaction, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, v := range tx.CustomData {
		if v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

// MatchCategory reports an exact id match; "all" and "" match everything.
func MatchCategory(tx core.Transaction, categoryID string) bool {
	if categoryID == "" || categoryID == AllCategories {
		return true
	}
	return tx.CategoryID == categoryID
}

// Apply filters and sorts txs for the table. The input slice is not modified.
func Apply(txs []core.Transaction, cats Categories, q Query, now time.Time) []core.Transaction {
	filtered := FilterPeriod(txs, q.Period, now, q.From, q.To)
	out := filtered[:0]
	for _, tx := range filtered {
		if MatchSearch(tx, q.Search) && MatchCategory(tx, q.CategoryID) {
			out = append(out, tx)
		}
	}
	sortState := q.Sort
	if !sortState.Column.Valid() {
		sortState = DefaultSort()
	}
	Sort(out, cats, sortState, q.Lang)
	return out
}

// Sort orders txs in place. Category sort compares resolved names with a
// collator for lang; ties keep their input order.
func Sort(txs []core.Transaction, cats Categories, s SortState, lang language.Tag) {
	var cmp func(a, b core.Transaction) int
	switch s.Column {
	case SortCategory:
		col := collate.New(lang)
		cmp = func(a, b core.Transaction) int {
			return col.CompareString(cats.Name(a.CategoryID), cats.Name(b.CategoryID))
		}
	case SortAmount:
		cmp = func(a, b core.Transaction) int {
			switch {
			case a.Amount.Cents < b.Amount.Cents:
				return -1
			case a.Amount.Cents > b.Amount.Cents:
				return 1
			}
			return 0
		}
	default:
		cmp = func(a, b core.Transaction) int { return a.Date.Compare(b.Date) }
	}

	sort.SliceStable(txs, func(i, j int) bool {
		c := cmp(txs[i], txs[j])
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}
