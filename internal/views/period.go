// Package views derives table rows, chart aggregates and export rows from a
// project's full transaction list. Every function is a pure computation over
// its inputs; nothing is cached between calls.
package views

import (
	"time"

	"budgetbook/internal/core"
)

// Range is an inclusive calendar-date range.
type Range struct {
	From core.Date `json:"from"`
	To   core.Date `json:"to"`
}

// Contains reports whether d lies within the range, bounds included.
func (r Range) Contains(d core.Date) bool {
	return d.Compare(r.From) >= 0 && d.Compare(r.To) <= 0
}

// PeriodRange resolves a named period against now. The boolean is false when
// the period does not filter: "all", and "custom" unless both bounds are set.
func PeriodRange(p core.Period, now time.Time, from, to core.Date) (Range, bool) {
	today := core.DateOf(now)
	y, m, _ := today.Date()

	switch p {
	case core.PeriodToday:
		return Range{today, today}, true
	case core.PeriodYesterday:
		d := today.AddDays(-1)
		return Range{d, d}, true
	case core.PeriodLast7Days:
		return Range{today.AddDays(-7), today}, true
	case core.PeriodLast30Days:
		return Range{today.AddDays(-30), today}, true
	case core.PeriodThisMonth:
		return Range{core.NewDate(y, int(m), 1), today}, true
	case core.PeriodLastMonth:
		first := core.NewDate(y, int(m), 1)
		return Range{core.Date{Time: first.AddDate(0, -1, 0)}, first.AddDays(-1)}, true
	case core.PeriodThisYear:
		return Range{core.NewDate(y, 1, 1), today}, true
	case core.PeriodCustom:
		if from.IsEmpty() || to.IsEmpty() {
			return Range{}, false
		}
		return Range{from, to}, true
	}
	return Range{}, false
}

// FilterPeriod keeps the transactions dated inside the period.
func FilterPeriod(txs []core.Transaction, p core.Period, now time.Time, from, to core.Date) []core.Transaction {
	r, ok := PeriodRange(p, now, from, to)
	if !ok {
		return append([]core.Transaction(nil), txs...)
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if r.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out
}
