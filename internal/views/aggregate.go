package views

import (
	"fmt"
	"sort"
	"time"

	"budgetbook/internal/core"
)

type SeriesMode string

const (
	ModeAbsolute   SeriesMode = "absolute"
	ModeCumulative SeriesMode = "cumulative"
)

// Series is one category's values aligned with TimeSeries.Dates.
type Series struct {
	Category string       `json:"category"`
	Values   []core.Money `json:"values"`
}

type TimeSeries struct {
	Mode   SeriesMode  `json:"mode"`
	Dates  []core.Date `json:"dates"`
	Series []Series    `json:"series"`
}

// CategoryTotals groups txs by resolved category name and sums the signed
// amounts. Labels embed the currency code and the formatted total. Results
// are ordered by absolute total, largest first.
func CategoryTotals(txs []core.Transaction, cats Categories, currency string) []core.CategoryAmount {
	sums := make(map[string]core.Money)
	for _, tx := range txs {
		name := cats.Name(tx.CategoryID)
		sums[name] = sums[name].Add(tx.Amount)
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for name, total := range sums {
		out = append(out, core.CategoryAmount{
			Name:   name,
			Amount: total,
			Label:  fmt.Sprintf("%s: %s %s", name, currency, total.Fixed()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := abs(out[i].Amount.Cents), abs(out[j].Amount.Cents)
		if ai != aj {
			return ai > aj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BuildTimeSeries collects the distinct dates of txs in ascending order and
// builds one series per category. Absolute mode holds the daily sum;
// cumulative mode holds the running total along the date axis.
func BuildTimeSeries(txs []core.Transaction, cats Categories, mode SeriesMode) TimeSeries {
	if mode != ModeCumulative {
		mode = ModeAbsolute
	}

	daily := make(map[string]map[string]core.Money) // category -> date -> sum
	dateSet := make(map[string]core.Date)
	for _, tx := range txs {
		key := tx.Date.String()
		dateSet[key] = tx.Date
		name := cats.Name(tx.CategoryID)
		if daily[name] == nil {
			daily[name] = make(map[string]core.Money)
		}
		daily[name][key] = daily[name][key].Add(tx.Amount)
	}

	dates := make([]core.Date, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Compare(dates[j]) < 0 })

	names := make([]string, 0, len(daily))
	for name := range daily {
		names = append(names, name)
	}
	sort.Strings(names)

	ts := TimeSeries{Mode: mode, Dates: dates, Series: make([]Series, 0, len(names))}
	for _, name := range names {
		values := make([]core.Money, len(dates))
		var running core.Money
		for i, d := range dates {
			v := daily[name][d.String()]
			if mode == ModeCumulative {
				running = running.Add(v)
				v = running
			}
			values[i] = v
		}
		ts.Series = append(ts.Series, Series{Category: name, Values: values})
	}
	return ts
}

// Summarize totals income, expenses and balance of txs.
func Summarize(txs []core.Transaction) core.PeriodSummary {
	var s core.PeriodSummary
	for _, tx := range txs {
		if tx.Amount.IsExpense() {
			s.Expenses = s.Expenses.Add(tx.Amount)
		} else {
			s.Income = s.Income.Add(tx.Amount)
		}
		s.Balance = s.Balance.Add(tx.Amount)
		s.Count++
	}
	return s
}

// Dashboard bundles the period-scoped aggregates. It applies only the period
// filter, so it can differ from the table when search or category filters
// are active.
type Dashboard struct {
	Period  core.Period           `json:"period"`
	Range   *Range                `json:"range,omitempty"`
	Summary core.PeriodSummary    `json:"summary"`
	Totals  []core.CategoryAmount `json:"totals"`
	Series  TimeSeries            `json:"series"`
}

func BuildDashboard(txs []core.Transaction, cats Categories, currency string, p core.Period, from, to core.Date, now time.Time, mode SeriesMode) Dashboard {
	inPeriod := FilterPeriod(txs, p, now, from, to)
	d := Dashboard{
		Period:  p,
		Summary: Summarize(inPeriod),
		Totals:  CategoryTotals(inPeriod, cats, currency),
		Series:  BuildTimeSeries(inPeriod, cats, mode),
	}
	if r, ok := PeriodRange(p, now, from, to); ok {
		d.Range = &r
	}
	return d
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
