// Package cashcount keeps a per-project, per-day cash count worksheet:
// how many notes and coins of each denomination are in the till, plus
// loose entries such as vouchers or IOUs. Worksheets live for the calendar
// day they belong to and are discarded when the day rolls over.
package cashcount

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"budgetbook/internal/core"
)

var ErrInvalidDenomination = errors.New("invalid denomination")

// Bounds on a single line; the largest subtotal is 1e12 cents.
const (
	MaxDenomination = 1_000_000
	MaxCount        = 1_000_000
)

// DefaultDenominations are the note and coin values offered by default, in
// cents.
var DefaultDenominations = []int64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000, 50000}

// Entry is a named or anonymous amount counted alongside the cash.
type Entry struct {
	Name   string     `json:"name,omitempty"`
	Amount core.Money `json:"amount"`
}

type Worksheet struct {
	ProjectID string    `json:"project_id"`
	Day       core.Date `json:"day"`
	// Denominations maps a value in cents to the number of pieces.
	Denominations map[int64]int `json:"denominations"`
	Entries       []Entry       `json:"entries"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func New(projectID string, day core.Date) Worksheet {
	return Worksheet{
		ProjectID:     projectID,
		Day:           day,
		Denominations: map[int64]int{},
		Entries:       []Entry{},
	}
}

// SetCount records count pieces of the denomination. A zero count removes it.
func (w *Worksheet) SetCount(cents int64, count int) error {
	if cents <= 0 || cents > MaxDenomination {
		return fmt.Errorf("%w: %d", ErrInvalidDenomination, cents)
	}
	if count < 0 || count > MaxCount {
		return fmt.Errorf("%w: count %d", ErrInvalidDenomination, count)
	}
	if w.Denominations == nil {
		w.Denominations = map[int64]int{}
	}
	if count == 0 {
		delete(w.Denominations, cents)
		return nil
	}
	w.Denominations[cents] = count
	return nil
}

func (w *Worksheet) AddEntry(name string, amount core.Money) error {
	if amount.Cents == 0 {
		return core.ErrInvalidAmount
	}
	w.Entries = append(w.Entries, Entry{Name: strings.TrimSpace(name), Amount: amount})
	return nil
}

func (w *Worksheet) RemoveEntry(index int) error {
	if index < 0 || index >= len(w.Entries) {
		return core.ErrOutOfRange
	}
	w.Entries = append(w.Entries[:index], w.Entries[index+1:]...)
	return nil
}

// CashTotal sums the counted denominations.
func (w Worksheet) CashTotal() core.Money {
	var total int64
	for cents, n := range w.Denominations {
		total += cents * int64(n)
	}
	return core.Money{Cents: total}
}

func (w Worksheet) EntriesTotal() core.Money {
	var total core.Money
	for _, e := range w.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Total is the cash plus every entry.
func (w Worksheet) Total() core.Money {
	return w.CashTotal().Add(w.EntriesTotal())
}

// Lines returns the counted denominations, largest first.
func (w Worksheet) Lines() []Line {
	out := make([]Line, 0, len(w.Denominations))
	for cents, n := range w.Denominations {
		out = append(out, Line{Denomination: core.Money{Cents: cents}, Count: n, Subtotal: core.Money{Cents: cents * int64(n)}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denomination.Cents > out[j].Denomination.Cents })
	return out
}

type Line struct {
	Denomination core.Money `json:"denomination"`
	Count        int        `json:"count"`
	Subtotal     core.Money `json:"subtotal"`
}

// Key is the storage key of a worksheet.
func Key(projectID string, day core.Date) string {
	return "cashcount:" + projectID + ":" + day.String()
}

// untilMidnight returns the time left until the day after now begins in
// now's location.
func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
