package views

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"

	"budgetbook/internal/core"
)

var march15 = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func tx(id, date string, cents int64, category string, data core.CustomData) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		ID:         id,
		Date:       d,
		Amount:     core.Money{Cents: cents},
		Currency:   "USD",
		CategoryID: category,
		CustomData: data,
	}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func TestPeriodRange(t *testing.T) {
	tests := []struct {
		period   core.Period
		from, to string
	}{
		{core.PeriodToday, "2024-03-15", "2024-03-15"},
		{core.PeriodYesterday, "2024-03-14", "2024-03-14"},
		{core.PeriodLast7Days, "2024-03-08", "2024-03-15"},
		{core.PeriodLast30Days, "2024-02-14", "2024-03-15"},
		{core.PeriodThisMonth, "2024-03-01", "2024-03-15"},
		{core.PeriodLastMonth, "2024-02-01", "2024-02-29"},
		{core.PeriodThisYear, "2024-01-01", "2024-03-15"},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			r, ok := PeriodRange(tt.period, march15, core.Date{}, core.Date{})
			require.True(t, ok)
			assert.Equal(t, tt.from, r.From.String())
			assert.Equal(t, tt.to, r.To.String())
		})
	}

	_, ok := PeriodRange(core.PeriodAll, march15, core.Date{}, core.Date{})
	assert.False(t, ok)
}

func TestLastMonthAcrossYearBoundary(t *testing.T) {
	r, ok := PeriodRange(core.PeriodLastMonth, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), core.Date{}, core.Date{})
	require.True(t, ok)
	assert.Equal(t, "2023-12-01", r.From.String())
	assert.Equal(t, "2023-12-31", r.To.String())
}

func TestFilterPeriod_Last7DaysInclusive(t *testing.T) {
	txs := []core.Transaction{
		tx("in", "2024-03-08", -100, "", nil),
		tx("out", "2024-03-07", -100, "", nil),
		tx("today", "2024-03-15", -100, "", nil),
	}
	got := FilterPeriod(txs, core.PeriodLast7Days, march15, core.Date{}, core.Date{})
	assert.ElementsMatch(t, []string{"in", "today"}, ids(got))
}

func TestFilterPeriod_CustomNeedsBothBounds(t *testing.T) {
	txs := []core.Transaction{
		tx("a", "2024-01-01", -100, "", nil),
		tx("b", "2024-02-01", -100, "", nil),
	}
	from := core.NewDate(2024, 1, 15)
	to := core.NewDate(2024, 2, 15)

	assert.Equal(t, []string{"b"}, ids(FilterPeriod(txs, core.PeriodCustom, march15, from, to)))
	assert.Len(t, FilterPeriod(txs, core.PeriodCustom, march15, from, core.Date{}), 2)
	assert.Len(t, FilterPeriod(txs, core.PeriodCustom, march15, core.Date{}, to), 2)
}

func TestMatchSearch(t *testing.T) {
	withData := tx("a", "2024-03-01", -100, "c1", core.CustomData{"Vendor": "Corner Shop", "Qty": float64(12)})
	withoutData := tx("b", "2024-03-01", -100, "c1", nil)
	withoutData.Description = "corner"

	assert.True(t, MatchSearch(withData, "corner"))
	assert.True(t, MatchSearch(withData, "12"))
	assert.False(t, MatchSearch(withData, "Vendor"), "keys are not searched")
	assert.False(t, MatchSearch(withoutData, "corner"), "description is not searched")
	assert.True(t, MatchSearch(withoutData, ""))
}

func TestSortByCategoryUsesNames(t *testing.T) {
	cats := IndexCategories([]core.Category{
		{ID: "1", Name: "Zebra"},
		{ID: "2", Name: "Apple"},
		{ID: "3", Name: "éclair"},
	})
	txs := []core.Transaction{
		tx("z", "2024-03-01", -1, "1", nil),
		tx("a", "2024-03-02", -1, "2", nil),
		tx("e", "2024-03-03", -1, "3", nil),
	}

	Sort(txs, cats, SortState{Column: SortCategory}, language.English)
	assert.Equal(t, []string{"a", "e", "z"}, ids(txs))

	Sort(txs, cats, SortState{Column: SortCategory, Desc: true}, language.English)
	assert.Equal(t, []string{"z", "e", "a"}, ids(txs))
}

func TestSortState_Toggle(t *testing.T) {
	s := DefaultSort()
	s = s.Toggle(SortDate)
	assert.Equal(t, SortState{Column: SortDate, Desc: false}, s)
	s = s.Toggle(SortAmount)
	assert.Equal(t, SortState{Column: SortAmount, Desc: true}, s)
	s = s.Toggle(SortAmount)
	assert.False(t, s.Desc)
}

func TestApply_CombinesFiltersThenSorts(t *testing.T) {
	cats := IndexCategories([]core.Category{{ID: "food", Name: "Food"}, {ID: "fun", Name: "Fun"}})
	txs := []core.Transaction{
		tx("1", "2024-03-10", -500, "food", core.CustomData{"Shop": "Market"}),
		tx("2", "2024-03-12", -900, "food", core.CustomData{"Shop": "market hall"}),
		tx("3", "2024-03-12", -100, "fun", core.CustomData{"Shop": "Market"}),
		tx("4", "2024-01-12", -100, "food", core.CustomData{"Shop": "Market"}),
	}

	got := Apply(txs, cats, Query{
		Period:     core.PeriodThisMonth,
		Search:     "MARKET",
		CategoryID: "food",
		Sort:       SortState{Column: SortAmount},
	}, march15)
	assert.Equal(t, []string{"2", "1"}, ids(got))
	assert.Equal(t, "1", txs[0].ID, "input must not be reordered")

	all := Apply(txs, cats, Query{Period: core.PeriodAll, CategoryID: AllCategories}, march15)
	assert.Equal(t, []string{"2", "3", "1", "4"}, ids(all))
}

func TestCategoryTotals(t *testing.T) {
	cats := IndexCategories([]core.Category{{ID: "food", Name: "Food"}})
	txs := []core.Transaction{
		tx("1", "2024-03-10", -1050, "food", nil),
		tx("2", "2024-03-11", -200, "food", nil),
		tx("3", "2024-03-11", 300, "deleted", nil),
		tx("4", "2024-03-11", -100, "", nil),
	}

	got := CategoryTotals(txs, cats, "EUR")
	require.Len(t, got, 2)
	assert.Equal(t, "Food", got[0].Name)
	assert.Equal(t, int64(-1250), got[0].Amount.Cents)
	assert.Equal(t, "Food: EUR -12.50", got[0].Label)
	assert.Equal(t, core.UncategorizedName, got[1].Name)
	assert.Equal(t, int64(200), got[1].Amount.Cents)
}

func TestBuildTimeSeries(t *testing.T) {
	cats := IndexCategories([]core.Category{{ID: "food", Name: "Food"}, {ID: "fun", Name: "Fun"}})
	txs := []core.Transaction{
		tx("2", "2024-03-11", -500, "food", nil),
		tx("1", "2024-03-10", -1000, "food", nil),
		tx("3", "2024-03-12", -300, "fun", nil),
	}

	cum := BuildTimeSeries(txs, cats, ModeCumulative)
	require.Len(t, cum.Dates, 3)
	assert.Equal(t, "2024-03-10", cum.Dates[0].String())
	require.Equal(t, "Food", cum.Series[0].Category)
	assert.Equal(t, []core.Money{{Cents: -1000}, {Cents: -1500}, {Cents: -1500}}, cum.Series[0].Values)
	assert.Equal(t, []core.Money{{Cents: 0}, {Cents: 0}, {Cents: -300}}, cum.Series[1].Values)

	absolute := BuildTimeSeries(txs, cats, ModeAbsolute)
	assert.Equal(t, []core.Money{{Cents: -1000}, {Cents: -500}, {Cents: 0}}, absolute.Series[0].Values)
}

func TestBuildTimeSeries_TwoDays(t *testing.T) {
	cats := IndexCategories([]core.Category{{ID: "c", Name: "C"}})
	txs := []core.Transaction{
		tx("b", "2024-03-02", -500, "c", nil),
		tx("a", "2024-03-01", -1000, "c", nil),
	}
	cum := BuildTimeSeries(txs, cats, ModeCumulative)
	assert.Equal(t, []string{"-10.00", "-15.00"}, []string{cum.Series[0].Values[0].Fixed(), cum.Series[0].Values[1].Fixed()})
	abs := BuildTimeSeries(txs, cats, ModeAbsolute)
	assert.Equal(t, []string{"-10.00", "-5.00"}, []string{abs.Series[0].Values[0].Fixed(), abs.Series[0].Values[1].Fixed()})
}

func TestSummarize(t *testing.T) {
	s := Summarize([]core.Transaction{
		tx("1", "2024-03-01", 10000, "", nil),
		tx("2", "2024-03-01", -2500, "", nil),
		tx("3", "2024-03-01", -500, "", nil),
	})
	assert.Equal(t, int64(10000), s.Income.Cents)
	assert.Equal(t, int64(-3000), s.Expenses.Cents)
	assert.Equal(t, int64(7000), s.Balance.Cents)
	assert.Equal(t, 3, s.Count)
}

func TestBuildDashboard_OnlyPeriodFilter(t *testing.T) {
	cats := IndexCategories(nil)
	txs := []core.Transaction{
		tx("1", "2024-03-14", -100, "", nil),
		tx("2", "2023-03-14", -100, "", nil),
	}
	d := BuildDashboard(txs, cats, "USD", core.PeriodThisYear, core.Date{}, core.Date{}, march15, ModeAbsolute)
	assert.Equal(t, 1, d.Summary.Count)
	require.NotNil(t, d.Range)
	assert.Equal(t, "2024-01-01", d.Range.From.String())
}

func TestExport_ColumnsFollowCurrentSchema(t *testing.T) {
	cats := IndexCategories([]core.Category{{ID: "food", Name: "Food"}})
	fields := []core.Field{{Name: "Shop", Type: core.FieldText}, {Name: "Qty", Type: core.FieldNumber}}
	txs := []core.Transaction{
		{
			ID: "1", Date: core.NewDate(2024, 3, 1), Description: "Lunch", CategoryID: "food",
			Currency: "USD", Amount: core.Money{Cents: -1250},
			CustomData: core.CustomData{"Shop": "Corner", "Removed": "orphan"},
		},
	}

	table := BuildTable(txs, cats, fields)
	assert.Equal(t, []string{"Date", "Description", "Category", "Shop", "Qty", "Currency", "Amount"}, table.Header)
	assert.Equal(t, []string{"2024-03-01", "Lunch", "Food", "Corner", "-", "USD", "-12.50"}, table.Rows[0].Cells)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))
	assert.NotContains(t, out, "orphan")

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, table.Header, records[0])
}

func TestWriteXLSX(t *testing.T) {
	table := BuildTable([]core.Transaction{
		tx("1", "2024-03-01", -1250, "", nil),
	}, IndexCategories(nil), nil)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Date", "Description", "Category", "Currency", "Amount"}, rows[0])
	assert.Equal(t, "-12.5", rows[1][4])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteXLSX_ReportsWriteFailure(t *testing.T) {
	table := BuildTable([]core.Transaction{tx("1", "2024-03-01", -1250, "", nil)}, IndexCategories(nil), nil)

	err := WriteXLSX(failingWriter{}, table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "Home budget_transactions_2024-03-15.csv", ExportFilename("Home budget", march15, "csv"))
	assert.Equal(t, "a_b_transactions_2024-03-15.xlsx", ExportFilename("a/b", march15, "xlsx"))
}

func TestSelectionAndNavigator(t *testing.T) {
	s := NewSelection("a", "b")
	assert.True(t, s.Toggle("c"))
	assert.False(t, s.Toggle("a"))
	assert.Equal(t, []string{"b", "c"}, s.IDs())

	s.SelectAll([]core.Transaction{{ID: "x"}, {ID: "y"}, {ID: "z"}})
	assert.Equal(t, 3, s.Len())

	n := NewNavigator(s.IDs())
	assert.Equal(t, "x", n.Current())
	assert.False(t, n.HasPrev())
	id, ok := n.Next()
	assert.True(t, ok)
	assert.Equal(t, "y", id)
	pos, total := n.Position()
	assert.Equal(t, 1, pos)
	assert.Equal(t, 3, total)
	assert.Equal(t, "x", n.PrevID())
	assert.Equal(t, "z", n.NextID())

	n.Next()
	_, ok = n.Next()
	assert.False(t, ok)
	assert.Equal(t, "z", n.Current())

	// the list is a snapshot
	s.Clear()
	assert.Equal(t, "z", n.Current())

	assert.Equal(t, "z", NavigatorAt([]string{"x", "y", "z"}, 10).Current())
	assert.Equal(t, "", NewNavigator(nil).Current())
}
