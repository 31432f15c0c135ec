package cashcount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbook/internal/core"
)

func TestWorksheetTotals(t *testing.T) {
	w := New("p1", core.NewDate(2024, 5, 10))

	require.NoError(t, w.SetCount(2000, 3))
	require.NoError(t, w.SetCount(50, 4))
	require.NoError(t, w.SetCount(100, 1))
	require.NoError(t, w.SetCount(100, 0))
	require.NoError(t, w.AddEntry(" voucher ", core.Money{Cents: 1500}))
	require.NoError(t, w.AddEntry("", core.Money{Cents: -300}))

	assert.Equal(t, int64(6200), w.CashTotal().Cents)
	assert.Equal(t, int64(1200), w.EntriesTotal().Cents)
	assert.Equal(t, int64(7400), w.Total().Cents)
	assert.Equal(t, "voucher", w.Entries[0].Name)

	lines := w.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(2000), lines[0].Denomination.Cents)
	assert.Equal(t, int64(6000), lines[0].Subtotal.Cents)
	assert.Equal(t, 4, lines[1].Count)
}

func TestWorksheetRejectsBadInput(t *testing.T) {
	w := New("p1", core.NewDate(2024, 5, 10))

	assert.ErrorIs(t, w.SetCount(0, 1), ErrInvalidDenomination)
	assert.ErrorIs(t, w.SetCount(100, -1), ErrInvalidDenomination)
	assert.ErrorIs(t, w.SetCount(MaxDenomination+1, 1), ErrInvalidDenomination)
	assert.ErrorIs(t, w.SetCount(100, MaxCount+1), ErrInvalidDenomination)
	assert.ErrorIs(t, w.AddEntry("nothing", core.Money{}), core.ErrInvalidAmount)
	assert.ErrorIs(t, w.RemoveEntry(0), core.ErrOutOfRange)

	require.NoError(t, w.AddEntry("a", core.Money{Cents: 1}))
	require.NoError(t, w.AddEntry("b", core.Money{Cents: 2}))
	require.NoError(t, w.RemoveEntry(0))
	require.Len(t, w.Entries, 1)
	assert.Equal(t, "b", w.Entries[0].Name)
}

func TestKeyAndMidnight(t *testing.T) {
	assert.Equal(t, "cashcount:p1:2024-05-10", Key("p1", core.NewDate(2024, 5, 10)))

	now := time.Date(2024, 5, 10, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute, untilMidnight(now))

	endOfYear := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Minute, untilMidnight(endOfYear))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	day := core.DateOf(now)

	w, err := s.Load(ctx, "p1", day)
	require.NoError(t, err)
	assert.Zero(t, w.Total().Cents)

	require.NoError(t, w.SetCount(500, 2))
	require.NoError(t, w.AddEntry("tips", core.Money{Cents: 250}))
	require.NoError(t, s.Save(ctx, w))

	got, err := s.Load(ctx, "p1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), got.Total().Cents)
	assert.Equal(t, now, got.UpdatedAt)

	other, err := s.Load(ctx, "p2", day)
	require.NoError(t, err)
	assert.Empty(t, other.Denominations)

	require.NoError(t, s.Reset(ctx, "p1", day))
	got, err = s.Load(ctx, "p1", day)
	require.NoError(t, err)
	assert.Zero(t, got.Total().Cents)
}

func TestMemoryStoreExpiresAtMidnight(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	day := core.DateOf(now)

	w := New("p1", day)
	require.NoError(t, w.SetCount(100, 1))
	require.NoError(t, s.Save(ctx, w))

	now = now.Add(59 * time.Minute)
	got, err := s.Load(ctx, "p1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Total().Cents)

	now = now.Add(time.Minute)
	got, err = s.Load(ctx, "p1", day)
	require.NoError(t, err)
	assert.Zero(t, got.Total().Cents)
}

func TestDecodeIgnoresOtherDay(t *testing.T) {
	data := []byte(`{"project_id":"p1","day":"2024-05-09","denominations":{"100":1},"entries":[]}`)

	got, err := decode(data, "p1", core.NewDate(2024, 5, 10))
	require.NoError(t, err)
	assert.Empty(t, got.Denominations)

	got, err = decode(data, "p1", core.NewDate(2024, 5, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Denominations[100])

	_, err = decode([]byte("{"), "p1", core.NewDate(2024, 5, 9))
	assert.Error(t, err)
}

func TestWorksheetLargestLineFits(t *testing.T) {
	w := New("p1", core.NewDate(2024, 5, 10))
	require.NoError(t, w.SetCount(MaxDenomination, MaxCount))
	assert.Equal(t, int64(MaxDenomination)*MaxCount, w.CashTotal().Cents)
	assert.Equal(t, w.CashTotal(), w.Lines()[0].Subtotal)
}

func TestMemoryStoreSaveDropsPastDays(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	for _, p := range []string{"p1", "p2"} {
		w := New(p, core.DateOf(now))
		require.NoError(t, w.SetCount(100, 1))
		require.NoError(t, s.Save(ctx, w))
	}
	require.Len(t, s.items, 2)

	now = now.Add(24 * time.Hour)
	w := New("p1", core.DateOf(now))
	require.NoError(t, w.SetCount(200, 1))
	require.NoError(t, s.Save(ctx, w))

	assert.Len(t, s.items, 1)
	assert.Contains(t, s.items, Key("p1", core.DateOf(now)))
}
