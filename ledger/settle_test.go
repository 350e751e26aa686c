package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettle_Accrual(t *testing.T) {
	rec := StakeRecord{StakedAmount: 250, LastUpdateTime: 1_000}

	require.NoError(t, Settle(&rec, 1_040))
	require.Equal(t, uint64(250*40), rec.TotalPoints)
	require.Equal(t, int64(1_040), rec.LastUpdateTime)

	require.NoError(t, Settle(&rec, 1_100))
	require.Equal(t, uint64(250*100), rec.TotalPoints)
	require.Equal(t, int64(1_100), rec.LastUpdateTime)
}

func TestSettle_IdempotentAtFixedTime(t *testing.T) {
	rec := StakeRecord{StakedAmount: 7, LastUpdateTime: 10}

	require.NoError(t, Settle(&rec, 20))
	first := rec

	require.NoError(t, Settle(&rec, 20))
	require.Equal(t, first, rec)
}

func TestSettle_ClockBackwardsIsNoop(t *testing.T) {
	rec := StakeRecord{StakedAmount: 7, TotalPoints: 3, LastUpdateTime: 500}
	before := rec

	require.NoError(t, Settle(&rec, 499))
	require.Equal(t, before, rec)

	require.NoError(t, Settle(&rec, 0))
	require.Equal(t, before, rec)
}

func TestSettle_ZeroStakeAdvancesTime(t *testing.T) {
	rec := StakeRecord{LastUpdateTime: 100}
	require.NoError(t, Settle(&rec, 150))
	require.Zero(t, rec.TotalPoints)
	require.Equal(t, int64(150), rec.LastUpdateTime)
}

func TestSettle_Overflow(t *testing.T) {
	cases := []struct {
		name string
		rec  StakeRecord
		now  int64
	}{
		{
			name: "multiplication",
			rec:  StakeRecord{StakedAmount: math.MaxUint64 / 2, LastUpdateTime: 0},
			now:  3,
		},
		{
			name: "addition",
			rec:  StakeRecord{StakedAmount: 1, TotalPoints: math.MaxUint64, LastUpdateTime: 0},
			now:  1,
		},
		{
			name: "elapsed",
			rec:  StakeRecord{StakedAmount: 1, LastUpdateTime: math.MinInt64},
			now:  math.MaxInt64,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tc.rec
			err := Settle(&rec, tc.now)
			require.ErrorIs(t, err, ErrMathOverflow)
			require.Equal(t, tc.rec, rec, "record must be unchanged on overflow")
		})
	}
}

func TestAddUint64(t *testing.T) {
	sum, ok := AddUint64(math.MaxUint64-1, 1)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	require.False(t, ok)
}

func TestSubInt64(t *testing.T) {
	d, ok := subInt64(10, 3)
	require.True(t, ok)
	require.Equal(t, int64(7), d)

	d, ok = subInt64(-5, -10)
	require.True(t, ok)
	require.Equal(t, int64(5), d)

	_, ok = subInt64(math.MinInt64, 1)
	require.False(t, ok)

	_, ok = subInt64(math.MaxInt64, -1)
	require.False(t, ok)
}
