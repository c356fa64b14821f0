package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAlignDown_FixedInterval(t *testing.T) {
	t.Parallel()
	in := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	got, err := AlignDown(in, TF15m)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), got)
}

func TestAlignDown_Calendar(t *testing.T) {
	t.Parallel()
	in := time.Date(2025, 6, 17, 12, 34, 56, 0, time.UTC)

	month, err := AlignDown(in, TF1M)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), month)

	year, err := AlignDown(in, TF1y)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), year)
}

func TestAdvance_RequiresAlignedInput(t *testing.T) {
	t.Parallel()
	unaligned := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	_, err := Advance(unaligned, TF1m, 1)
	require.ErrorIs(t, err, ErrUnalignedTimestamp)
}

func TestAdvance_FixedAndCalendar(t *testing.T) {
	t.Parallel()
	aligned := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	next, err := Advance(aligned, TF15m, 1)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 12, 45, 0, 0, time.UTC), next)

	prev, err := Advance(aligned, TF15m, -2)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), prev)

	monthStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	nextMonth, err := Advance(monthStart, TF1M, 1)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), nextMonth)
}

func TestEnumerate_InclusiveBothEnds(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC)

	boundaries, err := Enumerate(start, end, TF15m)
	require.NoError(t, err)
	require.Len(t, boundaries, 5)
	require.Equal(t, start, boundaries[0])
	require.Equal(t, end, boundaries[len(boundaries)-1])
}

func TestEnumerate_RoundsUpUnalignedStart(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 35, 0, 0, time.UTC)

	boundaries, err := Enumerate(start, end, TF15m)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 0, 15, 0, 0, time.UTC), boundaries[0])
}

func TestCountBetween_MatchesEnumerateLength(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	boundaries, err := Enumerate(start, end, TF1m)
	require.NoError(t, err)
	count, err := CountBetween(start, end, TF1m)
	require.NoError(t, err)
	require.Equal(t, len(boundaries), count)
}

func TestSeconds_RejectsCalendarTimeframes(t *testing.T) {
	t.Parallel()
	_, err := Seconds(TF1M)
	require.ErrorIs(t, err, ErrInvalidTimeframe)
	_, err = Seconds(TF1y)
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestIsValid(t *testing.T) {
	t.Parallel()
	require.True(t, IsValid(TF1s))
	require.True(t, IsValid(TF1y))
	require.False(t, IsValid(Timeframe("2m")))
}
