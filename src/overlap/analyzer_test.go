package overlap

import (
	"context"
	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory stand-in for the Candle Repository implementing
// just the predicates the analyzer needs.
type fakeRepo struct {
	present map[int64]bool
	tf      timegrid.Timeframe
}

func newFakeRepo(tf timegrid.Timeframe) *fakeRepo {
	return &fakeRepo{present: make(map[int64]bool), tf: tf}
}

func (f *fakeRepo) mark(t time.Time) {
	f.present[t.UTC().Unix()] = true
}

func (f *fakeRepo) HasDataAt(_ context.Context, _ string, _ timegrid.Timeframe, t time.Time) (bool, error) {
	return f.present[t.UTC().Unix()], nil
}

func (f *fakeRepo) HasAnyInRange(_ context.Context, _ string, tf timegrid.Timeframe, start, end time.Time) (bool, error) {
	boundaries, err := timegrid.Enumerate(start, end, tf)
	if err != nil {
		return false, err
	}
	for _, b := range boundaries {
		if f.present[b.UTC().Unix()] {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) IsRangeComplete(_ context.Context, _ string, tf timegrid.Timeframe, start, end time.Time, expectedCount int) (bool, error) {
	boundaries, err := timegrid.Enumerate(start, end, tf)
	if err != nil {
		return false, err
	}
	count := 0
	for _, b := range boundaries {
		if f.present[b.UTC().Unix()] {
			count++
		}
	}
	return count == expectedCount, nil
}

func (f *fakeRepo) FindLastContinuousTimeFrom(_ context.Context, _ string, tf timegrid.Timeframe, start time.Time) (time.Time, bool, error) {
	if !f.present[start.UTC().Unix()] {
		return time.Time{}, false, nil
	}
	cur := start
	for {
		next, err := timegrid.Advance(cur, tf, 1)
		if err != nil {
			return time.Time{}, false, err
		}
		if !f.present[next.UTC().Unix()] {
			return cur, true, nil
		}
		cur = next
	}
}

func (f *fakeRepo) FindDataStartInRange(_ context.Context, _ string, tf timegrid.Timeframe, start, end time.Time) (time.Time, bool, error) {
	boundaries, err := timegrid.Enumerate(start, end, tf)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, b := range boundaries {
		if f.present[b.UTC().Unix()] {
			return b, true, nil
		}
	}
	return time.Time{}, false, nil
}

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func boundary(n int) time.Time {
	t, _ := timegrid.Advance(base, timegrid.TF1m, n)
	return t
}

func TestClassify_NoOverlap(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(timegrid.TF1m)
	analyzer := NewAnalyzer(repo)

	result, err := analyzer.Classify(context.Background(), model.OverlapRequest{
		Timeframe: timegrid.TF1m, TargetStart: boundary(0), TargetEnd: boundary(5), ExpectedCount: 6,
	})
	require.NoError(t, err)
	require.Equal(t, model.NoOverlap, result.State)
}

func TestClassify_CompleteOverlap(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(timegrid.TF1m)
	for i := 0; i <= 5; i++ {
		repo.mark(boundary(i))
	}
	analyzer := NewAnalyzer(repo)

	result, err := analyzer.Classify(context.Background(), model.OverlapRequest{
		Timeframe: timegrid.TF1m, TargetStart: boundary(0), TargetEnd: boundary(5), ExpectedCount: 6,
	})
	require.NoError(t, err)
	require.Equal(t, model.CompleteOverlap, result.State)
}

func TestClassify_PartialStart(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(timegrid.TF1m)
	// present: boundaries 3..5 (newest end), missing 0..2 (oldest start)
	for i := 3; i <= 5; i++ {
		repo.mark(boundary(i))
	}
	analyzer := NewAnalyzer(repo)

	result, err := analyzer.Classify(context.Background(), model.OverlapRequest{
		Timeframe: timegrid.TF1m, TargetStart: boundary(0), TargetEnd: boundary(5), ExpectedCount: 6,
	})
	require.NoError(t, err)
	require.Equal(t, model.PartialStart, result.State)
	require.True(t, result.FetchFrom.Equal(boundary(0)))
	require.True(t, result.FetchTo.Equal(boundary(2)))
	require.Equal(t, 3, result.FetchCount)
}

func TestClassify_PartialMiddleContinuous(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(timegrid.TF1m)
	// present: boundaries 2..4 only (interior block, not touching either end)
	for i := 2; i <= 4; i++ {
		repo.mark(boundary(i))
	}
	analyzer := NewAnalyzer(repo)

	result, err := analyzer.Classify(context.Background(), model.OverlapRequest{
		Timeframe: timegrid.TF1m, TargetStart: boundary(0), TargetEnd: boundary(6), ExpectedCount: 7,
	})
	require.NoError(t, err)
	require.Equal(t, model.PartialMiddleContinuous, result.State)
}

func TestClassify_PartialMiddleFragment(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(timegrid.TF1m)
	// present: scattered, non-contiguous boundaries in the interior
	repo.mark(boundary(2))
	repo.mark(boundary(4))
	analyzer := NewAnalyzer(repo)

	result, err := analyzer.Classify(context.Background(), model.OverlapRequest{
		Timeframe: timegrid.TF1m, TargetStart: boundary(0), TargetEnd: boundary(6), ExpectedCount: 7,
	})
	require.NoError(t, err)
	require.Equal(t, model.PartialMiddleFragment, result.State)
}
