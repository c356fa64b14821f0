// Package overlap implements the Overlap Analyzer: the five-state
// classifier that, given a requested time window and the repository's
// coverage predicates, decides what subset of the range actually needs an
// upstream fetch. It performs no I/O beyond calling those predicates and
// never mutates state.
package overlap

import (
	"context"
	"time"

	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"
)

// Repository is the subset of the Candle Repository the analyzer depends
// on. Keeping it as an interface lets tests substitute a fake without
// standing up a real store.
type Repository interface {
	HasAnyInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (bool, error)
	IsRangeComplete(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time, expectedCount int) (bool, error)
	HasDataAt(ctx context.Context, symbol string, tf timegrid.Timeframe, t time.Time) (bool, error)
	FindLastContinuousTimeFrom(ctx context.Context, symbol string, tf timegrid.Timeframe, start time.Time) (time.Time, bool, error)
	FindDataStartInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (time.Time, bool, error)
}

// Analyzer classifies overlap requests against a Repository.
type Analyzer struct {
	repo Repository
}

// NewAnalyzer builds an Analyzer over the given repository predicates.
func NewAnalyzer(repo Repository) *Analyzer {
	return &Analyzer{repo: repo}
}

// Classify runs the five-state classification algorithm from §4.3, in the
// documented early-termination order.
func (a *Analyzer) Classify(ctx context.Context, req model.OverlapRequest) (model.OverlapResult, error) {
	any, err := a.repo.HasAnyInRange(ctx, req.Symbol, req.Timeframe, req.TargetStart, req.TargetEnd)
	if err != nil {
		return model.OverlapResult{}, err
	}
	if !any {
		return model.OverlapResult{State: model.NoOverlap}, nil
	}

	complete, err := a.repo.IsRangeComplete(ctx, req.Symbol, req.Timeframe, req.TargetStart, req.TargetEnd, req.ExpectedCount)
	if err != nil {
		return model.OverlapResult{}, err
	}
	if complete {
		return model.OverlapResult{State: model.CompleteOverlap}, nil
	}

	// Probe the newest end.
	newestPresent, err := a.repo.HasDataAt(ctx, req.Symbol, req.Timeframe, req.TargetEnd)
	if err != nil {
		return model.OverlapResult{}, err
	}
	if newestPresent {
		// Walk backward from TargetEnd to find the oldest continuous
		// boundary ending at TargetEnd.
		oldestContinuousFromEnd, err := a.findOldestContinuousEndingAt(ctx, req.Symbol, req.Timeframe, req.TargetEnd, req.TargetStart)
		if err != nil {
			return model.OverlapResult{}, err
		}

		if oldestContinuousFromEnd.Equal(req.TargetStart) {
			// Continuous block touches TargetStart: would already have
			// been COMPLETE_OVERLAP. Fall through defensively.
			return model.OverlapResult{State: model.CompleteOverlap}, nil
		}

		fetchTo, err := timegrid.Advance(oldestContinuousFromEnd, req.Timeframe, -1)
		if err != nil {
			return model.OverlapResult{}, err
		}
		count, err := timegrid.CountBetween(req.TargetStart, fetchTo, req.Timeframe)
		if err != nil {
			return model.OverlapResult{}, err
		}
		return model.OverlapResult{
			State:      model.PartialStart,
			FetchFrom:  req.TargetStart,
			FetchTo:    fetchTo,
			FetchCount: count,
		}, nil
	}

	// Probe the older end.
	dataStart, found, err := a.repo.FindDataStartInRange(ctx, req.Symbol, req.Timeframe, req.TargetStart, req.TargetEnd)
	if err != nil {
		return model.OverlapResult{}, err
	}
	if found && dataStart.After(req.TargetStart) {
		continuousTo, ok, err := a.repo.FindLastContinuousTimeFrom(ctx, req.Symbol, req.Timeframe, dataStart)
		if err != nil {
			return model.OverlapResult{}, err
		}
		if ok {
			// The block is continuous only if no row lies after its end.
			after, err := timegrid.Advance(continuousTo, req.Timeframe, 1)
			if err != nil {
				return model.OverlapResult{}, err
			}
			more, err := a.repo.HasAnyInRange(ctx, req.Symbol, req.Timeframe, after, req.TargetEnd)
			if err != nil {
				return model.OverlapResult{}, err
			}
			if !more {
				return model.OverlapResult{State: model.PartialMiddleContinuous}, nil
			}
		}
	}
	return model.OverlapResult{State: model.PartialMiddleFragment}, nil
}

// findOldestContinuousEndingAt walks backward from end toward floor,
// returning the oldest boundary t such that every boundary in [t, end] is
// present. It does not check end itself: the caller only invokes this once
// HasDataAt(end) is already known true.
func (a *Analyzer) findOldestContinuousEndingAt(ctx context.Context, symbol string, tf timegrid.Timeframe, end, floor time.Time) (time.Time, error) {
	cur := end
	for {
		prev, err := timegrid.Advance(cur, tf, -1)
		if err != nil {
			return time.Time{}, err
		}
		if prev.Before(floor) {
			return cur, nil
		}
		ok, err := a.repo.HasDataAt(ctx, symbol, tf, prev)
		if err != nil {
			return time.Time{}, err
		}
		if !ok {
			return cur, nil
		}
		cur = prev
	}
}
