// Package timegrid implements the pure boundary arithmetic that every other
// candle-provider component relies on: mapping a timeframe to a grid of
// aligned timestamps, and walking that grid forward or backward.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeframe is returned when a caller passes a timeframe outside
// the closed set recognised by the provider.
var ErrInvalidTimeframe = errors.New("timegrid: invalid timeframe")

// ErrUnalignedTimestamp is returned when a caller passes a timestamp that is
// not itself a grid boundary to a function that requires one.
var ErrUnalignedTimestamp = errors.New("timegrid: timestamp is not aligned to the grid")

// Timeframe is one of the closed set of Upbit candle intervals.
type Timeframe string

const (
	TF1s   Timeframe = "1s"
	TF1m   Timeframe = "1m"
	TF3m   Timeframe = "3m"
	TF5m   Timeframe = "5m"
	TF10m  Timeframe = "10m"
	TF15m  Timeframe = "15m"
	TF30m  Timeframe = "30m"
	TF60m  Timeframe = "60m"
	TF240m Timeframe = "240m"
	TF1d   Timeframe = "1d"
	TF1w   Timeframe = "1w"
	TF1M   Timeframe = "1M"
	TF1y   Timeframe = "1y"
)

// fixedSeconds holds the second interval for every timeframe whose grid is a
// simple modular offset from the Unix epoch. 1M and 1y are intentionally
// absent: their interval is calendar-variable and must never be used in
// arithmetic (see Seconds).
var fixedSeconds = map[Timeframe]int{
	TF1s:   1,
	TF1m:   60,
	TF3m:   180,
	TF5m:   300,
	TF10m:  600,
	TF15m:  900,
	TF30m:  1800,
	TF60m:  3600,
	TF240m: 14400,
	TF1d:   86400,
	TF1w:   7 * 86400,
}

// IsValid reports whether tf belongs to the closed set of recognised
// timeframes.
func IsValid(tf Timeframe) bool {
	switch tf {
	case TF1s, TF1m, TF3m, TF5m, TF10m, TF15m, TF30m, TF60m, TF240m, TF1d, TF1w, TF1M, TF1y:
		return true
	default:
		return false
	}
}

// IsCalendar reports whether tf's boundaries are calendar-aligned (month or
// year start) rather than modular offsets from the epoch.
func IsCalendar(tf Timeframe) bool {
	return tf == TF1M || tf == TF1y
}

// Seconds returns the fixed second interval for tf. It fails with
// ErrInvalidTimeframe for 1M/1y (symbolic, calendar-variable) and for any
// timeframe outside the closed set.
func Seconds(tf Timeframe) (int, error) {
	secs, ok := fixedSeconds[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTimeframe, tf)
	}
	return secs, nil
}

// AlignDown returns the greatest grid boundary t' <= t for tf, in UTC.
func AlignDown(t time.Time, tf Timeframe) (time.Time, error) {
	t = t.UTC()
	if IsCalendar(tf) {
		switch tf {
		case TF1M:
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		case TF1y:
			return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	secs, err := Seconds(tf)
	if err != nil {
		return time.Time{}, err
	}
	unix := t.Unix()
	step := int64(secs)
	aligned := (unix / step) * step
	if unix < 0 && unix%step != 0 {
		aligned -= step
	}
	return time.Unix(aligned, 0).UTC(), nil
}

// IsAligned reports whether t is itself a grid boundary for tf.
func IsAligned(t time.Time, tf Timeframe) (bool, error) {
	aligned, err := AlignDown(t, tf)
	if err != nil {
		return false, err
	}
	return t.UTC().Equal(aligned), nil
}

// Advance adds n (possibly negative) grid steps to an aligned timestamp t.
// It fails with ErrUnalignedTimestamp if t is not already a grid boundary.
func Advance(t time.Time, tf Timeframe, n int) (time.Time, error) {
	aligned, err := IsAligned(t, tf)
	if err != nil {
		return time.Time{}, err
	}
	if !aligned {
		return time.Time{}, fmt.Errorf("%w: %s at %s", ErrUnalignedTimestamp, tf, t)
	}
	t = t.UTC()

	if IsCalendar(tf) {
		switch tf {
		case TF1M:
			return t.AddDate(0, n, 0), nil
		case TF1y:
			return t.AddDate(n, 0, 0), nil
		}
	}

	secs, err := Seconds(tf)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(time.Duration(n) * time.Duration(secs) * time.Second), nil
}

// Enumerate returns every grid boundary in [start, end], inclusive on both
// ends. start and end need not themselves be aligned; the first emitted
// boundary is AlignDown(start, tf) rounded up to be >= start, if that
// boundary is itself < start it is skipped forward by one step.
func Enumerate(start, end time.Time, tf Timeframe) ([]time.Time, error) {
	if end.Before(start) {
		return nil, nil
	}
	first, err := AlignDown(start, tf)
	if err != nil {
		return nil, err
	}
	if first.Before(start.UTC()) {
		first, err = Advance(first, tf, 1)
		if err != nil {
			return nil, err
		}
	}

	var out []time.Time
	cur := first
	// Walk the grid one step at a time for every timeframe.
	for !cur.After(end.UTC()) {
		out = append(out, cur)
		cur, err = Advance(cur, tf, 1)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountBetween returns len(Enumerate(start, end, tf)) without allocating the
// full slice when possible.
func CountBetween(start, end time.Time, tf Timeframe) (int, error) {
	if IsCalendar(tf) {
		boundaries, err := Enumerate(start, end, tf)
		if err != nil {
			return 0, err
		}
		return len(boundaries), nil
	}

	if end.Before(start) {
		return 0, nil
	}
	first, err := AlignDown(start, tf)
	if err != nil {
		return 0, err
	}
	if first.Before(start.UTC()) {
		first, err = Advance(first, tf, 1)
		if err != nil {
			return 0, err
		}
	}
	lastAligned, err := AlignDown(end, tf)
	if err != nil {
		return 0, err
	}
	if lastAligned.Before(first) {
		return 0, nil
	}
	secs, err := Seconds(tf)
	if err != nil {
		return 0, err
	}
	diff := lastAligned.Unix() - first.Unix()
	return int(diff/int64(secs)) + 1, nil
}
