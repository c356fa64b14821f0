// Package synthetic implements the Empty Candle Detector: the continuity
// enforcer that fills gaps between upstream responses with synthetic rows
// so downstream consumers see a dense, monotonic time grid. Conceptually
// grounded on the retrieval pack's synthetic-data generators (e.g.
// other_examples' candlecore scraper), adapted here from "generate a whole
// fake series" into "patch the holes the exchange leaves in a real one."
package synthetic

import (
	"fmt"
	"time"

	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"

	"github.com/shopspring/decimal"
)

// Config bounds how many consecutive synthetic rows the detector will
// insert between two real candles before giving up and leaving a real gap.
// A non-positive value means unbounded.
type Config struct {
	// CapIntraday applies to every timeframe below 1d. Default: 0
	// (unbounded), matching §6/§9's "unbounded for intraday" default.
	CapIntraday int
	// CapDailyAndAbove applies to 1d, 1w, 1M, 1y. Default: 30 consecutive
	// synthetic rows, per synthetic_cap_daily_and_above.
	CapDailyAndAbove int
}

// DefaultConfig matches the values enumerated in §6.
func DefaultConfig() Config {
	return Config{CapIntraday: 0, CapDailyAndAbove: 30}
}

func isIntraday(tf timegrid.Timeframe) bool {
	switch tf {
	case timegrid.TF1d, timegrid.TF1w, timegrid.TF1M, timegrid.TF1y:
		return false
	default:
		return true
	}
}

func (c Config) capFor(tf timegrid.Timeframe) int {
	if isIntraday(tf) {
		return c.CapIntraday
	}
	return c.CapDailyAndAbove
}

// Detector fills gaps in a real candle sequence against an expected grid.
type Detector struct {
	cfg Config
}

// NewDetector builds a Detector with the given cap configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Fill returns real plus synthetic candles covering every boundary in
// [chunkStart, chunkEnd], ascending. real must already be sorted ascending
// by OpenTimeUTC. previousClose is the last real close known before
// chunkStart, if any — used to seed synthetic OHLC when the chunk itself
// opens on a gap.
func (d *Detector) Fill(symbol string, tf timegrid.Timeframe, chunkStart, chunkEnd time.Time, real []model.Candle, previousClose *decimal.Decimal) ([]model.Candle, error) {
	boundaries, err := timegrid.Enumerate(chunkStart, chunkEnd, tf)
	if err != nil {
		return nil, fmt.Errorf("synthetic: enumerate grid: %w", err)
	}

	byTime := make(map[int64]model.Candle, len(real))
	for _, c := range real {
		byTime[c.OpenTimeUTC.UTC().Unix()] = c
	}

	capLimit := d.cfg.capFor(tf)
	out := make([]model.Candle, 0, len(boundaries))

	var lastClose *decimal.Decimal
	if previousClose != nil {
		v := *previousClose
		lastClose = &v
	}
	// If there is no previous real close, synthetic rows before the first
	// real candle in this chunk borrow that candle's open instead.
	var nextRealOpen *decimal.Decimal
	for _, c := range real {
		v := c.Open
		nextRealOpen = &v
		break
	}

	consecutiveSynthetic := 0
	for _, t := range boundaries {
		if real, ok := byTime[t.UTC().Unix()]; ok {
			out = append(out, real)
			v := real.Close
			lastClose = &v
			consecutiveSynthetic = 0
			continue
		}

		if capLimit > 0 && consecutiveSynthetic >= capLimit {
			// Cap reached: stop synthesising, leave a genuine gap. The
			// repository's FindLastContinuousTimeFrom will correctly see
			// this as a discontinuity.
			continue
		}

		var base decimal.Decimal
		switch {
		case lastClose != nil:
			base = *lastClose
		case nextRealOpen != nil:
			base = *nextRealOpen
		default:
			base = decimal.Zero
		}

		out = append(out, model.Candle{
			Symbol:            symbol,
			Timeframe:         tf,
			OpenTimeUTC:       t,
			OpenTimeLocal:     t,
			Open:              base,
			High:              base,
			Low:               base,
			Close:             base,
			TradeVolume:       decimal.Zero,
			TradeValue:        decimal.Zero,
			SourceTimestampMs: t.UnixMilli(),
			SyntheticFlag:     true,
		})
		consecutiveSynthetic++
	}

	return out, nil
}
