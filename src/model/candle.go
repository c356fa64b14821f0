package model

import (
	"strategyexecutor/src/timegrid"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV observation aligned to a timeframe boundary.
// It is the unit of storage and transport across every layer of the
// candle provider: the Upstream Fetcher and the Empty Candle Detector are
// the only components that construct one.
type Candle struct {
	Symbol         string             `json:"symbol"`
	Timeframe      timegrid.Timeframe `json:"timeframe"`
	OpenTimeUTC    time.Time          `json:"open_time_utc"`
	OpenTimeLocal  time.Time          `json:"open_time_local"`
	Open           decimal.Decimal    `json:"open"`
	High           decimal.Decimal    `json:"high"`
	Low            decimal.Decimal    `json:"low"`
	Close          decimal.Decimal    `json:"close"`
	TradeVolume    decimal.Decimal    `json:"trade_volume"`
	TradeValue     decimal.Decimal    `json:"trade_value"`
	SourceTimestampMs int64           `json:"source_timestamp"`
	SyntheticFlag  bool               `json:"synthetic_flag"`
}

// Valid reports whether the candle satisfies the OHLC ordering and
// non-negativity invariants from the data model: low <= open,close <= high,
// and volume/value are never negative.
func (c Candle) Valid() bool {
	if c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() || c.Close.IsNegative() {
		return false
	}
	if c.TradeVolume.IsNegative() || c.TradeValue.IsNegative() {
		return false
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) || c.Low.GreaterThan(c.High) {
		return false
	}
	if c.Open.GreaterThan(c.High) || c.Close.GreaterThan(c.High) {
		return false
	}
	return true
}
