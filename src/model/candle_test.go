package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCandle_Valid(t *testing.T) {
	t.Parallel()
	good := Candle{
		Open:        decimal.NewFromFloat(100),
		High:        decimal.NewFromFloat(110),
		Low:         decimal.NewFromFloat(90),
		Close:       decimal.NewFromFloat(105),
		TradeVolume: decimal.NewFromFloat(1),
		TradeValue:  decimal.NewFromFloat(100),
		OpenTimeUTC: time.Now(),
	}
	require.True(t, good.Valid())

	badHigh := good
	badHigh.High = decimal.NewFromFloat(50) // high below open/close
	require.False(t, badHigh.Valid())

	negativeVolume := good
	negativeVolume.TradeVolume = decimal.NewFromFloat(-1)
	require.False(t, negativeVolume.Valid())
}
