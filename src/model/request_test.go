package model

import (
	"strategyexecutor/src/timegrid"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequest_Shape(t *testing.T) {
	t.Parallel()
	start := time.Now().Add(-time.Hour)
	end := time.Now()

	require.Equal(t, ShapeCount, Request{Count: 10}.Shape())
	require.Equal(t, ShapeStartCount, Request{StartTime: &start, Count: 10}.Shape())
	require.Equal(t, ShapeWindow, Request{StartTime: &start, EndTime: &end}.Shape())
	require.Equal(t, ShapeInvalid, Request{}.Shape())
}

func TestRequest_Validate_CollectsEveryViolation(t *testing.T) {
	t.Parallel()
	now := time.Now()
	future := now.Add(time.Hour)

	req := Request{
		Symbol:    "",
		Timeframe: timegrid.Timeframe("7m"),
		Count:     0,
		To:        &future,
	}
	problems := req.Validate(now)
	require.GreaterOrEqual(t, len(problems), 3)
}

func TestRequest_Validate_CountUpperBound(t *testing.T) {
	t.Parallel()
	now := time.Now()
	req := Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: MaxCount + 1}
	problems := req.Validate(now)
	require.NotEmpty(t, problems)
}

func TestRequest_Validate_WindowOrdering(t *testing.T) {
	t.Parallel()
	now := time.Now()
	start := now.Add(-time.Hour)
	end := start.Add(-time.Minute) // end before start

	req := Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, StartTime: &start, EndTime: &end}
	problems := req.Validate(now)
	require.NotEmpty(t, problems)
}

func TestRequest_Fingerprint_StableForEquivalentRequests(t *testing.T) {
	t.Parallel()
	req1 := Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 50, InclusiveStart: true}
	req2 := Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 50, InclusiveStart: true}
	require.Equal(t, req1.Fingerprint(), req2.Fingerprint())

	req3 := Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 51, InclusiveStart: true}
	require.NotEqual(t, req1.Fingerprint(), req3.Fingerprint())
}
