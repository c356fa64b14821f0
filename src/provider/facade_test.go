package provider

import (
	"context"
	"strategyexecutor/src/apierr"
	"strategyexecutor/src/cache"
	"strategyexecutor/src/model"
	"strategyexecutor/src/processor"
	"strategyexecutor/src/timegrid"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	calls  int
	result processor.CollectionResult
	err    error
}

func (f *fakeProcessor) Execute(_ context.Context, _ model.Request, _ processor.ProgressCallback, _ bool) (processor.CollectionResult, error) {
	f.calls++
	return f.result, f.err
}

func TestGetCandles_ValidationFailure(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	proc := &fakeProcessor{}
	facade := New(c, proc)

	resp := facade.GetCandles(context.Background(), model.Request{})
	require.False(t, resp.Success)
	require.Equal(t, string(apierr.KindValidation), resp.Error.Kind)
	require.Equal(t, 0, proc.calls)
}

func TestGetCandles_CacheHitSkipsProcessor(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	proc := &fakeProcessor{}
	facade := New(c, proc)

	req := model.Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 10, InclusiveStart: true}
	c.Put(req.Fingerprint(), req.Symbol, string(req.Timeframe), model.CandleResponse{Success: true, TotalCount: 10})

	resp := facade.GetCandles(context.Background(), req)
	require.True(t, resp.Success)
	require.Equal(t, model.SourceCache, resp.Source)
	require.Equal(t, 0, proc.calls)
}

func TestGetCandles_ProcessorSuccess_PopulatesCache(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	proc := &fakeProcessor{result: processor.CollectionResult{
		Success: true,
		Candles: []model.Candle{{Symbol: "KRW-BTC"}},
	}}
	facade := New(c, proc)

	req := model.Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 10, InclusiveStart: true}
	resp := facade.GetCandles(context.Background(), req)
	require.True(t, resp.Success)
	require.Equal(t, 1, proc.calls)

	_, ok := c.Get(req.Fingerprint())
	require.True(t, ok)
}

func TestGetCandles_ProcessorFailure_PropagatesKind(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	proc := &fakeProcessor{err: apierr.Concurrent("KRW-BTC", "1m")}
	facade := New(c, proc)

	req := model.Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 10, InclusiveStart: true}
	resp := facade.GetCandles(context.Background(), req)
	require.False(t, resp.Success)
	require.Equal(t, string(apierr.KindConcurrent), resp.Error.Kind)
}

func TestGetCandles_ProcessorStoppedShort_ReturnsPartialAsFailure(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	stopped := []model.Candle{{Symbol: "KRW-BTC"}}
	proc := &fakeProcessor{result: processor.CollectionResult{
		Success: false,
		Candles: stopped,
		Status:  string(model.PlanIncomplete),
	}}
	facade := New(c, proc)

	req := model.Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 10, InclusiveStart: true}
	resp := facade.GetCandles(context.Background(), req)
	require.False(t, resp.Success)
	require.Equal(t, string(apierr.KindIncomplete), resp.Error.Kind)
	require.Equal(t, stopped, resp.Partial)
	require.Empty(t, resp.Candles)

	_, ok := c.Get(req.Fingerprint())
	require.False(t, ok)
}

func TestGetCandles_MixedSource_WhenBothDBAndAPIChunksServed(t *testing.T) {
	t.Parallel()
	c := cache.New(10, time.Minute)
	proc := &fakeProcessor{result: processor.CollectionResult{
		Success:   true,
		Candles:   []model.Candle{{Symbol: "KRW-BTC"}},
		APIChunks: 1,
		DBChunks:  1,
	}}
	facade := New(c, proc)

	req := model.Request{Symbol: "KRW-BTC", Timeframe: timegrid.TF1m, Count: 10, InclusiveStart: true}
	resp := facade.GetCandles(context.Background(), req)
	require.True(t, resp.Success)
	require.Equal(t, model.SourceMixed, resp.Source)
}
