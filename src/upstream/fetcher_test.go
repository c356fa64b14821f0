package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strategyexecutor/src/apierr"
	"strategyexecutor/src/timegrid"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupMockUpbitServer(body string, status int) *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/v1/candles/minutes/1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	return httptest.NewServer(handler)
}

const sampleDescendingBody = `[
	{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:02:00","candle_date_time_kst":"2025-01-01T09:02:00","opening_price":102,"high_price":103,"low_price":101,"trade_price":102.5,"timestamp":1735689720000,"candle_acc_trade_price":1000,"candle_acc_trade_volume":10},
	{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:01:00","candle_date_time_kst":"2025-01-01T09:01:00","opening_price":101,"high_price":102,"low_price":100,"trade_price":101.5,"timestamp":1735689660000,"candle_acc_trade_price":900,"candle_acc_trade_volume":9},
	{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:00:00","candle_date_time_kst":"2025-01-01T09:00:00","opening_price":100,"high_price":101,"low_price":99,"trade_price":100.5,"timestamp":1735689600000,"candle_acc_trade_price":800,"candle_acc_trade_volume":8}
]`

func TestFetch_ReversesDescendingToAscending(t *testing.T) {
	t.Parallel()
	server := setupMockUpbitServer(sampleDescendingBody, http.StatusOK)
	defer server.Close()

	f := NewFetcher(Config{BaseURL: server.URL + "/v1", RateLimitTokensPerMinute: 600})
	candles, err := f.Fetch(context.Background(), "KRW-BTC", timegrid.TF1m, time.Now(), 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.True(t, candles[0].OpenTimeUTC.Before(candles[1].OpenTimeUTC))
	require.True(t, candles[1].OpenTimeUTC.Before(candles[2].OpenTimeUTC))
	require.False(t, candles[0].SyntheticFlag)
}

func TestFetch_UnsupportedTimeframe(t *testing.T) {
	t.Parallel()
	f := NewFetcher(DefaultConfig())
	_, err := f.Fetch(context.Background(), "KRW-BTC", timegrid.Timeframe("7m"), time.Now(), 1)
	kind, ok := apierr.AsKind(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindValidation, kind)
}

func TestFetch_RateLimited(t *testing.T) {
	t.Parallel()
	server := setupMockUpbitServer(`{"error":{"name":"too_many_requests","message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
	defer server.Close()

	f := NewFetcher(Config{BaseURL: server.URL + "/v1", RateLimitTokensPerMinute: 600})
	_, err := f.Fetch(context.Background(), "KRW-BTC", timegrid.TF1m, time.Now(), 1)
	require.Error(t, err)
	kind, ok := apierr.AsKind(err)
	require.True(t, ok)
	require.Equal(t, apierr.KindRateLimited, kind)
}

func TestFetch_UpstreamError(t *testing.T) {
	t.Parallel()
	server := setupMockUpbitServer(`{"error":{"name":"internal","message":"boom"}}`, http.StatusInternalServerError)
	defer server.Close()

	f := NewFetcher(Config{BaseURL: server.URL + "/v1", RateLimitTokensPerMinute: 600})
	_, err := f.Fetch(context.Background(), "KRW-BTC", timegrid.TF1m, time.Now(), 1)
	require.Error(t, err)
}
