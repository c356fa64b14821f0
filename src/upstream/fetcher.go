// Package upstream implements the Upstream Fetcher: a thin, timeframe-aware
// wrapper around Upbit's rate-limited candle REST API. It reverses Upbit's
// native descending-time responses to ascending exactly once, at this
// boundary, per the design notes.
//
// Grounded on two sources: the teacher's resty-based retry client
// (src/connectors/phemexConnector.go, same retry-predicate/backoff idiom)
// and the retrieval pack's Upbit connector
// (other_examples/e08f00e1_marianogappa-crypto-candles__candles-upbit-api_klines.go.go,
// same endpoint-per-timeframe dispatch and response shape).
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"strategyexecutor/src/apierr"
	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "https://api.upbit.com/v1"
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxWait   = 8 * time.Second
)

// candlestickResponse mirrors Upbit's wire shape verbatim, per §6's "field
// names must be preserved verbatim in storage for auditability."
type candlestickResponse struct {
	Market               string  `json:"market"`
	CandleDateTimeUTC    string  `json:"candle_date_time_utc"`
	CandleDateTimeKST    string  `json:"candle_date_time_kst"`
	OpeningPrice         float64 `json:"opening_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	TradePrice           float64 `json:"trade_price"`
	Timestamp            int64   `json:"timestamp"`
	CandleAccTradePrice  float64 `json:"candle_acc_trade_price"`
	CandleAccTradeVolume float64 `json:"candle_acc_trade_volume"`
}

type errorResponse struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// Fetcher wraps Upbit's candle endpoints behind a global token-bucket rate
// limiter, per §5/§6's rate_limit_tokens_per_minute.
type Fetcher struct {
	http    *resty.Client
	limiter *rate.Limiter
	baseURL string
}

// Config controls the Fetcher's base URL and rate limit.
type Config struct {
	BaseURL                 string
	RateLimitTokensPerMinute int
}

// DefaultConfig matches §6's defaults (600 tokens / 60s).
func DefaultConfig() Config {
	return Config{BaseURL: defaultBaseURL, RateLimitTokensPerMinute: 600}
}

// NewFetcher builds a Fetcher with internal retry (bounded exponential
// backoff with jitter, max 3 attempts) and a global rate limiter.
func NewFetcher(cfg Config) *Fetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokensPerMinute := cfg.RateLimitTokensPerMinute
	if tokensPerMinute <= 0 {
		tokensPerMinute = 600
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		AddRetryCondition(isRetryableResp)

	every := time.Minute / time.Duration(tokensPerMinute)
	limiter := rate.NewLimiter(rate.Every(every), tokensPerMinute)

	return &Fetcher{http: httpClient, limiter: limiter, baseURL: baseURL}
}

func endpointFor(tf timegrid.Timeframe) (string, error) {
	switch tf {
	case timegrid.TF1s:
		return "candles/seconds", nil
	case timegrid.TF1m:
		return "candles/minutes/1", nil
	case timegrid.TF3m:
		return "candles/minutes/3", nil
	case timegrid.TF5m:
		return "candles/minutes/5", nil
	case timegrid.TF10m:
		return "candles/minutes/10", nil
	case timegrid.TF15m:
		return "candles/minutes/15", nil
	case timegrid.TF30m:
		return "candles/minutes/30", nil
	case timegrid.TF60m:
		return "candles/minutes/60", nil
	case timegrid.TF240m:
		return "candles/minutes/240", nil
	case timegrid.TF1d:
		return "candles/days", nil
	case timegrid.TF1w:
		return "candles/weeks", nil
	case timegrid.TF1M:
		return "candles/months", nil
	case timegrid.TF1y:
		return "candles/years", nil
	default:
		return "", apierr.Validation(fmt.Sprintf("unsupported timeframe %q", tf))
	}
}

// Fetch calls Upbit for up to count candles strictly older than the
// exclusive anchor `to`, for (symbol, tf). count must be <= chunk_size.
// Upbit returns descending; Fetch reverses to ascending before returning,
// per the design notes' single reversal boundary.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, tf timegrid.Timeframe, to time.Time, count int) ([]model.Candle, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, apierr.Cancelled(fmt.Sprintf("rate limiter wait: %v", err))
	}

	endpoint, err := endpointFor(tf)
	if err != nil {
		return nil, err
	}

	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("market", symbol).
		SetQueryParam("count", fmt.Sprintf("%d", count)).
		SetQueryParam("to", to.UTC().Format(time.RFC3339)).
		Get(endpoint)
	if err != nil {
		return nil, apierr.Upstream(fmt.Sprintf("request %s", endpoint), err)
	}

	raw := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		var maybeErr errorResponse
		if jsonErr := json.Unmarshal(raw, &maybeErr); jsonErr == nil && maybeErr.Error.Name != "" {
			if resp.StatusCode() == http.StatusTooManyRequests {
				return nil, apierr.RateLimited(maybeErr.Error.Message, nil)
			}
			return nil, apierr.Upstream(maybeErr.Error.Message, nil)
		}
		return nil, apierr.Upstream(fmt.Sprintf("HTTP %d from %s", resp.StatusCode(), endpoint), nil)
	}

	var wire []candlestickResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apierr.Upstream("invalid JSON response", err)
	}

	candles := make([]model.Candle, len(wire))
	for i, row := range wire {
		openUTC, parseErr := parseUpbitTime(row.CandleDateTimeUTC)
		if parseErr != nil {
			return nil, apierr.Upstream("invalid candle_date_time_utc", parseErr)
		}
		openLocal, parseErr := parseUpbitTime(row.CandleDateTimeKST)
		if parseErr != nil {
			openLocal = openUTC
		}
		candles[i] = model.Candle{
			Symbol:            strings.ToUpper(row.Market),
			Timeframe:         tf,
			OpenTimeUTC:       openUTC,
			OpenTimeLocal:     openLocal,
			Open:              decimal.NewFromFloat(row.OpeningPrice),
			High:              decimal.NewFromFloat(row.HighPrice),
			Low:               decimal.NewFromFloat(row.LowPrice),
			Close:             decimal.NewFromFloat(row.TradePrice),
			TradeVolume:       decimal.NewFromFloat(row.CandleAccTradeVolume),
			TradeValue:        decimal.NewFromFloat(row.CandleAccTradePrice),
			SourceTimestampMs: row.Timestamp,
			SyntheticFlag:     false,
		}
	}

	// Upbit returns descending (newest first); reverse to ascending.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	logger.WithFields(logger.Fields{
		"symbol":    symbol,
		"timeframe": tf,
		"count":     len(candles),
	}).Debug("upstream fetch complete")

	return candles, nil
}

func parseUpbitTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
