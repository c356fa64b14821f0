// Package provider implements the Provider Facade: the single public entry
// point exposed to callers, wiring validation, the cache, the concurrency
// coordinator (delegated to the Chunk Processor), and the processor
// together behind one GetCandles(ctx, Request) call, per §4.8.
//
// Grounded on the retrieval pack's unified-facade shape
// (other_examples/72ca72a9_sawpanic-cryptorun__internal-data-facade-facade.go.go:
// one interface wrapping hot/warm tiers with attribution) and on the
// teacher's google/uuid usage for per-call correlation IDs
// (src/model/transaction_log.go's OrderExecutionLog), generalised here from
// order-execution audit records to every facade call's structured log line.
package provider

import (
	"context"
	"fmt"
	"time"

	"strategyexecutor/src/apierr"
	"strategyexecutor/src/cache"
	"strategyexecutor/src/model"
	"strategyexecutor/src/processor"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// Processor is the subset of the Chunk Processor the facade depends on.
type Processor interface {
	Execute(ctx context.Context, req model.Request, progress processor.ProgressCallback, dryRun bool) (processor.CollectionResult, error)
}

// Facade is the Provider Facade.
type Facade struct {
	cache     *cache.Cache
	processor Processor
}

// New builds a Facade over the given cache and processor.
func New(c *cache.Cache, p Processor) *Facade {
	return &Facade{cache: c, processor: p}
}

// GetCandles implements §4.8's five steps exactly.
func (f *Facade) GetCandles(ctx context.Context, req model.Request) model.CandleResponse {
	started := time.Now()
	requestID := uuid.NewString()
	log := logger.WithFields(logger.Fields{
		"request_id": requestID,
		"symbol":     req.Symbol,
		"timeframe":  req.Timeframe,
	})

	// Step 1: validate.
	if problems := req.Validate(time.Now().UTC()); len(problems) > 0 {
		log.WithField("violations", problems).Warn("request failed validation")
		return errorResponse(apierr.KindValidation, joinProblems(problems), started)
	}

	// Step 2: cache lookup.
	fingerprint := req.Fingerprint()
	if hit, ok := f.cache.Get(fingerprint); ok {
		log.Debug("cache hit")
		hit.ResponseTimeMs = time.Since(started).Milliseconds()
		hit.Source = model.SourceCache
		return hit
	}

	// Steps 3-4: processor invocation (coordinator slot acquired inside).
	result, err := f.processor.Execute(ctx, req, nil, false)
	if err != nil {
		kind, ok := apierr.AsKind(err)
		if !ok {
			kind = apierr.KindUpstream
		}
		log.WithError(err).Error("collection failed")
		return errorResponse(kind, err.Error(), started)
	}

	// Per §7, a collection that stopped short of its target without being
	// Exhausted is always a failure, even though Execute returned no error.
	// What it did collect is carried under Partial for debugging, but never
	// cached or reported as a usable result.
	if !result.Success {
		log.WithFields(logger.Fields{
			"status":    result.Status,
			"collected": len(result.Candles),
		}).Warn("collection stopped short of target")
		resp := errorResponse(apierr.KindIncomplete, fmt.Sprintf("collection stopped at status %q before reaching its target", result.Status), started)
		resp.Partial = result.Candles
		return resp
	}

	source := model.SourceDB
	if result.APIChunks > 0 {
		source = model.SourceAPI
		if result.DBChunks > 0 {
			source = model.SourceMixed
		}
	}

	response := model.CandleResponse{
		Success:        true,
		Candles:        result.Candles,
		TotalCount:     len(result.Candles),
		Source:         source,
		ResponseTimeMs: time.Since(started).Milliseconds(),
		Exhausted:      result.Exhausted,
	}

	// Per §4.7, a write to the repository invalidates every cache entry for
	// this (symbol, timeframe) before the fresh result is cached.
	f.cache.Invalidate(req.Symbol, string(req.Timeframe))
	f.cache.Put(fingerprint, req.Symbol, string(req.Timeframe), response)
	log.WithFields(logger.Fields{
		"total_count":    response.TotalCount,
		"api_calls":      result.APICallCount,
		"source":         response.Source,
		"response_ms":    response.ResponseTimeMs,
	}).Info("collection complete")

	return response
}

func errorResponse(kind apierr.Kind, detail string, started time.Time) model.CandleResponse {
	return model.CandleResponse{
		Success:        false,
		ResponseTimeMs: time.Since(started).Milliseconds(),
		Error: &model.ErrorDetail{
			Kind:   string(kind),
			Detail: detail,
		},
	}
}

func joinProblems(problems []string) string {
	out := problems[0]
	for _, p := range problems[1:] {
		out += "; " + p
	}
	return out
}
