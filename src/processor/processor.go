// Package processor implements the Chunk Processor: the orchestrator that
// converts a Request into a Collection Plan and drives it to completion,
// one exchange-sized chunk at a time, newest-first.
//
// Grounded on the teacher's executors package for its state-machine/logging
// idiom (src/executors/start_loop.go: a ticking driver loop with
// logger.WithField-heavy progress reporting) and on the retrieval pack's
// collector/coordinator shape (other_examples' sungminna-append
// candle_collector.go, mutex-guarded "one collection per key" pattern),
// adapted from "loop forever on a ticker" into "loop until the plan is
// satisfied."
package processor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"strategyexecutor/src/apierr"
	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// Repository is the subset of the Candle Repository the processor depends
// on directly (beyond what it hands to the Overlap Analyzer).
type Repository interface {
	Save(ctx context.Context, symbol string, tf timegrid.Timeframe, candles []model.Candle) (int, error)
	ReadRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time, limit int) ([]model.Candle, error)
	CountInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (int, error)
}

// Analyzer is the subset of the Overlap Analyzer the processor depends on.
type Analyzer interface {
	Classify(ctx context.Context, req model.OverlapRequest) (model.OverlapResult, error)
}

// Fetcher is the subset of the Upstream Fetcher the processor depends on.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, tf timegrid.Timeframe, to time.Time, count int) ([]model.Candle, error)
}

// Detector is the subset of the Empty Candle Detector the processor depends
// on.
type Detector interface {
	Fill(symbol string, tf timegrid.Timeframe, chunkStart, chunkEnd time.Time, real []model.Candle, previousClose *decimal.Decimal) ([]model.Candle, error)
}

// ProgressEvent is emitted once per loop iteration, per §4.6 step 2f.
type ProgressEvent struct {
	Status               model.PlanStatus
	CollectedCount       int
	ChunksDone           int
	EstimatedRemainingMs int64
}

// ProgressCallback receives a ProgressEvent after every chunk.
type ProgressCallback func(ProgressEvent)

// CollectionResult is execute's return value.
type CollectionResult struct {
	Success      bool
	Candles      []model.Candle
	FetchedCount int
	StoredCount  int
	APICallCount int
	// APIChunks and DBChunks count, respectively, how many chunks required
	// an upstream fetch versus how many were already COMPLETE_OVERLAP in
	// the repository. The Facade derives source=api|db|mixed from these.
	APIChunks int
	DBChunks  int
	Elapsed   time.Duration
	Status    string
	Exhausted bool
}

// Config bounds the Chunk Processor's chunk size, per-chunk retry policy,
// and implicit per-request deadline, per §5/§6.
type Config struct {
	ChunkSize int
	// RetryMax is the maximum attempts per chunk fetch (including the
	// first). Default: 3.
	RetryMax int
	// RetryBaseDelay is the first backoff wait; it doubles every attempt
	// with +-20% jitter. Default: 1s.
	RetryBaseDelay time.Duration
	// DeadlinePer1000Candles scales the implicit per-request deadline:
	// target_count/1000, rounded up, times this value. Default: 30s.
	DeadlinePer1000Candles time.Duration
}

const (
	defaultChunkSize              = 200
	defaultRetryMax               = 3
	defaultRetryBaseDelay         = time.Second
	defaultDeadlinePer1000Candles = 30 * time.Second
)

// DefaultConfig matches the values enumerated in §6.
func DefaultConfig() Config {
	return Config{
		ChunkSize:              defaultChunkSize,
		RetryMax:               defaultRetryMax,
		RetryBaseDelay:         defaultRetryBaseDelay,
		DeadlinePer1000Candles: defaultDeadlinePer1000Candles,
	}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.RetryMax <= 0 {
		c.RetryMax = defaultRetryMax
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.DeadlinePer1000Candles <= 0 {
		c.DeadlinePer1000Candles = defaultDeadlinePer1000Candles
	}
	return c
}

// Processor drives a single collection end to end.
type Processor struct {
	repo     Repository
	analyzer Analyzer
	fetcher  Fetcher
	detector Detector

	cfg Config

	mu      sync.Mutex
	running map[string]bool // coordinator: (symbol|timeframe) -> in-flight
}

// New builds a Processor. Zero-valued fields in cfg fall back to the spec
// defaults from §6.
func New(repo Repository, analyzer Analyzer, fetcher Fetcher, detector Detector, cfg Config) *Processor {
	return &Processor{
		repo:     repo,
		analyzer: analyzer,
		fetcher:  fetcher,
		detector: detector,
		cfg:      cfg.withDefaults(),
		running:  make(map[string]bool),
	}
}

func coordinatorKey(symbol string, tf timegrid.Timeframe) string {
	return symbol + "|" + string(tf)
}

func (p *Processor) tryAcquire(symbol string, tf timegrid.Timeframe) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := coordinatorKey(symbol, tf)
	if p.running[key] {
		return false
	}
	p.running[key] = true
	return true
}

func (p *Processor) release(symbol string, tf timegrid.Timeframe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, coordinatorKey(symbol, tf))
}

// Execute converts req into a Collection Plan and drives it to completion,
// per §4.6's three-phase lifecycle. dryRun plans and reports chunks but
// performs no fetch and no save.
func (p *Processor) Execute(ctx context.Context, req model.Request, progress ProgressCallback, dryRun bool) (CollectionResult, error) {
	if !p.tryAcquire(req.Symbol, req.Timeframe) {
		return CollectionResult{}, apierr.Concurrent(req.Symbol, string(req.Timeframe))
	}
	defer p.release(req.Symbol, req.Timeframe)

	started := time.Now()
	plan, err := p.buildPlan(req)
	if err != nil {
		return CollectionResult{}, err
	}

	// §5's implicit per-request deadline: default_ms_per_1000 candles,
	// scaled to the plan's target size (or an estimate of it for window
	// requests, which have no up-front count).
	ctx, cancel := context.WithTimeout(ctx, p.requestDeadline(plan, req))
	defer cancel()

	apiCalls := 0
	apiChunks := 0
	dbChunks := 0
	stoppedShort := false
	maxIterations := p.safetyCeiling(plan)

	var previousClose *decimal.Decimal

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return CollectionResult{}, apierr.Cancelled(fmt.Sprintf("collection cancelled after %d chunks", plan.ChunksDone))
		}
		if iteration >= maxIterations {
			logger.WithFields(logger.Fields{
				"symbol":    req.Symbol,
				"timeframe": req.Timeframe,
			}).Warn("chunk processor hit safety ceiling")
			stoppedShort = true
			break
		}

		complete, exhausted := p.checkCompletion(plan, req)
		if complete || exhausted {
			if exhausted {
				plan.Status = model.PlanExhausted
			}
			break
		}

		chunkEnd := plan.CurrentTo
		chunkStartUnclamped, err := timegrid.Advance(chunkEnd, req.Timeframe, -(p.cfg.ChunkSize - 1))
		if err != nil {
			return CollectionResult{}, apierr.Validation(err.Error())
		}
		chunkStart := chunkStartUnclamped
		if plan.TargetStart != nil && chunkStart.Before(*plan.TargetStart) {
			chunkStart = *plan.TargetStart
		}

		expectedCount, err := timegrid.CountBetween(chunkStart, chunkEnd, req.Timeframe)
		if err != nil {
			return CollectionResult{}, apierr.Validation(err.Error())
		}

		overlap, err := p.analyzer.Classify(ctx, model.OverlapRequest{
			Symbol:        req.Symbol,
			Timeframe:     req.Timeframe,
			TargetStart:   chunkStart,
			TargetEnd:     chunkEnd,
			ExpectedCount: expectedCount,
		})
		if err != nil {
			return CollectionResult{}, err
		}

		if !dryRun {
			if overlap.State == model.CompleteOverlap {
				dbChunks++
			} else {
				fetchFrom, fetchTo, fetchCount := chunkStart, chunkEnd, expectedCount
				if overlap.State == model.PartialStart {
					fetchFrom, fetchTo, fetchCount = overlap.FetchFrom, overlap.FetchTo, overlap.FetchCount
				}

				anchor, err := timegrid.Advance(fetchTo, req.Timeframe, 1)
				if err != nil {
					return CollectionResult{}, apierr.Validation(err.Error())
				}

				real, err := p.fetchWithRetry(ctx, req.Symbol, req.Timeframe, anchor, fetchCount)
				apiCalls++
				apiChunks++
				if err != nil {
					return CollectionResult{}, err
				}

				if len(real) == 0 {
					plan.Status = model.PlanExhausted
					break
				}

				filled, err := p.detector.Fill(req.Symbol, req.Timeframe, fetchFrom, fetchTo, real, previousClose)
				if err != nil {
					return CollectionResult{}, apierr.Storage("synthetic fill", err)
				}

				if _, err := p.repo.Save(ctx, req.Symbol, req.Timeframe, filled); err != nil {
					return CollectionResult{}, err
				}

				if len(filled) > 0 {
					lastClose := filled[len(filled)-1].Close
					previousClose = &lastClose
				}
			}
		}

		var collected int
		if dryRun {
			// Nothing is stored in a dry run: count the planned boundaries.
			collected = plan.CollectedCount + expectedCount
		} else {
			collected, err = p.repo.CountInRange(ctx, req.Symbol, req.Timeframe, planEffectiveStart(plan, req), plan.TargetEndTime)
			if err != nil {
				return CollectionResult{}, err
			}
		}
		plan.CollectedCount = collected
		plan.ChunksDone++

		nextTo, err := timegrid.Advance(chunkStart, req.Timeframe, -1)
		if err != nil {
			return CollectionResult{}, apierr.Validation(err.Error())
		}
		plan.CurrentTo = nextTo

		if progress != nil {
			progress(ProgressEvent{
				Status:               plan.Status,
				CollectedCount:       plan.CollectedCount,
				ChunksDone:           plan.ChunksDone,
				EstimatedRemainingMs: p.estimateRemainingMs(plan, started),
			})
		}
	}

	switch {
	case plan.Status == model.PlanExhausted:
		// success=true, fewer candles than requested, per §7.
	case stoppedShort:
		plan.Status = model.PlanIncomplete
	default:
		plan.Status = model.PlanCompleted
	}

	finalStart := planEffectiveStart(plan, req)
	finalCandles, err := p.repo.ReadRange(ctx, req.Symbol, req.Timeframe, finalStart, plan.TargetEndTime, 0)
	if err != nil {
		return CollectionResult{}, err
	}

	// Partial results are never silently returned (§7): a collection that
	// stopped short of its target for any reason other than Exhausted
	// reports failure, with what it did collect carried for debugging by
	// the Facade rather than discarded here.
	success := plan.Status != model.PlanIncomplete

	return CollectionResult{
		Success:      success,
		Candles:      finalCandles,
		FetchedCount: len(finalCandles),
		StoredCount:  len(finalCandles),
		APICallCount: apiCalls,
		APIChunks:    apiChunks,
		DBChunks:     dbChunks,
		Elapsed:      time.Since(started),
		Status:       string(plan.Status),
		Exhausted:    plan.Status == model.PlanExhausted,
	}, nil
}

// requestDeadline derives the implicit per-request deadline from the plan's
// target size, per §5: default_ms_per_1000 candles, rounded up. Window
// requests with no explicit count estimate their size from the grid.
func (p *Processor) requestDeadline(plan *model.CollectionPlan, req model.Request) time.Duration {
	n := plan.TargetCount
	if n <= 0 && plan.TargetStart != nil {
		if estimated, err := timegrid.CountBetween(*plan.TargetStart, plan.TargetEndTime, req.Timeframe); err == nil {
			n = estimated
		}
	}
	if n <= 0 {
		n = 1
	}
	units := math.Ceil(float64(n) / 1000)
	return time.Duration(units) * p.cfg.DeadlinePer1000Candles
}

func (p *Processor) buildPlan(req model.Request) (*model.CollectionPlan, error) {
	now := time.Now().UTC()
	plan := &model.CollectionPlan{
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		ChunkSize:      p.cfg.ChunkSize,
		Status:         model.PlanPlanning,
		InclusiveStart: req.InclusiveStart,
	}

	switch req.Shape() {
	case model.ShapeCount:
		anchor := now
		if req.To != nil {
			anchor = *req.To
		}
		aligned, err := timegrid.AlignDown(anchor, req.Timeframe)
		if err != nil {
			return nil, apierr.Validation(err.Error())
		}
		plan.TargetCount = req.Count
		plan.TargetEndTime = aligned
		plan.CurrentTo = aligned

	case model.ShapeStartCount:
		plan.TargetCount = req.Count
		start := *req.StartTime
		if !req.InclusiveStart {
			shifted, err := timegrid.Advance(mustAlign(start, req.Timeframe), req.Timeframe, 1)
			if err != nil {
				return nil, apierr.Validation(err.Error())
			}
			start = shifted
		}
		plan.TargetStart = &start
		// The window ends count-1 grid steps after the first boundary at or
		// after start, capped at now.
		aligned, err := timegrid.AlignDown(now, req.Timeframe)
		if err != nil {
			return nil, apierr.Validation(err.Error())
		}
		first := mustAlign(start, req.Timeframe)
		if first.Before(start) {
			first, _ = timegrid.Advance(first, req.Timeframe, 1)
		}
		if end, err := timegrid.Advance(first, req.Timeframe, req.Count-1); err == nil && end.Before(aligned) {
			aligned = end
		}
		plan.TargetEndTime = aligned
		plan.CurrentTo = aligned

	case model.ShapeWindow:
		aligned, err := timegrid.AlignDown(*req.EndTime, req.Timeframe)
		if err != nil {
			return nil, apierr.Validation(err.Error())
		}
		start := *req.StartTime
		if !req.InclusiveStart {
			shifted, err := timegrid.Advance(mustAlign(start, req.Timeframe), req.Timeframe, 1)
			if err != nil {
				return nil, apierr.Validation(err.Error())
			}
			start = shifted
		}
		plan.TargetStart = &start
		plan.TargetEndTime = aligned
		plan.CurrentTo = aligned

	default:
		return nil, apierr.Validation("request does not resolve to a known shape")
	}

	plan.Status = model.PlanFetching
	return plan, nil
}

func mustAlign(t time.Time, tf timegrid.Timeframe) time.Time {
	aligned, err := timegrid.AlignDown(t, tf)
	if err != nil {
		return t
	}
	return aligned
}

func (p *Processor) checkCompletion(plan *model.CollectionPlan, req model.Request) (complete, exhausted bool) {
	if plan.TargetCount > 0 && plan.CollectedCount >= plan.TargetCount {
		return true, false
	}
	if plan.TargetStart != nil && plan.CurrentTo.Before(*plan.TargetStart) {
		return true, false
	}
	if plan.TargetStart == nil && plan.TargetCount == 0 {
		return true, false
	}
	return false, false
}

func (p *Processor) safetyCeiling(plan *model.CollectionPlan) int {
	if plan.TargetCount > 0 {
		return 2*int(math.Ceil(float64(plan.TargetCount)/float64(p.cfg.ChunkSize))) + 4
	}
	return 2*int(math.Ceil(float64(model.MaxCount)/float64(p.cfg.ChunkSize))) + 4
}

func (p *Processor) estimateRemainingMs(plan *model.CollectionPlan, started time.Time) int64 {
	if plan.ChunksDone == 0 {
		return 0
	}
	elapsedMs := time.Since(started).Milliseconds()
	perChunk := elapsedMs / int64(plan.ChunksDone)
	remainingChunks := int64(0)
	if plan.TargetCount > 0 && plan.CollectedCount < plan.TargetCount {
		remainingChunks = int64((plan.TargetCount-plan.CollectedCount)/p.cfg.ChunkSize) + 1
	}
	return perChunk * remainingChunks
}

func (p *Processor) fetchWithRetry(ctx context.Context, symbol string, tf timegrid.Timeframe, to time.Time, count int) ([]model.Candle, error) {
	var lastErr error
	backoff := p.cfg.RetryBaseDelay
	for attempt := 0; attempt < p.cfg.RetryMax; attempt++ {
		candles, err := p.fetcher.Fetch(ctx, symbol, tf, to, count)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if kind, ok := apierr.AsKind(err); ok && kind == apierr.KindValidation {
			return nil, err
		}
		if attempt == p.cfg.RetryMax-1 {
			break
		}
		jittered := backoff + time.Duration(float64(backoff)*0.2*jitterSign(attempt))
		select {
		case <-ctx.Done():
			return nil, apierr.Cancelled("cancelled during upstream retry backoff")
		case <-time.After(jittered):
		}
		backoff *= 2
	}
	return nil, apierr.Upstream(fmt.Sprintf("upstream fetch failed after %d attempts", p.cfg.RetryMax), lastErr)
}

func jitterSign(attempt int) float64 {
	if attempt%2 == 0 {
		return 1
	}
	return -1
}

// planEffectiveStart resolves the plan's lower bound. Window/start-count
// plans carry an explicit TargetStart; pure count-based plans derive their
// lower bound by walking back target_count-1 grid steps from the end.
func planEffectiveStart(plan *model.CollectionPlan, req model.Request) time.Time {
	if plan.TargetStart != nil {
		return *plan.TargetStart
	}
	if plan.TargetCount > 0 {
		if start, err := timegrid.Advance(plan.TargetEndTime, plan.Timeframe, -(plan.TargetCount - 1)); err == nil {
			return start
		}
	}
	return plan.TargetEndTime
}
