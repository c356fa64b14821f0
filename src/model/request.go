package model

import (
	"fmt"
	"strategyexecutor/src/timegrid"
	"strings"
	"time"
)

// MaxCount is the hard upper bound on candles a single Request may ask for.
const MaxCount = 10000

// Request is an immutable collection specification. Exactly one of the
// three shapes below must be populated:
//   - Count only (optionally with To): the N most recent candles.
//   - StartTime + Count: N candles starting at/after StartTime.
//   - StartTime + EndTime: every candle in the closed window.
type Request struct {
	Symbol         string
	Timeframe      timegrid.Timeframe
	Count          int
	StartTime      *time.Time
	EndTime        *time.Time
	To             *time.Time
	InclusiveStart bool // true counts StartTime itself; the CLI and HTTP handler default it to true
}

// Shape identifies which of the three request forms a Request takes.
type Shape int

const (
	ShapeInvalid Shape = iota
	ShapeCount
	ShapeStartCount
	ShapeWindow
)

// Shape classifies the request. Validate should be called first; Shape does
// not itself validate.
func (r Request) Shape() Shape {
	switch {
	case r.StartTime != nil && r.EndTime != nil && r.Count == 0:
		return ShapeWindow
	case r.StartTime != nil && r.Count > 0 && r.EndTime == nil:
		return ShapeStartCount
	case r.StartTime == nil && r.EndTime == nil && r.Count > 0:
		return ShapeCount
	default:
		return ShapeInvalid
	}
}

// Validate checks the Request against every contract rule in the data
// model, returning every violation it finds (never just the first) so the
// caller can report a complete ValidationError.
func (r Request) Validate(now time.Time) []string {
	var problems []string

	if strings.TrimSpace(r.Symbol) == "" {
		problems = append(problems, "symbol must not be empty")
	}
	if !timegrid.IsValid(r.Timeframe) {
		problems = append(problems, fmt.Sprintf("timeframe %q is not a recognised timeframe", r.Timeframe))
	}

	switch r.Shape() {
	case ShapeCount:
		if r.Count <= 0 || r.Count > MaxCount {
			problems = append(problems, fmt.Sprintf("count must be in (0, %d]", MaxCount))
		}
	case ShapeStartCount:
		if r.Count <= 0 || r.Count > MaxCount {
			problems = append(problems, fmt.Sprintf("count must be in (0, %d]", MaxCount))
		}
	case ShapeWindow:
		if !r.StartTime.Before(*r.EndTime) {
			problems = append(problems, "start_time must be strictly before end_time")
		}
	default:
		problems = append(problems, "request must specify exactly one of: count, start_time+count, start_time+end_time")
	}

	if r.StartTime != nil && r.StartTime.After(now) {
		problems = append(problems, "start_time may not be in the future")
	}
	if r.EndTime != nil && r.EndTime.After(now) {
		problems = append(problems, "end_time may not be in the future")
	}
	if r.To != nil && r.To.After(now) {
		problems = append(problems, "to may not be in the future")
	}

	return problems
}

// Fingerprint returns the canonical string identity of the resolved request,
// used as the cache key. Two requests that resolve to the same symbol,
// timeframe, effective window/count and inclusive_start produce the same
// fingerprint.
func (r Request) Fingerprint() string {
	var b strings.Builder
	b.WriteString(r.Symbol)
	b.WriteByte('|')
	b.WriteString(string(r.Timeframe))
	b.WriteByte('|')
	switch r.Shape() {
	case ShapeCount:
		fmt.Fprintf(&b, "count=%d", r.Count)
		if r.To != nil {
			fmt.Fprintf(&b, "|to=%d", r.To.UTC().Unix())
		}
	case ShapeStartCount:
		fmt.Fprintf(&b, "start=%d|count=%d", r.StartTime.UTC().Unix(), r.Count)
	case ShapeWindow:
		fmt.Fprintf(&b, "start=%d|end=%d", r.StartTime.UTC().Unix(), r.EndTime.UTC().Unix())
	}
	fmt.Fprintf(&b, "|incl=%t", r.InclusiveStart)
	return b.String()
}

// PlanStatus is the Collection Plan's lifecycle state.
type PlanStatus string

const (
	PlanPlanning   PlanStatus = "planning"
	PlanFetching   PlanStatus = "fetching"
	PlanProcessing PlanStatus = "processing"
	PlanStoring    PlanStatus = "storing"
	PlanCompleted  PlanStatus = "completed"
	PlanExhausted  PlanStatus = "exhausted"
	// PlanIncomplete marks a collection that stopped before reaching its
	// target count for a reason other than exhaustion (e.g. it hit the
	// safety ceiling). Per §7, this is always reported as a failure.
	PlanIncomplete PlanStatus = "incomplete"
)

// CollectionPlan is the Chunk Processor's internal, per-invocation state. It
// is created when collection begins and discarded once the Facade has
// finished serving the request.
type CollectionPlan struct {
	Symbol         string
	Timeframe      timegrid.Timeframe
	TargetCount    int        // 0 if not count-based
	TargetStart    *time.Time // window lower bound, when applicable
	TargetEndTime  time.Time  // inclusive upper bound, always set
	ChunkSize      int
	CurrentTo      time.Time // descends over time
	CollectedCount int
	Status         PlanStatus
	InclusiveStart bool
	APICallCount   int
	ChunksDone     int
}

// OverlapState is the five-valued classification the Overlap Analyzer
// returns for a requested interval.
type OverlapState string

const (
	NoOverlap              OverlapState = "NO_OVERLAP"
	CompleteOverlap        OverlapState = "COMPLETE_OVERLAP"
	PartialStart           OverlapState = "PARTIAL_START"
	PartialMiddleContinuous OverlapState = "PARTIAL_MIDDLE_CONTINUOUS"
	PartialMiddleFragment  OverlapState = "PARTIAL_MIDDLE_FRAGMENT"
)

// OverlapRequest is the Overlap Analyzer's input.
type OverlapRequest struct {
	Symbol        string
	Timeframe     timegrid.Timeframe
	TargetStart   time.Time
	TargetEnd     time.Time
	ExpectedCount int
}

// OverlapResult is the Overlap Analyzer's output. FetchFrom/FetchTo/FetchCount
// are only meaningful when State == PartialStart; every other non-complete
// state directs the processor to fetch [TargetStart, TargetEnd] in full.
type OverlapResult struct {
	State      OverlapState
	FetchFrom  time.Time
	FetchTo    time.Time
	FetchCount int
}

// ResponseSource records how a CandleResponse was satisfied.
type ResponseSource string

const (
	SourceCache ResponseSource = "cache"
	SourceAPI   ResponseSource = "api"
	SourceDB    ResponseSource = "db"
	SourceMixed ResponseSource = "mixed"
)

// CandleResponse is the Provider Facade's single return type.
type CandleResponse struct {
	Success        bool           `json:"success"`
	Candles        []Candle       `json:"candles"`
	TotalCount     int            `json:"total_count"`
	Source         ResponseSource `json:"source"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Exhausted      bool           `json:"exhausted,omitempty"`
	Partial        []Candle       `json:"partial,omitempty"`
	Error          *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail is the machine-readable error envelope attached to a failed
// CandleResponse.
type ErrorDetail struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}
