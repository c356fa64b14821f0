// Package apierr defines the machine-readable error kinds the candle
// provider surfaces, following the (Service/Module/Method, Message, Level)
// shape the teacher's Exception audit record uses — but logged via logrus
// rather than persisted, since the relational audit store is a separate
// system outside this core's scope.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error classification from the error design.
type Kind string

const (
	KindValidation  Kind = "ValidationError"
	KindUpstream    Kind = "UpstreamUnavailable"
	KindRateLimited Kind = "UpstreamRateLimited"
	KindStorage     Kind = "StorageUnavailable"
	KindConcurrent  Kind = "ConcurrentCollectionInProgress"
	KindCancelled   Kind = "Cancelled"
	KindExhausted   Kind = "Exhausted"
	// KindIncomplete marks a collection that stopped short of its target
	// count for a reason other than Exhausted (e.g. the safety ceiling).
	// Per §7, this is always reported as a failure with the partial result
	// attached, never silently returned as success.
	KindIncomplete Kind = "CollectionIncomplete"
)

// Error is the provider-wide error type. Detail is the human-readable
// message; Kind is what callers should switch on.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apierr.Validation) style sentinel matching against
// an Error carrying the same Kind. A RateLimited error also matches an
// Upstream target.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		if e.Kind == KindRateLimited && other.Kind == KindUpstream {
			return true
		}
		return e.Kind == other.Kind
	}
	return false
}

func newKind(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Validation wraps a caller-input violation. Never retried.
func Validation(detail string) *Error { return newKind(KindValidation, detail, nil) }

// Upstream wraps a transport or 5xx failure from the exchange, surfaced only
// after the processor's internal retries are exhausted.
func Upstream(detail string, err error) *Error { return newKind(KindUpstream, detail, err) }

// RateLimited wraps an explicit 429 or rate-limiter budget denial. Callers
// that test errors.Is against an Upstream error still match, since
// RateLimited is a dedicated code under the same umbrella; AsKind reports
// KindRateLimited.
func RateLimited(detail string, err error) *Error { return newKind(KindRateLimited, detail, err) }

// Storage wraps a repository I/O failure. Not retried by the core.
func Storage(detail string, err error) *Error { return newKind(KindStorage, detail, err) }

// Concurrent reports that another collection is already running for this
// (symbol, timeframe) pair.
func Concurrent(symbol, timeframe string) *Error {
	return newKind(KindConcurrent, fmt.Sprintf("collection already in progress for %s/%s", symbol, timeframe), nil)
}

// Cancelled reports a deadline exceeded or explicit cancellation.
func Cancelled(detail string) *Error { return newKind(KindCancelled, detail, nil) }

// Exhausted is not a failure: the exchange has no data older than a certain
// point. Kept as an Error value so callers can still branch on Kind, but
// the Facade treats it as success=true with a warning flag.
func Exhausted(detail string) *Error { return newKind(KindExhausted, detail, nil) }

// Incomplete reports that a collection stopped short of its target without
// being Exhausted (e.g. it hit the processor's safety ceiling).
func Incomplete(detail string) *Error { return newKind(KindIncomplete, detail, nil) }

// AsKind reports the Kind of err if it is (or wraps) an *Error.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
