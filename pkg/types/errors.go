package types

import "errors"

// Sentinel errors named after the error kinds in the engine's error
// handling design. Components wrap these with fmt.Errorf("...: %w", Err*)
// at their call boundary; callers compare with errors.Is.
var (
	// Validation — surfaced immediately, never retried.
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidPool         = errors.New("invalid pool")
	ErrInvalidBudget       = errors.New("invalid budget")
	ErrNotCyclic           = errors.New("path is not cyclic")
	ErrEmptyCandidateSet   = errors.New("no candidate path passed allocation constraints")

	// Pricing gap — a single hop is dropped, the path is discarded, no retry.
	ErrUnknownPair = errors.New("token pair does not match pool")
	ErrEmptyReserve = errors.New("input-side reserve is empty")
	ErrUnquotable   = errors.New("hop is not quotable")

	// Evaluation.
	ErrNoProfitableInput = errors.New("no profitable input found in bracket")

	// Stale input — callers may proceed on the prior graph.
	ErrRefreshStale = errors.New("refresh produced no new data")

	// Transient I/O — surfaced by the RPC, relay and DEX-source adapters on
	// the first failed call; no component retries. The graph refresh logs a
	// failing source and skips it for the current cycle only.
	ErrSourceUnavailable = errors.New("source unavailable")

	// Expiration.
	ErrOpportunityExpired = errors.New("opportunity has expired")

	// Execution / planning preconditions.
	ErrInsufficientProfit = errors.New("expected profit is not positive")
	ErrLowConfidence      = errors.New("confidence below minimum success rate")
	ErrSimulationRejected = errors.New("bundle simulation rejected")
	ErrExecutionRejected  = errors.New("execution rejected by relay or receipt")

	// Cooperative abort.
	ErrCancelled = errors.New("operation cancelled")
	ErrTimeout   = errors.New("operation timed out")
)
