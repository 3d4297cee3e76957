package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Strategy selects how an ExecutionPlan's steps are submitted.
type Strategy uint8

const (
	Atomic Strategy = iota
	Sequential
	Parallel
)

func (s Strategy) String() string {
	switch s {
	case Atomic:
		return "atomic"
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Step is one transaction (or, for Atomic, one bundle entry) in a plan.
type Step struct {
	Path        *Path
	Allocation  *big.Int
	To          common.Address
	Data        []byte
	GasLimit    uint64
	Nonce       *uint64 // set for Sequential steps, nil otherwise
}

// ExecutionPlan is the ordered output of the execution planner (C8).
// Fallback, if present, is a lower-coordination plan built in the same
// pass, to be invoked by the executor if this plan is rejected.
type ExecutionPlan struct {
	ID          string
	Strategy    Strategy
	Steps       []Step
	GasTotal    uint64
	PriorityFee *big.Int // wei
	Fallback    *ExecutionPlan
}
