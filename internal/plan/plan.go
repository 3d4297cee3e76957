// Package plan builds an ExecutionPlan from a MultiPathOpportunity under
// one of three strategies, per §4.8.
package plan

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/kaelidex/arbengine/internal/gasopt"
	"github.com/kaelidex/arbengine/pkg/types"
)

// SimResult mirrors the §6 relay client's simulate_bundle response.
type SimResult struct {
	Success   bool
	MEVValue  *big.Int
	TotalCost *big.Int
}

// BundleSimulator is the relay client's simulation surface, consumed
// only by the Atomic strategy's pre-execution check.
type BundleSimulator interface {
	SimulateBundle(ctx context.Context, steps []types.Step) (SimResult, error)
}

// Config holds the §6 Planner options.
type Config struct {
	MaxConcurrentPaths int
	MinSuccessRate     float64
	BlocksIntoFuture   uint64
	// AtomicGasDiscount is the intra-bundle gas discount from shared
	// storage warming, per §4.8 ("20% intra-bundle discount").
	AtomicGasDiscount float64
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentPaths: 4,
		MinSuccessRate:     0.6,
		BlocksIntoFuture:   2,
		AtomicGasDiscount:  0.2,
	}
}

func (c Config) Validate() error {
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("%w: min success rate must be in [0,1]", types.ErrInvalidBudget)
	}
	if c.MaxConcurrentPaths <= 0 {
		return fmt.Errorf("%w: max concurrent paths must be positive", types.ErrInvalidBudget)
	}
	return nil
}

// Planner builds plans. PriorityFee comes from the gas optimizer (C9);
// simulation from the relay client (consumed collaborator).
type Planner struct {
	cfg       Config
	gas       *gasopt.Optimizer
	simulator BundleSimulator
}

func New(cfg Config, gas *gasopt.Optimizer, simulator BundleSimulator) *Planner {
	return &Planner{cfg: cfg, gas: gas, simulator: simulator}
}

// Build validates preconditions and constructs one ExecutionPlan for
// strategy. When strategy is Atomic and fallbackEnabled, a Parallel plan
// is also built to be invoked by the executor if the atomic bundle is
// rejected by the relay; no fallback exists for Parallel itself, per §4.8.
func (p *Planner) Build(ctx context.Context, opp *types.MultiPathOpportunity, strategy types.Strategy, fallbackEnabled bool, now time.Time) (*types.ExecutionPlan, error) {
	if err := p.checkPreconditions(opp, now); err != nil {
		return nil, err
	}

	var built *types.ExecutionPlan
	var err error
	switch strategy {
	case types.Atomic:
		built, err = p.buildAtomic(ctx, opp)
	case types.Sequential:
		built, err = p.buildSequential(opp)
	case types.Parallel:
		built, err = p.buildParallel(opp)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %s", types.ErrInvalidBudget, strategy)
	}
	if err != nil {
		return nil, err
	}

	if strategy == types.Atomic && fallbackEnabled {
		fallback, ferr := p.buildParallel(opp)
		if ferr == nil {
			built.Fallback = fallback
		}
	}
	return built, nil
}

func (p *Planner) checkPreconditions(opp *types.MultiPathOpportunity, now time.Time) error {
	if opp.IsExpired(now) {
		return fmt.Errorf("%w: opportunity %s", types.ErrOpportunityExpired, opp.ID)
	}
	if opp.ExpectedProfit == nil || opp.ExpectedProfit.Sign() <= 0 {
		return fmt.Errorf("%w: opportunity %s", types.ErrInsufficientProfit, opp.ID)
	}
	if opp.Confidence < p.cfg.MinSuccessRate {
		return fmt.Errorf("%w: confidence %f below %f", types.ErrLowConfidence, opp.Confidence, p.cfg.MinSuccessRate)
	}
	for _, path := range opp.Paths {
		if !path.IsCyclic() {
			return fmt.Errorf("%w: opportunity %s", types.ErrNotCyclic, opp.ID)
		}
	}
	return nil
}

func (p *Planner) buildAtomic(ctx context.Context, opp *types.MultiPathOpportunity) (*types.ExecutionPlan, error) {
	steps := buildSteps(opp, false)

	gasTotal := uint64(0)
	for _, step := range steps {
		gasTotal += step.GasLimit
	}
	gasTotal = uint64(float64(gasTotal) * (1 - p.cfg.AtomicGasDiscount))

	priorityFee, err := p.gas.PriorityFee(gasopt.Balanced)
	if err != nil {
		return nil, fmt.Errorf("derive priority fee: %w", err)
	}

	planned := &types.ExecutionPlan{
		ID:          uuid.New().String(),
		Strategy:    types.Atomic,
		Steps:       steps,
		GasTotal:    gasTotal,
		PriorityFee: gweiToBig(priorityFee),
	}

	if p.simulator != nil {
		result, err := p.simulator.SimulateBundle(ctx, steps)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSimulationRejected, err)
		}
		if !result.Success || result.MEVValue.Cmp(result.TotalCost) <= 0 {
			return nil, fmt.Errorf("%w: mev_value does not exceed total_cost", types.ErrSimulationRejected)
		}
	}

	return planned, nil
}

func (p *Planner) buildSequential(opp *types.MultiPathOpportunity) (*types.ExecutionPlan, error) {
	steps := buildSteps(opp, true)
	gasTotal := uint64(0)
	for _, step := range steps {
		gasTotal += step.GasLimit
	}
	priorityFee, err := p.gas.PriorityFee(gasopt.Balanced)
	if err != nil {
		return nil, fmt.Errorf("derive priority fee: %w", err)
	}
	return &types.ExecutionPlan{
		ID:          uuid.New().String(),
		Strategy:    types.Sequential,
		Steps:       steps,
		GasTotal:    gasTotal,
		PriorityFee: gweiToBig(priorityFee),
	}, nil
}

func (p *Planner) buildParallel(opp *types.MultiPathOpportunity) (*types.ExecutionPlan, error) {
	steps := buildSteps(opp, false)
	gasTotal := uint64(0)
	for _, step := range steps {
		gasTotal += step.GasLimit
	}
	priorityFee, err := p.gas.PriorityFee(gasopt.Balanced)
	if err != nil {
		return nil, fmt.Errorf("derive priority fee: %w", err)
	}
	return &types.ExecutionPlan{
		ID:          uuid.New().String(),
		Strategy:    types.Parallel,
		Steps:       steps,
		GasTotal:    gasTotal,
		PriorityFee: gweiToBig(priorityFee),
	}, nil
}

// buildSteps constructs one Step per allocation, assigning monotonic
// nonces when assignNonces is set (Sequential strategy only).
func buildSteps(opp *types.MultiPathOpportunity, assignNonces bool) []types.Step {
	steps := make([]types.Step, 0, len(opp.Allocations))
	for i, alloc := range opp.Allocations {
		var nonce *uint64
		if assignNonces {
			n := uint64(i)
			nonce = &n
		}
		var gasLimit uint64
		if alloc.Path != nil {
			gasLimit = alloc.Path.GasEstimate
		}
		steps = append(steps, types.Step{
			Path:       alloc.Path,
			Allocation: alloc.Amount,
			GasLimit:   gasLimit,
			Nonce:      nonce,
		})
	}
	return steps
}

func gweiToBig(gwei float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	i, _ := f.Int(nil)
	return i
}
