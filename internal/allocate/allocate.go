// Package allocate implements the fractional-Kelly multi-path capital
// allocator, per §4.6.
package allocate

import (
	"fmt"
	"math/big"

	"github.com/kaelidex/arbengine/pkg/types"
)

// RiskProfile selects the risk_multiplier used in step 3 of §4.6.
type RiskProfile int

const (
	Conservative RiskProfile = iota
	Moderate
	Aggressive
)

func (p RiskProfile) riskMultiplier() float64 {
	switch p {
	case Conservative:
		return 1.5
	case Aggressive:
		return 0.7
	default:
		return 1.0
	}
}

// Config holds the allocator's tunables, named directly after §4.6/§6.
type Config struct {
	CapitalReserveFraction float64
	KellyFraction          float64 // in (0, 1]
	MinAllocationFraction  float64
	MaxAllocationFraction  float64
	HistorySize            int
}

func DefaultConfig() Config {
	return Config{
		CapitalReserveFraction: 0.1,
		KellyFraction:          0.5,
		MinAllocationFraction:  0.01,
		MaxAllocationFraction:  0.5,
		HistorySize:            50,
	}
}

func (c Config) Validate() error {
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("%w: kelly fraction must be in (0,1]", types.ErrInvalidBudget)
	}
	if c.MinAllocationFraction < 0 || c.MaxAllocationFraction <= 0 || c.MinAllocationFraction > c.MaxAllocationFraction {
		return fmt.Errorf("%w: invalid allocation fraction bounds", types.ErrInvalidBudget)
	}
	if c.CapitalReserveFraction < 0 || c.CapitalReserveFraction >= 1 {
		return fmt.Errorf("%w: capital reserve fraction must be in [0,1)", types.ErrInvalidBudget)
	}
	return nil
}

// Context carries the per-discover-cycle inputs the Kelly math needs
// beyond the paths themselves.
type Context struct {
	MarketVolatility float64
	RiskProfile      RiskProfile
}

// Allocator holds the bounded allocation history supplemented from the
// Python original's capital_allocator._update_allocation_history. It is
// exposed through History; neither the allocation math nor the ranker
// reads it.
type Allocator struct {
	cfg     Config
	history map[string][]float64
}

func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg, history: make(map[string][]float64)}
}

// Result is the allocator's output: one allocation per input path (same
// order, zero-value amount for excluded paths) and the combined expected
// profit from the surviving ones.
type Result struct {
	Allocations    []*types.Allocation
	ExpectedProfit *big.Int
}

// Allocate runs the six-step algorithm from §4.6 over paths sharing a
// start token against budget B. Kelly fractions and the risk-adjustment
// ratio are dimensionless and stay in float64; every budget-scale amount
// (usable capital, per-path allocations, box-constraint bounds) is carried
// as a *big.Rat so wei-scale budgets never round through a float64
// mantissa.
func (a *Allocator) Allocate(paths []*types.Path, budget *big.Int, ctx Context) (*Result, error) {
	n := len(paths)
	if n == 0 {
		return nil, fmt.Errorf("%w: no paths supplied", types.ErrEmptyCandidateSet)
	}

	usable := new(big.Rat).Mul(new(big.Rat).SetInt(budget), ratFromFloat(1-a.cfg.CapitalReserveFraction))

	// Step 2: fractional Kelly per path.
	fractions := make([]float64, n)
	sumF := 0.0
	for i, p := range paths {
		conf := p.Confidence
		optimal := bigToFloat(p.OptimalAmountIn)
		out := bigToFloat(p.ExpectedAmountOut)
		if optimal <= 0 {
			continue
		}
		b := out/optimal - 1
		f := 0.0
		if b > 0 {
			f = (conf*b - (1 - conf)) / b
		}
		f *= a.cfg.KellyFraction
		f = clamp(f, 0, 1)
		fractions[i] = f
		sumF += f
	}
	if sumF > 0 {
		for i := range fractions {
			fractions[i] /= sumF
		}
	}

	// Step 3: risk adjustment, renormalized to preserve sum(f_i)*U.
	targetTotal := new(big.Rat).Mul(ratFromFloat(sumF), usable)
	adjusted := make([]float64, n)
	adjSum := 0.0
	for i, p := range paths {
		denom := 1 + (1-p.Confidence)*ctx.RiskProfile.riskMultiplier()*(1+ctx.MarketVolatility)
		adjusted[i] = fractions[i] / denom
		adjSum += adjusted[i]
	}
	if adjSum > 0 && usable.Sign() > 0 {
		currentTotal := new(big.Rat).Mul(ratFromFloat(adjSum), usable)
		if currentTotal.Sign() > 0 {
			scale := new(big.Rat).Quo(targetTotal, currentTotal)
			scaleF, _ := scale.Float64()
			for i := range adjusted {
				adjusted[i] *= scaleF
			}
		}
	}

	// Step 4: box constraints and expected-profit exclusion, all in
	// budget-scale big.Rat amounts.
	allocations := make([]*big.Rat, n)
	minAlloc := new(big.Rat).Mul(ratFromFloat(a.cfg.MinAllocationFraction), usable)
	for i, p := range paths {
		raw := new(big.Rat).Mul(ratFromFloat(adjusted[i]), usable)
		maxAlloc := new(big.Rat).Mul(ratFromFloat(a.cfg.MaxAllocationFraction), usable)
		if p.OptimalAmountIn != nil {
			if optimal := new(big.Rat).SetInt(p.OptimalAmountIn); optimal.Cmp(maxAlloc) < 0 {
				maxAlloc = optimal
			}
		}
		amt := clampRat(raw, minAlloc, maxAlloc)
		if amt.Cmp(minAlloc) < 0 {
			amt = new(big.Rat)
		}

		if expectedHopProfit(p, amt).Sign() <= 0 {
			amt = new(big.Rat)
		}
		allocations[i] = amt
	}

	// Step 5: renormalize if the clamped vector exceeds U.
	total := new(big.Rat)
	for _, amt := range allocations {
		total.Add(total, amt)
	}
	if total.Cmp(usable) > 0 && total.Sign() > 0 {
		scale := new(big.Rat).Quo(usable, total)
		for i := range allocations {
			allocations[i] = new(big.Rat).Mul(allocations[i], scale)
		}
	}

	// Step 6: expected combined profit.
	expectedProfit := new(big.Rat)
	result := make([]*types.Allocation, n)
	anySurvived := false
	for i, p := range paths {
		amt := allocations[i]
		result[i] = &types.Allocation{Path: p, Amount: bigIntFromRat(amt)}
		if amt.Sign() <= 0 {
			continue
		}
		anySurvived = true
		if p.OptimalAmountIn == nil || p.OptimalAmountIn.Sign() <= 0 {
			continue
		}
		optimal := new(big.Rat).SetInt(p.OptimalAmountIn)
		profitPerUnit := new(big.Rat).Quo(expectedHopProfit(p, optimal), optimal)
		contribution := new(big.Rat).Mul(profitPerUnit, amt)
		contribution.Mul(contribution, ratFromFloat(p.Confidence))
		expectedProfit.Add(expectedProfit, contribution)
	}
	if !anySurvived {
		return nil, fmt.Errorf("%w: no path survived box constraints", types.ErrEmptyCandidateSet)
	}

	a.recordHistory(paths, allocations)
	return &Result{Allocations: result, ExpectedProfit: bigIntFromRat(expectedProfit)}, nil
}

func expectedHopProfit(p *types.Path, amount *big.Rat) *big.Rat {
	profit := p.ExpectedProfit()
	if profit == nil || p.OptimalAmountIn == nil || p.OptimalAmountIn.Sign() <= 0 {
		return new(big.Rat)
	}
	optimal := new(big.Rat).SetInt(p.OptimalAmountIn)
	ratio := new(big.Rat).Quo(amount, optimal)
	return new(big.Rat).Mul(new(big.Rat).SetInt(profit), ratio)
}

func (a *Allocator) recordHistory(paths []*types.Path, allocations []*big.Rat) {
	for i, p := range paths {
		key := p.Identifier()
		f, _ := allocations[i].Float64()
		w := append(a.history[key], f)
		if len(w) > a.cfg.HistorySize {
			w = w[len(w)-a.cfg.HistorySize:]
		}
		a.history[key] = w
	}
}

// History returns the recorded allocation history for a path identifier,
// most recent last.
func (a *Allocator) History(pathID string) []float64 {
	return a.history[pathID]
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampRat bounds v to [lo, hi], matching clamp's behavior for
// budget-scale big.Rat amounts.
func clampRat(v, lo, hi *big.Rat) *big.Rat {
	if hi.Cmp(lo) < 0 {
		return lo
	}
	if v.Cmp(lo) < 0 {
		return lo
	}
	if v.Cmp(hi) > 0 {
		return hi
	}
	return v
}

func bigToFloat(i *big.Int) float64 {
	if i == nil {
		return 0
	}
	f := new(big.Float).SetInt(i)
	v, _ := f.Float64()
	return v
}

// ratFromFloat lifts a dimensionless fraction (Kelly fraction, risk
// ratio, confidence) into the exact rational it represents, so it can be
// multiplied against budget-scale big.Rat amounts without a float64
// round-trip on the amount side.
func ratFromFloat(v float64) *big.Rat {
	r := new(big.Rat)
	if r.SetFloat64(v) == nil {
		return new(big.Rat) // NaN/Inf from a degenerate config; treat as zero
	}
	return r
}

// bigIntFromRat floors amt to the nearest base-unit integer.
func bigIntFromRat(amt *big.Rat) *big.Int {
	if amt.Sign() <= 0 {
		return big.NewInt(0)
	}
	q := new(big.Int)
	q.Quo(amt.Num(), amt.Denom())
	return q
}
