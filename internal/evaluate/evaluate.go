// Package evaluate computes optimal_amount_in, expected_amount_out,
// confidence, and gas_estimate for a cyclic path, per §4.4.
package evaluate

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/kaelidex/arbengine/pkg/ammmath"
	"github.com/kaelidex/arbengine/pkg/types"
)

// goldenRatio is (sqrt(5)-1)/2, the standard golden-section contraction
// factor.
const goldenRatio = 0.6180339887498949

// GasTableKey identifies one lookup-table row by DEX and pool variant.
type GasTableKey struct {
	DEXID   string
	Variant types.Variant
}

// Config bounds the optimal-sizing search and gas estimation.
type Config struct {
	SearchTolerance         float64 // relative bracket width to stop contracting at
	GasBuffer               float64 // multiplied onto the raw gas estimate, >= 1.0
	PoolStalenessThreshold  time.Duration
	GasTable                map[GasTableKey]uint64
	DefaultHopGas           uint64
	BaseGas                 uint64
}

// DefaultConfig matches §4.4's stated constants (21,000 base gas,
// 100,000 default per-hop gas, 10^-4 bracket tolerance).
func DefaultConfig() Config {
	return Config{
		SearchTolerance:        1e-4,
		GasBuffer:              1.1,
		PoolStalenessThreshold: 30 * time.Second,
		GasTable:               map[GasTableKey]uint64{},
		DefaultHopGas:          100_000,
		BaseGas:                21_000,
	}
}

func (c Config) Validate() error {
	if c.SearchTolerance <= 0 {
		return fmt.Errorf("%w: search tolerance must be positive", types.ErrInvalidBudget)
	}
	if c.GasBuffer < 1.0 {
		return fmt.Errorf("%w: gas buffer must be >= 1.0", types.ErrInvalidBudget)
	}
	return nil
}

// Evaluator computes the evaluation fields of a Path in place.
type Evaluator struct {
	cfg Config
}

func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate populates path's OptimalAmountIn, ExpectedAmountOut,
// Confidence, and GasEstimate/GasCost, or returns an error without
// mutating the path.
func (e *Evaluator) Evaluate(path *types.Path, now time.Time, baseFee *big.Int) error {
	if !path.IsCyclic() {
		return fmt.Errorf("%w: path does not close", types.ErrNotCyclic)
	}

	decimals := path.StartToken().Decimals
	scale := new(big.Float).SetInt(pow10(decimals))

	bracket := []*big.Int{}
	for _, exp := range []float64{-2, -1, 0, 1, 2} {
		amt := new(big.Float).Mul(big.NewFloat(math.Pow(10, exp)), scale)
		i, _ := amt.Int(nil)
		if i.Sign() <= 0 {
			i = big.NewInt(1)
		}
		bracket = append(bracket, i)
	}

	type probe struct {
		x, profit *big.Int
	}
	var profitable []probe
	for _, x := range bracket {
		out, _, err := e.composeOutput(path, x, now)
		if err != nil {
			continue
		}
		profit := new(big.Int).Sub(out, x)
		if profit.Sign() > 0 {
			profitable = append(profitable, probe{x: x, profit: profit})
		}
	}
	if len(profitable) == 0 {
		return fmt.Errorf("%w: no probe in {1e-2,1e-1,1,10,1e2}*10^%d was profitable", types.ErrNoProfitableInput, decimals)
	}

	lo := new(big.Float).SetInt(bracket[0])
	hi := new(big.Float).SetInt(bracket[len(bracket)-1])

	eval := func(xf *big.Float) (*big.Int, *big.Int, float64, error) {
		x, _ := xf.Int(nil)
		if x.Sign() <= 0 {
			x = big.NewInt(1)
		}
		out, confidence, err := e.composeOutput(path, x, now)
		if err != nil {
			return x, nil, 0, err
		}
		profit := new(big.Int).Sub(out, x)
		return x, profit, confidence, nil
	}

	var bestX, bestOut *big.Int
	var bestConfidence float64

	for i := 0; i < 200; i++ {
		width := new(big.Float).Sub(hi, lo)
		relWidth, _ := new(big.Float).Quo(width, hi).Float64()
		if math.Abs(relWidth) <= e.cfg.SearchTolerance {
			break
		}

		span := new(big.Float).Sub(hi, lo)
		m1 := new(big.Float).Add(lo, new(big.Float).Mul(span, big.NewFloat(1-goldenRatio)))
		m2 := new(big.Float).Add(lo, new(big.Float).Mul(span, big.NewFloat(goldenRatio)))

		x1, p1, c1, err1 := eval(m1)
		x2, p2, c2, err2 := eval(m2)

		f1 := profitValue(p1, err1)
		f2 := profitValue(p2, err2)

		if f1 < f2 {
			lo = m1
			if err2 == nil {
				out := new(big.Int).Add(p2, x2)
				bestX, bestOut, bestConfidence = x2, out, c2
			}
		} else {
			hi = m2
			if err1 == nil {
				out := new(big.Int).Add(p1, x1)
				bestX, bestOut, bestConfidence = x1, out, c1
			}
		}
	}

	if bestX == nil {
		best := profitable[0]
		out, confidence, err := e.composeOutput(path, best.x, now)
		if err != nil {
			return err
		}
		bestX, bestOut, bestConfidence = best.x, out, confidence
	}

	path.OptimalAmountIn = bestX
	path.ExpectedAmountOut = bestOut
	path.Confidence = bestConfidence
	path.GasEstimate = e.estimateGas(path)
	if baseFee != nil {
		path.GasCost = new(big.Int).Mul(baseFee, new(big.Int).SetUint64(path.GasEstimate))
	}
	return nil
}

func profitValue(profit *big.Int, err error) float64 {
	if err != nil || profit == nil {
		return math.Inf(-1)
	}
	f := new(big.Float).SetInt(profit)
	v, _ := f.Float64()
	return v
}

// composeOutput walks every hop quoting amountIn through to the final
// output, multiplying per-hop confidences and degrading for stale pools
// along the way.
func (e *Evaluator) composeOutput(path *types.Path, amountIn *big.Int, now time.Time) (*big.Int, float64, error) {
	amount := amountIn
	confidence := 1.0

	for _, hop := range path.Hops {
		q, err := ammmath.Quote(hop.Pool, hop.TokenIn, amount)
		if err != nil {
			return nil, 0, err
		}
		hopConfidence := q.Confidence
		if hop.Pool.IsStale(now, e.cfg.PoolStalenessThreshold) && hopConfidence > 0.95 {
			hopConfidence = 0.95
		}
		confidence *= hopConfidence
		amount = q.AmountOut
	}
	return amount, confidence, nil
}

func (e *Evaluator) estimateGas(path *types.Path) uint64 {
	total := e.cfg.BaseGas
	for _, hop := range path.Hops {
		key := GasTableKey{DEXID: hop.Pool.DEXID, Variant: hop.Pool.Variant}
		if cost, ok := e.cfg.GasTable[key]; ok {
			total += cost
		} else {
			total += e.cfg.DefaultHopGas
		}
	}
	return uint64(math.Ceil(float64(total) * e.cfg.GasBuffer))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
