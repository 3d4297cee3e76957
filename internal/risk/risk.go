// Package risk predicts per-hop and per-path slippage, adjusts slippage
// tolerance, maintains historical correction windows fed by execution
// feedback, and computes the risk score, per §4.5.
package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/kaelidex/arbengine/pkg/types"
)

// Config bounds the slippage model. Field names mirror §4.5/§6's
// tunables directly.
type Config struct {
	BaseSlippageTolerance float64
	MaxSlippageTolerance  float64
	SlippageBuffer        float64 // >= 1.0
	HistoryWindowSize     int     // default 100 samples, per §4.5
	AdaptationStep        float64
}

func DefaultConfig() Config {
	return Config{
		BaseSlippageTolerance: 0.005,
		MaxSlippageTolerance:  0.03,
		SlippageBuffer:        1.1,
		HistoryWindowSize:     100,
		AdaptationStep:        0.001,
	}
}

func (c Config) Validate() error {
	if c.SlippageBuffer < 1.0 {
		return fmt.Errorf("%w: slippage buffer must be >= 1.0", types.ErrInvalidBudget)
	}
	if c.MaxSlippageTolerance <= 0 || c.BaseSlippageTolerance <= 0 {
		return fmt.Errorf("%w: slippage tolerances must be positive", types.ErrInvalidBudget)
	}
	return nil
}

// HistoryKey identifies one rolling window: a specific pool, token side,
// and DEX, per §4.5's "per-pool, per-token, per-DEX rolling windows".
type HistoryKey struct {
	Pool  string
	Token string
	DEX   string
}

// Model holds the mutable rolling-window history alongside the
// otherwise-stateless slippage math. Safe for concurrent use.
type Model struct {
	mu      sync.Mutex
	cfg     Config
	windows map[HistoryKey][]float64
	// tolerance holds the adapted base tolerance, seeded from
	// cfg.BaseSlippageTolerance and moved by Adapt.
	tolerance float64
}

func New(cfg Config) *Model {
	return &Model{cfg: cfg, windows: make(map[HistoryKey][]float64), tolerance: cfg.BaseSlippageTolerance}
}

// PredictHopSlippage estimates the fractional slippage of a single hop
// trading amountIn through pool, per the per-variant formulas in §4.5.
func PredictHopSlippage(pool *types.Pool, tokenIn types.Token, amountIn float64) (float64, error) {
	reserveIn, _, err := pool.Reserves(tokenIn)
	if err != nil {
		return 0, err
	}
	if reserveIn == nil || reserveIn.Sign() == 0 {
		return 0, fmt.Errorf("%w: pool %s", types.ErrEmptyReserve, pool.Address.Hex())
	}
	reserveFloat := bigToFloat(reserveIn)
	ratio := amountIn / reserveFloat

	switch pool.Variant {
	case types.Stable:
		return 0.5 * ratio * ratio, nil
	case types.Concentrated:
		// Uses the constant-product (amount/reserve)^2 estimate against the
		// pool's raw reserves; the tick snapshot is not consulted here.
		return ratio * ratio, nil
	default:
		return ratio * ratio, nil
	}
}

// PredictPathSlippage applies the historical correction to each hop's
// predicted slippage (by the hop's history key), sums the corrected hops
// (a conservative overapproximation per §4.5), and caps the total at
// max_slippage_tolerance.
func (m *Model) PredictPathSlippage(path *types.Path, dexIDs []string) (float64, error) {
	total := 0.0
	for _, hop := range path.Hops {
		amountIn := 0.0
		if path.OptimalAmountIn != nil {
			amountIn = bigToFloat(path.OptimalAmountIn)
		}
		predicted, err := PredictHopSlippage(hop.Pool, hop.TokenIn, amountIn)
		if err != nil {
			return 0, err
		}
		key := HistoryKey{Pool: hop.Pool.Address.Hex(), Token: hop.TokenIn.Address.Hex(), DEX: hop.Pool.DEXID}
		predicted = m.correctFromHistory(key, predicted)
		total += predicted
	}
	if total > m.cfg.MaxSlippageTolerance {
		total = m.cfg.MaxSlippageTolerance
	}
	return total, nil
}

// correctFromHistory takes the 95th-percentile of the rolling window for
// key and returns max(predicted, historical), per §4.5.
func (m *Model) correctFromHistory(key HistoryKey, predicted float64) float64 {
	m.mu.Lock()
	samples := append([]float64(nil), m.windows[key]...)
	m.mu.Unlock()

	if len(samples) == 0 {
		return predicted
	}
	p95, err := stats.Percentile(samples, 95)
	if err != nil {
		return predicted
	}
	return math.Max(predicted, p95)
}

// RecordObserved feeds an execution-observed slippage sample into key's
// rolling window (fed by C8 after execution, per §4.5), evicting the
// oldest sample once the window exceeds HistoryWindowSize.
func (m *Model) RecordObserved(key HistoryKey, observedSlippage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := append(m.windows[key], observedSlippage)
	if len(w) > m.cfg.HistoryWindowSize {
		w = w[len(w)-m.cfg.HistoryWindowSize:]
	}
	m.windows[key] = w
}

// AdjustTolerance composes base tolerance, a path-complexity addend
// (0.5% per hop beyond the first), a market-volatility addend, and an
// amount-factor addend driven by the largest per-hop reserve ratio, then
// multiplies by slippage_buffer and caps at max_slippage_tolerance.
func (m *Model) AdjustTolerance(path *types.Path, marketVolatility float64, maxReserveRatio float64) float64 {
	m.mu.Lock()
	base := m.tolerance
	m.mu.Unlock()

	hops := len(path.Hops)
	complexityAddend := 0.0
	if hops > 1 {
		complexityAddend = 0.005 * float64(hops-1)
	}
	volatilityAddend := 0.01 * clamp01(marketVolatility)
	amountAddend := 0.01 * clamp01(maxReserveRatio)

	tolerance := (base + complexityAddend + volatilityAddend + amountAddend) * m.cfg.SlippageBuffer
	if tolerance > m.cfg.MaxSlippageTolerance {
		tolerance = m.cfg.MaxSlippageTolerance
	}
	return tolerance
}

// RiskScore composes the weighted risk score from §4.5: higher is
// riskier, bounded to [0,1] by construction since each term is bounded.
func RiskScore(confidence float64, hops int, marketVolatility float64) float64 {
	return 0.5*(1-confidence) + 0.3*clamp01(float64(hops)/5) + 0.2*clamp01(marketVolatility)
}

// Adapt implements the post-execution adaptation protocol: when observed
// slippage exceeds max_slippage_tolerance it widens the tolerance by one
// adaptation step and returns a 0.8 input-size multiplier; when observed
// slippage is below half the base tolerance it narrows the tolerance by one
// step and returns 1.25; otherwise it returns 1.0. Applying the multiplier
// to the path's next sizing pass is left to the caller.
func (m *Model) Adapt(observedSlippage float64) (sizeMultiplier float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case observedSlippage > m.cfg.MaxSlippageTolerance:
		m.tolerance += m.cfg.AdaptationStep
		sizeMultiplier = 0.8
	case observedSlippage < 0.5*m.cfg.BaseSlippageTolerance:
		m.tolerance -= m.cfg.AdaptationStep
		sizeMultiplier = 1.25
	default:
		sizeMultiplier = 1.0
	}

	if m.tolerance < 0.001 {
		m.tolerance = 0.001
	}
	if m.tolerance > m.cfg.MaxSlippageTolerance {
		m.tolerance = m.cfg.MaxSlippageTolerance
	}
	return sizeMultiplier
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
