// Package gasopt maintains the gas-price ring buffer and derives
// priority-fee recommendations, per §4.9.
package gasopt

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat"

	"github.com/kaelidex/arbengine/pkg/types"
)

// Target selects the priority_fee policy, per §4.9.
type Target int

const (
	Cost Target = iota
	Balanced
	Speed
)

// Config holds the gwei-denominated bounds from §6's Gas options.
type Config struct {
	MinPriorityFeeGwei float64
	MaxPriorityFeeGwei float64
	MaxGasPriceGwei    float64
	UpdateInterval     time.Duration
	WindowSize         int
}

func DefaultConfig() Config {
	return Config{
		MinPriorityFeeGwei: 1,
		MaxPriorityFeeGwei: 10,
		MaxGasPriceGwei:    500,
		UpdateInterval:     12 * time.Second,
		WindowSize:         200,
	}
}

func (c Config) Validate() error {
	if c.MinPriorityFeeGwei < 0 || c.MaxPriorityFeeGwei < c.MinPriorityFeeGwei {
		return fmt.Errorf("%w: invalid priority fee bounds", types.ErrInvalidBudget)
	}
	if c.WindowSize <= 1 {
		return fmt.Errorf("%w: window size must allow a regression fit", types.ErrInvalidBudget)
	}
	return nil
}

type sample struct {
	t           time.Time
	baseFeeGwei float64
	gasPriceGwei float64
}

// Prediction is the result of Predict: a point estimate plus a 95%
// interval derived from the OLS residual standard error, supplementing
// §4.9 per the Python original's gas_optimizer confidence interval.
type Prediction struct {
	Point float64
	Low   float64
	High  float64
}

// Optimizer is single-writer (the refresh task), multi-reader, per §5's
// shared-resource policy for the gas history ring.
type Optimizer struct {
	mu      sync.RWMutex
	cfg     Config
	clock   clock.Clock
	window  []sample
	lastPoll time.Time
}

func New(cfg Config, clk clock.Clock) *Optimizer {
	if clk == nil {
		clk = clock.New()
	}
	return &Optimizer{cfg: cfg, clock: clk}
}

// Observe appends a (timestamp, base_fee, gas_price) tuple to the ring,
// evicting the oldest sample beyond WindowSize. Called by the refresh
// task at most every UpdateInterval.
func (o *Optimizer) Observe(now time.Time, baseFeeGwei, gasPriceGwei float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.lastPoll.IsZero() && now.Sub(o.lastPoll) < o.cfg.UpdateInterval {
		return
	}
	o.lastPoll = now
	o.window = append(o.window, sample{t: now, baseFeeGwei: baseFeeGwei, gasPriceGwei: gasPriceGwei})
	if len(o.window) > o.cfg.WindowSize {
		o.window = o.window[len(o.window)-o.cfg.WindowSize:]
	}
}

// Current returns the most recently observed (base_fee, suggested_gas_price).
func (o *Optimizer) Current() (baseFeeGwei, gasPriceGwei float64, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.window) == 0 {
		return 0, 0, false
	}
	last := o.window[len(o.window)-1]
	return last.baseFeeGwei, last.gasPriceGwei, true
}

// Predict fits an ordinary-least-squares line over the window's
// (elapsed_seconds, gas_price_gwei) pairs and extrapolates horizon
// seconds forward, clamped to [1 gwei, max_gas_price]. The interval is
// the point estimate +/- 1.96 * residual standard error, per the
// supplemented Python gas_optimizer._calculate_gas_price_confidence_interval.
func (o *Optimizer) Predict(horizon time.Duration) (Prediction, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.window) < 2 {
		return Prediction{}, fmt.Errorf("%w: not enough gas samples to fit a trend", types.ErrInvalidBudget)
	}

	t0 := o.window[0].t
	xs := make([]float64, len(o.window))
	ys := make([]float64, len(o.window))
	for i, s := range o.window {
		xs[i] = s.t.Sub(t0).Seconds()
		ys[i] = s.gasPriceGwei
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	horizonX := xs[len(xs)-1] + horizon.Seconds()
	point := alpha + beta*horizonX

	residualStdErr := regressionResidualStdErr(xs, ys, alpha, beta)
	interval := 1.96 * residualStdErr

	point = clampGas(point, 1, o.cfg.MaxGasPriceGwei)
	low := clampGas(point-interval, 1, o.cfg.MaxGasPriceGwei)
	high := clampGas(point+interval, 1, o.cfg.MaxGasPriceGwei)

	return Prediction{Point: point, Low: low, High: high}, nil
}

func regressionResidualStdErr(xs, ys []float64, alpha, beta float64) float64 {
	n := float64(len(xs))
	if n <= 2 {
		return 0
	}
	sumSq := 0.0
	for i := range xs {
		resid := ys[i] - (alpha + beta*xs[i])
		sumSq += resid * resid
	}
	return math.Sqrt(sumSq / (n - 2))
}

func clampGas(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PriorityFee implements the §4.9 priority_fee policy for the given
// target, reading the most recently observed base fee.
func (o *Optimizer) PriorityFee(target Target) (float64, error) {
	baseFeeGwei, _, ok := o.Current()
	if !ok {
		return 0, fmt.Errorf("%w: no gas samples observed yet", types.ErrInvalidBudget)
	}

	switch target {
	case Cost:
		return o.cfg.MinPriorityFeeGwei, nil
	case Speed:
		return clampGas(baseFeeGwei*0.5, o.cfg.MinPriorityFeeGwei, o.cfg.MaxPriorityFeeGwei), nil
	default:
		return clampGas(baseFeeGwei*0.2, o.cfg.MinPriorityFeeGwei, o.cfg.MaxPriorityFeeGwei), nil
	}
}
