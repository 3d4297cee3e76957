// Package engine wires C1-C9 behind the discover/plan/record_execution
// surface from §6. It owns the per-engine mutable state named in §5's
// shared-resource policy: the pool graph, the slippage history windows,
// and the gas ring buffer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kaelidex/arbengine/internal/allocate"
	"github.com/kaelidex/arbengine/internal/evaluate"
	"github.com/kaelidex/arbengine/internal/gasopt"
	"github.com/kaelidex/arbengine/internal/graph"
	"github.com/kaelidex/arbengine/internal/pathfind"
	"github.com/kaelidex/arbengine/internal/plan"
	"github.com/kaelidex/arbengine/internal/rank"
	"github.com/kaelidex/arbengine/internal/risk"
	"github.com/kaelidex/arbengine/pkg/types"
)

// Engine holds one instance of each component and exposes the
// discover/plan/record_execution operations from §6. Construct with New.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	graph     *graph.PoolGraph
	finder    *pathfind.Finder
	evaluator *evaluate.Evaluator
	riskModel *risk.Model
	allocator *allocate.Allocator
	ranker    *rank.Ranker
	planner   *plan.Planner
	gas       *gasopt.Optimizer

	successRates *successTracker
	metrics      *Metrics
}

// New wires one Engine instance from its configuration and external
// collaborators (DEX sources, the relay's bundle simulator).
func New(cfg Config, sources []graph.Source, simulator plan.BundleSimulator, clk clock.Clock, log logrus.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	g, err := graph.New(cfg.Graph, sources, clk, log.WithField("component", "graph"))
	if err != nil {
		return nil, fmt.Errorf("construct pool graph: %w", err)
	}

	tracker := newSuccessTracker()
	gasOptimizer := gasopt.New(cfg.Gas, clk)

	e := &Engine{
		cfg:          cfg,
		log:          log,
		graph:        g,
		finder:       pathfind.New(cfg.Finder),
		evaluator:    evaluate.New(cfg.Evaluator),
		riskModel:    risk.New(cfg.Risk),
		allocator:    allocate.New(cfg.Allocator),
		ranker:       rank.New(cfg.Ranker, tracker.lookup),
		planner:      plan.New(cfg.Planner, gasOptimizer, simulator),
		gas:          gasOptimizer,
		successRates: tracker,
		metrics:      newMetrics(),
	}
	return e, nil
}

// ObserveGas feeds a freshly polled (base_fee, gas_price) sample (both in
// gwei) into the gas optimizer's ring buffer. Driven externally by the
// RPC-client adapter's polling loop, per §4.9's "updated ... by querying
// the RPC client".
func (e *Engine) ObserveGas(now time.Time, baseFeeGwei, gasPriceGwei float64) {
	e.gas.Observe(now, baseFeeGwei, gasPriceGwei)
}

// Discover implements §6's discover(start_token, config): refresh the
// graph, enumerate cycles, evaluate and risk-screen each one, rank and
// merge near-duplicates, then allocate capital across the survivors.
// Individual path failures are logged and skipped; discover itself never
// fails because one path was unquotable or unprofitable.
func (e *Engine) Discover(ctx context.Context, startToken types.Token, now time.Time) ([]*types.MultiPathOpportunity, error) {
	if err := e.graph.Refresh(ctx, now); err != nil {
		if isRefreshStale(err) {
			e.log.WithError(err).Warn("refresh produced no new pools, proceeding on last-known graph")
		} else {
			return nil, err
		}
	}

	snap := e.graph.Snapshot()
	candidates := e.finder.Find(snap, startToken)
	e.metrics.pathsDiscovered.Add(float64(len(candidates)))

	baseFeeGwei, _, _ := e.gas.Current()
	baseFeeWei := gweiToWei(baseFeeGwei)

	var evaluated []*types.Path
	for _, path := range candidates {
		if err := e.evaluator.Evaluate(path, now, baseFeeWei); err != nil {
			e.log.WithError(err).WithField("path", path.Identifier()).Debug("dropping unevaluable path")
			continue
		}

		tolerance := e.riskModel.AdjustTolerance(path, e.cfg.MarketVolatility, maxReserveRatio(path))
		slippage, err := e.riskModel.PredictPathSlippage(path, path.DEXIDs())
		if err != nil {
			e.log.WithError(err).WithField("path", path.Identifier()).Debug("dropping path with unpredictable slippage")
			continue
		}
		path.PredictedSlippage = slippage
		if slippage > tolerance {
			e.log.WithField("path", path.Identifier()).Debug("dropping path exceeding slippage tolerance")
			continue
		}

		evaluated = append(evaluated, path)
	}

	if len(evaluated) == 0 {
		return nil, nil
	}

	allTokens, allDEXes := mapset.NewSet[string](), mapset.NewSet[string]()
	for _, p := range evaluated {
		for _, t := range p.Tokens() {
			allTokens.Add(t.Address.Hex())
		}
		for _, d := range p.DEXIDs() {
			allDEXes.Add(d)
		}
	}

	groups := e.ranker.Merge(evaluated)
	representatives := make([]*types.Path, 0, len(evaluated))
	for _, g := range groups {
		if g.Merged {
			representatives = append(representatives, g.Representative)
			continue
		}
		representatives = append(representatives, g.Paths...)
	}

	scores := make(map[string]float64, len(representatives))
	for _, p := range representatives {
		riskScore := risk.RiskScore(p.Confidence, len(p.Hops), e.cfg.MarketVolatility)
		scores[p.Identifier()] = e.ranker.Score(p, riskScore, e.cfg.RankStrategy, allTokens, allDEXes)
	}
	sort.SliceStable(representatives, func(i, j int) bool {
		return scores[representatives[i].Identifier()] > scores[representatives[j].Identifier()]
	})

	result, err := e.allocator.Allocate(representatives, big.NewInt(e.cfg.Budget), allocate.Context{
		MarketVolatility: e.cfg.MarketVolatility,
		RiskProfile:      e.cfg.RiskProfile,
	})
	if err != nil {
		e.log.WithError(err).Debug("no candidate survived allocation")
		return nil, nil
	}

	opp, err := e.buildOpportunity(startToken, result, now)
	if err != nil {
		return nil, err
	}
	e.metrics.opportunitiesBuilt.Inc()
	return []*types.MultiPathOpportunity{opp}, nil
}

func (e *Engine) buildOpportunity(startToken types.Token, result *allocate.Result, now time.Time) (*types.MultiPathOpportunity, error) {
	paths := make([]*types.Path, 0, len(result.Allocations))
	allocations := make([]types.Allocation, 0, len(result.Allocations))
	budgetUsed := big.NewInt(0)
	for _, a := range result.Allocations {
		if a.Amount.Sign() <= 0 {
			continue
		}
		paths = append(paths, a.Path)
		allocations = append(allocations, types.Allocation{Path: a.Path, Amount: a.Amount})
		budgetUsed.Add(budgetUsed, a.Amount)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: allocation produced no funded path", types.ErrEmptyCandidateSet)
	}

	confidence := 1.0
	for _, p := range paths {
		confidence *= p.Confidence
	}

	opp := &types.MultiPathOpportunity{
		ID:             uuid.New().String(),
		Paths:          paths,
		Allocations:    allocations,
		StartToken:     startToken,
		BudgetUsed:     budgetUsed,
		ExpectedProfit: result.ExpectedProfit,
		Confidence:     confidence,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(e.cfg.OpportunityTTLSeconds) * time.Second),
	}
	if err := opp.Validate(); err != nil {
		return nil, err
	}
	return opp, nil
}

// Plan implements §6's plan(opportunity, strategy, fallback_enabled).
func (e *Engine) Plan(ctx context.Context, opp *types.MultiPathOpportunity, strategy types.Strategy, fallbackEnabled bool, now time.Time) (*types.ExecutionPlan, error) {
	built, err := e.planner.Build(ctx, opp, strategy, fallbackEnabled, now)
	if err != nil {
		e.log.WithError(err).WithField("opportunity", opp.ID).Warn("plan rejected")
		return nil, err
	}
	return built, nil
}

// RecordExecution implements §6's record_execution(path, observed_slippage,
// gas_used, success), feeding C5's historical correction windows and C7's
// rolling success rate.
func (e *Engine) RecordExecution(path *types.Path, observedSlippage float64, gasUsed uint64, success bool) {
	for _, hop := range path.Hops {
		key := risk.HistoryKey{Pool: hop.Pool.Address.Hex(), Token: hop.TokenIn.Address.Hex(), DEX: hop.Pool.DEXID}
		e.riskModel.RecordObserved(key, observedSlippage)
	}
	e.riskModel.Adapt(observedSlippage)
	e.successRates.record(path.Identifier(), success)
	e.metrics.recordExecution(success, gasUsed)
}

func isRefreshStale(err error) bool {
	return errors.Is(err, types.ErrRefreshStale)
}

func maxReserveRatio(path *types.Path) float64 {
	max := 0.0
	for _, hop := range path.Hops {
		reserveIn, _, err := hop.Pool.Reserves(hop.TokenIn)
		if err != nil || reserveIn == nil || reserveIn.Sign() == 0 || path.OptimalAmountIn == nil {
			continue
		}
		ratio := new(big.Float).Quo(new(big.Float).SetInt(path.OptimalAmountIn), new(big.Float).SetInt(reserveIn))
		r, _ := ratio.Float64()
		if r > max {
			max = r
		}
	}
	return max
}

func gweiToWei(gwei float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	i, _ := f.Int(nil)
	return i
}

// successTracker is the §4.7 rolling-success-rate history: a bounded
// window of recent outcomes per path identifier, neutral (0.5) absent
// any samples.
type successTracker struct {
	mu      sync.Mutex
	outcomes map[string][]bool
	window  int
}

func newSuccessTracker() *successTracker {
	return &successTracker{outcomes: make(map[string][]bool), window: 50}
}

func (s *successTracker) record(pathID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := append(s.outcomes[pathID], success)
	if len(w) > s.window {
		w = w[len(w)-s.window:]
	}
	s.outcomes[pathID] = w
}

func (s *successTracker) lookup(pathID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := s.outcomes[pathID]
	if len(samples) == 0 {
		return 0.5, false
	}
	successes := 0
	for _, ok := range samples {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(len(samples)), true
}
