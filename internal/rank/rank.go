// Package rank scores evaluated paths and merges near-duplicate routes,
// per §4.7.
package rank

import (
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kaelidex/arbengine/pkg/types"
)

// Weights is one scoring-strategy preset: profit/risk/diversity/history.
type Weights struct {
	Profit, Risk, Diversity, History float64
}

// Strategy is a named scoring preset, each summing to 1.0.
type Strategy int

const (
	Balanced Strategy = iota
	ProfitBiased
	RiskBiased
	DiversityBiased
)

func (s Strategy) Weights() Weights {
	switch s {
	case ProfitBiased:
		return Weights{Profit: 0.7, Risk: 0.1, Diversity: 0.1, History: 0.1}
	case RiskBiased:
		return Weights{Profit: 0.2, Risk: 0.5, Diversity: 0.15, History: 0.15}
	case DiversityBiased:
		return Weights{Profit: 0.2, Risk: 0.15, Diversity: 0.5, History: 0.15}
	default:
		return Weights{Profit: 0.5, Risk: 0.2, Diversity: 0.15, History: 0.15}
	}
}

// Config bounds the ranker/merger.
type Config struct {
	TargetYield         float64
	SimilarityThreshold float64 // default 0.7, per §4.7
	MergeProfitFactor   float64 // 0.9
	MergeGasFactor      float64 // 0.7
}

func DefaultConfig() Config {
	return Config{
		TargetYield:         0.01,
		SimilarityThreshold: 0.7,
		MergeProfitFactor:   0.9,
		MergeGasFactor:      0.7,
	}
}

// HistoryLookup reports the rolling success rate for a path identifier,
// or 0.5 (neutral) when there is no sample yet, per §4.7.
type HistoryLookup func(pathID string) (successRate float64, hasSamples bool)

// Ranker scores and merges paths.
type Ranker struct {
	cfg     Config
	history HistoryLookup
}

func New(cfg Config, history HistoryLookup) *Ranker {
	if history == nil {
		history = func(string) (float64, bool) { return 0.5, false }
	}
	return &Ranker{cfg: cfg, history: history}
}

// Score computes the weighted score (in [0,1]) for a single path under
// strategy, given the precomputed riskScore (C5's RiskScore).
func (r *Ranker) Score(path *types.Path, riskScore float64, strategy Strategy, allTokens, allDEXes mapset.Set[string]) float64 {
	w := strategy.Weights()

	profitFraction := 0.0
	if profit := path.ExpectedProfit(); profit != nil && path.OptimalAmountIn != nil && path.OptimalAmountIn.Sign() > 0 {
		pf, _ := new(big.Float).Quo(new(big.Float).SetInt(profit), new(big.Float).SetInt(path.OptimalAmountIn)).Float64()
		profitFraction = pf
	}
	profitScore := profitFraction / r.cfg.TargetYield
	if profitScore > 1 {
		profitScore = 1
	}
	if profitScore < 0 {
		profitScore = 0
	}

	riskScoreInverted := 1 - riskScore

	tokens := mapset.NewSet[string]()
	for _, t := range path.Tokens() {
		tokens.Add(t.Address.Hex())
	}
	dexes := mapset.NewSet[string](path.DEXIDs()...)

	diversityScore := 0.0
	if allTokens.Cardinality() > 0 {
		diversityScore += float64(tokens.Cardinality()) / float64(allTokens.Cardinality())
	}
	if allDEXes.Cardinality() > 0 {
		diversityScore += float64(dexes.Cardinality()) / float64(allDEXes.Cardinality())
	}
	diversityScore /= 2

	historyScore, _ := r.history(path.Identifier())

	return w.Profit*profitScore + w.Risk*riskScoreInverted + w.Diversity*diversityScore + w.History*historyScore
}

// Similarity computes the §4.7 composite Jaccard similarity between two
// paths: 0.4 token overlap + 0.4 pool overlap + 0.2 dex overlap.
func Similarity(a, b *types.Path) float64 {
	tokensA, tokensB := tokenSet(a), tokenSet(b)
	poolsA, poolsB := mapset.NewSet[string](a.PoolAddresses()...), mapset.NewSet[string](b.PoolAddresses()...)
	dexesA, dexesB := mapset.NewSet[string](a.DEXIDs()...), mapset.NewSet[string](b.DEXIDs()...)

	return 0.4*jaccard(tokensA, tokensB) + 0.4*jaccard(poolsA, poolsB) + 0.2*jaccard(dexesA, dexesB)
}

func tokenSet(p *types.Path) mapset.Set[string] {
	s := mapset.NewSet[string]()
	for _, t := range p.Tokens() {
		s.Add(t.Address.Hex())
	}
	return s
}

func jaccard[T comparable](a, b mapset.Set[T]) float64 {
	union := a.Union(b)
	if union.Cardinality() == 0 {
		return 0
	}
	return float64(a.Intersect(b).Cardinality()) / float64(union.Cardinality())
}

// Group is a cluster of mutually-similar paths (a single path when nothing
// else was similar to it). Merged reports whether the cluster passed the
// merge-profitability test; Representative is its highest-yield member
// either way.
type Group struct {
	Paths      []*types.Path
	Merged     bool
	Representative *types.Path
}

// Merge groups paths whose pairwise similarity exceeds the configured
// threshold. A multi-path group is marked Merged, standing for its
// highest-yield Representative alone, only if the merge passes the §4.7
// profitability test; otherwise Merged is false and every path in the
// group's Paths survives independently.
func (r *Ranker) Merge(paths []*types.Path) []Group {
	n := len(paths)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[ri] = rj
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Similarity(paths[i], paths[j]) > r.cfg.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]*types.Path)
	for i, p := range paths {
		root := find(i)
		clusters[root] = append(clusters[root], p)
	}

	groups := make([]Group, 0, len(clusters))
	for _, members := range clusters {
		if len(members) == 1 {
			groups = append(groups, Group{Paths: members, Representative: members[0]})
			continue
		}
		groups = append(groups, r.tryMerge(members))
	}
	return groups
}

func (r *Ranker) tryMerge(members []*types.Path) Group {
	best := members[0]
	bestProfit := profitOf(best)
	for _, p := range members[1:] {
		if profitOf(p) > bestProfit {
			best, bestProfit = p, profitOf(p)
		}
	}

	mergedProfit := 0.0
	mergedGas := 0.0
	individualNet := 0.0
	for _, p := range members {
		profit := profitOf(p)
		mergedProfit += profit
		mergedGas += gasCostOf(p)
		individualNet += profit - gasCostOf(p)
	}

	if mergedProfit*r.cfg.MergeProfitFactor-mergedGas*r.cfg.MergeGasFactor > individualNet {
		return Group{Paths: members, Merged: true, Representative: best}
	}
	return Group{Paths: members, Representative: best}
}

func profitOf(p *types.Path) float64 {
	profit := p.ExpectedProfit()
	if profit == nil {
		return 0
	}
	f := new(big.Float).SetInt(profit)
	v, _ := f.Float64()
	return v
}

func gasCostOf(p *types.Path) float64 {
	if p.GasCost == nil {
		return 0
	}
	f := new(big.Float).SetInt(p.GasCost)
	v, _ := f.Float64()
	return v
}
