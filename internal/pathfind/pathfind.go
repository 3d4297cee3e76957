// Package pathfind enumerates cyclic paths over a pool graph snapshot,
// per §4.3. It holds no state beyond the graph handle it is given.
package pathfind

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kaelidex/arbengine/internal/graph"
	"github.com/kaelidex/arbengine/pkg/types"
)

// Config bounds a single find() call.
type Config struct {
	MaxHops             int
	MaxTotalFee         float64
	MaxPaths            int
	MaxPathsExploration int
}

// DefaultConfig matches §4.3's stated default max_hops of 4.
func DefaultConfig() Config {
	return Config{
		MaxHops:             4,
		MaxTotalFee:         0.1,
		MaxPaths:            1000,
		MaxPathsExploration: 200_000,
	}
}

// Finder enumerates cyclic paths. Stateless apart from the snapshot
// passed to each call; safe for concurrent use.
type Finder struct {
	cfg Config
}

func New(cfg Config) *Finder {
	return &Finder{cfg: cfg}
}

// Find runs a depth-limited DFS from startToken over snap, returning
// every cycle discovered up to the configured caps. Repeated calls with
// the same snapshot and startToken produce identical output, since
// successor order is made deterministic before traversal.
func (f *Finder) Find(snap *graph.Snapshot, startToken types.Token) []*types.Path {
	maxWeight := -math.Log(1 - f.cfg.MaxTotalFee)

	var paths []*types.Path
	visited := map[[20]byte]bool{startToken.Address: true}
	explored := 0
	capReached := func() bool {
		return len(paths) >= f.cfg.MaxPaths || explored >= f.cfg.MaxPathsExploration
	}

	var dfs func(current types.Token, hops []types.Hop, weight float64)
	dfs = func(current types.Token, hops []types.Hop, weight float64) {
		if capReached() {
			return
		}
		explored++

		if len(hops) > 0 && current.Address == startToken.Address {
			cp := make([]types.Hop, len(hops))
			copy(cp, hops)
			paths = append(paths, &types.Path{Hops: cp})
			return
		}
		if len(hops) >= f.cfg.MaxHops {
			return
		}

		for _, edge := range deterministicSuccessors(snap, current) {
			nextWeight := weight - math.Log(1-feeRate(edge.Pool.FeeBps))
			if nextWeight > maxWeight {
				continue
			}
			closesCycle := edge.To.Address == startToken.Address
			if !closesCycle && visited[edge.To.Address] {
				continue
			}
			if !closesCycle {
				visited[edge.To.Address] = true
			}
			dfs(edge.To, append(hops, types.Hop{TokenIn: current, Pool: edge.Pool}), nextWeight)
			if !closesCycle {
				delete(visited, edge.To.Address)
			}
			if capReached() {
				return
			}
		}
	}

	dfs(startToken, nil, 0)
	return paths
}

// FindForMany runs Find for each token concurrently on a work-pool
// bounded by concurrencyLimit, merging the results in input order.
func (f *Finder) FindForMany(ctx context.Context, snap *graph.Snapshot, tokens []types.Token, concurrencyLimit int64) ([][]*types.Path, error) {
	results := make([][]*types.Path, len(tokens))
	sem := semaphore.NewWeighted(concurrencyLimit)
	grp, gctx := errgroup.WithContext(ctx)

	for i, tok := range tokens {
		i, tok := i, tok
		grp.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i] = f.Find(snap, tok)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func feeRate(bps uint32) float64 {
	return float64(bps) / 10_000
}

// deterministicSuccessors orders a token's outgoing edges by
// (dex_id, fee_bps, pool_address) per §4.3, for reproducible traversal.
func deterministicSuccessors(snap *graph.Snapshot, token types.Token) []graph.Edge {
	edges := append([]graph.Edge(nil), snap.Successors(token)...)
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i].Pool, edges[j].Pool
		if a.DEXID != b.DEXID {
			return a.DEXID < b.DEXID
		}
		if a.FeeBps != b.FeeBps {
			return a.FeeBps < b.FeeBps
		}
		return a.Address.Hex() < b.Address.Hex()
	})
	return edges
}
