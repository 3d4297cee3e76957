package graph

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaelidex/arbengine/pkg/types"
)

// Filters configures which pools survive a refresh, per §4.2.
type Filters struct {
	// ExcludedTokens: any pool touching one is dropped.
	ExcludedTokens []common.Address
	// IncludedTokens: if non-empty, a pool must touch at least one.
	IncludedTokens []common.Address
	// MinLiquidity: pools with Reserve0 below this are dropped (Reserve0 is
	// used as the normalized per-token0 liquidity unit named in §4.2).
	MinLiquidity *big.Int
	// MaxPoolsPerDex: after per-DEX scoring by liquidity, the tail is dropped.
	MaxPoolsPerDex int
}

// Apply returns the surviving subset of pools in a new slice, leaving the
// input untouched. When MaxPoolsPerDex is set the input order is not
// preserved; callers that need determinism should sort downstream (the
// path finder does, per §4.3).
func (f Filters) Apply(pools []*types.Pool) []*types.Pool {
	excluded := toSet(f.ExcludedTokens)
	included := toSet(f.IncludedTokens)

	survivors := make([]*types.Pool, 0, len(pools))
	for _, p := range pools {
		if touchesAny(p, excluded) {
			continue
		}
		if len(included) > 0 && !touchesAny(p, included) {
			continue
		}
		if f.MinLiquidity != nil && p.Reserve0 != nil && p.Reserve0.Cmp(f.MinLiquidity) < 0 {
			continue
		}
		survivors = append(survivors, p)
	}

	if f.MaxPoolsPerDex > 0 {
		survivors = capPerDEX(survivors, f.MaxPoolsPerDex)
	}
	return survivors
}

func toSet(addrs []common.Address) map[common.Address]struct{} {
	if len(addrs) == 0 {
		return nil
	}
	m := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		m[a] = struct{}{}
	}
	return m
}

func touchesAny(p *types.Pool, set map[common.Address]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	_, in0 := set[p.Token0.Address]
	_, in1 := set[p.Token1.Address]
	return in0 || in1
}

// capPerDEX scores pools within each DEX by liquidity (Reserve0, falling
// back to Reserve1 when Reserve0 is absent) and drops the tail beyond max.
func capPerDEX(pools []*types.Pool, max int) []*types.Pool {
	byDEX := make(map[string][]*types.Pool)
	for _, p := range pools {
		byDEX[p.DEXID] = append(byDEX[p.DEXID], p)
	}

	out := make([]*types.Pool, 0, len(pools))
	for _, group := range byDEX {
		sort.SliceStable(group, func(i, j int) bool {
			return liquidityScore(group[i]).Cmp(liquidityScore(group[j])) > 0
		})
		if len(group) > max {
			group = group[:max]
		}
		out = append(out, group...)
	}
	return out
}

func liquidityScore(p *types.Pool) *big.Int {
	if p.Reserve0 != nil {
		return p.Reserve0
	}
	if p.Reserve1 != nil {
		return p.Reserve1
	}
	return big.NewInt(0)
}
