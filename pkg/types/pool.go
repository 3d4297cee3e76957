package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Variant tags the AMM invariant a pool quotes under. New variants are
// added by extending this tag and the dispatch table in pkg/ammmath —
// never by growing an inheritance hierarchy.
type Variant uint8

const (
	ConstantProduct Variant = iota
	Stable
	Concentrated
	Weighted
)

func (v Variant) String() string {
	switch v {
	case ConstantProduct:
		return "constant_product"
	case Stable:
		return "stable"
	case Concentrated:
		return "concentrated"
	case Weighted:
		return "weighted"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// StableMetadata carries the StableSwap amplification coefficient.
// A nil *Amplification in Pool.Metadata degrades quoting to constant_product
// with confidence *= 0.9, per §4.1.
type StableMetadata struct {
	Amplification *big.Int
}

// TickSnapshot is the minimal concentrated-liquidity slice needed to quote
// a swap without walking the full tick bitmap: the active liquidity at the
// pool's current tick, bounded by the nearest initialized neighbours.
type TickSnapshot struct {
	SqrtPriceX96    *big.Int
	Tick            int32
	ActiveLiquidity *big.Int
	NextTick        int32
	PreviousTick    int32
}

// WeightedMetadata carries the two pool weights for a weighted pool.
// W0+W1 must equal 1 and both must be positive (enforced by Pool.Validate).
type WeightedMetadata struct {
	W0, W1 float64
}

// Pool is one record per liquidity venue. Pools are referenced from two
// graph edges (token0->token1 and token1->token0); callers must treat Pool
// values as immutable and never copy-mutate a shared instance — graph
// refresh replaces pools wholesale by publishing a new generation.
type Pool struct {
	Address   common.Address
	Token0    Token
	Token1    Token
	Reserve0  *big.Int // base units, nil while stale
	Reserve1  *big.Int
	FeeBps    uint32
	Variant   Variant
	DEXID     string
	RefreshedAt time.Time // monotonic per-engine clock, not wall time

	// Metadata is one of *StableMetadata, *TickSnapshot or *WeightedMetadata,
	// selected by Variant. Nil metadata on Stable degrades the quote to
	// constant product (confidence 0.9); nil metadata on Concentrated makes
	// the hop unquotable; Weighted always requires WeightedMetadata (validated).
	Metadata any
}

// Validate enforces the pool invariants from the data model: ordered
// token pair, non-negative reserves, fee bound, and weighted-pool weights.
func (p *Pool) Validate() error {
	if !p.Token0.Less(p.Token1) {
		return fmt.Errorf("%w: token0 must be less than token1", ErrInvalidPool)
	}
	if p.Reserve0 != nil && p.Reserve0.Sign() < 0 {
		return fmt.Errorf("%w: reserve0 negative", ErrInvalidPool)
	}
	if p.Reserve1 != nil && p.Reserve1.Sign() < 0 {
		return fmt.Errorf("%w: reserve1 negative", ErrInvalidPool)
	}
	if p.FeeBps > 1000 {
		return fmt.Errorf("%w: fee_bps %d exceeds 1000", ErrInvalidPool, p.FeeBps)
	}
	if p.Variant == Weighted {
		w, ok := p.Metadata.(*WeightedMetadata)
		if !ok || w == nil {
			return fmt.Errorf("%w: weighted pool missing weights", ErrInvalidPool)
		}
		if w.W0 <= 0 || w.W1 <= 0 {
			return fmt.Errorf("%w: weighted pool weights must be positive", ErrInvalidPool)
		}
		if d := w.W0 + w.W1 - 1; d > 1e-9 || d < -1e-9 {
			return fmt.Errorf("%w: weighted pool weights must sum to 1, got %f", ErrInvalidPool, w.W0+w.W1)
		}
	}
	return nil
}

// OtherToken returns the token on the opposite side of in from this pool.
func (p *Pool) OtherToken(in Token) (Token, error) {
	switch in.Address {
	case p.Token0.Address:
		return p.Token1, nil
	case p.Token1.Address:
		return p.Token0, nil
	default:
		return Token{}, fmt.Errorf("%w: token %s not in pool %s", ErrUnknownPair, in, p.Address.Hex())
	}
}

// Reserves returns (reserveIn, reserveOut) for a swap where in is the input
// token, honoring the pool's canonical token0/token1 ordering.
func (p *Pool) Reserves(in Token) (reserveIn, reserveOut *big.Int, err error) {
	switch in.Address {
	case p.Token0.Address:
		return p.Reserve0, p.Reserve1, nil
	case p.Token1.Address:
		return p.Reserve1, p.Reserve0, nil
	default:
		return nil, nil, fmt.Errorf("%w: token %s not in pool %s", ErrUnknownPair, in, p.Address.Hex())
	}
}

// IsStale reports whether the pool was last refreshed before the threshold.
func (p *Pool) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(p.RefreshedAt) > threshold
}
