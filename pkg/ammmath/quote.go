// Package ammmath implements C1: the pool data type's forward-quote and
// marginal-price operations, dispatched on the pool's Variant tag. All
// amount arithmetic is fixed-width big-integer base units. Floating point
// appears only in bounded steps: the exponentiation Weighted quoting needs
// (see quoteWeighted), the weight ratio in MarginalPrice, and the
// big.Float tick/price conversions in tickmath.go — everything else stays
// in math/big and github.com/holiman/uint256.
package ammmath

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/kaelidex/arbengine/pkg/types"
)

const basisPointsDenominator = 10_000

// Quote is the result of a single-hop forward quote.
type Quote struct {
	AmountOut  *big.Int
	Confidence float64 // multiplier in (0,1]; 1.0 for a fresh, fully-populated pool
}

// Quote computes amount_out for swapping amountIn of tokenIn through pool,
// dispatched on pool.Variant. It never performs I/O and never mutates pool.
func Quote(pool *types.Pool, tokenIn types.Token, amountIn *big.Int) (Quote, error) {
	reserveIn, reserveOut, err := pool.Reserves(tokenIn)
	if err != nil {
		return Quote{}, err
	}
	if amountIn == nil || amountIn.Sign() == 0 {
		return Quote{AmountOut: big.NewInt(0), Confidence: 1.0}, nil
	}
	// Concentrated pools quote from their tick snapshot, not raw reserves.
	if pool.Variant != types.Concentrated && (reserveIn == nil || reserveIn.Sign() == 0) {
		return Quote{}, fmt.Errorf("%w: pool %s", types.ErrEmptyReserve, pool.Address.Hex())
	}

	switch pool.Variant {
	case types.ConstantProduct:
		out, err := quoteConstantProduct(reserveIn, reserveOut, amountIn, pool.FeeBps)
		if err != nil {
			return Quote{}, err
		}
		return Quote{AmountOut: out, Confidence: 1.0}, nil

	case types.Stable:
		meta, _ := pool.Metadata.(*types.StableMetadata)
		if meta == nil || meta.Amplification == nil {
			out, err := quoteConstantProduct(reserveIn, reserveOut, amountIn, pool.FeeBps)
			if err != nil {
				return Quote{}, err
			}
			return Quote{AmountOut: out, Confidence: 0.9}, nil
		}
		out, err := quoteStable(reserveIn, reserveOut, amountIn, pool.FeeBps, meta.Amplification)
		if err != nil {
			return Quote{}, err
		}
		return Quote{AmountOut: out, Confidence: 1.0}, nil

	case types.Concentrated:
		snap, _ := pool.Metadata.(*types.TickSnapshot)
		if snap == nil {
			return Quote{AmountOut: big.NewInt(0), Confidence: 0}, fmt.Errorf("%w: pool %s has no tick snapshot", types.ErrUnquotable, pool.Address.Hex())
		}
		resIn, resOut, err := virtualReserves(pool, tokenIn, snap)
		if err != nil {
			return Quote{}, err
		}
		out, err := quoteConstantProduct(resIn, resOut, amountIn, pool.FeeBps)
		if err != nil {
			return Quote{}, err
		}
		return Quote{AmountOut: out, Confidence: 1.0}, nil

	case types.Weighted:
		meta, ok := pool.Metadata.(*types.WeightedMetadata)
		if !ok || meta == nil {
			return Quote{}, fmt.Errorf("%w: weighted pool %s missing weights", types.ErrInvalidPool, pool.Address.Hex())
		}
		w0, w1 := meta.W0, meta.W1
		if tokenIn.Address == pool.Token1.Address {
			w0, w1 = w1, w0
		}
		out, err := quoteWeighted(reserveIn, reserveOut, amountIn, pool.FeeBps, w0, w1)
		if err != nil {
			return Quote{}, err
		}
		return Quote{AmountOut: out, Confidence: 1.0}, nil

	default:
		return Quote{}, fmt.Errorf("%w: unknown variant %s", types.ErrInvalidPool, pool.Variant)
	}
}

// quoteConstantProduct implements
//
//	amount_out = y * amount_in * (1-fee) / (x + amount_in*(1-fee))
//
// widened to 256 bits via uint256, saturating to zero on overflow per §4.1.
func quoteConstantProduct(x, y, amountIn *big.Int, feeBps uint32) (*big.Int, error) {
	amountInAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(basisPointsDenominator-feeBps)))

	numerator, overflow := mulOverflow(y, amountInAfterFee)
	if overflow {
		return big.NewInt(0), nil
	}

	denom := new(big.Int).Mul(x, big.NewInt(basisPointsDenominator))
	denom.Add(denom, amountInAfterFee)
	if denom.Sign() == 0 {
		return big.NewInt(0), nil
	}

	out := new(big.Int).Div(numerator, denom)
	return out, nil
}

// mulOverflow multiplies a*b widened to 256 bits, reporting overflow instead
// of wrapping, per the "widen to at least 256 bits ... saturation returning
// amount_out = 0 on overflow" requirement.
func mulOverflow(a, b *big.Int) (*big.Int, bool) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, true
	}
	ua, aOverflow := uint256.FromBig(a)
	if aOverflow {
		return nil, true
	}
	ub, bOverflow := uint256.FromBig(b)
	if bOverflow {
		return nil, true
	}
	product, overflow := new(uint256.Int).MulOverflow(ua, ub)
	if overflow {
		return nil, true
	}
	return product.ToBig(), false
}

// quoteWeighted implements the Balancer-style weighted invariant
//
//	amount_out = y * (1 - (x/(x+amount_in*(1-fee)))^(w0/w1))
//
// The ratio x/(x+amount_in_after_fee) lies in (0,1], so raising it to a real
// exponent needs a transcendental pow that math/big does not provide;
// float64 is used for that bounded step only, then the result is folded
// back into a big.Int via big.Float so the returned amount is exact base
// units, not a float.
func quoteWeighted(x, y, amountIn *big.Int, feeBps uint32, w0, w1 float64) (*big.Int, error) {
	amountInAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(basisPointsDenominator-feeBps)))
	amountInAfterFee.Div(amountInAfterFee, big.NewInt(basisPointsDenominator))

	denom := new(big.Int).Add(x, amountInAfterFee)
	if denom.Sign() == 0 {
		return big.NewInt(0), nil
	}

	ratio := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(denom))
	ratioF, _ := ratio.Float64()
	if ratioF < 0 {
		ratioF = 0
	}
	if ratioF > 1 {
		ratioF = 1
	}

	factor := 1 - math.Pow(ratioF, w0/w1)
	if factor < 0 {
		factor = 0
	}

	out := new(big.Float).Mul(new(big.Float).SetInt(y), big.NewFloat(factor))
	result, _ := out.Int(nil)
	return result, nil
}

// virtualReserves derives constant-product-equivalent reserves for a
// concentrated-liquidity pool from its active-tick snapshot: for
// L = sqrt(x*y) and sqrtP = sqrt(y/x), x = L/sqrtP and y = L*sqrtP. This
// approximates the swap as if it stays within the single active tick range
// the snapshot describes; a swap that crosses into the next initialized
// tick is out of scope for this quote (the evaluator's optimal-size search
// brackets amounts small enough that this holds in practice).
func virtualReserves(pool *types.Pool, tokenIn types.Token, snap *types.TickSnapshot) (resIn, resOut *big.Int, err error) {
	if snap.ActiveLiquidity == nil || snap.SqrtPriceX96 == nil || snap.ActiveLiquidity.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: pool %s has empty active liquidity", types.ErrUnquotable, pool.Address.Hex())
	}
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	x := new(big.Int).Mul(snap.ActiveLiquidity, q96)
	x.Div(x, snap.SqrtPriceX96)

	y := new(big.Int).Mul(snap.ActiveLiquidity, snap.SqrtPriceX96)
	y.Div(y, q96)

	switch tokenIn.Address {
	case pool.Token0.Address:
		return x, y, nil
	case pool.Token1.Address:
		return y, x, nil
	default:
		return nil, nil, fmt.Errorf("%w: token %s not in pool %s", types.ErrUnknownPair, tokenIn, pool.Address.Hex())
	}
}
