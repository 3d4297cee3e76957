package ammmath

import (
	"fmt"
	"math/big"

	"github.com/kaelidex/arbengine/pkg/types"
)

// MarginalPrice returns the spot price of output per unit input at zero
// size. No engine component calls it; sizing and pricing a real swap
// always go through Quote.
func MarginalPrice(pool *types.Pool, tokenIn types.Token) (*big.Rat, error) {
	reserveIn, reserveOut, err := pool.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s", types.ErrEmptyReserve, pool.Address.Hex())
	}

	feeFactor := big.NewRat(int64(basisPointsDenominator-pool.FeeBps), basisPointsDenominator)

	switch pool.Variant {
	case types.ConstantProduct, types.Stable:
		price := new(big.Rat).SetFrac(reserveOut, reserveIn)
		return price.Mul(price, feeFactor), nil

	case types.Concentrated:
		snap, _ := pool.Metadata.(*types.TickSnapshot)
		if snap == nil {
			return nil, fmt.Errorf("%w: pool %s has no tick snapshot", types.ErrUnquotable, pool.Address.Hex())
		}
		resIn, resOut, err := virtualReserves(pool, tokenIn, snap)
		if err != nil {
			return nil, err
		}
		price := new(big.Rat).SetFrac(resOut, resIn)
		return price.Mul(price, feeFactor), nil

	case types.Weighted:
		meta, ok := pool.Metadata.(*types.WeightedMetadata)
		if !ok || meta == nil {
			return nil, fmt.Errorf("%w: weighted pool %s missing weights", types.ErrInvalidPool, pool.Address.Hex())
		}
		w0, w1 := meta.W0, meta.W1
		if tokenIn.Address == pool.Token1.Address {
			w0, w1 = w1, w0
		}
		// Spot price for a weighted pool is (y/w1)/(x/w0) = y*w0/(x*w1).
		price := new(big.Rat).SetFrac(reserveOut, reserveIn)
		price.Mul(price, new(big.Rat).SetFloat64(w0/w1))
		return price.Mul(price, feeFactor), nil

	default:
		return nil, fmt.Errorf("%w: unknown variant %s", types.ErrInvalidPool, pool.Variant)
	}
}
