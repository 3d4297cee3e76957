package ammmath

import "math/big"

// q96 is 2^96, the fixed-point scale Uniswap/Algebra-style concentrated
// pools report sqrtPrice in.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// precision used for the big.Float tick/price conversions below: enough
// bits that round-tripping tick -> sqrtPriceX96 -> price recovers
// 1.0001^tick within double precision, without pulling in a bespoke
// fixed-point log table the way the teacher's on-chain contracts do.
const tickMathPrecision = 200

// TickToSqrtPriceX96 converts a tick index to its Q96 sqrt-price, adapted
// from the teacher's internal/util tick-math helper (itself a Go port of
// the pool's safelyGetStateOfAMM tick convention) to generic big.Float
// exponentiation rather than a hardcoded bit-table, since this package
// quotes arbitrary concentrated pools, not one fixed contract.
func TickToSqrtPriceX96(tick int) *big.Int {
	base := big.NewFloat(1.0001).SetPrec(tickMathPrecision)
	price := powFloat(base, tick)
	sqrtPrice := new(big.Float).SetPrec(tickMathPrecision).Sqrt(price)
	sqrtPrice.Mul(sqrtPrice, q96)
	result, _ := sqrtPrice.Int(nil)
	return result
}

// SqrtPriceToPrice converts a Q96 sqrt-price back to the (unscaled) price
// ratio token1/token0, as a big.Float since the result is a scalar used
// only for display/ranking, never as a base-unit amount.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	sp := new(big.Float).SetPrec(tickMathPrecision).SetInt(sqrtPriceX96)
	sp.Quo(sp, q96)
	return new(big.Float).Mul(sp, sp)
}

// powFloat computes base^exp for integer exp (positive or negative) by
// repeated squaring, at the receiver's precision.
func powFloat(base *big.Float, exp int) *big.Float {
	neg := exp < 0
	if neg {
		exp = -exp
	}
	result := big.NewFloat(1).SetPrec(tickMathPrecision)
	b := new(big.Float).SetPrec(tickMathPrecision).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, b)
		}
		b.Mul(b, b)
		exp >>= 1
	}
	if neg {
		result = new(big.Float).SetPrec(tickMathPrecision).Quo(big.NewFloat(1), result)
	}
	return result
}
