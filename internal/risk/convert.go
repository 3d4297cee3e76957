package risk

import "math/big"

func bigToFloat(i *big.Int) float64 {
	f := new(big.Float).SetInt(i)
	v, _ := f.Float64()
	return v
}
