// Package types holds the data model shared by every engine component:
// tokens, pools, paths, allocations, opportunities and execution plans.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an opaque 20-byte identifier plus the base-unit scaling factor.
// Equality is by Address only; Decimals is metadata carried alongside it.
type Token struct {
	Address  common.Address
	Decimals uint8
}

// Validate checks the decimals bound from the data model (0-36).
func (t Token) Validate() error {
	if t.Decimals > 36 {
		return fmt.Errorf("%w: decimals %d exceeds 36", ErrInvalidToken, t.Decimals)
	}
	return nil
}

// Less orders tokens by address, used to canonicalize pool token0/token1.
func (t Token) Less(other Token) bool {
	return bytesLess(t.Address[:], other.Address[:])
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// String renders the token as its checksummed hex address.
func (t Token) String() string {
	return t.Address.Hex()
}
