package types

import (
	"math/big"
	"strings"
)

// Hop is one edge traversal of a Path: swap tokenIn through pool.
type Hop struct {
	TokenIn Token
	Pool    *Pool
}

// Path is an ordered sequence of hops, immutable once constructed. The
// fields below populate during evaluation (pkg C4) and default to their
// zero value until then.
type Path struct {
	Hops []Hop

	OptimalAmountIn    *big.Int // base units of the start token
	ExpectedAmountOut  *big.Int // base units of the start token (cyclic paths)
	Confidence         float64  // in [0,1]
	GasEstimate        uint64   // gas units
	GasCost            *big.Int // native-token base units
	PredictedSlippage  float64  // in [0,1]
}

// StartToken returns the token the path begins (and, if cyclic, ends) at.
func (p *Path) StartToken() Token {
	return p.Hops[0].TokenIn
}

// EndToken returns the token the path's last hop produces.
func (p *Path) EndToken() (Token, error) {
	last := p.Hops[len(p.Hops)-1]
	return last.Pool.OtherToken(last.TokenIn)
}

// IsCyclic reports whether the path starts and ends at the same token.
func (p *Path) IsCyclic() bool {
	if len(p.Hops) == 0 {
		return false
	}
	end, err := p.EndToken()
	if err != nil {
		return false
	}
	return end.Address == p.StartToken().Address
}

// ExpectedProfit returns ExpectedAmountOut - OptimalAmountIn, or nil if
// either has not been populated by the evaluator yet.
func (p *Path) ExpectedProfit() *big.Int {
	if p.ExpectedAmountOut == nil || p.OptimalAmountIn == nil {
		return nil
	}
	return new(big.Int).Sub(p.ExpectedAmountOut, p.OptimalAmountIn)
}

// Identifier returns the path's identity for history/ranking purposes: the
// ordered tuple of hop pool addresses. Grounded on the Python original's
// CapitalAllocator._get_path_identifier, which uses the same ordered-tuple
// scheme rather than a content hash so that two discoveries of the same
// route (even with different quoted amounts) share history.
func (p *Path) Identifier() string {
	var b strings.Builder
	for i, h := range p.Hops {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(h.Pool.Address.Hex())
	}
	return b.String()
}

// Tokens returns the distinct tokens visited by the path, in hop order,
// including the repeated start/end token once.
func (p *Path) Tokens() []Token {
	seen := make(map[[20]byte]struct{}, len(p.Hops)+1)
	out := make([]Token, 0, len(p.Hops)+1)
	add := func(t Token) {
		if _, ok := seen[t.Address]; !ok {
			seen[t.Address] = struct{}{}
			out = append(out, t)
		}
	}
	for _, h := range p.Hops {
		add(h.TokenIn)
	}
	if end, err := p.EndToken(); err == nil {
		add(end)
	}
	return out
}

// DEXIDs returns the distinct DEX tags touched by the path.
func (p *Path) DEXIDs() []string {
	seen := make(map[string]struct{}, len(p.Hops))
	out := make([]string, 0, len(p.Hops))
	for _, h := range p.Hops {
		if _, ok := seen[h.Pool.DEXID]; !ok {
			seen[h.Pool.DEXID] = struct{}{}
			out = append(out, h.Pool.DEXID)
		}
	}
	return out
}

// PoolAddresses returns the distinct pool addresses touched by the path.
func (p *Path) PoolAddresses() []string {
	seen := make(map[string]struct{}, len(p.Hops))
	out := make([]string, 0, len(p.Hops))
	for _, h := range p.Hops {
		addr := h.Pool.Address.Hex()
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
