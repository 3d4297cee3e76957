package allocate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelidex/arbengine/pkg/types"
)

func tok(hex string) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: 18}
}

func profitablePath(optimalIn, expectedOut int64, confidence float64) *types.Path {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	pool := &types.Pool{
		Address: common.HexToAddress("0x0000000000000000000000000000000000000099"),
		Token0:  a, Token1: b,
		Reserve0: big.NewInt(1_000_000_000), Reserve1: big.NewInt(1_000_000_000),
		Variant: types.ConstantProduct, DEXID: "dexA",
	}
	return &types.Path{
		Hops:              []types.Hop{{TokenIn: a, Pool: pool}, {TokenIn: b, Pool: pool}},
		OptimalAmountIn:   big.NewInt(optimalIn),
		ExpectedAmountOut: big.NewInt(expectedOut),
		Confidence:        confidence,
	}
}

func TestAllocateInvariantSumWithinBudget(t *testing.T) {
	paths := []*types.Path{
		profitablePath(1000, 1200, 0.9),
		profitablePath(1000, 1100, 0.8),
	}
	alloc := New(DefaultConfig())
	budget := big.NewInt(10_000)

	res, err := alloc.Allocate(paths, budget, Context{MarketVolatility: 0.1, RiskProfile: Moderate})
	require.NoError(t, err)

	usable := new(big.Float).Mul(big.NewFloat(10_000), big.NewFloat(1-DefaultConfig().CapitalReserveFraction))
	sum := big.NewFloat(0)
	for _, a := range res.Allocations {
		assert.True(t, a.Amount.Sign() >= 0)
		sum.Add(sum, new(big.Float).SetInt(a.Amount))
	}
	sumF, _ := sum.Float64()
	usableF, _ := usable.Float64()
	assert.LessOrEqual(t, sumF, usableF*1.0001)
}

func TestAllocateExcludesUnprofitablePaths(t *testing.T) {
	paths := []*types.Path{
		profitablePath(1000, 900, 0.5), // negative edge, b < 0
	}
	alloc := New(DefaultConfig())
	_, err := alloc.Allocate(paths, big.NewInt(10_000), Context{RiskProfile: Moderate})
	assert.ErrorIs(t, err, types.ErrEmptyCandidateSet)
}

func TestAllocateEmptyInput(t *testing.T) {
	alloc := New(DefaultConfig())
	_, err := alloc.Allocate(nil, big.NewInt(10_000), Context{})
	assert.ErrorIs(t, err, types.ErrEmptyCandidateSet)
}

func TestAllocateRecordsHistory(t *testing.T) {
	paths := []*types.Path{profitablePath(1000, 1200, 0.9)}
	alloc := New(DefaultConfig())
	_, err := alloc.Allocate(paths, big.NewInt(10_000), Context{RiskProfile: Conservative})
	require.NoError(t, err)
	assert.Len(t, alloc.History(paths[0].Identifier()), 1)
}

func TestRiskMultiplierByProfile(t *testing.T) {
	assert.Equal(t, 1.5, Conservative.riskMultiplier())
	assert.Equal(t, 1.0, Moderate.riskMultiplier())
	assert.Equal(t, 0.7, Aggressive.riskMultiplier())
}
