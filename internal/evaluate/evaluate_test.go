package evaluate

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelidex/arbengine/pkg/types"
)

func tok(hex string, decimals uint8) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: decimals}
}

func cpPool(addr string, t0, t1 types.Token, r0, r1 int64, feeBps uint32, dex string) *types.Pool {
	return &types.Pool{
		Address:     common.HexToAddress(addr),
		Token0:      t0,
		Token1:      t1,
		Reserve0:    big.NewInt(r0),
		Reserve1:    big.NewInt(r1),
		FeeBps:      feeBps,
		Variant:     types.ConstantProduct,
		DEXID:       dex,
		RefreshedAt: time.Now(),
	}
}

func TestEvaluateRejectsNonCyclicPath(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001", 18), tok("0x0000000000000000000000000000000000000002", 18)
	path := &types.Path{Hops: []types.Hop{{TokenIn: a, Pool: cpPool("0x10", a, b, 1000, 2000, 30, "dexA")}}}

	e := New(DefaultConfig())
	err := e.Evaluate(path, time.Now(), big.NewInt(1))
	assert.ErrorIs(t, err, types.ErrNotCyclic)
}

func TestEvaluateProfitableTriangle(t *testing.T) {
	// Zero-decimal tokens keep the probe bracket ({1e-2..1e2} * 10^decimals)
	// small against the 1e9 reserves.
	a := tok("0x0000000000000000000000000000000000000001", 0)
	b := tok("0x0000000000000000000000000000000000000002", 0)
	c := tok("0x0000000000000000000000000000000000000003", 0)

	// A mispriced triangle: a->b at 1:1, b->c at 1:1.2, c->a at 1:1 (no fees),
	// so a small round trip nets close to 20%.
	p1 := cpPool("0x10", a, b, 1_000_000_000, 1_000_000_000, 0, "dexA")
	p2 := cpPool("0x11", b, c, 1_000_000_000, 1_200_000_000, 0, "dexA")
	p3 := cpPool("0x12", c, a, 1_000_000_000, 1_000_000_000, 0, "dexA")

	path := &types.Path{Hops: []types.Hop{
		{TokenIn: a, Pool: p1},
		{TokenIn: b, Pool: p2},
		{TokenIn: c, Pool: p3},
	}}

	e := New(DefaultConfig())
	err := e.Evaluate(path, time.Now(), big.NewInt(1))
	require.NoError(t, err)

	require.NotNil(t, path.OptimalAmountIn)
	require.NotNil(t, path.ExpectedAmountOut)
	assert.True(t, path.ExpectedAmountOut.Cmp(path.OptimalAmountIn) > 0)
	assert.Greater(t, path.Confidence, 0.0)
	assert.GreaterOrEqual(t, path.GasEstimate, uint64(21_000))
}

func TestEvaluateNoProfitableInput(t *testing.T) {
	a := tok("0x0000000000000000000000000000000000000001", 18)
	b := tok("0x0000000000000000000000000000000000000002", 18)

	// Perfectly balanced with fees on both legs: every round trip loses money.
	p1 := cpPool("0x10", a, b, 1_000_000_000, 1_000_000_000, 30, "dexA")
	p2 := cpPool("0x11", b, a, 1_000_000_000, 1_000_000_000, 30, "dexA")

	path := &types.Path{Hops: []types.Hop{
		{TokenIn: a, Pool: p1},
		{TokenIn: b, Pool: p2},
	}}

	e := New(DefaultConfig())
	err := e.Evaluate(path, time.Now(), big.NewInt(1))
	assert.ErrorIs(t, err, types.ErrNoProfitableInput)
}

func TestGasEstimateUsesLookupTableAndBuffer(t *testing.T) {
	a := tok("0x0000000000000000000000000000000000000001", 18)
	b := tok("0x0000000000000000000000000000000000000002", 18)
	p := cpPool("0x10", a, b, 1000, 2000, 30, "dexA")

	cfg := DefaultConfig()
	cfg.GasTable[GasTableKey{DEXID: "dexA", Variant: types.ConstantProduct}] = 50_000
	cfg.GasBuffer = 2.0
	e := New(cfg)

	path := &types.Path{Hops: []types.Hop{{TokenIn: a, Pool: p}}}
	got := e.estimateGas(path)
	assert.Equal(t, uint64((21_000+50_000)*2), got)
}
