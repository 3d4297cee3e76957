package risk

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

func cpPool(r0, r1 int64) *types.Pool {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	return &types.Pool{
		Address:  common.HexToAddress("0x0000000000000000000000000000000000000099"),
		Token0:   a,
		Token1:   b,
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
		Variant:  types.ConstantProduct,
		DEXID:    "dexA",
	}
}

func TestPredictHopSlippageConstantProduct(t *testing.T) {
	p := cpPool(1_000_000, 1_000_000)
	s, err := PredictHopSlippage(p, p.Token0, 10_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, s, 1e-9)
}

func TestPredictHopSlippageStableIsHalved(t *testing.T) {
	p := cpPool(1_000_000, 1_000_000)
	p.Variant = types.Stable
	s, err := PredictHopSlippage(p, p.Token0, 10_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.00005, s, 1e-9)
}

func TestHistoricalCorrectionTakesMax(t *testing.T) {
	m := New(DefaultConfig())
	key := HistoryKey{Pool: "p", Token: "t", DEX: "d"}
	for i := 0; i < 50; i++ {
		m.RecordObserved(key, 0.05)
	}
	got := m.correctFromHistory(key, 0.0001)
	assert.InDelta(t, 0.05, got, 1e-6)
}

func TestRiskScoreBounded(t *testing.T) {
	s := RiskScore(0.5, 10, 2.0)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestAdaptShrinksOnOvershoot(t *testing.T) {
	m := New(DefaultConfig())
	mult := m.Adapt(m.cfg.MaxSlippageTolerance + 0.01)
	assert.Equal(t, 0.8, mult)
}

func TestAdaptRelaxesOnUndershoot(t *testing.T) {
	m := New(DefaultConfig())
	mult := m.Adapt(0.1 * m.cfg.BaseSlippageTolerance)
	assert.Equal(t, 1.25, mult)
}

func TestAdjustToleranceCapsAtMax(t *testing.T) {
	m := New(DefaultConfig())
	path := &types.Path{Hops: make([]types.Hop, 10)}
	got := m.AdjustTolerance(path, 1.0, 1.0)
	assert.LessOrEqual(t, got, m.cfg.MaxSlippageTolerance)
}
