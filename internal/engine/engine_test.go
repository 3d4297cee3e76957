package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelidex/arbengine/internal/graph"
	"github.com/kaelidex/arbengine/pkg/types"
)

// tok builds zero-decimal tokens so the evaluator's probe bracket
// ({1e-2..1e2} * 10^decimals) stays small against the 1e9 test reserves.
func tok(hex string) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: 0}
}

func pool(addr string, t0, t1 types.Token, r0, r1 int64, dex string) *types.Pool {
	return &types.Pool{
		Address: common.HexToAddress(addr), Token0: t0, Token1: t1,
		Reserve0: big.NewInt(r0), Reserve1: big.NewInt(r1),
		FeeBps: 0, Variant: types.ConstantProduct, DEXID: dex,
	}
}

type fakeSource struct{ pools []*types.Pool }

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) ListPools(ctx context.Context) ([]*types.Pool, error) {
	return f.pools, nil
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestEngine(t *testing.T, pools []*types.Pool) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Budget = 1_000_000
	e, err := New(cfg, []graph.Source{&fakeSource{pools: pools}}, nil, clock.NewMock(), testLogger())
	require.NoError(t, err)
	e.gas.Observe(time.Now(), 20, 20)
	return e
}

func TestDiscoverFindsAndAllocatesProfitableOpportunity(t *testing.T) {
	a, b, c := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x0000000000000000000000000000000000000003")

	pools := []*types.Pool{
		pool("0x0000000000000000000000000000000000000010", a, b, 1_000_000_000, 1_000_000_000, "dexA"),
		pool("0x0000000000000000000000000000000000000011", b, c, 1_000_000_000, 1_200_000_000, "dexA"),
		pool("0x0000000000000000000000000000000000000012", a, c, 1_000_000_000, 1_000_000_000, "dexA"),
	}

	e := newTestEngine(t, pools)
	now := time.Now()

	opps, err := e.Discover(context.Background(), a, now)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].ExpectedProfit.Sign() > 0)
	assert.False(t, opps[0].IsExpired(now))
}

func TestDiscoverReturnsEmptyWhenNoCycleExists(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	pools := []*types.Pool{pool("0x0000000000000000000000000000000000000010", a, b, 1_000_000, 1_000_000, "dexA")}

	e := newTestEngine(t, pools)
	opps, err := e.Discover(context.Background(), a, time.Now())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestPlanAndRecordExecutionRoundTrip(t *testing.T) {
	a, b, c := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x0000000000000000000000000000000000000003")
	pools := []*types.Pool{
		pool("0x0000000000000000000000000000000000000010", a, b, 1_000_000_000, 1_000_000_000, "dexA"),
		pool("0x0000000000000000000000000000000000000011", b, c, 1_000_000_000, 1_200_000_000, "dexA"),
		pool("0x0000000000000000000000000000000000000012", a, c, 1_000_000_000, 1_000_000_000, "dexA"),
	}
	e := newTestEngine(t, pools)
	now := time.Now()

	opps, err := e.Discover(context.Background(), a, now)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	built, err := e.Plan(context.Background(), opps[0], types.Sequential, false, now)
	require.NoError(t, err)
	assert.NotEmpty(t, built.Steps)

	e.RecordExecution(opps[0].Paths[0], 0.001, 100_000, true)
	rate, ok := e.successRates.lookup(opps[0].Paths[0].Identifier())
	assert.True(t, ok)
	assert.Equal(t, 1.0, rate)
}
