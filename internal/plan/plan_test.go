package plan

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelidex/arbengine/internal/gasopt"
	"github.com/kaelidex/arbengine/pkg/types"
)

func tok(hex string) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: 18}
}

func cyclicPath(gasEstimate uint64) *types.Path {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	pool := &types.Pool{Address: common.HexToAddress("0x99"), Token0: a, Token1: b, Variant: types.ConstantProduct, DEXID: "dexA"}
	return &types.Path{
		Hops:        []types.Hop{{TokenIn: a, Pool: pool}, {TokenIn: b, Pool: pool}},
		GasEstimate: gasEstimate,
	}
}

func opportunity(confidence float64, profit int64, expiresIn time.Duration) *types.MultiPathOpportunity {
	path := cyclicPath(150_000)
	return &types.MultiPathOpportunity{
		ID:             "opp-1",
		Paths:          []*types.Path{path},
		Allocations:    []types.Allocation{{Path: path, Amount: big.NewInt(1000)}},
		StartToken:     path.StartToken(),
		ExpectedProfit: big.NewInt(profit),
		Confidence:     confidence,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(expiresIn),
	}
}

func gasOptWithSample() *gasopt.Optimizer {
	cfg := gasopt.DefaultConfig()
	cfg.UpdateInterval = 0
	o := gasopt.New(cfg, clock.NewMock())
	o.Observe(time.Now(), 20, 20)
	return o
}

type stubSimulator struct {
	result SimResult
	err    error
}

func (s *stubSimulator) SimulateBundle(ctx context.Context, steps []types.Step) (SimResult, error) {
	return s.result, s.err
}

func TestBuildRejectsExpiredOpportunity(t *testing.T) {
	opp := opportunity(0.9, 10, -time.Minute)
	p := New(DefaultConfig(), gasOptWithSample(), nil)
	_, err := p.Build(context.Background(), opp, types.Sequential, false, time.Now())
	assert.ErrorIs(t, err, types.ErrOpportunityExpired)
}

func TestBuildRejectsNonPositiveProfit(t *testing.T) {
	opp := opportunity(0.9, 0, time.Minute)
	p := New(DefaultConfig(), gasOptWithSample(), nil)
	_, err := p.Build(context.Background(), opp, types.Sequential, false, time.Now())
	assert.ErrorIs(t, err, types.ErrInsufficientProfit)
}

func TestBuildRejectsLowConfidence(t *testing.T) {
	opp := opportunity(0.1, 10, time.Minute)
	p := New(DefaultConfig(), gasOptWithSample(), nil)
	_, err := p.Build(context.Background(), opp, types.Sequential, false, time.Now())
	assert.ErrorIs(t, err, types.ErrLowConfidence)
}

func TestBuildSequentialAssignsMonotonicNonces(t *testing.T) {
	opp := opportunity(0.9, 10, time.Minute)
	opp.Allocations = append(opp.Allocations, types.Allocation{Path: opp.Paths[0], Amount: big.NewInt(500)})

	p := New(DefaultConfig(), gasOptWithSample(), nil)
	built, err := p.Build(context.Background(), opp, types.Sequential, false, time.Now())
	require.NoError(t, err)
	require.Len(t, built.Steps, 2)
	require.NotNil(t, built.Steps[0].Nonce)
	require.NotNil(t, built.Steps[1].Nonce)
	assert.Equal(t, uint64(0), *built.Steps[0].Nonce)
	assert.Equal(t, uint64(1), *built.Steps[1].Nonce)
}

func TestBuildAtomicRejectedBySimulation(t *testing.T) {
	opp := opportunity(0.9, 10, time.Minute)
	sim := &stubSimulator{result: SimResult{Success: true, MEVValue: big.NewInt(5), TotalCost: big.NewInt(10)}}
	p := New(DefaultConfig(), gasOptWithSample(), sim)
	_, err := p.Build(context.Background(), opp, types.Atomic, false, time.Now())
	assert.ErrorIs(t, err, types.ErrSimulationRejected)
}

func TestBuildAtomicAppliesGasDiscountAndFallback(t *testing.T) {
	opp := opportunity(0.9, 10, time.Minute)
	sim := &stubSimulator{result: SimResult{Success: true, MEVValue: big.NewInt(100), TotalCost: big.NewInt(10)}}
	p := New(DefaultConfig(), gasOptWithSample(), sim)

	built, err := p.Build(context.Background(), opp, types.Atomic, true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(float64(150_000)*0.8), built.GasTotal)
	require.NotNil(t, built.Fallback)
	assert.Equal(t, types.Parallel, built.Fallback.Strategy)
}
