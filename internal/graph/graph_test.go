package graph

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

	"github.com/kaelidex/arbengine/pkg/types"
)

func tok(hex string) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: 18}
}

func pool(addr string, t0, t1 types.Token, r0, r1 int64, dex string) *types.Pool {
	return &types.Pool{
		Address:  common.HexToAddress(addr),
		Token0:   t0,
		Token1:   t1,
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
		FeeBps:   30,
		Variant:  types.ConstantProduct,
		DEXID:    dex,
	}
}

type stubSource struct {
	name  string
	pools []*types.Pool
	err   error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) ListPools(ctx context.Context) ([]*types.Pool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pools, nil
}

func newTestLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestRefreshBuildsBidirectionalAdjacency(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	p := pool("0x0000000000000000000000000000000000000099", a, b, 1000, 2000, "dexA")
	src := &stubSource{name: "dexA", pools: []*types.Pool{p}}

	g, err := New(DefaultConfig(), []Source{src}, clock.NewMock(), newTestLogger())
	require.NoError(t, err)

	require.NoError(t, g.Refresh(context.Background(), time.Now()))

	snap := g.Snapshot()
	require.Len(t, snap.Successors(a), 1)
	require.Len(t, snap.Successors(b), 1)
	assert.Equal(t, b.Address, snap.Successors(a)[0].To.Address)
	assert.Equal(t, a.Address, snap.Successors(b)[0].To.Address)

	found, ok := snap.Pool(p.Address.Hex())
	require.True(t, ok)
	assert.Equal(t, p.Address, found.Address)
}

func TestRefreshIsIdempotentWithinTTL(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	src := &stubSource{name: "dexA", pools: []*types.Pool{pool("0x0000000000000000000000000000000000000099", a, b, 1000, 2000, "dexA")}}

	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	g, err := New(cfg, []Source{src}, clock.NewMock(), newTestLogger())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, g.Refresh(context.Background(), now))
	first := g.Snapshot()

	src.pools = nil // if refresh actually ran again, the graph would empty out
	require.NoError(t, g.Refresh(context.Background(), now.Add(time.Second)))
	second := g.Snapshot()

	assert.Same(t, first.gen, second.gen)
}

func TestRefreshAllSourcesFailPreservesPriorGraph(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001"), tok("0x0000000000000000000000000000000000000002")
	src := &stubSource{name: "dexA", pools: []*types.Pool{pool("0x0000000000000000000000000000000000000099", a, b, 1000, 2000, "dexA")}}

	cfg := DefaultConfig()
	cfg.TTL = time.Millisecond
	g, err := New(cfg, []Source{src}, clock.NewMock(), newTestLogger())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, g.Refresh(context.Background(), now))
	before := g.Snapshot()

	src.pools = nil
	src.err = assert.AnError
	err = g.Refresh(context.Background(), now.Add(time.Second))
	assert.ErrorIs(t, err, types.ErrRefreshStale)

	after := g.Snapshot()
	assert.Same(t, before.gen, after.gen)
}

func TestRefreshSkipsFailedSourceButKeepsOthers(t *testing.T) {
	a, b, c := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x0000000000000000000000000000000000000003")
	good := &stubSource{name: "dexGood", pools: []*types.Pool{pool("0x0000000000000000000000000000000000000099", a, b, 1000, 2000, "dexGood")}}
	bad := &stubSource{name: "dexBad", err: assert.AnError}
	_ = c

	g, err := New(DefaultConfig(), []Source{good, bad}, clock.NewMock(), newTestLogger())
	require.NoError(t, err)
	require.NoError(t, g.Refresh(context.Background(), time.Now()))

	snap := g.Snapshot()
	assert.Len(t, snap.Successors(a), 1)
}

func TestFiltersExcludeAndCapPerDex(t *testing.T) {
	a, b, bad := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x000000000000000000000000000000000000dead")

	p1 := pool("0x0000000000000000000000000000000000000010", a, b, 1000, 2000, "dexA")
	p2 := pool("0x0000000000000000000000000000000000000011", a, b, 50, 2000, "dexA")
	blocked := pool("0x0000000000000000000000000000000000000012", a, bad, 1000, 2000, "dexA")

	f := Filters{ExcludedTokens: []common.Address{bad.Address}, MaxPoolsPerDex: 1}
	out := f.Apply([]*types.Pool{p1, p2, blocked})

	require.Len(t, out, 1)
	assert.Equal(t, p1.Address, out[0].Address)
}
