package pathfind

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

func tok(hex string) types.Token {
	return types.Token{Address: common.HexToAddress(hex), Decimals: 18}
}

func pool(addr string, t0, t1 types.Token, dex string, feeBps uint32) *types.Pool {
	return &types.Pool{
		Address:  common.HexToAddress(addr),
		Token0:   t0,
		Token1:   t1,
		Reserve0: big.NewInt(1_000_000),
		Reserve1: big.NewInt(1_000_000),
		FeeBps:   feeBps,
		Variant:  types.ConstantProduct,
		DEXID:    dex,
	}
}

func buildSnapshotReal(t *testing.T, pools []*types.Pool) *graph.Snapshot {
	t.Helper()
	sources := []graph.Source{&fakeSource{pools: pools}}
	g, err := graph.New(graph.DefaultConfig(), sources, clock.NewMock(), logrus.StandardLogger())
	require.NoError(t, err)
	require.NoError(t, g.Refresh(context.Background(), time.Now()))
	return g.Snapshot()
}

type fakeSource struct{ pools []*types.Pool }

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) ListPools(ctx context.Context) ([]*types.Pool, error) {
	return f.pools, nil
}

func TestFindDiscoversTriangularCycle(t *testing.T) {
	a, b, c := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x0000000000000000000000000000000000000003")

	pools := []*types.Pool{
		pool("0x0000000000000000000000000000000000000010", a, b, "dexA", 30),
		pool("0x0000000000000000000000000000000000000011", b, c, "dexA", 30),
		pool("0x0000000000000000000000000000000000000012", a, c, "dexA", 30),
	}

	finder := New(DefaultConfig())
	snap := buildSnapshotReal(t, pools)
	paths := finder.Find(snap, a)

	require.NotEmpty(t, paths)
	for _, p := range paths {
		assert.True(t, p.IsCyclic())
		assert.Equal(t, a.Address, p.StartToken().Address)
	}
}

func TestFindRespectsMaxPaths(t *testing.T) {
	a, b := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002")
	pools := []*types.Pool{
		pool("0x0000000000000000000000000000000000000010", a, b, "dexA", 30),
		pool("0x0000000000000000000000000000000000000011", a, b, "dexB", 30),
	}
	cfg := DefaultConfig()
	cfg.MaxPaths = 1
	finder := New(cfg)
	snap := buildSnapshotReal(t, pools)
	paths := finder.Find(snap, a)
	assert.LessOrEqual(t, len(paths), 1)
}

func TestFindForManyMergesPerToken(t *testing.T) {
	a, b, c := tok("0x0000000000000000000000000000000000000001"),
		tok("0x0000000000000000000000000000000000000002"),
		tok("0x0000000000000000000000000000000000000003")
	pools := []*types.Pool{
		pool("0x0000000000000000000000000000000000000010", a, b, "dexA", 30),
		pool("0x0000000000000000000000000000000000000011", b, c, "dexA", 30),
		pool("0x0000000000000000000000000000000000000012", a, c, "dexA", 30),
	}
	finder := New(DefaultConfig())
	snap := buildSnapshotReal(t, pools)

	results, err := finder.FindForMany(context.Background(), snap, []types.Token{a, b, c}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
}
