package dexsource

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelidex/arbengine/pkg/types"
)

// fakeCaller returns canned ABI-encoded responses keyed by method
// selector, standing in for an *ethclient.Client in tests.
type fakeCaller struct {
	abi      abi.ABI
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	failAll  bool
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.failAll {
		return nil, errors.New("rpc unavailable")
	}
	selector := msg.Data[:4]
	switch {
	case selectorFor(f.abi, "token0", selector):
		return f.abi.Methods["token0"].Outputs.Pack(f.token0)
	case selectorFor(f.abi, "token1", selector):
		return f.abi.Methods["token1"].Outputs.Pack(f.token1)
	case selectorFor(f.abi, "getReserves", selector):
		return f.abi.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	default:
		return nil, errors.New("unknown method")
	}
}

func selectorFor(parsed abi.ABI, method string, selector []byte) bool {
	m := parsed.Methods[method]
	return string(m.ID) == string(selector)
}

func TestListPoolsBuildsPoolFromContractCalls(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(constantProductABI))
	require.NoError(t, err)

	token0 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	token1 := common.HexToAddress("0x0000000000000000000000000000000000000002")
	poolAddr := common.HexToAddress("0x0000000000000000000000000000000000000010")

	caller := &fakeCaller{
		abi:      parsed,
		token0:   token0,
		token1:   token1,
		reserve0: big.NewInt(1_000_000),
		reserve1: big.NewInt(2_000_000),
	}

	source, err := New("dexA", caller, []PoolSpec{
		{Address: poolAddr, Variant: types.ConstantProduct, FeeBps: 30, Decimals0: 18, Decimals1: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, "dexA", source.Name())

	pools, err := source.ListPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)

	p := pools[0]
	assert.Equal(t, poolAddr, p.Address)
	assert.Equal(t, token0, p.Token0.Address)
	assert.Equal(t, token1, p.Token1.Address)
	assert.Equal(t, big.NewInt(1_000_000), p.Reserve0)
	assert.Equal(t, big.NewInt(2_000_000), p.Reserve1)
	assert.Equal(t, "dexA", p.DEXID)
}

func TestListPoolsSurfacesSourceUnavailableOnCallFailure(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(constantProductABI))
	require.NoError(t, err)

	source, err := New("dexA", &fakeCaller{abi: parsed, failAll: true}, []PoolSpec{
		{Address: common.HexToAddress("0x10"), Variant: types.ConstantProduct},
	})
	require.NoError(t, err)

	_, err = source.ListPools(context.Background())
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
}
