// Package dexsource adapts on-chain pool contracts to graph.Source's
// list_pools surface, grounded on the teacher's contractclient test:
// an abi.ABI loaded once per contract kind, bound to an *ethclient.Client,
// and called with cc.Call(nil, method) the way TestCallTransaction reads
// safelyGetStateOfAMM and tickSpacing.
package dexsource

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	arbtypes "github.com/kaelidex/arbengine/pkg/types"
)

// constantProductABI exposes the getReserves/token0/token1 surface
// common to UniswapV2-style pairs.
const constantProductABI = `[
	{"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"inputs":[],"stateMutability":"view","type":"function"},
	{"name":"token0","outputs":[{"name":"","type":"address"}],"inputs":[],"stateMutability":"view","type":"function"},
	{"name":"token1","outputs":[{"name":"","type":"address"}],"inputs":[],"stateMutability":"view","type":"function"}
]`

// PoolSpec is one statically configured pool this source tracks: its
// on-chain address plus the metadata the graph needs but the contract
// doesn't expose cheaply (fee tier, variant, DEX label).
type PoolSpec struct {
	Address  common.Address
	Variant  arbtypes.Variant
	FeeBps   uint32
	Decimals0, Decimals1 uint8
}

// ContractCaller is the narrow eth_call surface a Source needs; satisfied
// by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Source lists the current reserves of a fixed pool set for one DEX,
// implementing graph.Source.
type Source struct {
	name   string
	caller ContractCaller
	abi    abi.ABI
	pools  []PoolSpec
}

// New builds a Source for dexName over the given pool set. caller is
// typically an *ethclient.Client wrapped by pkg/rpcclient.
func New(dexName string, caller ContractCaller, pools []PoolSpec) (*Source, error) {
	parsed, err := abi.JSON(strings.NewReader(constantProductABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Source{name: dexName, caller: caller, abi: parsed, pools: pools}, nil
}

func (s *Source) Name() string { return s.name }

// ListPools implements graph.Source: one eth_call per pool per view
// method, rebuilt into the graph's *types.Pool shape.
func (s *Source) ListPools(ctx context.Context) ([]*arbtypes.Pool, error) {
	out := make([]*arbtypes.Pool, 0, len(s.pools))
	for _, spec := range s.pools {
		pool, err := s.fetchPool(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s: %v", arbtypes.ErrSourceUnavailable, spec.Address.Hex(), err)
		}
		out = append(out, pool)
	}
	return out, nil
}

func (s *Source) fetchPool(ctx context.Context, spec PoolSpec) (*arbtypes.Pool, error) {
	token0Addr, err := s.callAddress(ctx, spec.Address, "token0")
	if err != nil {
		return nil, err
	}
	token1Addr, err := s.callAddress(ctx, spec.Address, "token1")
	if err != nil {
		return nil, err
	}

	reserve0, reserve1, err := s.callReserves(ctx, spec.Address)
	if err != nil {
		return nil, err
	}

	return &arbtypes.Pool{
		Address:  spec.Address,
		Token0:   arbtypes.Token{Address: token0Addr, Decimals: spec.Decimals0},
		Token1:   arbtypes.Token{Address: token1Addr, Decimals: spec.Decimals1},
		Reserve0: reserve0,
		Reserve1: reserve1,
		FeeBps:   spec.FeeBps,
		Variant:  spec.Variant,
		DEXID:    s.name,
	}, nil
}

func (s *Source) callAddress(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	out, err := s.call(ctx, pool, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unexpected output arity for %s", method)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s did not return an address", method)
	}
	return addr, nil
}

func (s *Source) callReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	out, err := s.call(ctx, pool, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("unexpected output arity for getReserves")
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves did not return integers")
	}
	return r0, r1, nil
}

func (s *Source) call(ctx context.Context, to common.Address, method string) ([]any, error) {
	data, err := s.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return s.abi.Unpack(method, raw)
}
