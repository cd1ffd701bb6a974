package multicall_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"autopay-tips/internal/ethrpc"
	ethstub "autopay-tips/internal/ethrpc/stub"
	"autopay-tips/internal/multicall"
	mcstub "autopay-tips/internal/multicall/stub"
)

var (
	target   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	uint256T = mustType("uint256")
	uintArgs = abi.Arguments{{Type: uint256T}}
)

func mustType(s string) abi.Type {
	t, err := abi.NewType(s, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// setup wires a Multicall2 emulation and a target contract that echoes
// its single calldata byte as uint256, reverting on 0xff.
func setup(t *testing.T) (*ethstub.Client, *multicall.Gateway) {
	t.Helper()

	client := ethstub.NewClient()
	client.Handle(multicall.DefaultAddress, mcstub.Handler(client))
	client.Handle(target, func(data []byte) ([]byte, error) {
		if len(data) == 0 || data[0] == 0xff {
			return nil, errors.New("revert")
		}
		if data[0] == 0xee {
			return []byte{0x01}, nil // malformed return data
		}
		return uintArgs.Pack(big.NewInt(int64(data[0])))
	})

	gw := multicall.NewGateway(multicall.Options{
		Client: client,
		Logger: zaptest.NewLogger(t),
	})
	return client, gw
}

func echoCall(b byte, field string) multicall.Call {
	return multicall.Call{
		Target: target,
		Method: "echo",
		Data:   []byte{b},
		Keys:   []multicall.Key{{Field: field, Index: uint64(b)}},
		Decode: func(ret []byte) ([]interface{}, error) {
			return uintArgs.Unpack(ret)
		},
	}
}

func TestGateway_Execute(t *testing.T) {
	client, gw := setup(t)

	calls := []multicall.Call{echoCall(1, "a"), echoCall(2, "a"), echoCall(3, "b")}

	res, err := gw.Execute(context.Background(), calls, false)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 3)
	for i, o := range res.Outcomes {
		require.True(t, o.OK, "outcome %d", i)
		assert.Equal(t, big.NewInt(int64(i+1)), o.Values[0])
	}

	v, ok := res.Get(multicall.Key{Field: "b", Index: 3})
	require.True(t, ok)
	assert.Equal(t, big.NewInt(3), v)
	assert.Equal(t, 3, res.Len())

	// One round trip for the whole batch
	assert.Equal(t, 1, client.CallCount(multicall.DefaultAddress))
}

func TestGateway_RevertedCallAbsent(t *testing.T) {
	_, gw := setup(t)

	calls := []multicall.Call{echoCall(1, "a"), echoCall(0xff, "a"), echoCall(3, "a")}

	res, err := gw.Execute(context.Background(), calls, false)
	require.NoError(t, err)

	assert.True(t, res.Outcomes[0].OK)
	assert.False(t, res.Outcomes[1].OK)
	assert.True(t, res.Outcomes[2].OK)

	_, ok := res.Get(multicall.Key{Field: "a", Index: 0xff})
	assert.False(t, ok)
	assert.Equal(t, 2, res.Len())
}

func TestGateway_RequireSuccessFailsBatch(t *testing.T) {
	_, gw := setup(t)

	calls := []multicall.Call{echoCall(1, "a"), echoCall(0xff, "a")}

	res, err := gw.Execute(context.Background(), calls, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, multicall.ErrTransport)
	assert.Nil(t, res)
}

func TestGateway_DecodeErrorDropsEntryOnly(t *testing.T) {
	_, gw := setup(t)

	calls := []multicall.Call{echoCall(0xee, "a"), echoCall(2, "a")}

	res, err := gw.Execute(context.Background(), calls, false)
	require.NoError(t, err)

	assert.False(t, res.Outcomes[0].OK)
	assert.True(t, res.Outcomes[1].OK)
	assert.Equal(t, 1, res.Len())
}

func TestGateway_TransportError(t *testing.T) {
	client, gw := setup(t)
	client.Err = errors.New("connection refused")

	res, err := gw.Execute(context.Background(), []multicall.Call{echoCall(1, "a")}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, multicall.ErrTransport)
	assert.Nil(t, res, "no partial result on transport failure")
}

func TestGateway_TransportErrorKeepsRPCError(t *testing.T) {
	client, gw := setup(t)
	client.Err = &ethrpc.RPCError{Code: -32005, Message: "limit exceeded"}

	_, err := gw.Execute(context.Background(), []multicall.Call{echoCall(1, "a")}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, multicall.ErrTransport)

	var rpcErr *ethrpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32005, rpcErr.Code)
}

func TestGateway_DuplicateKey(t *testing.T) {
	client, gw := setup(t)

	calls := []multicall.Call{echoCall(1, "a"), echoCall(1, "a")}

	_, err := gw.Execute(context.Background(), calls, false)
	assert.ErrorIs(t, err, multicall.ErrDuplicateKey)
	assert.Equal(t, 0, client.CallCount(multicall.DefaultAddress))
}

func TestGateway_SameIDDifferentFields(t *testing.T) {
	_, gw := setup(t)

	var id [32]byte
	id[0] = 7

	first := echoCall(1, "current_index")
	first.Keys = []multicall.Key{{Field: "current_index", ID: id}}
	second := echoCall(2, "month_old_index")
	second.Keys = []multicall.Key{{Field: "month_old_index", ID: id}}

	res, err := gw.Execute(context.Background(), []multicall.Call{first, second}, false)
	require.NoError(t, err)

	cur, ok := res.Get(multicall.Key{Field: "current_index", ID: id})
	require.True(t, ok)
	old, ok := res.Get(multicall.Key{Field: "month_old_index", ID: id})
	require.True(t, ok)

	assert.Equal(t, big.NewInt(1), cur)
	assert.Equal(t, big.NewInt(2), old)
}

func TestGateway_Chunking(t *testing.T) {
	client := ethstub.NewClient()
	client.Handle(multicall.DefaultAddress, mcstub.Handler(client))
	client.Handle(target, func(data []byte) ([]byte, error) {
		return uintArgs.Pack(big.NewInt(int64(data[0])))
	})

	gw := multicall.NewGateway(multicall.Options{Client: client, MaxBatchSize: 2})

	calls := []multicall.Call{echoCall(1, "a"), echoCall(2, "a"), echoCall(3, "a"), echoCall(4, "a"), echoCall(5, "a")}

	res, err := gw.Execute(context.Background(), calls, false)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Len())
	assert.Equal(t, 3, client.CallCount(multicall.DefaultAddress))

	for i, o := range res.Outcomes {
		require.True(t, o.OK)
		assert.Equal(t, big.NewInt(int64(i+1)), o.Values[0])
	}
}

func TestGateway_Empty(t *testing.T) {
	client, gw := setup(t)

	res, err := gw.Execute(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
	assert.Equal(t, 0, client.CallCount(multicall.DefaultAddress))
}
