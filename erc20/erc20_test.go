package erc20

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth "github.com/streamingfast/eth-go"
	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	token = "0x6b175474e89094c44da98b954eedeac495271d0f"
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
	zero  = "0x0000000000000000000000000000000000000000"
)

func TestBalances_HandleTransfer(t *testing.T) {
	var emitted []entity.Event
	store := mapping.NewStore("sg1", mapping.SinkFunc(func(ev entity.Event) error {
		emitted = append(emitted, ev)
		return nil
	}))
	handlers := New(store, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, handlers["handleTransfer"](ctx, transfer(1, zero, alice, 100)))
	require.NoError(t, handlers["handleTransfer"](ctx, transfer(2, alice, bob, 40)))
	require.NoError(t, handlers["handleTransfer"](ctx, transfer(3, bob, alice, 40)))

	accounts := map[string]entity.Event{}
	transfers := 0
	for _, ev := range emitted {
		switch ev.StoreKey().EntityType {
		case AccountEntity:
			accounts[ev.StoreKey().ID] = ev
		case TransferEntity:
			transfers++
		}
	}
	assert.Equal(t, 3, transfers)

	aliceAccount, ok := accounts[AccountID(token, alice)].(*entity.EntitySet)
	require.True(t, ok)
	assert.Equal(t, entity.String("100"), aliceAccount.Entity["balance"])
	assert.Equal(t, entity.Reference(token), aliceAccount.Entity["token"])

	bobAccount, ok := accounts[AccountID(token, bob)].(*entity.EntityRemoved)
	require.True(t, ok, "bob's account is removed once emptied")
	assert.Equal(t, entity.NewStoreKey("sg1", AccountEntity, AccountID(token, bob)), bobAccount.Key)

	_, mintedFromZero := accounts[AccountID(token, zero)]
	assert.False(t, mintedFromZero)
}

func TestBalances_HandleTransferWrongEvent(t *testing.T) {
	store := mapping.NewStore("sg1", mapping.SinkFunc(func(entity.Event) error { return nil }))
	handlers := New(store, zap.NewNop())

	ev := transfer(1, zero, alice, 1)
	ev.Params = ev.Params[:2]
	assert.Error(t, handlers["handleTransfer"](context.Background(), ev))

	ev = transfer(1, zero, alice, 1)
	ev.Params[0].Value = big.NewInt(1)
	assert.Error(t, handlers["handleTransfer"](context.Background(), ev))
}

func TestBalances_FailedInvocationKeepsBalances(t *testing.T) {
	var emitted []entity.Event
	failNext := false
	store := mapping.NewStore("sg1", mapping.SinkFunc(func(ev entity.Event) error {
		if failNext && len(emitted) == 2 {
			return errors.New("too many entity operations")
		}
		emitted = append(emitted, ev)
		return nil
	}))
	handlers := New(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, handlers["handleTransfer"](ctx, transfer(1, zero, alice, 100)))
	require.Len(t, emitted, 2)

	// The transfer entity and alice's account are emitted, bob's account fails.
	emitted = emitted[:0]
	failNext = true
	require.Error(t, handlers["handleTransfer"](ctx, transfer(2, alice, bob, 40)))

	failNext = false
	emitted = emitted[:0]
	require.NoError(t, handlers["handleTransfer"](ctx, transfer(3, zero, alice, 1)))
	require.Len(t, emitted, 2)

	aliceAccount, ok := emitted[1].(*entity.EntitySet)
	require.True(t, ok)
	assert.Equal(t, AccountID(token, alice), aliceAccount.Key.ID)
	assert.Equal(t, entity.String("101"), aliceAccount.Entity["balance"])
}

func TestBalances_SelfTransfer(t *testing.T) {
	var emitted []entity.Event
	store := mapping.NewStore("sg1", mapping.SinkFunc(func(ev entity.Event) error {
		emitted = append(emitted, ev)
		return nil
	}))
	handlers := New(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, handlers["handleTransfer"](ctx, transfer(1, zero, alice, 100)))
	require.NoError(t, handlers["handleTransfer"](ctx, transfer(2, alice, alice, 30)))

	last, ok := emitted[len(emitted)-1].(*entity.EntitySet)
	require.True(t, ok)
	assert.Equal(t, entity.String("100"), last.Entity["balance"])
}

func transfer(blockNum uint64, from, to string, value int64) *mapping.Event {
	return &mapping.Event{
		Address:         eth.MustNewAddress(token),
		BlockNumber:     blockNum,
		TransactionHash: eth.Hash(common.BigToHash(new(big.Int).SetUint64(blockNum)).Bytes()),
		LogIndex:        0,
		Signature:       "Transfer(indexed address,indexed address,uint256)",
		Params: []*mapping.Param{
			{Name: "from", Type: "address", Indexed: true, Value: common.HexToAddress(from)},
			{Name: "to", Type: "address", Indexed: true, Value: common.HexToAddress(to)},
			{Name: "value", Type: "uint256", Value: big.NewInt(value)},
		},
	}
}
