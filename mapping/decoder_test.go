package mapping

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth "github.com/streamingfast/eth-go"
	"github.com/streamingfast/subgraph-runtime/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transferSig = "Transfer(indexed address,indexed address,uint256)"

const erc20ABI = `[
  {"anonymous": false, "type": "event", "name": "Transfer", "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}
  ]}
]`

var (
	fromAddress  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	toAddress    = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	tokenAddress = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func TestDecoder_Decode(t *testing.T) {
	decoder, err := NewDecoder(transferSig, nil)
	require.NoError(t, err)

	ev, err := decoder.Decode("handleTransfer", transferLog(t, big.NewInt(100)))
	require.NoError(t, err)

	assert.Equal(t, uint64(10), ev.BlockNumber)
	assert.Equal(t, uint32(3), ev.LogIndex)
	require.Len(t, ev.Params, 3)

	assert.Equal(t, "param0", ev.Params[0].Name)
	assert.True(t, ev.Params[0].Indexed)
	from, err := ev.Params[0].Address()
	require.NoError(t, err)
	assert.Equal(t, fromAddress.Bytes(), []byte(from))

	value, err := ev.Params[2].BigInt()
	require.NoError(t, err)
	assert.Equal(t, "100", value.String())
	assert.Equal(t, "uint256", ev.Params[2].Type)
}

func TestDecoder_DecodeWithABI(t *testing.T) {
	decoder, err := NewDecoder(transferSig, []byte(erc20ABI))
	require.NoError(t, err)

	ev, err := decoder.Decode("handleTransfer", transferLog(t, big.NewInt(42)))
	require.NoError(t, err)

	to, err := ev.Param("to")
	require.NoError(t, err)
	toAddr, err := to.Address()
	require.NoError(t, err)
	assert.Equal(t, toAddress.Bytes(), []byte(toAddr))

	value, err := ev.Param("value")
	require.NoError(t, err)
	amount, err := value.BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(42), amount.Int64())

	_, err = ev.Param("unknown")
	assert.Error(t, err)
}

func TestNewDecoder_Errors(t *testing.T) {
	_, err := NewDecoder("Transfer", nil)
	assert.Error(t, err)

	_, err = NewDecoder("Transfer(notatype)", nil)
	assert.Error(t, err)

	_, err = NewDecoder("Approval(indexed address,indexed address,uint256)", []byte(erc20ABI))
	assert.EqualError(t, err, `event "Approval(indexed address,indexed address,uint256)": event Approval(address,address,uint256) not found in abi`)

	_, err = NewDecoder(transferSig, []byte("{not json"))
	assert.Error(t, err)
}

func TestDecoder_DecodeFailures(t *testing.T) {
	decoder, err := NewDecoder(transferSig, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(ev *chain.Event)
	}{
		{"missing topic", func(ev *chain.Event) { ev.Topics = ev.Topics[:2] }},
		{"extra topic", func(ev *chain.Event) { ev.Topics = append(ev.Topics, ev.Topics[1]) }},
		{"short topic", func(ev *chain.Event) { ev.Topics[1] = eth.Hash{0x01} }},
		{"empty data", func(ev *chain.Event) { ev.Data = nil }},
		{"truncated data", func(ev *chain.Event) { ev.Data = ev.Data[:16] }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			log := transferLog(t, big.NewInt(1))
			test.mutate(log)

			_, err := decoder.Decode("handleTransfer", log)
			require.Error(t, err)

			var execErr *ExecutionError
			require.True(t, errors.As(err, &execErr))
			assert.Equal(t, ErrorKindDecode, execErr.Kind)
			assert.Equal(t, "handleTransfer", execErr.Handler)
		})
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	decoder, err := NewDecoder("Transfer(address indexed from, address indexed to, uint256 value)", nil)
	require.NoError(t, err)

	ev, err := decoder.Decode("handleTransfer", transferLog(t, big.NewInt(100)))
	require.NoError(t, err)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"address": "0x6b175474e89094c44da98b954eedeac495271d0f",
		"block_number": 10,
		"block_hash": "0x0a",
		"transaction_hash": "0xaa",
		"log_index": 3,
		"signature": "Transfer(address indexed from, address indexed to, uint256 value)",
		"params": [
			{"name": "from", "type": "address", "indexed": true, "value": "0x0000000000000000000000000000000000000001"},
			{"name": "to", "type": "address", "indexed": true, "value": "0x0000000000000000000000000000000000000abc"},
			{"name": "value", "type": "uint256", "indexed": false, "value": "100"}
		]
	}`, string(raw))
}

func transferLog(t *testing.T, amount *big.Int) *chain.Event {
	t.Helper()

	sig, err := chain.ParseEventSignature(transferSig)
	require.NoError(t, err)

	return &chain.Event{
		BlockNumber:     10,
		BlockHash:       eth.Hash{0x0a},
		TransactionHash: eth.Hash{0xaa},
		LogIndex:        3,
		Address:         eth.Address(tokenAddress.Bytes()),
		Topics: []eth.Hash{
			sig.Topic(),
			eth.Hash(common.BytesToHash(fromAddress.Bytes()).Bytes()),
			eth.Hash(common.BytesToHash(toAddress.Bytes()).Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}
