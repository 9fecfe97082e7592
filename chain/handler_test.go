package chain

import (
	"testing"

	pbeth "github.com/streamingfast/sf-ethereum/types/pb/sf/ethereum/type/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsFromBlock(t *testing.T) {
	blk := &pbeth.Block{
		Number: 10,
		Hash:   []byte{0x01},
		TransactionTraces: []*pbeth.TransactionTrace{
			{
				Hash:   []byte{0xaa},
				Status: pbeth.TransactionTraceStatus_SUCCEEDED,
				Receipt: &pbeth.TransactionReceipt{Logs: []*pbeth.Log{
					{Address: tokenAddress, Topics: [][]byte{{0x01}, {0x02}}, Data: []byte{0x03}, Index: 0, BlockIndex: 0},
					{Address: otherAddress, Topics: [][]byte{{0x04}}, Index: 1, BlockIndex: 1},
				}},
			},
			{
				Hash:    []byte{0xbb},
				Status:  pbeth.TransactionTraceStatus_REVERTED,
				Receipt: &pbeth.TransactionReceipt{Logs: []*pbeth.Log{{Address: tokenAddress, BlockIndex: 2}}},
			},
			{
				Hash:   []byte{0xcc},
				Status: pbeth.TransactionTraceStatus_SUCCEEDED,
				Receipt: &pbeth.TransactionReceipt{Logs: []*pbeth.Log{
					{Address: tokenAddress, Topics: [][]byte{{0x05}}, Index: 0, BlockIndex: 3},
				}},
			},
		},
	}

	events := EventsFromBlock(blk)
	require.Len(t, events, 3)

	assert.Equal(t, []uint32{0, 1, 3}, []uint32{events[0].LogIndex, events[1].LogIndex, events[2].LogIndex})
	assert.Equal(t, uint64(10), events[0].BlockNumber)
	assert.Equal(t, []byte{0xaa}, []byte(events[0].TransactionHash))
	assert.Equal(t, []byte{0xcc}, []byte(events[2].TransactionHash))
	require.Len(t, events[0].Topics, 2)
	assert.Equal(t, []byte{0x02}, []byte(events[0].Topics[1]))
	assert.Equal(t, []byte{0x03}, events[0].Data)
}
