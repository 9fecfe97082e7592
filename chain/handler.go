package chain

import (
	"context"
	"fmt"
	"io"

	"github.com/streamingfast/bstream"
	eth "github.com/streamingfast/eth-go"
	pbeth "github.com/streamingfast/sf-ethereum/types/pb/sf/ethereum/type/v1"
	"go.uber.org/zap"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, ev *Event) error
}

// NewBlockHandler feeds the logs of every block flowing through a firehose
// to the broadcaster. A non-zero stopBlock ends the stream with io.EOF once
// reached (exclusive).
func NewBlockHandler(ctx context.Context, broadcaster Broadcaster, stopBlock uint64, logger *zap.Logger) bstream.Handler {
	return bstream.HandlerFunc(func(block *bstream.Block, obj interface{}) error {
		if stopBlock != 0 && block.Number >= stopBlock {
			logger.Info("stop block reached", zap.Uint64("stop_block", stopBlock))
			return io.EOF
		}

		blk, ok := block.ToProtocol().(*pbeth.Block)
		if !ok {
			return fmt.Errorf("unexpected block payload %T at block %d", block.ToProtocol(), block.Number)
		}

		events := EventsFromBlock(blk)
		if len(events) > 0 {
			logger.Debug("broadcasting block logs", zap.Uint64("block_num", blk.Number), zap.Int("log_count", len(events)))
		}

		for _, ev := range events {
			if err := broadcaster.Broadcast(ctx, ev); err != nil {
				return fmt.Errorf("broadcasting log %d of block %d: %w", ev.LogIndex, ev.BlockNumber, err)
			}
		}
		return nil
	})
}

// EventsFromBlock extracts the logs of successful transactions in block order.
func EventsFromBlock(blk *pbeth.Block) []*Event {
	var out []*Event
	for _, trx := range blk.TransactionTraces {
		if trx.Status != pbeth.TransactionTraceStatus_SUCCEEDED || trx.Receipt == nil {
			continue
		}

		for _, log := range trx.Receipt.Logs {
			ev := &Event{
				BlockNumber:     blk.Number,
				BlockHash:       blk.Hash,
				TransactionHash: trx.Hash,
				LogIndex:        log.BlockIndex,
				Address:         log.Address,
				Data:            log.Data,
			}
			for _, topic := range log.Topics {
				ev.Topics = append(ev.Topics, eth.Hash(topic))
			}
			out = append(out, ev)
		}
	}
	return out
}
