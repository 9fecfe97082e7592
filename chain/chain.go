package chain

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	eth "github.com/streamingfast/eth-go"
)

// Adapter is the chain watcher capability lent to runtime hosts. Streams
// returned by Subscribe are owned by the caller and closed by the adapter
// on Unsubscribe or when the chain stream ends.
type Adapter interface {
	Subscribe(sub *Subscription) (<-chan *Event, error)
	Unsubscribe(id string) error
}

// BlockRange is inclusive on both ends. A nil To is open-ended.
type BlockRange struct {
	From uint64
	To   *uint64
}

func (r BlockRange) Contains(blockNum uint64) bool {
	if blockNum < r.From {
		return false
	}
	return r.To == nil || blockNum <= *r.To
}

func (r BlockRange) String() string {
	if r.To == nil {
		return fmt.Sprintf("[%d, ∞)", r.From)
	}
	return fmt.Sprintf("[%d, %d]", r.From, *r.To)
}

type Subscription struct {
	ID             string
	DataSource     string
	Address        eth.Address
	EventSignature string
	Topic          eth.Hash
	Range          BlockRange
}

func NewSubscription(id, dataSource string, address eth.Address, eventSignature string, blockRange BlockRange) (*Subscription, error) {
	sig, err := ParseEventSignature(eventSignature)
	if err != nil {
		return nil, err
	}

	if len(address) != 20 {
		return nil, fmt.Errorf("invalid contract address %q: expected 20 bytes, got %d", address.Pretty(), len(address))
	}

	return &Subscription{
		ID:             id,
		DataSource:     dataSource,
		Address:        address,
		EventSignature: eventSignature,
		Topic:          sig.Topic(),
		Range:          blockRange,
	}, nil
}

func (s *Subscription) Matches(ev *Event) bool {
	if !s.Range.Contains(ev.BlockNumber) {
		return false
	}
	if !bytes.Equal(s.Address, ev.Address) {
		return false
	}
	if len(ev.Topics) == 0 {
		return false
	}
	return bytes.Equal(s.Topic, ev.Topics[0])
}

func (s *Subscription) String() string {
	return fmt.Sprintf("%s %s@%s %s", s.ID, s.EventSignature, s.Address.Pretty(), s.Range)
}

// Event is a contract log emitted by a successful transaction.
type Event struct {
	BlockNumber     uint64
	BlockHash       eth.Hash
	TransactionHash eth.Hash
	LogIndex        uint32

	Address eth.Address
	Topics  []eth.Hash
	Data    []byte
}

// ParseAddress decodes a 0x prefixed, 20 bytes contract address.
func ParseAddress(in string) (eth.Address, error) {
	if !common.IsHexAddress(in) {
		return nil, fmt.Errorf("invalid contract address %q: expected 20 hex encoded bytes", in)
	}
	return eth.Address(common.HexToAddress(in).Bytes()), nil
}
