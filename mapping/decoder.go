package mapping

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/streamingfast/subgraph-runtime/chain"
)

// Decoder turns raw chain logs into Events for one event signature.
type Decoder struct {
	signature string
	arguments abi.Arguments
	indexed   abi.Arguments
}

// NewDecoder builds a decoder for signature. When abiJSON is non-empty, the
// argument names and layout come from the matching event of the ABI.
func NewDecoder(signature string, abiJSON []byte) (*Decoder, error) {
	sig, err := chain.ParseEventSignature(signature)
	if err != nil {
		return nil, err
	}

	var arguments abi.Arguments
	if len(abiJSON) > 0 {
		arguments, err = argumentsFromABI(sig, abiJSON)
	} else {
		arguments, err = argumentsFromSignature(sig)
	}
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", signature, err)
	}

	d := &Decoder{signature: signature, arguments: arguments}
	for _, arg := range arguments {
		if arg.Indexed {
			d.indexed = append(d.indexed, arg)
		}
	}
	return d, nil
}

func argumentsFromABI(sig *chain.EventSignature, abiJSON []byte) (abi.Arguments, error) {
	contractABI, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing abi: %w", err)
	}

	canonical := sig.Canonical()
	for _, ev := range contractABI.Events {
		if ev.Sig != canonical {
			continue
		}

		args := make(abi.Arguments, len(ev.Inputs))
		for i, input := range ev.Inputs {
			args[i] = input
			if args[i].Name == "" {
				args[i].Name = fmt.Sprintf("param%d", i)
			}
		}
		return args, nil
	}
	return nil, fmt.Errorf("event %s not found in abi", canonical)
}

func argumentsFromSignature(sig *chain.EventSignature) (abi.Arguments, error) {
	args := make(abi.Arguments, len(sig.Params))
	for i, param := range sig.Params {
		typ, err := abi.NewType(param.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parameter #%d: %w", i, err)
		}

		name := param.Name
		if name == "" {
			name = fmt.Sprintf("param%d", i)
		}
		args[i] = abi.Argument{Name: name, Type: typ, Indexed: param.Indexed}
	}
	return args, nil
}

// Decode fails with an ErrorKindDecode execution error when the log does not
// fit the signature.
func (d *Decoder) Decode(handler string, ev *chain.Event) (*Event, error) {
	values, err := d.decodeValues(ev)
	if err != nil {
		return nil, &ExecutionError{Kind: ErrorKindDecode, Handler: handler, Err: fmt.Errorf("decoding %s: %w", d.signature, err)}
	}

	out := &Event{
		Address:         ev.Address,
		BlockNumber:     ev.BlockNumber,
		BlockHash:       ev.BlockHash,
		TransactionHash: ev.TransactionHash,
		LogIndex:        ev.LogIndex,
		Signature:       d.signature,
		Params:          make([]*Param, len(d.arguments)),
	}
	for i, arg := range d.arguments {
		out.Params[i] = &Param{Name: arg.Name, Type: arg.Type.String(), Indexed: arg.Indexed, Value: values[arg.Name]}
	}
	return out, nil
}

func (d *Decoder) decodeValues(ev *chain.Event) (map[string]interface{}, error) {
	if len(ev.Topics) != len(d.indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(d.indexed)+1, len(ev.Topics))
	}

	values := map[string]interface{}{}
	if len(d.indexed) > 0 {
		topics := make([]common.Hash, len(ev.Topics)-1)
		for i, topic := range ev.Topics[1:] {
			if len(topic) != common.HashLength {
				return nil, fmt.Errorf("topic #%d has %d bytes, expected %d", i+1, len(topic), common.HashLength)
			}
			topics[i] = common.BytesToHash(topic)
		}

		if err := abi.ParseTopicsIntoMap(values, d.indexed, topics); err != nil {
			return nil, fmt.Errorf("indexed parameters: %w", err)
		}
	}

	nonIndexed := d.arguments.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(values, ev.Data); err != nil {
			return nil, fmt.Errorf("data parameters: %w", err)
		}
	}
	return values, nil
}
