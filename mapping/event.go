package mapping

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	eth "github.com/streamingfast/eth-go"
)

// Event is a chain event decoded against the handler's event signature.
type Event struct {
	Address         eth.Address
	BlockNumber     uint64
	BlockHash       eth.Hash
	TransactionHash eth.Hash
	LogIndex        uint32

	Signature string
	Params    []*Param
}

type Param struct {
	Name    string
	Type    string
	Indexed bool

	// Value holds the go-ethereum decoded value: *big.Int for (u)int above
	// 64 bits, common.Address, common.Hash for hashed indexed values, []byte,
	// fixed size byte arrays, bool, string or sized Go integers.
	Value interface{}
}

func (e *Event) Param(name string) (*Param, error) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("event %s has no parameter %q", e.Signature, name)
}

// ParamAt returns the parameter at position i of the signature.
func (e *Event) ParamAt(i int) (*Param, error) {
	if i < 0 || i >= len(e.Params) {
		return nil, fmt.Errorf("event %s has no parameter #%d", e.Signature, i)
	}
	return e.Params[i], nil
}

func (p *Param) Address() (eth.Address, error) {
	addr, ok := p.Value.(common.Address)
	if !ok {
		return nil, fmt.Errorf("parameter %q is a %T, not an address", p.Name, p.Value)
	}
	return eth.Address(addr.Bytes()), nil
}

func (p *Param) BigInt() (*big.Int, error) {
	if v, ok := p.Value.(*big.Int); ok {
		return new(big.Int).Set(v), nil
	}

	rv := reflect.ValueOf(p.Value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("parameter %q is a %T, not an integer", p.Name, p.Value)
}

type jsonEvent struct {
	Address         string       `json:"address"`
	BlockNumber     uint64       `json:"block_number"`
	BlockHash       string       `json:"block_hash"`
	TransactionHash string       `json:"transaction_hash"`
	LogIndex        uint32       `json:"log_index"`
	Signature       string       `json:"signature"`
	Params          []*jsonParam `json:"params"`
}

type jsonParam struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Indexed bool        `json:"indexed"`
	Value   interface{} `json:"value"`
}

// MarshalJSON produces the argument payload handed to wasm handlers.
// Integers are decimal strings, addresses and bytes are 0x prefixed hex.
func (e *Event) MarshalJSON() ([]byte, error) {
	out := &jsonEvent{
		Address:         hexString(e.Address),
		BlockNumber:     e.BlockNumber,
		BlockHash:       hexString(e.BlockHash),
		TransactionHash: hexString(e.TransactionHash),
		LogIndex:        e.LogIndex,
		Signature:       e.Signature,
		Params:          make([]*jsonParam, len(e.Params)),
	}
	for i, p := range e.Params {
		out.Params[i] = &jsonParam{Name: p.Name, Type: p.Type, Indexed: p.Indexed, Value: jsonValue(p.Value)}
	}
	return json.Marshal(out)
}

func jsonValue(in interface{}) interface{} {
	switch v := in.(type) {
	case nil:
		return nil
	case *big.Int:
		return v.String()
	case common.Address:
		return hexString(v.Bytes())
	case common.Hash:
		return hexString(v.Bytes())
	case []byte:
		return hexString(v)
	case bool, string:
		return v
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()).String()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()).String()
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(raw), rv)
			return hexString(raw)
		}
		fallthrough
	case reflect.Slice:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = jsonValue(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(in)
}

func hexString(in []byte) string {
	return "0x" + hex.EncodeToString(in)
}
