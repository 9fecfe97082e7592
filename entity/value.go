package entity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBigInt
	KindBool
	KindBytes
	KindReference
	KindList
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindString:    "string",
	KindInt:       "int",
	KindBigInt:    "bigint",
	KindBool:      "bool",
	KindBytes:     "bytes",
	KindReference: "reference",
	KindList:      "list",
}

func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

func ParseKind(in string) (Kind, error) {
	for k, name := range kindNames {
		if name == in {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", in)
}

// Value is a typed attribute value. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	i    int64
	big  *big.Int
	b    bool
	raw  []byte
	list []Value
}

func Null() Value                { return Value{} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Reference(id string) Value  { return Value{kind: KindReference, str: id} }
func List(values ...Value) Value { return Value{kind: KindList, list: values} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, raw: append([]byte(nil), b...)} }
func BigInt(i *big.Int) Value {
	if i == nil {
		return Null()
	}
	return Value{kind: KindBigInt, big: new(big.Int).Set(i)}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString && v.kind != KindReference {
		return "", false
	}
	return v.str, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsBigInt() (*big.Int, bool) {
	switch v.kind {
	case KindBigInt:
		return new(big.Int).Set(v.big), true
	case KindInt:
		return big.NewInt(v.i), true
	}
	return nil, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.raw, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindString, KindReference:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindBigInt:
		return v.big.Cmp(other.big) == 0
	case KindBool:
		return v.b == other.b
	case KindBytes:
		return bytes.Equal(v.raw, other.raw)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	case KindReference:
		return "ref(" + v.str + ")"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBigInt:
		return v.big.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.raw)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

type jsonValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.kind {
	case KindNull:
		return json.Marshal(jsonValue{Kind: v.kind.String()})
	case KindString, KindReference:
		payload = v.str
	case KindInt:
		payload = v.i
	case KindBigInt:
		payload = v.big.String()
	case KindBool:
		payload = v.b
	case KindBytes:
		payload = "0x" + hex.EncodeToString(v.raw)
	case KindList:
		payload = v.list
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", v.kind, err)
	}
	return json.Marshal(jsonValue{Kind: v.kind.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in jsonValue
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding tagged value: %w", err)
	}

	kind, err := ParseKind(in.Kind)
	if err != nil {
		return err
	}

	out := Value{kind: kind}
	switch kind {
	case KindNull:
	case KindString, KindReference:
		err = json.Unmarshal(in.Value, &out.str)
	case KindInt:
		err = json.Unmarshal(in.Value, &out.i)
	case KindBigInt:
		var s string
		if err = json.Unmarshal(in.Value, &s); err == nil {
			var ok bool
			if out.big, ok = new(big.Int).SetString(s, 10); !ok {
				err = fmt.Errorf("invalid big int %q", s)
			}
		}
	case KindBool:
		err = json.Unmarshal(in.Value, &out.b)
	case KindBytes:
		var s string
		if err = json.Unmarshal(in.Value, &s); err == nil {
			out.raw, err = hex.DecodeString(strings.TrimPrefix(s, "0x"))
		}
	case KindList:
		err = json.Unmarshal(in.Value, &out.list)
	}
	if err != nil {
		return fmt.Errorf("decoding %s value: %w", kind, err)
	}

	*v = out
	return nil
}
