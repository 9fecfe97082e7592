package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	eth "github.com/streamingfast/eth-go"
)

type EventParam struct {
	Type    string
	Name    string
	Indexed bool
}

// EventSignature is a parsed event declaration as found in manifests, like
// `Transfer(indexed address,indexed address,uint256)` or
// `Transfer(address indexed from, address indexed to, uint256 value)`.
type EventSignature struct {
	Name   string
	Params []EventParam
}

func ParseEventSignature(in string) (*EventSignature, error) {
	in = strings.TrimSpace(in)
	open := strings.Index(in, "(")
	if open <= 0 || !strings.HasSuffix(in, ")") {
		return nil, fmt.Errorf("invalid event signature %q: expected Name(type,...)", in)
	}

	sig := &EventSignature{Name: strings.TrimSpace(in[:open])}
	if strings.ContainsAny(sig.Name, " \t,") {
		return nil, fmt.Errorf("invalid event signature %q: bad event name %q", in, sig.Name)
	}

	body := strings.TrimSpace(in[open+1 : len(in)-1])
	if body == "" {
		return sig, nil
	}

	for i, rawParam := range strings.Split(body, ",") {
		if strings.ContainsAny(rawParam, "()") {
			return nil, fmt.Errorf("invalid event signature %q: tuple parameters are not supported", in)
		}

		param := EventParam{}
		var rest []string
		for _, token := range strings.Fields(rawParam) {
			if token == "indexed" {
				param.Indexed = true
				continue
			}
			rest = append(rest, token)
		}

		switch len(rest) {
		case 2:
			param.Name = rest[1]
			fallthrough
		case 1:
			param.Type = rest[0]
		default:
			return nil, fmt.Errorf("invalid event signature %q: cannot parse parameter #%d %q", in, i, strings.TrimSpace(rawParam))
		}

		sig.Params = append(sig.Params, param)
	}

	return sig, nil
}

// Canonical is the signature form hashed into the event topic.
func (s *EventSignature) Canonical() string {
	types := make([]string, len(s.Params))
	for i, p := range s.Params {
		types[i] = canonicalType(p.Type)
	}
	return s.Name + "(" + strings.Join(types, ",") + ")"
}

func (s *EventSignature) Topic() eth.Hash {
	return eth.Hash(crypto.Keccak256([]byte(s.Canonical())))
}

func (s *EventSignature) IndexedCount() int {
	count := 0
	for _, p := range s.Params {
		if p.Indexed {
			count++
		}
	}
	return count
}

func canonicalType(in string) string {
	switch {
	case in == "uint" || strings.HasPrefix(in, "uint["):
		return "uint256" + strings.TrimPrefix(in, "uint")
	case in == "int" || strings.HasPrefix(in, "int["):
		return "int256" + strings.TrimPrefix(in, "int")
	}
	return in
}
