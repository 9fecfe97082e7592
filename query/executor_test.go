package query

import (
	"context"
	"testing"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecutor_Execute(t *testing.T) {
	reader := mapReader{
		entity.NewStoreKey("sg1", "Account", "0xabc"): {"balance": entity.String("100")},
	}
	e := NewExecutor(reader, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		expected    string
		expectedErr string
	}{
		{"found", `{"subgraph":"sg1","entity":"Account","id":"0xabc"}`, `{"subgraph":"sg1","entity":"Account","id":"0xabc","data":{"balance":{"kind":"string","value":"100"}}}`, ""},
		{"not found", `{"subgraph":"sg1","entity":"Account","id":"0x0"}`, "", store.ErrNotFound.Error()},
		{"missing id", `{"subgraph":"sg1","entity":"Account"}`, "", `invalid query: store key "sg1/Account/": empty id`},
		{"not json", `subgraph=sg1`, "", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := e.Execute(context.Background(), []byte(test.body))
			if test.expected == "" {
				require.Error(t, err)
				if test.expectedErr != "" {
					assert.EqualError(t, err, test.expectedErr)
				}
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, test.expected, string(result))
		})
	}
}

func TestExecutor_RunSettlesEveryQuery(t *testing.T) {
	queries := make(chan *Query, 2)
	found := &Query{Body: []byte(`{"subgraph":"sg1","entity":"Account","id":"0xabc"}`), Promise: NewPromise()}
	missing := &Query{Body: []byte(`{"subgraph":"sg1","entity":"Account","id":"0xdef"}`), Promise: NewPromise()}
	queries <- found
	queries <- missing
	close(queries)

	reader := mapReader{entity.NewStoreKey("sg1", "Account", "0xabc"): {}}
	require.NoError(t, NewExecutor(reader, zap.NewNop()).Run(context.Background(), queries))

	_, err := found.Promise.Wait(context.Background())
	assert.NoError(t, err)
	_, err = missing.Promise.Wait(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
