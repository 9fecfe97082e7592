// Package erc20 is a native mapping program tracking ERC20 token balances.
//
// Every Transfer produces a Transfer entity and updates the Account entity of
// both parties. Accounts whose balance reaches zero are removed. Balances are
// kept in the module instance, starting from zero at the data source start
// block.
package erc20

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	eth "github.com/streamingfast/eth-go"
	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/mapping"
	"go.uber.org/zap"
)

const ProgramName = "erc20-balances"

const (
	AccountEntity  = "Account"
	TransferEntity = "Transfer"
)

var zeroAddress = eth.Address(make([]byte, 20))

type Balances struct {
	store  *mapping.Store
	logger *zap.Logger

	balances map[string]*big.Int
}

// New is the mapping.ProgramFactory of the program.
func New(store *mapping.Store, logger *zap.Logger) mapping.Handlers {
	b := &Balances{
		store:    store,
		logger:   logger,
		balances: map[string]*big.Int{},
	}

	return mapping.Handlers{
		"handleTransfer": b.HandleTransfer,
	}
}

func (b *Balances) HandleTransfer(ctx context.Context, ev *mapping.Event) error {
	from, to, value, err := transferParams(ev)
	if err != nil {
		return err
	}

	token := ev.Address.Pretty()
	transferID := fmt.Sprintf("%s-%d", ev.TransactionHash.Pretty(), ev.LogIndex)
	err = b.store.Set(TransferEntity, transferID, entity.Entity{
		"token":       entity.Reference(token),
		"from":        entity.String(from.Pretty()),
		"to":          entity.String(to.Pretty()),
		"value":       entity.BigInt(value),
		"blockNumber": entity.Int(int64(ev.BlockNumber)),
	})
	if err != nil {
		return err
	}

	pending := map[string]*big.Int{}
	if !isZero(from) {
		if err := b.updateAccount(pending, token, from, new(big.Int).Neg(value)); err != nil {
			return err
		}
	}
	if !isZero(to) {
		if err := b.updateAccount(pending, token, to, value); err != nil {
			return err
		}
	}

	// Commit only once every change was emitted.
	for id, balance := range pending {
		if balance.Sign() == 0 {
			delete(b.balances, id)
			continue
		}
		b.balances[id] = balance
	}
	return nil
}

// updateAccount records the new balance of holder in pending and emits the
// matching Account change. b.balances is left untouched.
func (b *Balances) updateAccount(pending map[string]*big.Int, token string, holder eth.Address, delta *big.Int) error {
	id := AccountID(token, holder.Pretty())

	current, found := pending[id]
	if !found {
		current = b.balances[id]
	}
	balance := new(big.Int).Set(delta)
	if current != nil {
		balance.Add(current, delta)
	}
	pending[id] = balance

	if balance.Sign() == 0 {
		return b.store.Remove(AccountEntity, id)
	}

	if balance.Sign() < 0 {
		b.logger.Debug("negative balance, holder funded before the start block",
			zap.String("account", id),
			zap.Stringer("balance", balance),
		)
	}

	return b.store.Set(AccountEntity, id, entity.Entity{
		"token":   entity.Reference(token),
		"holder":  entity.String(holder.Pretty()),
		"balance": entity.String(balance.String()),
	})
}

// AccountID is the id of the Account entity of holder for token.
func AccountID(token, holder string) string {
	return token + "-" + holder
}

func transferParams(ev *mapping.Event) (from, to eth.Address, value *big.Int, err error) {
	if len(ev.Params) != 3 {
		return nil, nil, nil, fmt.Errorf("expected a 3 parameters Transfer event, got %s", ev.Signature)
	}

	if from, err = ev.Params[0].Address(); err != nil {
		return
	}
	if to, err = ev.Params[1].Address(); err != nil {
		return
	}
	value, err = ev.Params[2].BigInt()
	return
}

func isZero(addr eth.Address) bool {
	return bytes.Equal(addr, zeroAddress)
}
