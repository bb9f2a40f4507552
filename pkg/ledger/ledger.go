// Package ledger keeps fungible account balances in the state db. It is the
// resource ledger the network debits fees and stakes from.
package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

var balancePrefix = []byte("b/")

func balanceKey(addr common.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr.Bytes()...)
}

type Ledger struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger.Named("ledger")}
}

// BalanceOf returns zero for accounts that were never credited.
func (l *Ledger) BalanceOf(r statedb.Reader, addr common.Address) (*uint256.Int, error) {
	raw, err := r.Get(balanceKey(addr))
	if errors.Is(err, statedb.ErrNotFound) {
		return core.Zero(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", addr.Hex(), err)
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) Credit(w statedb.Writer, addr common.Address, amount *uint256.Int) error {
	bal, err := l.BalanceOf(w, addr)
	if err != nil {
		return err
	}
	next, err := core.AddAmount(bal, amount)
	if err != nil {
		return err
	}
	l.store(w, addr, next)
	return nil
}

func (l *Ledger) Debit(w statedb.Writer, addr common.Address, amount *uint256.Int) error {
	bal, err := l.BalanceOf(w, addr)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return utils.Wrapf(utils.ErrInsufficientBalance, "%s has %s, needs %s",
			addr.Hex(), core.FormatAmount(bal), core.FormatAmount(amount))
	}
	l.store(w, addr, new(uint256.Int).Sub(bal, amount))
	return nil
}

func (l *Ledger) Transfer(w statedb.Writer, from, to common.Address, amount *uint256.Int) error {
	if err := l.Debit(w, from, amount); err != nil {
		return err
	}
	if err := l.Credit(w, to, amount); err != nil {
		return err
	}
	l.logger.Debug("transfer staged",
		zap.Stringer("from", from), zap.Stringer("to", to), zap.String("amount", core.FormatAmount(amount)))
	return nil
}

// Accounts visits every account with a stored balance.
func (l *Ledger) Accounts(r statedb.Reader, fn func(addr common.Address, balance *uint256.Int) error) error {
	return r.Iterate(balancePrefix, func(k, v []byte) error {
		return fn(common.BytesToAddress(k[len(balancePrefix):]), new(uint256.Int).SetBytes(v))
	})
}

func (l *Ledger) TotalSupply(r statedb.Reader) (*uint256.Int, error) {
	total := core.Zero()
	err := l.Accounts(r, func(_ common.Address, bal *uint256.Int) error {
		next, err := core.AddAmount(total, bal)
		if err != nil {
			return err
		}
		total = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func (l *Ledger) store(w statedb.Writer, addr common.Address, bal *uint256.Int) {
	if bal.IsZero() {
		w.Delete(balanceKey(addr))
		return
	}
	b := bal.Bytes32()
	w.Put(balanceKey(addr), b[:])
}
