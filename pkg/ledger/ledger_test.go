package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func setupLedger(t *testing.T) (*Ledger, *statedb.Store) {
	s, err := statedb.OpenMemory(statedb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(zaptest.NewLogger(t)), s
}

func TestCreditDebit(t *testing.T) {
	l, s := setupLedger(t)

	tx := s.Begin()
	require.NoError(t, l.Credit(tx, alice, uint256.NewInt(500)))
	require.NoError(t, l.Debit(tx, alice, uint256.NewInt(200)))
	require.NoError(t, tx.Commit())

	bal, err := l.BalanceOf(s, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), bal.Uint64())

	bal, err = l.BalanceOf(s, bob)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestDebitInsufficient(t *testing.T) {
	l, s := setupLedger(t)

	tx := s.Begin()
	require.NoError(t, l.Credit(tx, alice, uint256.NewInt(10)))
	err := l.Debit(tx, alice, uint256.NewInt(11))
	require.ErrorIs(t, err, utils.ErrInsufficientBalance)
	assert.True(t, utils.IsRetryable(err))
}

func TestTransferAndSupply(t *testing.T) {
	l, s := setupLedger(t)

	tx := s.Begin()
	require.NoError(t, l.Credit(tx, alice, uint256.NewInt(100)))
	require.NoError(t, l.Transfer(tx, alice, bob, uint256.NewInt(100)))
	require.NoError(t, tx.Commit())

	a, _ := l.BalanceOf(s, alice)
	b, _ := l.BalanceOf(s, bob)
	assert.True(t, a.IsZero())
	assert.Equal(t, uint64(100), b.Uint64())

	var seen []common.Address
	require.NoError(t, l.Accounts(s, func(addr common.Address, _ *uint256.Int) error {
		seen = append(seen, addr)
		return nil
	}))
	assert.Equal(t, []common.Address{bob}, seen, "emptied accounts are dropped")

	supply, err := l.TotalSupply(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), supply.Uint64())
}

func TestCreditOverflow(t *testing.T) {
	l, s := setupLedger(t)

	tx := s.Begin()
	require.NoError(t, l.Credit(tx, alice, core.MaxAmount))
	err := l.Credit(tx, alice, uint256.NewInt(1))
	assert.ErrorIs(t, err, utils.ErrArithmeticOverflow)
}
