package network

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
)

// EscrowReport compares the escrow balance with what it owes. Liability is
// the open cycle's pool plus the unclaimed part of the last sealed pool.
// Remainders of older cycles can no longer be claimed and count as excess.
type EscrowReport struct {
	Balance      *uint256.Int `json:"balance"`
	OpenPool     *uint256.Int `json:"open_pool"`
	SealedUnpaid *uint256.Int `json:"sealed_unpaid"`
	Liability    *uint256.Int `json:"liability"`
	Excess       *uint256.Int `json:"excess"`
	Solvent      bool         `json:"solvent"`
}

func (n *Network) escrowReport(r statedb.Reader) (*EscrowReport, error) {
	bal, err := n.ledger.BalanceOf(r, core.EscrowAddress)
	if err != nil {
		return nil, err
	}
	cur, err := currentCycle(r)
	if err != nil {
		return nil, err
	}
	rep := &EscrowReport{
		Balance:      bal,
		OpenPool:     new(uint256.Int).Set(cur.Pool),
		SealedUnpaid: core.Zero(),
	}
	if cur.Number > core.FirstCycle {
		last, err := getCycle(r, cur.Number-1)
		if err != nil {
			return nil, err
		}
		rep.SealedUnpaid = last.Unpaid()
	}
	if rep.Liability, err = core.AddAmount(rep.OpenPool, rep.SealedUnpaid); err != nil {
		return nil, err
	}
	rep.Solvent = !bal.Lt(rep.Liability)
	rep.Excess = core.Zero()
	if rep.Solvent {
		rep.Excess.Sub(bal, rep.Liability)
	}
	return rep, nil
}

func (n *Network) EscrowReport() (*EscrowReport, error) {
	var rep *EscrowReport
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		rep, err = n.escrowReport(r)
		return err
	})
	return rep, err
}

// Balance reads an account from the resource ledger.
func (n *Network) Balance(addr common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		bal, err = n.ledger.BalanceOf(r, addr)
		return err
	})
	return bal, err
}
