package network

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// Claim pays node id its share of the most recently sealed cycle:
// floor(snapshot * pool / totalInfluence), moved from escrow to the owner.
// A node with no snapshot, or a cycle with no influence at all, gets a zero
// payout. Either way the claim is recorded and cannot be repeated.
func (n *Network) Claim(caller common.Address, id core.NodeID) (*uint256.Int, error) {
	var share *uint256.Int
	fields := []zap.Field{zap.Uint64("node", uint64(id))}
	err := n.update("claim", fields, func(c *opCtx) error {
		if err := requireActive(c.tx); err != nil {
			return err
		}
		node, err := requireOwner(c.tx, caller, id)
		if err != nil {
			return err
		}
		cur, err := getU64(c.tx, keyCycle)
		if err != nil {
			return err
		}
		if cur <= core.FirstCycle {
			return utils.ErrNoSealedCycle
		}
		target := cur - 1
		claimed, err := c.tx.Has(claimKey(target, id))
		if err != nil {
			return err
		}
		if claimed {
			return utils.Wrapf(utils.ErrAlreadyClaimed, "node %d, cycle %d", id, target)
		}

		cycle, err := sealedCycle(c.tx, target)
		if err != nil {
			return err
		}
		snap, err := getSnapshot(c.tx, target, id)
		if err != nil {
			return err
		}

		share = core.Zero()
		if !cycle.TotalInfluence.IsZero() && !snap.IsZero() {
			if share, err = core.MulDivAmount(snap, cycle.Pool, cycle.TotalInfluence); err != nil {
				return err
			}
		}
		if !share.IsZero() {
			if err := n.ledger.Transfer(c.tx, core.EscrowAddress, node.Owner, share); err != nil {
				return err
			}
			if cycle.Paid, err = core.AddAmount(cycle.Paid, share); err != nil {
				return err
			}
			if err := putCycle(c.tx, cycle); err != nil {
				return err
			}
		}
		c.tx.Put(claimKey(target, id), []byte{1})

		_, err = appendAudit(c.tx, c.now, AuditEvent{
			Kind: AuditClaim, Actor: caller, Node: id, Cycle: target, Amount: share.ToBig(),
		})
		paid := share
		c.after(func() {
			n.observer.ObserveClaim(paid)
			n.logger.Info("reward claimed",
				zap.Uint64("node", uint64(id)), zap.Uint64("cycle", target), zap.String("share", core.FormatAmount(paid)))
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return share, nil
}

// Claimed reports whether node id has claimed from cycle num.
func (n *Network) Claimed(num uint64, id core.NodeID) (bool, error) {
	var ok bool
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		ok, err = r.Has(claimKey(num, id))
		return err
	})
	return ok, err
}
