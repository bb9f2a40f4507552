package network

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// Register creates a node for owner. The registration cost is debited from
// owner, escrowed and added to the open cycle's pool.
func (n *Network) Register(owner common.Address) (core.NodeID, error) {
	var id core.NodeID
	err := n.update("register", []zap.Field{zap.Stringer("owner", owner)}, func(c *opCtx) error {
		if err := requireActive(c.tx); err != nil {
			return err
		}
		if core.IsSystemAddress(owner) {
			return utils.Wrapf(utils.ErrUnauthorized, "%s is a system account", owner.Hex())
		}
		if _, found, err := lookupOwner(c.tx, owner); err != nil {
			return err
		} else if found {
			return utils.Wrapf(utils.ErrAlreadyRegistered, "%s", owner.Hex())
		}

		fee := c.params.RegistrationCost
		if err := n.collectFee(c, owner, fee); err != nil {
			return err
		}

		next, err := getU64(c.tx, keyNextNode)
		if err != nil {
			return err
		}
		id = core.NodeID(next)
		node := &core.Node{
			ID:                   id,
			Owner:                owner,
			RegisteredAt:         c.now,
			Staked:               core.Zero(),
			Boost:                zeroBoost(),
			LastInfluenceEventAt: c.now,
		}
		if err := putNode(c.tx, node); err != nil {
			return err
		}
		c.tx.Put(ownerKey(owner), encodeU64(uint64(id)))
		c.tx.Put(keyNextNode, encodeU64(next+1))

		_, err = appendAudit(c.tx, c.now, AuditEvent{
			Kind: AuditRegister, Actor: owner, Node: id, Amount: fee.ToBig(),
		})
		c.after(func() {
			n.logger.Info("node registered",
				zap.Uint64("node", uint64(id)), zap.Stringer("owner", owner), zap.String("fee", core.FormatAmount(fee)))
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Lookup returns the node owned by owner.
func (n *Network) Lookup(owner common.Address) (core.NodeID, bool, error) {
	var (
		id    core.NodeID
		found bool
	)
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		id, found, err = lookupOwner(r, owner)
		return err
	})
	return id, found, err
}

func (n *Network) NodeInfo(id core.NodeID) (*core.Node, error) {
	var node *core.Node
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		node, err = getNode(r, id)
		return err
	})
	return node, err
}

// Nodes visits every node in id order.
func (n *Network) Nodes(fn func(*core.Node) error) error {
	return n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		return forEachNode(r, fn)
	})
}

func lookupOwner(r statedb.Reader, owner common.Address) (core.NodeID, bool, error) {
	raw, err := r.Get(ownerKey(owner))
	if errors.Is(err, statedb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return core.NodeID(decodeU64(raw)), true, nil
}

func forEachNode(r statedb.Reader, fn func(*core.Node) error) error {
	return r.Iterate(nodePrefix, func(_, v []byte) error {
		node, err := decodeNode(v)
		if err != nil {
			return err
		}
		return fn(node)
	})
}
