package network

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// costs resolves an action's price. Dynamic actions follow the live
// parameters.
func costs(a *core.Action, p *Parameters) (resource, influence *uint256.Int) {
	if a.Dynamic {
		return new(uint256.Int).Set(p.ActionResourceCost), new(uint256.Int).Set(p.ActionInfluenceCost)
	}
	return a.ResourceCost, a.InfluenceCost
}

func validateAction(a *core.Action) error {
	if a.ID == core.DefaultAction {
		return utils.Wrapf(utils.ErrInvalidParameter, "action %d is built in", a.ID)
	}
	if a.ID == 0 {
		return utils.Wrapf(utils.ErrInvalidParameter, "action id must be positive")
	}
	if a.Step == 0 {
		return utils.Wrapf(utils.ErrInvalidParameter, "action %d: step must be positive", a.ID)
	}
	if a.ResourceCost == nil || a.InfluenceCost == nil {
		return utils.Wrapf(utils.ErrInvalidParameter, "action %d: missing cost", a.ID)
	}
	if err := core.CheckAmount(a.ResourceCost); err != nil {
		return err
	}
	if a.Dynamic {
		return utils.Wrapf(utils.ErrInvalidParameter, "action %d: only the built-in action is dynamic", a.ID)
	}
	return core.CheckAmount(a.InfluenceCost)
}

// PerformAction advances the network state by the action's step. The node
// must hold at least the action's influence cost; the resource cost is paid
// from the owner's balance into escrow and the open cycle's pool. Influence
// is not deducted: the node's decay clock restarts instead.
func (n *Network) PerformAction(caller common.Address, id core.NodeID, actionID core.ActionID) (uint64, error) {
	var state uint64
	fields := []zap.Field{zap.Uint64("node", uint64(id)), zap.Uint64("action", uint64(actionID))}
	err := n.update("perform_action", fields, func(c *opCtx) error {
		if err := requireActive(c.tx); err != nil {
			return err
		}
		node, err := requireOwner(c.tx, caller, id)
		if err != nil {
			return err
		}
		action, err := getAction(c.tx, actionID)
		if err != nil {
			return err
		}
		resourceCost, influenceCost := costs(action, c.params)

		inf, err := effectiveInfluence(node, c.params, c.now)
		if err != nil {
			return err
		}
		if inf.Lt(influenceCost) {
			return utils.Wrapf(utils.ErrInsufficientInfluence, "node %d has %s, action %d needs %s",
				id, core.FormatAmount(inf), actionID, core.FormatAmount(influenceCost))
		}
		if err := n.collectFee(c, node.Owner, resourceCost); err != nil {
			return err
		}

		prev, err := getU64(c.tx, keyState)
		if err != nil {
			return err
		}
		next, overflow := math.SafeAdd(prev, action.Step)
		if overflow {
			return utils.Wrapf(utils.ErrArithmeticOverflow, "network state %d + %d", prev, action.Step)
		}
		c.tx.Put(keyState, encodeU64(next))
		state = next

		node.LastInfluenceEventAt = c.now
		if err := putNode(c.tx, node); err != nil {
			return err
		}
		_, err = appendAudit(c.tx, c.now, AuditEvent{
			Kind: AuditAction, Actor: caller, Node: id, Amount: resourceCost.ToBig(),
			Detail: "action " + strconv.FormatUint(uint64(actionID), 10),
		})
		c.after(func() {
			n.logger.Info("action performed", append(fields, zap.Uint64("state", next))...)
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return state, nil
}

// NetworkState returns the shared state counter.
func (n *Network) NetworkState() (uint64, error) {
	var v uint64
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		v, err = getU64(r, keyState)
		return err
	})
	return v, err
}

// Action returns an action with its costs resolved against the live
// parameters.
func (n *Network) Action(id core.ActionID) (*core.Action, error) {
	var a *core.Action
	err := n.view(func(r statedb.Reader, _ core.Timestamp, p *Parameters) error {
		var err error
		if a, err = getAction(r, id); err != nil {
			return err
		}
		a.ResourceCost, a.InfluenceCost = costs(a, p)
		return nil
	})
	return a, err
}

func (n *Network) Actions() ([]*core.Action, error) {
	var out []*core.Action
	err := n.view(func(r statedb.Reader, _ core.Timestamp, p *Parameters) error {
		return r.Iterate(actionPrefix, func(_, v []byte) error {
			a, err := decodeAction(v)
			if err != nil {
				return err
			}
			a.ResourceCost, a.InfluenceCost = costs(a, p)
			out = append(out, a)
			return nil
		})
	})
	return out, err
}
