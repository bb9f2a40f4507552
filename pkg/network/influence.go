package network

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

func zeroBoost() *big.Int {
	return new(big.Int)
}

// effectiveInfluence is the decayed, boosted influence of node at now:
//
//	base    = staked * baseInfluencePerUnitStake
//	decay   = staked * elapsed / decayRate   (truncating)
//	raw     = max(base - decay, 0)
//	result  = max(raw + boost, 0)
//
// elapsed is zero when now is earlier than the node's last event.
func effectiveInfluence(node *core.Node, p *Parameters, now core.Timestamp) (*uint256.Int, error) {
	base, err := core.MulAmount(node.Staked, p.BaseInfluencePerUnitStake)
	if err != nil {
		return nil, err
	}
	elapsed, underflow := math.SafeSub(uint64(now), uint64(node.LastInfluenceEventAt))
	if underflow {
		elapsed = 0
	}

	// staked < 2^128 and elapsed < 2^64, so the product fits in 256 bits.
	decay := new(uint256.Int).Mul(node.Staked, uint256.NewInt(elapsed))
	decay.Div(decay, p.DecayRate)

	raw := core.Zero()
	if base.Gt(decay) {
		raw.Sub(base, decay)
	}

	result := new(big.Int).Add(raw.ToBig(), node.Boost)
	if result.Sign() <= 0 {
		return core.Zero(), nil
	}
	v, overflow := uint256.FromBig(result)
	if overflow || v.Gt(core.MaxAmount) {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "influence of node %d", node.ID)
	}
	return v, nil
}

// boostFloor is the lowest boost a penalty may produce: the negation of the
// node's undecayed base, bounded by the signed 128-bit range.
func boostFloor(node *core.Node, p *Parameters) (*big.Int, error) {
	base, err := core.MulAmount(node.Staked, p.BaseInfluencePerUnitStake)
	if err != nil {
		return nil, err
	}
	floor := new(big.Int).Neg(base.ToBig())
	if floor.Cmp(core.MinBoost) < 0 {
		floor.Set(core.MinBoost)
	}
	return floor, nil
}

// EffectiveInfluence reads a node's influence at the current time. It does
// not modify state.
func (n *Network) EffectiveInfluence(id core.NodeID) (*uint256.Int, error) {
	var inf *uint256.Int
	err := n.view(func(r statedb.Reader, now core.Timestamp, p *Parameters) error {
		node, err := getNode(r, id)
		if err != nil {
			return err
		}
		inf, err = effectiveInfluence(node, p, now)
		return err
	})
	return inf, err
}

// Stake moves amount from the owner's balance into the stake vault and
// restarts the node's decay clock.
func (n *Network) Stake(caller common.Address, id core.NodeID, amount *uint256.Int) error {
	fields := []zap.Field{zap.Uint64("node", uint64(id)), zap.String("amount", core.FormatAmount(amount))}
	return n.update("stake", fields, func(c *opCtx) error {
		if err := requireActive(c.tx); err != nil {
			return err
		}
		node, err := requireOwner(c.tx, caller, id)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return utils.Wrapf(utils.ErrInvalidAmount, "stake must be positive")
		}
		if err := n.ledger.Transfer(c.tx, node.Owner, core.StakeVaultAddress, amount); err != nil {
			return err
		}
		if node.Staked, err = core.AddAmount(node.Staked, amount); err != nil {
			return err
		}
		node.LastInfluenceEventAt = c.now
		if err := putNode(c.tx, node); err != nil {
			return err
		}
		_, err = appendAudit(c.tx, c.now, AuditEvent{Kind: AuditStake, Actor: caller, Node: id, Amount: amount.ToBig()})
		c.after(func() { n.logger.Info("staked", fields...) })
		return err
	})
}

// Unstake returns amount from the stake vault to the owner and restarts the
// decay clock.
func (n *Network) Unstake(caller common.Address, id core.NodeID, amount *uint256.Int) error {
	fields := []zap.Field{zap.Uint64("node", uint64(id)), zap.String("amount", core.FormatAmount(amount))}
	return n.update("unstake", fields, func(c *opCtx) error {
		if err := requireActive(c.tx); err != nil {
			return err
		}
		node, err := requireOwner(c.tx, caller, id)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return utils.Wrapf(utils.ErrInvalidAmount, "unstake must be positive")
		}
		if amount.Gt(node.Staked) {
			return utils.Wrapf(utils.ErrInsufficientStake, "node %d has %s staked, asked %s",
				id, core.FormatAmount(node.Staked), core.FormatAmount(amount))
		}
		if err := n.ledger.Transfer(c.tx, core.StakeVaultAddress, node.Owner, amount); err != nil {
			return err
		}
		node.Staked = new(uint256.Int).Sub(node.Staked, amount)
		node.LastInfluenceEventAt = c.now
		if err := putNode(c.tx, node); err != nil {
			return err
		}
		_, err = appendAudit(c.tx, c.now, AuditEvent{Kind: AuditUnstake, Actor: caller, Node: id, Amount: amount.ToBig()})
		c.after(func() { n.logger.Info("unstaked", fields...) })
		return err
	})
}

func (n *Network) applyBoost(c *opCtx, actor common.Address, id core.NodeID, delta *uint256.Int) (*big.Int, error) {
	if delta == nil || delta.IsZero() {
		return nil, utils.Wrapf(utils.ErrInvalidAmount, "boost must be positive")
	}
	node, err := getNode(c.tx, id)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(node.Boost, delta.ToBig())
	if err := core.CheckBoost(next); err != nil {
		return nil, err
	}
	node.Boost = next
	node.LastInfluenceEventAt = c.now
	if err := putNode(c.tx, node); err != nil {
		return nil, err
	}
	_, err = appendAudit(c.tx, c.now, AuditEvent{Kind: AuditBoost, Actor: actor, Node: id, Amount: delta.ToBig()})
	return next, err
}

// applyPenalty lowers the boost by delta without going under boostFloor. A
// boost that already sits below the floor is left as is. The clock restarts
// either way.
func (n *Network) applyPenalty(c *opCtx, actor common.Address, id core.NodeID, delta *uint256.Int) (*big.Int, error) {
	if delta == nil || delta.IsZero() {
		return nil, utils.Wrapf(utils.ErrInvalidAmount, "penalty must be positive")
	}
	node, err := getNode(c.tx, id)
	if err != nil {
		return nil, err
	}
	floor, err := boostFloor(node, c.params)
	if err != nil {
		return nil, err
	}

	next := new(big.Int).Set(node.Boost)
	if node.Boost.Cmp(floor) >= 0 {
		next.Sub(next, delta.ToBig())
		if next.Cmp(floor) < 0 {
			next.Set(floor)
		}
	}
	applied := new(big.Int).Sub(next, node.Boost)

	node.Boost = next
	node.LastInfluenceEventAt = c.now
	if err := putNode(c.tx, node); err != nil {
		return nil, err
	}
	_, err = appendAudit(c.tx, c.now, AuditEvent{
		Kind: AuditPenalty, Actor: actor, Node: id, Amount: applied,
		Detail: "requested " + core.FormatAmount(delta),
	})
	return next, err
}
