package network

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// Admin is the privileged capability. It is handed out only to the current
// admin address and re-checked against the stored admin on every call, so a
// capability taken before TransferAdmin stops working afterwards.
type Admin struct {
	n    *Network
	addr common.Address
}

// Admin returns the capability for caller, or ErrUnauthorized.
func (n *Network) Admin(caller common.Address) (*Admin, error) {
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		return requireAdmin(r, caller)
	})
	if err != nil {
		return nil, err
	}
	return &Admin{n: n, addr: caller}, nil
}

func (n *Network) AdminAddress() (common.Address, error) {
	var addr common.Address
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		addr, _, err = getAddress(r, keyAdmin)
		return err
	})
	return addr, err
}

// Paused reports the kill-switch state.
func (n *Network) Paused() (bool, error) {
	var paused bool
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		paused, err = getFlag(r, keyPaused)
		return err
	})
	return paused, err
}

// Parameter returns the live value of a named parameter.
func (n *Network) Parameter(name string) (*uint256.Int, error) {
	return n.params.Params().Get(name)
}

func requireAdmin(r statedb.Reader, caller common.Address) error {
	admin, ok, err := getAddress(r, keyAdmin)
	if err != nil {
		return err
	}
	if !ok || admin != caller {
		return utils.Wrapf(utils.ErrUnauthorized, "%s is not the admin", caller.Hex())
	}
	return nil
}

func (a *Admin) Address() common.Address {
	return a.addr
}

// run executes a privileged operation. gated operations are also refused
// while the network is paused.
func (a *Admin) run(op string, gated bool, fields []zap.Field, fn func(c *opCtx) error) error {
	fields = append(fields, zap.Stringer("admin", a.addr))
	return a.n.update(op, fields, func(c *opCtx) error {
		if err := requireAdmin(c.tx, a.addr); err != nil {
			return err
		}
		if gated {
			if err := requireActive(c.tx); err != nil {
				return err
			}
		}
		return fn(c)
	})
}

// SetParameter replaces one parameter. The new snapshot is visible to every
// call that starts after this one commits.
func (a *Admin) SetParameter(name string, value *uint256.Int) error {
	fields := []zap.Field{zap.String("name", name), zap.String("value", core.FormatAmount(value))}
	return a.run("set_parameter", false, fields, func(c *opCtx) error {
		next, err := c.params.With(name, value)
		if err != nil {
			return err
		}
		c.tx.Put(paramKey(name), encodeAmount(value))
		_, err = appendAudit(c.tx, c.now, AuditEvent{
			Kind: AuditSetParameter, Actor: a.addr, Amount: value.ToBig(), Detail: name,
		})
		c.after(func() {
			a.n.params.publish(next)
			a.n.logger.Info("parameter updated", fields...)
		})
		return err
	})
}

// AdvanceCycle seals the open cycle. See Network.advanceCycle.
func (a *Admin) AdvanceCycle() (*core.Cycle, error) {
	var sealed *core.Cycle
	err := a.run("advance_cycle", true, nil, func(c *opCtx) error {
		var err error
		sealed, err = a.n.advanceCycle(c, a.addr)
		return err
	})
	return sealed, err
}

// ApplyBoost raises a node's boost by delta and returns the new boost.
func (a *Admin) ApplyBoost(id core.NodeID, delta *uint256.Int) (*big.Int, error) {
	var boost *big.Int
	fields := []zap.Field{zap.Uint64("node", uint64(id)), zap.String("delta", core.FormatAmount(delta))}
	err := a.run("apply_boost", true, fields, func(c *opCtx) error {
		var err error
		boost, err = a.n.applyBoost(c, a.addr, id, delta)
		c.after(func() { a.n.logger.Info("boost applied", append(fields, zap.Stringer("boost", boost))...) })
		return err
	})
	return boost, err
}

// ApplyPenalty lowers a node's boost by delta, clamped at the node's floor,
// and returns the new boost.
func (a *Admin) ApplyPenalty(id core.NodeID, delta *uint256.Int) (*big.Int, error) {
	var boost *big.Int
	fields := []zap.Field{zap.Uint64("node", uint64(id)), zap.String("delta", core.FormatAmount(delta))}
	err := a.run("apply_penalty", true, fields, func(c *opCtx) error {
		var err error
		boost, err = a.n.applyPenalty(c, a.addr, id, delta)
		c.after(func() { a.n.logger.Info("penalty applied", append(fields, zap.Stringer("boost", boost))...) })
		return err
	})
	return boost, err
}

func (a *Admin) Pause() error {
	return a.setPaused(true)
}

func (a *Admin) Unpause() error {
	return a.setPaused(false)
}

func (a *Admin) setPaused(on bool) error {
	op, kind := "unpause", AuditUnpause
	if on {
		op, kind = "pause", AuditPause
	}
	return a.run(op, false, nil, func(c *opCtx) error {
		setFlag(c.tx, keyPaused, on)
		_, err := appendAudit(c.tx, c.now, AuditEvent{Kind: kind, Actor: a.addr})
		c.after(func() { a.n.logger.Warn("pause switch changed", zap.Bool("paused", on)) })
		return err
	})
}

// WithdrawEscrow sends amount of escrow excess to the admin. Funds owed to
// the open pool or to unclaimed shares of the last sealed cycle cannot be
// withdrawn.
func (a *Admin) WithdrawEscrow(amount *uint256.Int) error {
	fields := []zap.Field{zap.String("amount", core.FormatAmount(amount))}
	return a.run("withdraw_escrow", false, fields, func(c *opCtx) error {
		if amount == nil || amount.IsZero() {
			return utils.Wrapf(utils.ErrInvalidAmount, "withdrawal must be positive")
		}
		rep, err := a.n.escrowReport(c.tx)
		if err != nil {
			return err
		}
		if amount.Gt(rep.Excess) {
			return utils.Wrapf(utils.ErrInsufficientBalance, "escrow excess is %s, asked %s",
				core.FormatAmount(rep.Excess), core.FormatAmount(amount))
		}
		if err := a.n.ledger.Transfer(c.tx, core.EscrowAddress, a.addr, amount); err != nil {
			return err
		}
		_, err = appendAudit(c.tx, c.now, AuditEvent{Kind: AuditWithdrawEscrow, Actor: a.addr, Amount: amount.ToBig()})
		c.after(func() { a.n.logger.Info("escrow withdrawn", fields...) })
		return err
	})
}

// TransferAdmin hands the admin role to another address. This capability is
// dead once the call commits.
func (a *Admin) TransferAdmin(to common.Address) error {
	fields := []zap.Field{zap.Stringer("to", to)}
	return a.run("transfer_admin", false, fields, func(c *opCtx) error {
		if to == (common.Address{}) {
			return utils.Wrapf(utils.ErrInvalidParameter, "admin cannot be the zero address")
		}
		if core.IsSystemAddress(to) {
			return utils.Wrapf(utils.ErrInvalidParameter, "admin cannot be system account %s", to.Hex())
		}
		c.tx.Put(keyAdmin, to.Bytes())
		_, err := appendAudit(c.tx, c.now, AuditEvent{Kind: AuditTransferAdmin, Actor: a.addr, Detail: to.Hex()})
		c.after(func() { a.n.logger.Warn("admin transferred", fields...) })
		return err
	})
}

// RegisterAction adds or replaces an entry in the action table. The built-in
// action cannot be replaced.
func (a *Admin) RegisterAction(action core.Action) error {
	fields := []zap.Field{zap.Uint64("action", uint64(action.ID)), zap.Uint64("step", action.Step)}
	return a.run("register_action", false, fields, func(c *opCtx) error {
		if err := validateAction(&action); err != nil {
			return err
		}
		if err := putAction(c.tx, &action); err != nil {
			return err
		}
		_, err := appendAudit(c.tx, c.now, AuditEvent{
			Kind: AuditRegisterAction, Actor: a.addr, Amount: action.ResourceCost.ToBig(),
			Detail: "action " + strconv.FormatUint(uint64(action.ID), 10),
		})
		c.after(func() { a.n.logger.Info("action registered", fields...) })
		return err
	})
}
