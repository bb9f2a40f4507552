// Package network implements the influence engine: node registration,
// time-decayed stake influence, cycle snapshots with proportional reward
// claims, and cost-gated advances of the shared network state.
//
// Network is a single authoritative state machine. Every exported entry point
// runs under one lock inside a statedb transaction and either commits all of
// its effects or none of them.
package network

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// ResourceLedger is the fungible balance collaborator. Writes are staged on
// the caller's transaction so they commit or roll back with the operation.
type ResourceLedger interface {
	BalanceOf(r statedb.Reader, addr common.Address) (*uint256.Int, error)
	Credit(w statedb.Writer, addr common.Address, amount *uint256.Int) error
	Transfer(w statedb.Writer, from, to common.Address, amount *uint256.Int) error
}

// Observer receives operation outcomes and state gauges after commit.
type Observer interface {
	ObserveOp(op string, err error)
	ObserveSnapshot(nodes int, took time.Duration)
	ObserveClaim(amount *uint256.Int)
	SetGauges(s Stats)
}

// Stats is a cheap summary of global counters.
type Stats struct {
	Cycle        uint64
	Nodes        uint64
	NetworkState uint64
	Paused       bool
}

type nopObserver struct{}

func (nopObserver) ObserveOp(string, error) {}
func (nopObserver) ObserveSnapshot(int, time.Duration) {}
func (nopObserver) ObserveClaim(*uint256.Int) {}
func (nopObserver) SetGauges(Stats) {}

type Config struct {
	Store    *statedb.Store
	Ledger   ResourceLedger
	Clock    clock.Clock
	Logger   *zap.Logger
	Observer Observer
}

// Genesis seeds a fresh state db.
type Genesis struct {
	Admin        common.Address
	Params       *Parameters
	Balances     map[common.Address]*uint256.Int
	Actions      []core.Action
	NetworkState uint64
}

type Network struct {
	mu       sync.RWMutex
	store    *statedb.Store
	ledger   ResourceLedger
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
	params   *paramStore

	// newest audit event VerifyAudit has checked
	auditVerified atomic.Pointer[auditCheckpoint]

	initialized bool
}

// New wires a Network over cfg.Store. If the store already holds a genesis
// the persisted parameters are loaded; otherwise Initialize must be called
// before any other operation.
func New(cfg Config) (*Network, error) {
	if cfg.Store == nil {
		return nil, errors.New("network: store is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("network: ledger is required")
	}
	n := &Network{
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
	if n.clock == nil {
		n.clock = clock.New()
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	n.logger = n.logger.Named("network")
	if n.observer == nil {
		n.observer = nopObserver{}
	}

	ok, err := cfg.Store.Has(keyGenesisAt)
	if err != nil {
		return nil, fmt.Errorf("failed to probe state db: %w", err)
	}
	if !ok {
		n.params = newParamStore(DefaultParameters())
		return n, nil
	}
	p, err := loadParameters(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	n.params = newParamStore(p)
	n.initialized = true
	n.refreshGauges()
	return n, nil
}

func (n *Network) Initialized() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.initialized
}

// Initialize writes genesis: parameters, admin, balances, the action table
// and cycle 1 opened at the current time.
func (n *Network) Initialize(g Genesis) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized {
		return utils.ErrAlreadyInitialized
	}
	if g.Admin == (common.Address{}) {
		return utils.Wrapf(utils.ErrInvalidParameter, "genesis admin is the zero address")
	}
	if core.IsSystemAddress(g.Admin) {
		return utils.Wrapf(utils.ErrInvalidParameter, "genesis admin %s is a system account", g.Admin.Hex())
	}
	for addr := range g.Balances {
		if core.IsSystemAddress(addr) {
			return utils.Wrapf(utils.ErrInvalidParameter, "genesis balance for system account %s", addr.Hex())
		}
	}
	params := g.Params
	if params == nil {
		params = DefaultParameters()
	}
	if err := params.validate(); err != nil {
		return err
	}

	now := n.now()
	tx := n.store.Begin()
	err := func() error {
		params.store(tx)
		tx.Put(keyAdmin, g.Admin.Bytes())
		tx.Put(keyState, encodeU64(g.NetworkState))
		tx.Put(keyCycle, encodeU64(core.FirstCycle))
		tx.Put(keyNextNode, encodeU64(uint64(core.FirstNode)))
		tx.Put(keyGenesisAt, encodeU64(uint64(now)))
		if err := putCycle(tx, core.NewCycle(core.FirstCycle, now)); err != nil {
			return err
		}

		builtin := &core.Action{ID: core.DefaultAction, Step: core.DefaultActionStep, Dynamic: true,
			ResourceCost: core.Zero(), InfluenceCost: core.Zero()}
		if err := putAction(tx, builtin); err != nil {
			return err
		}
		for i := range g.Actions {
			a := g.Actions[i]
			if err := validateAction(&a); err != nil {
				return err
			}
			if err := putAction(tx, &a); err != nil {
				return err
			}
		}

		for addr, bal := range g.Balances {
			if err := n.ledger.Credit(tx, addr, bal); err != nil {
				return fmt.Errorf("genesis balance for %s: %w", addr.Hex(), err)
			}
		}
		_, err := appendAudit(tx, now, AuditEvent{Kind: AuditGenesis, Actor: g.Admin})
		return err
	}()
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	n.params.publish(params)
	n.initialized = true
	n.logger.Info("genesis written",
		zap.Stringer("admin", g.Admin),
		zap.Int("balances", len(g.Balances)),
		zap.Int("actions", len(g.Actions)+1),
		zap.Uint64("at", uint64(now)))
	n.refreshGauges()
	return nil
}

// Params returns the live parameter snapshot.
func (n *Network) Params() *Parameters {
	return n.params.Params()
}

func (n *Network) Clock() clock.Clock {
	return n.clock
}

func (n *Network) now() core.Timestamp {
	t := n.clock.Now().Unix()
	if t < 0 {
		return 0
	}
	return core.Timestamp(t)
}

// opCtx carries one state-changing call: its transaction, the time it
// observes, the parameter snapshot and hooks to run after commit.
type opCtx struct {
	tx       *statedb.Txn
	now      core.Timestamp
	params   *Parameters
	onCommit []func()
}

func (c *opCtx) after(fn func()) {
	c.onCommit = append(c.onCommit, fn)
}

// update runs fn inside a transaction under the write lock.
func (n *Network) update(op string, fields []zap.Field, fn func(c *opCtx) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return utils.ErrNotInitialized
	}
	c := &opCtx{tx: n.store.Begin(), now: n.now(), params: n.params.Params()}

	if err := fn(c); err != nil {
		c.tx.Rollback()
		n.observer.ObserveOp(op, err)
		n.logger.Debug("operation rejected", append(fields,
			zap.String("op", op), zap.String("code", utils.CodeOf(err)), zap.Error(err))...)
		return err
	}
	if err := c.tx.Commit(); err != nil {
		n.observer.ObserveOp(op, err)
		n.logger.Error("commit failed", append(fields, zap.String("op", op), zap.Error(err))...)
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, hook := range c.onCommit {
		hook()
	}
	n.observer.ObserveOp(op, nil)
	n.refreshGauges()
	return nil
}

// view runs fn against committed state under the read lock.
func (n *Network) view(fn func(r statedb.Reader, now core.Timestamp, p *Parameters) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.initialized {
		return utils.ErrNotInitialized
	}
	return fn(n.store, n.now(), n.params.Params())
}

func requireActive(r statedb.Reader) error {
	paused, err := getFlag(r, keyPaused)
	if err != nil {
		return err
	}
	if paused {
		return utils.ErrContractPaused
	}
	return nil
}

// requireOwner loads the node and checks that caller owns it.
func requireOwner(r statedb.Reader, caller common.Address, id core.NodeID) (*core.Node, error) {
	node, err := getNode(r, id)
	if err != nil {
		return nil, err
	}
	if node.Owner != caller {
		return nil, utils.Wrapf(utils.ErrUnauthorized, "%s does not own node %d", caller.Hex(), id)
	}
	return node, nil
}

// collectFee moves a fee from payer into escrow and books it on the open
// cycle's pool.
func (n *Network) collectFee(c *opCtx, payer common.Address, fee *uint256.Int) error {
	if err := n.ledger.Transfer(c.tx, payer, core.EscrowAddress, fee); err != nil {
		return err
	}
	cur, err := currentCycle(c.tx)
	if err != nil {
		return err
	}
	if cur.Pool, err = core.AddAmount(cur.Pool, fee); err != nil {
		return err
	}
	return putCycle(c.tx, cur)
}

func (n *Network) Stats() (Stats, error) {
	var s Stats
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		s, err = readStats(r)
		return err
	})
	return s, err
}

func readStats(r statedb.Reader) (Stats, error) {
	var s Stats
	var err error
	if s.Cycle, err = getU64(r, keyCycle); err != nil {
		return s, err
	}
	next, err := getU64(r, keyNextNode)
	if err != nil {
		return s, err
	}
	if next > 0 {
		s.Nodes = next - 1
	}
	if s.NetworkState, err = getU64(r, keyState); err != nil {
		return s, err
	}
	s.Paused, err = getFlag(r, keyPaused)
	return s, err
}

// refreshGauges must be called with n.mu held.
func (n *Network) refreshGauges() {
	s, err := readStats(n.store)
	if err != nil {
		n.logger.Warn("failed to read stats", zap.Error(err))
		return
	}
	n.observer.SetGauges(s)
}
