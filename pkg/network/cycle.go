package network

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

func currentCycle(r statedb.Reader) (*core.Cycle, error) {
	num, err := getU64(r, keyCycle)
	if err != nil {
		return nil, err
	}
	return getCycle(r, num)
}

func cycleEnd(c *core.Cycle, p *Parameters) (core.Timestamp, error) {
	end, overflow := math.SafeAdd(uint64(c.StartedAt), p.CycleDuration.Uint64())
	if overflow {
		return 0, utils.Wrapf(utils.ErrArithmeticOverflow, "end of cycle %d", c.Number)
	}
	return core.Timestamp(end), nil
}

// advanceCycle seals the open cycle and opens the next one. Sealing walks
// every node once, so it is O(n) in registered nodes; the cycle duration
// bounds how often that can happen.
func (n *Network) advanceCycle(c *opCtx, actor common.Address) (*core.Cycle, error) {
	cur, err := currentCycle(c.tx)
	if err != nil {
		return nil, err
	}
	end, err := cycleEnd(cur, c.params)
	if err != nil {
		return nil, err
	}
	if c.now < end {
		return nil, utils.Wrapf(utils.ErrCycleStillActive, "cycle %d ends at %d, now %d", cur.Number, end, c.now)
	}

	started := n.clock.Now()
	total := core.Zero()
	count := 0
	err = forEachNode(c.tx, func(node *core.Node) error {
		inf, err := effectiveInfluence(node, c.params, c.now)
		if err != nil {
			return err
		}
		count++
		if inf.IsZero() {
			return nil
		}
		c.tx.Put(snapshotKey(cur.Number, node.ID), encodeAmount(inf))
		total, err = core.AddAmount(total, inf)
		return err
	})
	if err != nil {
		return nil, err
	}

	cur.TotalInfluence = total
	cur.Sealed = true
	cur.SealedAt = c.now
	if err := putCycle(c.tx, cur); err != nil {
		return nil, err
	}
	next := core.NewCycle(cur.Number+1, c.now)
	if err := putCycle(c.tx, next); err != nil {
		return nil, err
	}
	c.tx.Put(keyCycle, encodeU64(next.Number))

	_, err = appendAudit(c.tx, c.now, AuditEvent{
		Kind: AuditAdvanceCycle, Actor: actor, Cycle: cur.Number, Amount: cur.Pool.ToBig(),
	})
	if err != nil {
		return nil, err
	}

	sealed := cur
	took := n.clock.Since(started)
	c.after(func() {
		n.observer.ObserveSnapshot(count, took)
		n.logger.Info("cycle sealed",
			zap.Uint64("cycle", sealed.Number),
			zap.Int("nodes", count),
			zap.String("pool", core.FormatAmount(sealed.Pool)),
			zap.String("total_influence", core.FormatAmount(sealed.TotalInfluence)),
			zap.Duration("took", took))
	})
	return sealed, nil
}

// CurrentCycle returns the number of the open cycle.
func (n *Network) CurrentCycle() (uint64, error) {
	var num uint64
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		num, err = getU64(r, keyCycle)
		return err
	})
	return num, err
}

// CycleEndTime is the earliest time the open cycle can be advanced. It moves
// if cycleDuration changes.
func (n *Network) CycleEndTime() (core.Timestamp, error) {
	var end core.Timestamp
	err := n.view(func(r statedb.Reader, _ core.Timestamp, p *Parameters) error {
		cur, err := currentCycle(r)
		if err != nil {
			return err
		}
		end, err = cycleEnd(cur, p)
		return err
	})
	return end, err
}

func (n *Network) CycleInfo(num uint64) (*core.Cycle, error) {
	var c *core.Cycle
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		c, err = getCycle(r, num)
		return err
	})
	return c, err
}

// SealedPool returns the pool frozen when cycle num was sealed.
func (n *Network) SealedPool(num uint64) (*uint256.Int, error) {
	var pool *uint256.Int
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		c, err := sealedCycle(r, num)
		if err != nil {
			return err
		}
		pool = c.Pool
		return nil
	})
	return pool, err
}

// Snapshot returns the influence recorded for node id when cycle num was
// sealed. Nodes with no influence at seal time have a zero snapshot.
func (n *Network) Snapshot(num uint64, id core.NodeID) (*uint256.Int, error) {
	var snap *uint256.Int
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		if _, err := sealedCycle(r, num); err != nil {
			return err
		}
		if _, err := getNode(r, id); err != nil {
			return err
		}
		var err error
		snap, err = getSnapshot(r, num, id)
		return err
	})
	return snap, err
}

// Snapshots visits every non-zero snapshot of a sealed cycle in node order.
func (n *Network) Snapshots(num uint64, fn func(id core.NodeID, influence *uint256.Int) error) error {
	return n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		if _, err := sealedCycle(r, num); err != nil {
			return err
		}
		prefix := snapshotCycleKey(num)
		return r.Iterate(prefix, func(k, v []byte) error {
			return fn(core.NodeID(decodeU64(k[len(prefix):])), decodeAmount(v))
		})
	})
}

func sealedCycle(r statedb.Reader, num uint64) (*core.Cycle, error) {
	c, err := getCycle(r, num)
	if err != nil {
		return nil, err
	}
	if !c.Sealed {
		return nil, utils.Wrapf(utils.ErrCycleNotSealed, "cycle %d is open", num)
	}
	return c, nil
}

func getSnapshot(r statedb.Reader, num uint64, id core.NodeID) (*uint256.Int, error) {
	raw, err := r.Get(snapshotKey(num, id))
	if errors.Is(err, statedb.ErrNotFound) {
		return core.Zero(), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAmount(raw), nil
}
