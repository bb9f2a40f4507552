package network

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// Stored records are RLP. RLP has no signed integers, so the boost is kept
// as a sign flag plus magnitude.

type nodeRecord struct {
	ID           uint64
	Owner        common.Address
	RegisteredAt uint64
	Staked       *big.Int
	BoostNeg     bool
	BoostAbs     *big.Int
	LastEventAt  uint64
}

type cycleRecord struct {
	Number         uint64
	StartedAt      uint64
	Pool           *big.Int
	TotalInfluence *big.Int
	Sealed         bool
	SealedAt       uint64
	Paid           *big.Int
}

type actionRecord struct {
	ID            uint64
	ResourceCost  *big.Int
	InfluenceCost *big.Int
	Step          uint64
	Dynamic       bool
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return core.Zero(), nil
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "stored value %s", b)
	}
	return v, core.CheckAmount(v)
}

func encodeNode(n *core.Node) ([]byte, error) {
	rec := nodeRecord{
		ID:           uint64(n.ID),
		Owner:        n.Owner,
		RegisteredAt: uint64(n.RegisteredAt),
		Staked:       toBig(n.Staked),
		BoostNeg:     n.Boost.Sign() < 0,
		BoostAbs:     new(big.Int).Abs(n.Boost),
		LastEventAt:  uint64(n.LastInfluenceEventAt),
	}
	return rlp.EncodeToBytes(&rec)
}

func decodeNode(b []byte) (*core.Node, error) {
	var rec nodeRecord
	if err := rlp.DecodeBytes(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	staked, err := fromBig(rec.Staked)
	if err != nil {
		return nil, err
	}
	boost := new(big.Int)
	if rec.BoostAbs != nil {
		boost.Set(rec.BoostAbs)
	}
	if rec.BoostNeg {
		boost.Neg(boost)
	}
	return &core.Node{
		ID:                   core.NodeID(rec.ID),
		Owner:                rec.Owner,
		RegisteredAt:         core.Timestamp(rec.RegisteredAt),
		Staked:               staked,
		Boost:                boost,
		LastInfluenceEventAt: core.Timestamp(rec.LastEventAt),
	}, nil
}

func encodeCycle(c *core.Cycle) ([]byte, error) {
	rec := cycleRecord{
		Number:         c.Number,
		StartedAt:      uint64(c.StartedAt),
		Pool:           toBig(c.Pool),
		TotalInfluence: toBig(c.TotalInfluence),
		Sealed:         c.Sealed,
		SealedAt:       uint64(c.SealedAt),
		Paid:           toBig(c.Paid),
	}
	return rlp.EncodeToBytes(&rec)
}

func decodeCycle(b []byte) (*core.Cycle, error) {
	var rec cycleRecord
	if err := rlp.DecodeBytes(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cycle: %w", err)
	}
	c := &core.Cycle{
		Number:    rec.Number,
		StartedAt: core.Timestamp(rec.StartedAt),
		Sealed:    rec.Sealed,
		SealedAt:  core.Timestamp(rec.SealedAt),
	}
	var err error
	if c.Pool, err = fromBig(rec.Pool); err != nil {
		return nil, err
	}
	if c.TotalInfluence, err = fromBig(rec.TotalInfluence); err != nil {
		return nil, err
	}
	if c.Paid, err = fromBig(rec.Paid); err != nil {
		return nil, err
	}
	return c, nil
}

func encodeAction(a *core.Action) ([]byte, error) {
	rec := actionRecord{
		ID:            uint64(a.ID),
		ResourceCost:  toBig(a.ResourceCost),
		InfluenceCost: toBig(a.InfluenceCost),
		Step:          a.Step,
		Dynamic:       a.Dynamic,
	}
	return rlp.EncodeToBytes(&rec)
}

func decodeAction(b []byte) (*core.Action, error) {
	var rec actionRecord
	if err := rlp.DecodeBytes(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}
	a := &core.Action{ID: core.ActionID(rec.ID), Step: rec.Step, Dynamic: rec.Dynamic}
	var err error
	if a.ResourceCost, err = fromBig(rec.ResourceCost); err != nil {
		return nil, err
	}
	if a.InfluenceCost, err = fromBig(rec.InfluenceCost); err != nil {
		return nil, err
	}
	return a, nil
}

func encodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}

// Typed accessors. A missing key maps to the caller-supplied sentinel so
// each call site reports the right validation error.

func getNode(r statedb.Reader, id core.NodeID) (*core.Node, error) {
	raw, err := r.Get(nodeKey(id))
	if errors.Is(err, statedb.ErrNotFound) {
		return nil, utils.Wrapf(utils.ErrUnknownNode, "node %d", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

func putNode(w statedb.Writer, n *core.Node) error {
	raw, err := encodeNode(n)
	if err != nil {
		return err
	}
	w.Put(nodeKey(n.ID), raw)
	return nil
}

func getCycle(r statedb.Reader, num uint64) (*core.Cycle, error) {
	raw, err := r.Get(cycleKey(num))
	if errors.Is(err, statedb.ErrNotFound) {
		return nil, utils.Wrapf(utils.ErrUnknownCycle, "cycle %d", num)
	}
	if err != nil {
		return nil, err
	}
	return decodeCycle(raw)
}

func putCycle(w statedb.Writer, c *core.Cycle) error {
	raw, err := encodeCycle(c)
	if err != nil {
		return err
	}
	w.Put(cycleKey(c.Number), raw)
	return nil
}

func getAction(r statedb.Reader, id core.ActionID) (*core.Action, error) {
	raw, err := r.Get(actionKey(id))
	if errors.Is(err, statedb.ErrNotFound) {
		return nil, utils.Wrapf(utils.ErrUnknownAction, "action %d", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeAction(raw)
}

func putAction(w statedb.Writer, a *core.Action) error {
	raw, err := encodeAction(a)
	if err != nil {
		return err
	}
	w.Put(actionKey(a.ID), raw)
	return nil
}

func getU64(r statedb.Reader, key []byte) (uint64, error) {
	raw, err := r.Get(key)
	if errors.Is(err, statedb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeU64(raw), nil
}

func getFlag(r statedb.Reader, key []byte) (bool, error) {
	return r.Has(key)
}

func setFlag(w statedb.Writer, key []byte, on bool) {
	if on {
		w.Put(key, []byte{1})
	} else {
		w.Delete(key)
	}
}

func getAddress(r statedb.Reader, key []byte) (common.Address, bool, error) {
	raw, err := r.Get(key)
	if errors.Is(err, statedb.ErrNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return common.BytesToAddress(raw), true, nil
}

// getHash returns the zero hash for a missing key.
func getHash(r statedb.Reader, key []byte) (common.Hash, error) {
	raw, err := r.Get(key)
	if errors.Is(err, statedb.ErrNotFound) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}
