package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Address = common.Address

type NodeID uint64

// Timestamp is unix seconds.
type Timestamp uint64

type ActionID uint64

// Node is a registered participant. Owner is fixed at registration and nodes
// are never removed.
type Node struct {
	ID                   NodeID
	Owner                Address
	RegisteredAt         Timestamp
	Staked               *uint256.Int
	Boost                *big.Int
	LastInfluenceEventAt Timestamp
}

func (n *Node) Copy() *Node {
	cpy := *n
	cpy.Staked = new(uint256.Int).Set(n.Staked)
	cpy.Boost = new(big.Int).Set(n.Boost)
	return &cpy
}

// Cycle is a fixed-duration round. Pool accumulates fees while the cycle is
// open; TotalInfluence and the per-node snapshots are written once, when the
// cycle is sealed. Paid is the sum of claims made against the sealed pool.
type Cycle struct {
	Number         uint64
	StartedAt      Timestamp
	Pool           *uint256.Int
	TotalInfluence *uint256.Int
	Sealed         bool
	SealedAt       Timestamp
	Paid           *uint256.Int
}

func NewCycle(number uint64, startedAt Timestamp) *Cycle {
	return &Cycle{
		Number:         number,
		StartedAt:      startedAt,
		Pool:           Zero(),
		TotalInfluence: Zero(),
		Paid:           Zero(),
	}
}

// Unpaid is the part of a sealed pool that has not been claimed yet.
func (c *Cycle) Unpaid() *uint256.Int {
	if c.Paid.Gt(c.Pool) {
		return Zero()
	}
	return new(uint256.Int).Sub(c.Pool, c.Paid)
}

// Action is an entry in the state machine's action table. Dynamic actions
// read their costs from the live parameters at the moment of use.
type Action struct {
	ID            ActionID
	ResourceCost  *uint256.Int
	InfluenceCost *uint256.Int
	Step          uint64
	Dynamic       bool
}
