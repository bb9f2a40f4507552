package core

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
)

const (
	FirstCycle = 1
	FirstNode  = NodeID(1)

	// DefaultAction is the built-in gated transition; its costs come from
	// actionResourceCost and actionInfluenceCost.
	DefaultAction     = ActionID(1)
	DefaultActionStep = 1
)

// Parameter names.
const (
	ParamRegistrationCost          = "registrationCost"
	ParamDecayRate                 = "decayRate"
	ParamCycleDuration             = "cycleDuration"
	ParamBaseInfluencePerUnitStake = "baseInfluencePerUnitStake"
	ParamActionResourceCost        = "actionResourceCost"
	ParamActionInfluenceCost       = "actionInfluenceCost"
)

// Defaults used when a genesis file leaves a parameter out.
const (
	DefaultRegistrationCost          = 100
	DefaultDecayRate                 = 86400
	DefaultCycleDuration             = 86400
	DefaultBaseInfluencePerUnitStake = 1
	DefaultActionResourceCost        = 10
	DefaultActionInfluenceCost       = 10
)

// MaxCycleDuration keeps StartedAt + cycleDuration inside a uint64 for any
// start time a clock can report.
const MaxCycleDuration = math.MaxInt64

var (
	// EscrowAddress holds collected fees until they are claimed.
	EscrowAddress = common.HexToAddress("0x0000000000000000000000000000000045534352")
	// StakeVaultAddress holds staked balances.
	StakeVaultAddress = common.HexToAddress("0x000000000000000000000000000000005354414B")
)

// IsSystemAddress reports whether addr is one of the engine's own accounts.
// System accounts never own nodes, hold the admin role or receive genesis
// balances.
func IsSystemAddress(addr common.Address) bool {
	return addr == EscrowAddress || addr == StakeVaultAddress
}
