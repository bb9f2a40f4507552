package genesis

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/ledger"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

var (
	admin = common.HexToAddress("0xad00000000000000000000000000000000000001")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
)

func TestSaveAndLoad(t *testing.T) {
	gc := DefaultGenesisConfig(admin)
	require.NoError(t, gc.AddAllocation(alice, "600"))
	require.NoError(t, gc.AddAllocation(alice, "400"))
	gc.Params[core.ParamCycleDuration] = "3600"
	gc.Actions = []GenesisAction{{ID: 2, ResourceCost: "5", InfluenceCost: "10", Step: 3}}

	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, gc.Save(path))

	loaded, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, gc, loaded)
	assert.Equal(t, "1000", loaded.Balances[alice.Hex()])

	g, err := loaded.ToGenesis()
	require.NoError(t, err)
	assert.Equal(t, admin, g.Admin)
	assert.Equal(t, uint64(3600), g.Params.CycleDuration.Uint64())
	assert.Equal(t, uint64(core.DefaultDecayRate), g.Params.DecayRate.Uint64())
	assert.Equal(t, uint64(1000), g.Balances[alice].Uint64())
	require.Len(t, g.Actions, 1)
	assert.Equal(t, core.ActionID(2), g.Actions[0].ID)
	assert.Equal(t, uint64(3), g.Actions[0].Step)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		tweak func(gc *GenesisConfig)
	}{
		{"missing name", func(gc *GenesisConfig) { gc.NetworkName = "" }},
		{"bad admin", func(gc *GenesisConfig) { gc.Admin = "rnr1234" }},
		{"zero admin", func(gc *GenesisConfig) { gc.Admin = common.Address{}.Hex() }},
		{"unknown param", func(gc *GenesisConfig) { gc.Params["gasPrice"] = "1" }},
		{"zero decay", func(gc *GenesisConfig) { gc.Params[core.ParamDecayRate] = "0" }},
		{"bad balance", func(gc *GenesisConfig) { gc.Balances[alice.Hex()] = "-5" }},
		{"u128 overflow", func(gc *GenesisConfig) {
			gc.Balances[alice.Hex()] = "340282366920938463463374607431768211456"
		}},
		{"balance holder in two cases", func(gc *GenesisConfig) {
			gc.Balances["0x"+strings.ToLower(alice.Hex()[2:])] = "1"
			gc.Balances["0x"+strings.ToUpper(alice.Hex()[2:])] = "2"
		}},
		{"escrow balance", func(gc *GenesisConfig) { gc.Balances[core.EscrowAddress.Hex()] = "1" }},
		{"stake vault balance", func(gc *GenesisConfig) { gc.Balances[core.StakeVaultAddress.Hex()] = "1" }},
		{"escrow admin", func(gc *GenesisConfig) { gc.Admin = core.EscrowAddress.Hex() }},
		{"duplicate action", func(gc *GenesisConfig) {
			a := GenesisAction{ID: 4, ResourceCost: "1", InfluenceCost: "1", Step: 1}
			gc.Actions = []GenesisAction{a, a}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gc := DefaultGenesisConfig(admin)
			tc.tweak(gc)
			assert.Error(t, gc.Validate())
		})
	}

	assert.NoError(t, DefaultGenesisConfig(admin).Validate())
}

func TestInitializeFromConfig(t *testing.T) {
	gc := DefaultGenesisConfig(admin)
	require.NoError(t, gc.AddAllocation(alice, "1000"))
	gc.Params[core.ParamRegistrationCost] = "25"

	g, err := gc.ToGenesis()
	require.NoError(t, err)

	store, err := statedb.OpenMemory(statedb.Options{})
	require.NoError(t, err)
	defer store.Close()

	logger := zaptest.NewLogger(t)
	n, err := network.New(network.Config{Store: store, Ledger: ledger.New(logger), Logger: logger})
	require.NoError(t, err)
	require.NoError(t, n.Initialize(g))

	cost, err := n.Parameter(core.ParamRegistrationCost)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), cost.Uint64())

	_, err = n.Register(alice)
	require.NoError(t, err)
	bal, err := n.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(975), bal.Uint64())

	assert.ErrorIs(t, n.Initialize(g), utils.ErrAlreadyInitialized)
}
