package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/network"
)

type GenesisAction struct {
	ID            uint64 `json:"id"`
	ResourceCost  string `json:"resource_cost"`
	InfluenceCost string `json:"influence_cost"`
	Step          uint64 `json:"step"`
}

// GenesisConfig is the JSON document that seeds a fresh state db. Amounts
// are decimal strings so u128 values survive any JSON tooling.
type GenesisConfig struct {
	NetworkName  string            `json:"network_name"`
	Admin        string            `json:"admin"`
	NetworkState uint64            `json:"network_state"`
	Params       map[string]string `json:"params"`
	Balances     map[string]string `json:"balances"`
	Actions      []GenesisAction   `json:"actions,omitempty"`
}

func DefaultGenesisConfig(admin common.Address) *GenesisConfig {
	defaults := network.DefaultParameters()
	params := make(map[string]string)
	for _, name := range network.ParameterNames() {
		v, _ := defaults.Get(name)
		params[name] = core.FormatAmount(v)
	}
	return &GenesisConfig{
		NetworkName: "RNR Influence Network",
		Admin:       admin.Hex(),
		Params:      params,
		Balances:    map[string]string{},
	}
}

func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis config: %w", err)
	}

	var config GenesisConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse genesis config: %w", err)
	}

	return &config, nil
}

func (gc *GenesisConfig) Save(path string) error {
	data, err := json.MarshalIndent(gc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal genesis config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write genesis config: %w", err)
	}

	return nil
}

// AddAllocation credits amount to addr at genesis, adding to any existing
// allocation.
func (gc *GenesisConfig) AddAllocation(addr common.Address, amount string) error {
	v, err := core.ParseAmount(amount)
	if err != nil {
		return fmt.Errorf("allocation for %s: %w", addr.Hex(), err)
	}
	if gc.Balances == nil {
		gc.Balances = map[string]string{}
	}
	key := addr.Hex()
	if prev, ok := gc.Balances[key]; ok {
		old, err := core.ParseAmount(prev)
		if err != nil {
			return fmt.Errorf("allocation for %s: %w", key, err)
		}
		if v, err = core.AddAmount(old, v); err != nil {
			return fmt.Errorf("allocation for %s: %w", key, err)
		}
	}
	gc.Balances[key] = core.FormatAmount(v)
	return nil
}

func (gc *GenesisConfig) Validate() error {
	_, err := gc.ToGenesis()
	return err
}

// ToGenesis parses the document into the form Network.Initialize takes.
// Parameters missing from the document keep their defaults.
func (gc *GenesisConfig) ToGenesis() (network.Genesis, error) {
	var g network.Genesis

	if gc.NetworkName == "" {
		return g, fmt.Errorf("network_name is required")
	}
	if !common.IsHexAddress(gc.Admin) {
		return g, fmt.Errorf("admin %q is not a hex address", gc.Admin)
	}
	g.Admin = common.HexToAddress(gc.Admin)
	if g.Admin == (common.Address{}) {
		return g, fmt.Errorf("admin is the zero address")
	}
	if core.IsSystemAddress(g.Admin) {
		return g, fmt.Errorf("admin %s is a system account", g.Admin.Hex())
	}
	g.NetworkState = gc.NetworkState

	params := network.DefaultParameters()
	names := make([]string, 0, len(gc.Params))
	for name := range gc.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := core.ParseAmount(gc.Params[name])
		if err != nil {
			return g, fmt.Errorf("param %s: %w", name, err)
		}
		if params, err = params.With(name, v); err != nil {
			return g, fmt.Errorf("param %s: %w", name, err)
		}
	}
	g.Params = params

	g.Balances = make(map[common.Address]*uint256.Int, len(gc.Balances))
	for addr, amount := range gc.Balances {
		if !common.IsHexAddress(addr) {
			return g, fmt.Errorf("balance holder %q is not a hex address", addr)
		}
		holder := common.HexToAddress(addr)
		if core.IsSystemAddress(holder) {
			return g, fmt.Errorf("balance holder %s is a system account", holder.Hex())
		}
		if _, dup := g.Balances[holder]; dup {
			return g, fmt.Errorf("balance holder %s listed twice", holder.Hex())
		}
		v, err := core.ParseAmount(amount)
		if err != nil {
			return g, fmt.Errorf("balance of %s: %w", addr, err)
		}
		g.Balances[holder] = v
	}

	seen := make(map[uint64]bool)
	for _, a := range gc.Actions {
		if seen[a.ID] {
			return g, fmt.Errorf("action %d listed twice", a.ID)
		}
		seen[a.ID] = true
		res, err := core.ParseAmount(a.ResourceCost)
		if err != nil {
			return g, fmt.Errorf("action %d resource_cost: %w", a.ID, err)
		}
		inf, err := core.ParseAmount(a.InfluenceCost)
		if err != nil {
			return g, fmt.Errorf("action %d influence_cost: %w", a.ID, err)
		}
		g.Actions = append(g.Actions, core.Action{
			ID:            core.ActionID(a.ID),
			ResourceCost:  res,
			InfluenceCost: inf,
			Step:          a.Step,
		})
	}
	return g, nil
}
