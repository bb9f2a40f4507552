package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/LICODX/rnr-network/pkg/api"
	"github.com/LICODX/rnr-network/pkg/config"
	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/genesis"
	"github.com/LICODX/rnr-network/pkg/ledger"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/wallet"
)

var (
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Usage:   "Keystore password",
		EnvVars: []string{"RNR_WALLET_PASSWORD"},
	}
	keystoreFlag = &cli.StringFlag{
		Name:     "keystore",
		Usage:    "Keystore file",
		EnvVars:  []string{"RNR_WALLET_FILE"},
		Required: true,
	}
)

var initCommand = &cli.Command{
	Name:  "init",
	Usage: "Write genesis into an empty state db",
	Flags: []cli.Flag{genesisFlag},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		store, n, err := openNetwork(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if n.Initialized() {
			return fmt.Errorf("state db at %s is already initialized", cfg.StatePath())
		}
		if err := initializeFromGenesis(n, cfg, logger); err != nil {
			return err
		}
		fmt.Printf("✅ Genesis written to %s\n", cfg.StatePath())
		return nil
	},
}

type inspectReport struct {
	Stats   network.Stats     `json:"stats"`
	Admin   string            `json:"admin"`
	CycleAt uint64            `json:"cycle_ends_at"`
	Params  map[string]string `json:"params"`
	Escrow  map[string]string `json:"escrow"`
	Solvent bool              `json:"solvent"`
	Supply  string            `json:"total_supply"`
	Audit   inspectAudit      `json:"audit"`
	Nodes   []inspectNode     `json:"nodes"`
}

type inspectAudit struct {
	Events uint64 `json:"events"`
	Head   string `json:"head"`
	Error  string `json:"error,omitempty"`
}

type inspectNode struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Staked    string `json:"staked"`
	Boost     string `json:"boost"`
	Influence string `json:"influence"`
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Print the state of a stopped node as JSON",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		store, n, err := openNetwork(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer store.Close()
		if !n.Initialized() {
			return errors.New("state db is not initialized")
		}

		rep := inspectReport{Params: map[string]string{}}
		if rep.Stats, err = n.Stats(); err != nil {
			return err
		}
		admin, err := n.AdminAddress()
		if err != nil {
			return err
		}
		rep.Admin = admin.Hex()
		end, err := n.CycleEndTime()
		if err != nil {
			return err
		}
		rep.CycleAt = uint64(end)
		for _, name := range network.ParameterNames() {
			v, err := n.Parameter(name)
			if err != nil {
				return err
			}
			rep.Params[name] = core.FormatAmount(v)
		}
		escrow, err := n.EscrowReport()
		if err != nil {
			return err
		}
		rep.Solvent = escrow.Solvent
		rep.Escrow = map[string]string{
			"balance":   core.FormatAmount(escrow.Balance),
			"liability": core.FormatAmount(escrow.Liability),
			"excess":    core.FormatAmount(escrow.Excess),
		}

		supply, err := ledger.New(logger).TotalSupply(store)
		if err != nil {
			return err
		}
		rep.Supply = core.FormatAmount(supply)

		rep.Audit.Events, err = n.VerifyAuditFull()
		if err != nil {
			rep.Audit.Error = err.Error()
		}
		head, err := n.AuditHead()
		if err != nil {
			return err
		}
		rep.Audit.Head = head.Hex()

		var ids []core.NodeID
		err = n.Nodes(func(node *core.Node) error {
			ids = append(ids, node.ID)
			rep.Nodes = append(rep.Nodes, inspectNode{
				ID:     uint64(node.ID),
				Owner:  node.Owner.Hex(),
				Staked: core.FormatAmount(node.Staked),
				Boost:  node.Boost.String(),
			})
			return nil
		})
		if err != nil {
			return err
		}
		for i, id := range ids {
			inf, err := n.EffectiveInfluence(id)
			if err != nil {
				return err
			}
			rep.Nodes[i].Influence = core.FormatAmount(inf)
		}

		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var genesisCommand = &cli.Command{
	Name:  "genesis",
	Usage: "Genesis file tools",
	Subcommands: []*cli.Command{
		{
			Name:  "new",
			Usage: "Write a genesis file with default parameters",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "admin", Usage: "Admin address", Required: true},
				&cli.StringSliceFlag{Name: "alloc", Usage: "Initial balance as address=amount"},
				&cli.StringSliceFlag{Name: "param", Usage: "Parameter override as name=value"},
				&cli.StringFlag{Name: "out", Usage: "Output file", Value: "genesis.json"},
			},
			Action: func(c *cli.Context) error {
				admin := c.String("admin")
				if !common.IsHexAddress(admin) {
					return fmt.Errorf("admin %q is not a hex address", admin)
				}
				gc := genesis.DefaultGenesisConfig(common.HexToAddress(admin))
				for _, kv := range c.StringSlice("alloc") {
					addr, amount, ok := strings.Cut(kv, "=")
					if !ok || !common.IsHexAddress(addr) {
						return fmt.Errorf("bad --alloc %q, want address=amount", kv)
					}
					if err := gc.AddAllocation(common.HexToAddress(addr), amount); err != nil {
						return err
					}
				}
				for _, kv := range c.StringSlice("param") {
					name, value, ok := strings.Cut(kv, "=")
					if !ok {
						return fmt.Errorf("bad --param %q, want name=value", kv)
					}
					gc.Params[name] = value
				}
				if err := gc.Validate(); err != nil {
					return err
				}
				if err := gc.Save(c.String("out")); err != nil {
					return err
				}
				fmt.Printf("✅ Genesis written to %s\n", c.String("out"))
				return nil
			},
		},
	},
}

var accountCommand = &cli.Command{
	Name:  "account",
	Usage: "Owner key management",
	Subcommands: []*cli.Command{
		{
			Name:  "new",
			Usage: "Create a key from a fresh mnemonic and store it encrypted",
			Flags: []cli.Flag{keystoreFlag, passwordFlag},
			Action: func(c *cli.Context) error {
				path := c.String(keystoreFlag.Name)
				if wallet.WalletExists(path) {
					return fmt.Errorf("%s already exists", path)
				}
				password := c.String(passwordFlag.Name)
				if password == "" {
					return errors.New("a password is required (--password or RNR_WALLET_PASSWORD)")
				}
				mnemonic, err := wallet.GenerateMnemonic()
				if err != nil {
					return err
				}
				w, err := wallet.NewWalletFromMnemonic(mnemonic)
				if err != nil {
					return err
				}
				if err := wallet.SaveWalletToFile(w, password, path, wallet.StandardScryptN); err != nil {
					return err
				}
				fmt.Printf("Address:  %s\n", w.Address.Hex())
				fmt.Printf("Keystore: %s\n", path)
				fmt.Println("Mnemonic (write it down, it is not stored):")
				fmt.Printf("   %s\n", mnemonic)
				return nil
			},
		},
		{
			Name:  "inspect",
			Usage: "Decrypt a keystore and print its address",
			Flags: []cli.Flag{keystoreFlag, passwordFlag},
			Action: func(c *cli.Context) error {
				w, err := wallet.LoadWalletFromFile(c.String(passwordFlag.Name), c.String(keystoreFlag.Name))
				if err != nil {
					return err
				}
				fmt.Println(w.Address.Hex())
				return nil
			},
		},
	},
}

var adminCommand = &cli.Command{
	Name:  "admin",
	Usage: "Operator tools",
	Subcommands: []*cli.Command{
		{
			Name:  "hash-token",
			Usage: "Hash an admin API token for API.AdminTokenHash",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "token", Usage: "Admin token", EnvVars: []string{"RNR_ADMIN_TOKEN"}, Required: true},
			},
			Action: func(c *cli.Context) error {
				hash, err := api.HashToken(c.String("token"))
				if err != nil {
					return err
				}
				fmt.Println(hash)
				return nil
			},
		},
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Print the effective configuration as TOML",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		out, err := config.Dump(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	},
}
