package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/config"
	"github.com/LICODX/rnr-network/pkg/logging"
	"github.com/LICODX/rnr-network/pkg/ledger"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/statedb"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		EnvVars: []string{"RNR_CONFIG"},
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory (overrides Node.DataDir)",
	}
	genesisFlag = &cli.StringFlag{
		Name:    "genesis",
		Usage:   "Genesis JSON file (overrides Node.Genesis)",
		EnvVars: []string{"RNR_GENESIS_CONFIG"},
	}
)

func main() {
	app := &cli.App{
		Name:  "rnr",
		Usage: "stake-weighted influence network node",
		Flags: []cli.Flag{configFlag, dataDirFlag},
		Commands: []*cli.Command{
			runCommand,
			initCommand,
			inspectCommand,
			genesisCommand,
			accountCommand,
			adminCommand,
			configCommand,
		},
		DefaultCommand: "run",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if dir := c.String(dataDirFlag.Name); dir != "" {
		cfg.Node.DataDir = dir
	}
	if g := c.String(genesisFlag.Name); g != "" {
		cfg.Node.Genesis = g
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, _, err := logging.New(cfg.LoggingOptions())
	return logger, err
}

// openNetwork opens the state db under cfg and wires a Network over it.
// The caller owns the returned store.
func openNetwork(cfg *config.Config, logger *zap.Logger, observer network.Observer) (*statedb.Store, *network.Network, error) {
	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	opts := cfg.StoreOptions()
	opts.Logger = logger
	store, err := statedb.Open(cfg.StatePath(), opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state db: %w", err)
	}
	n, err := network.New(network.Config{
		Store:    store,
		Ledger:   ledger.New(logger),
		Logger:   logger,
		Observer: observer,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, n, nil
}
