package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/api"
	"github.com/LICODX/rnr-network/pkg/config"
	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/genesis"
	"github.com/LICODX/rnr-network/pkg/metrics"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/utils"
)

const (
	shutdownGrace  = 10 * time.Second
	healthInterval = 30 * time.Second
	statsInterval  = time.Minute
)

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "Run the node (initializes from genesis on first start)",
	Flags:  []cli.Flag{genesisFlag},
	Action: runNode,
}

func runNode(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("🚀 ROUTE N ROOT (RNR) Influence Network Node")
	fmt.Println("   Stake-weighted influence, cyclic rewards")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	shutdownMgr := utils.NewShutdownManager(shutdownGrace, logger)
	shutdownMgr.ListenForSignals()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	networkMetrics := metrics.NewNetworkMetrics(reg)

	store, n, err := openNetwork(cfg, logger, networkMetrics)
	if err != nil {
		return err
	}
	shutdownMgr.RegisterShutdownHook("statedb", store.Close)
	networkMetrics.RegisterStore(store)

	if !n.Initialized() {
		if err := initializeFromGenesis(n, cfg, logger); err != nil {
			shutdownMgr.InitiateShutdown()
			return err
		}
	}

	if events, err := n.VerifyAuditFull(); err != nil {
		logger.Error("audit log failed verification", zap.Error(err))
	} else {
		logger.Info("audit log verified", zap.Uint64("events", events))
	}

	healthMonitor := utils.NewHealthMonitor(healthInterval, logger)
	registerHealthChecks(healthMonitor, n)
	shutdownMgr.Go("health", healthMonitor.Run)

	if cfg.API.Enabled {
		addr, err := cfg.ListenAddr()
		if err != nil {
			shutdownMgr.InitiateShutdown()
			return err
		}
		opts := api.Options{
			AdminTokenHash: cfg.API.AdminTokenHash,
			RateLimit:      cfg.API.RateLimit,
			RateBurst:      cfg.API.RateBurst,
			Health:         healthMonitor,
			Metrics:        networkMetrics,
			Logger:         logger,
		}
		if cfg.API.Metrics {
			opts.Gatherer = reg
		}
		if cfg.API.AdminTokenHash == "" {
			logger.Warn("API.AdminTokenHash not set, admin routes are disabled")
		}
		server := api.NewServer(n, opts)
		if err := server.Start(addr); err != nil {
			shutdownMgr.InitiateShutdown()
			return err
		}
		shutdownMgr.RegisterShutdownHook("api", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(ctx)
		})
	}

	if cfg.Scheduler.AutoAdvance {
		admin := common.HexToAddress(cfg.Scheduler.Admin)
		interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
		scheduler := network.NewScheduler(n, admin, interval)
		shutdownMgr.Go("scheduler", scheduler.Run)
	}

	shutdownMgr.Go("stats", func(ctx context.Context) {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStats(n, logger)
			}
		}
	})

	logStats(n, logger)
	fmt.Println("✅ Node is running. Press Ctrl+C to stop.")

	<-shutdownMgr.Done()
	return shutdownMgr.InitiateShutdown()
}

func initializeFromGenesis(n *network.Network, cfg *config.Config, logger *zap.Logger) error {
	path := cfg.GenesisPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("state db is empty and no genesis file at %s (run `rnr genesis new`)", path)
	}
	logger.Info("loading genesis config", zap.String("path", path))
	gc, err := genesis.LoadGenesisConfig(path)
	if err != nil {
		return err
	}
	g, err := gc.ToGenesis()
	if err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	fmt.Printf("   Network: %s\n", gc.NetworkName)
	fmt.Printf("   Admin:   %s\n", g.Admin.Hex())
	fmt.Printf("   Genesis Balances: %d\n", len(g.Balances))
	return n.Initialize(g)
}

func registerHealthChecks(hm *utils.HealthMonitor, n *network.Network) {
	hm.RegisterComponent("state", func() (utils.HealthStatus, string) {
		if _, err := n.Stats(); err != nil {
			return utils.StatusUnhealthy, err.Error()
		}
		return utils.StatusHealthy, ""
	})
	hm.RegisterComponent("escrow", func() (utils.HealthStatus, string) {
		rep, err := n.EscrowReport()
		if err != nil {
			return utils.StatusUnhealthy, err.Error()
		}
		if !rep.Solvent {
			return utils.StatusUnhealthy, fmt.Sprintf("escrow holds %s, owes %s",
				core.FormatAmount(rep.Balance), core.FormatAmount(rep.Liability))
		}
		return utils.StatusHealthy, ""
	})
	hm.RegisterComponent("audit", func() (utils.HealthStatus, string) {
		if _, err := n.VerifyAudit(); err != nil {
			return utils.StatusUnhealthy, err.Error()
		}
		return utils.StatusHealthy, ""
	})
	hm.RegisterComponent("cycle", func() (utils.HealthStatus, string) {
		end, err := n.CycleEndTime()
		if err != nil {
			return utils.StatusUnhealthy, err.Error()
		}
		now := uint64(n.Clock().Now().Unix())
		if now > uint64(end)+uint64(healthInterval/time.Second) {
			return utils.StatusDegraded, fmt.Sprintf("cycle expired at %d and has not been advanced", end)
		}
		return utils.StatusHealthy, ""
	})
}

func logStats(n *network.Network, logger *zap.Logger) {
	s, err := n.Stats()
	if err != nil {
		logger.Warn("failed to read stats", zap.Error(err))
		return
	}
	logger.Info("network status",
		zap.Uint64("cycle", s.Cycle),
		zap.Uint64("nodes", s.Nodes),
		zap.Uint64("state", s.NetworkState),
		zap.Bool("paused", s.Paused))
}
