package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/naoina/toml"

	"github.com/LICODX/rnr-network/pkg/logging"
	"github.com/LICODX/rnr-network/pkg/statedb"
)

// Keys in the file are the Go field names; unknown keys are an error.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

type NodeConfig struct {
	DataDir    string
	Genesis    string
	CacheSize  int
	SyncWrites bool
}

type APIConfig struct {
	Enabled        bool
	Listen         string
	RateLimit      float64
	RateBurst      int
	AdminTokenHash string
	Metrics        bool
}

type LogConfig struct {
	Level string
	JSON  bool
}

// SchedulerConfig controls automatic cycle advancement. Admin must be the
// stored admin address for advances to succeed.
type SchedulerConfig struct {
	AutoAdvance     bool
	Admin           string
	IntervalSeconds uint64
}

type Config struct {
	Node      NodeConfig
	API       APIConfig
	Log       LogConfig
	Scheduler SchedulerConfig
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Node: NodeConfig{
			DataDir:   filepath.Join(home, ".rnr"),
			Genesis:   "genesis.json",
			CacheSize: statedb.DefaultCacheSize,
		},
		API: APIConfig{
			Enabled:   true,
			Listen:    "/ip4/127.0.0.1/tcp/8645",
			RateLimit: 20,
			RateBurst: 40,
			Metrics:   true,
		},
		Log: LogConfig{Level: "info"},
		Scheduler: SchedulerConfig{
			IntervalSeconds: 60,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RNR_DATA_DIR, RNR_API_LISTEN,
// RNR_LOG_LEVEL and RNR_JSON_LOGS.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RNR_DATA_DIR"); v != "" {
		c.Node.DataDir = v
	}
	if v := os.Getenv("RNR_API_LISTEN"); v != "" {
		c.API.Listen = v
	}
	lo := logging.FromEnv(c.LoggingOptions())
	c.Log.Level, c.Log.JSON = lo.Level, lo.JSON
}

func (c *Config) Validate() error {
	if c.Node.DataDir == "" {
		return errors.New("Node.DataDir is required")
	}
	if c.Node.CacheSize < 0 {
		return fmt.Errorf("Node.CacheSize must not be negative, got %d", c.Node.CacheSize)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("Log.Level: %w", err)
	}
	if c.API.Enabled {
		if _, err := c.ListenAddr(); err != nil {
			return err
		}
		if c.API.RateLimit <= 0 || c.API.RateBurst <= 0 {
			return errors.New("API.RateLimit and API.RateBurst must be positive")
		}
	}
	if c.Scheduler.AutoAdvance {
		if !common.IsHexAddress(c.Scheduler.Admin) {
			return fmt.Errorf("Scheduler.Admin %q is not a hex address", c.Scheduler.Admin)
		}
		if c.Scheduler.IntervalSeconds == 0 {
			return errors.New("Scheduler.IntervalSeconds must be positive")
		}
	}
	return nil
}

// ListenAddr parses API.Listen and checks it maps to a TCP listener.
func (c *Config) ListenAddr() (multiaddr.Multiaddr, error) {
	addr, err := multiaddr.NewMultiaddr(c.API.Listen)
	if err != nil {
		return nil, fmt.Errorf("API.Listen: %w", err)
	}
	if !manet.IsThinWaist(addr) {
		return nil, fmt.Errorf("API.Listen: %s is not an ip/tcp address", addr)
	}
	if _, err := addr.ValueForProtocol(multiaddr.P_TCP); err != nil {
		return nil, fmt.Errorf("API.Listen: %s has no tcp port", addr)
	}
	return addr, nil
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, JSON: c.Log.JSON}
}

func (c *Config) StatePath() string {
	return filepath.Join(c.Node.DataDir, "state")
}

// GenesisPath resolves Node.Genesis relative to the data dir.
func (c *Config) GenesisPath() string {
	if filepath.IsAbs(c.Node.Genesis) {
		return c.Node.Genesis
	}
	return filepath.Join(c.Node.DataDir, c.Node.Genesis)
}

func (c *Config) StoreOptions() statedb.Options {
	return statedb.Options{CacheSize: c.Node.CacheSize, SyncWrites: c.Node.SyncWrites}
}

// Dump renders c in the same format Load reads.
func Dump(c *Config) ([]byte, error) {
	return tomlSettings.Marshal(c)
}
