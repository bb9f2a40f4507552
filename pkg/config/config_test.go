package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rnr.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[Node]
DataDir = "/var/lib/rnr"
SyncWrites = true

[API]
Listen = "/ip4/0.0.0.0/tcp/9000"
RateLimit = 5.0

[Log]
Level = "debug"
JSON = true

[Scheduler]
AutoAdvance = true
Admin = "0xad00000000000000000000000000000000000001"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/rnr", cfg.Node.DataDir)
	assert.True(t, cfg.Node.SyncWrites)
	assert.Equal(t, 4096, cfg.Node.CacheSize)
	assert.Equal(t, 5.0, cfg.API.RateLimit)
	assert.Equal(t, 40, cfg.API.RateBurst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, uint64(60), cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, "/var/lib/rnr/state", cfg.StatePath())
	assert.Equal(t, "/var/lib/rnr/genesis.json", cfg.GenesisPath())

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, "/ip4/0.0.0.0/tcp/9000", addr.String())
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "[Node]\nDataDirectory = \"/tmp\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DataDirectory")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty data dir":   func(c *Config) { c.Node.DataDir = "" },
		"bad level":        func(c *Config) { c.Log.Level = "verbose" },
		"bad multiaddr":    func(c *Config) { c.API.Listen = "127.0.0.1:8645" },
		"udp listener":     func(c *Config) { c.API.Listen = "/ip4/127.0.0.1/udp/8645" },
		"zero rate":        func(c *Config) { c.API.RateLimit = 0 },
		"scheduler admin":  func(c *Config) { c.Scheduler.AutoAdvance = true },
		"negative cache":   func(c *Config) { c.Node.CacheSize = -1 },
		"scheduler period": func(c *Config) {
			c.Scheduler.AutoAdvance = true
			c.Scheduler.Admin = "0xad00000000000000000000000000000000000001"
			c.Scheduler.IntervalSeconds = 0
		},
	}
	for name, tweak := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			tweak(c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestDumpRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Node.DataDir = "/srv/rnr"
	cfg.API.AdminTokenHash = "scrypt$00$11"

	out, err := Dump(cfg)
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RNR_DATA_DIR", "/data")
	t.Setenv("RNR_JSON_LOGS", "true")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/data", cfg.Node.DataDir)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)
}
