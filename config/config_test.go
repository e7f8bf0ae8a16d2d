package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10000, cfg.Sandbox.MaxIOEntries)
	assert.Equal(t, 100000, cfg.KV.MaxEntries)
	assert.Equal(t, "start", cfg.Sandbox.EntryPoint)
	assert.Equal(t, "sqlite", cfg.SQL.Dialect)
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasmlab.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[sandbox]
max_io_entries = 50
invoke_timeout = "5s"

[kv]
backend = "redis"

[chains.4690]
rpc_url = "http://localhost:8545"
from = "0xabc"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Sandbox.MaxIOEntries)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.InvokeTimeout)
	assert.Equal(t, "redis", cfg.KV.Backend)
	assert.Equal(t, ChainConfig{RPCURL: "http://localhost:8545", From: "0xabc"}, cfg.Chains["4690"])
	// defaults preserved
	assert.Equal(t, 256, int(cfg.Sandbox.MemoryLimitPages))
	assert.Equal(t, "start", cfg.Sandbox.EntryPoint)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Worker, cfg.Worker)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sandbox\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SQL_DIALECT", "postgres")
	t.Setenv("COMPILE_TIMEOUT", "2m")
	t.Setenv("XRAY_ENABLED", "true")
	t.Setenv("CHAIN_RPC_4689", "https://babel-api.mainnet.iotex.io")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "postgres", cfg.SQL.Dialect)
	assert.Equal(t, 2*time.Minute, cfg.Compiler.Timeout)
	assert.True(t, cfg.Server.XRayEnabled)
	assert.Equal(t, "https://babel-api.mainnet.iotex.io", cfg.Chains["4689"].RPCURL)

	t.Setenv("REDIS_PORT", "abc")
	_, err = Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
