package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig           `toml:"server"`
	Log      LogConfig              `toml:"log"`
	Redis    RedisConfig            `toml:"redis"`
	Storage  StorageConfig          `toml:"storage"`
	KV       KVConfig               `toml:"kv"`
	SQL      SQLConfig              `toml:"sql"`
	Compiler CompilerConfig         `toml:"compiler"`
	Sandbox  SandboxConfig          `toml:"sandbox"`
	Chains   map[string]ChainConfig `toml:"chains"`
	Worker   WorkerConfig           `toml:"worker"`
}

type ServerConfig struct {
	Port        string `toml:"port"`
	XRayEnabled bool   `toml:"xray_enabled"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type RedisConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type StorageConfig struct {
	// Type is "local" or "s3". Path is a directory or a bucket name.
	Type string `toml:"type"`
	Path string `toml:"path"`
}

type KVConfig struct {
	// Backend is "memory" or "redis". The payload cache follows it.
	Backend    string `toml:"backend"`
	MaxEntries int    `toml:"max_entries"`
}

type SQLConfig struct {
	// Dialect is "sqlite" or "postgres".
	Dialect     string `toml:"dialect"`
	DataDir     string `toml:"data_dir"`
	PostgresDSN string `toml:"postgres_dsn"`
}

type CompilerConfig struct {
	ASCPath string        `toml:"asc_path"`
	Timeout time.Duration `toml:"timeout"`
	WorkDir string        `toml:"work_dir"`
}

type SandboxConfig struct {
	MemoryLimitPages uint32        `toml:"memory_limit_pages"`
	MaxIOEntries     int           `toml:"max_io_entries"`
	EntryPoint       string        `toml:"entry_point"`
	InvokeTimeout    time.Duration `toml:"invoke_timeout"`
	TxTimeout        time.Duration `toml:"tx_timeout"`
}

type ChainConfig struct {
	RPCURL string `toml:"rpc_url"`
	From   string `toml:"from"`
}

type WorkerConfig struct {
	Queue       string        `toml:"queue"`
	Concurrency int           `toml:"concurrency"`
	ResultTTL   time.Duration `toml:"result_ttl"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: "8080"},
		Log:     LogConfig{Level: "info"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Storage: StorageConfig{Type: "local", Path: "/data/modules"},
		KV:      KVConfig{Backend: "memory", MaxEntries: 100000},
		SQL:     SQLConfig{Dialect: "sqlite"},
		Compiler: CompilerConfig{
			ASCPath: "asc",
			Timeout: 60 * time.Second,
		},
		Sandbox: SandboxConfig{
			MemoryLimitPages: 256,
			MaxIOEntries:     10000,
			EntryPoint:       "start",
			InvokeTimeout:    30 * time.Second,
			TxTimeout:        30 * time.Second,
		},
		Chains: map[string]ChainConfig{},
		Worker: WorkerConfig{
			Queue:       "execution_queue:wasm",
			Concurrency: 4,
			ResultTTL:   10 * time.Minute,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = getEnv("WASMLAB_CONFIG", "wasmlab.toml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, err
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if cfg.Chains == nil {
		cfg.Chains = map[string]ChainConfig{}
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)
	cfg.KV.Backend = getEnv("KV_BACKEND", cfg.KV.Backend)
	cfg.SQL.Dialect = getEnv("SQL_DIALECT", cfg.SQL.Dialect)
	cfg.SQL.DataDir = getEnv("SQL_DATA_DIR", cfg.SQL.DataDir)
	cfg.SQL.PostgresDSN = getEnv("PG_DSN", cfg.SQL.PostgresDSN)
	cfg.Compiler.ASCPath = getEnv("ASC_PATH", cfg.Compiler.ASCPath)
	cfg.Worker.Queue = getEnv("WORKER_QUEUE", cfg.Worker.Queue)

	if v := os.Getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: %w", err)
		}
		cfg.Redis.Port = port
	}
	if v := os.Getenv("COMPILE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COMPILE_TIMEOUT: %w", err)
		}
		cfg.Compiler.Timeout = d
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKER_CONCURRENCY: %w", err)
		}
		cfg.Worker.Concurrency = n
	}
	if v := os.Getenv("XRAY_ENABLED"); v == "true" || v == "1" {
		cfg.Server.XRayEnabled = true
	}

	// CHAIN_RPC_<chainId>=<url>
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "CHAIN_RPC_") || value == "" {
			continue
		}
		id := strings.TrimPrefix(name, "CHAIN_RPC_")
		if _, err := strconv.ParseInt(id, 10, 32); err != nil {
			return fmt.Errorf("%s: chain id must be an integer", name)
		}
		if cfg.Chains == nil {
			cfg.Chains = map[string]ChainConfig{}
		}
		chain := cfg.Chains[id]
		chain.RPCURL = value
		cfg.Chains[id] = chain
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
