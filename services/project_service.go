package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wasmlab-server/config"
	"wasmlab-server/sqldb"
	"wasmlab-server/wasmvm"
)

var (
	ErrInvalidProject = errors.New("invalid project name")
	ErrProjectsClosed = errors.New("project registry is closed")
)

var projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,54}$`)

// Project bundles the context objects one project's guests run against:
// its KV store, its SQL engine and a sandbox runtime whose bridge is bound
// to both.
type Project struct {
	Name    string
	KV      KVStore
	SQL     *sqldb.Engine
	Bridge  *wasmvm.Bridge
	Runtime *wasmvm.Runtime
}

func (p *Project) close(ctx context.Context) error {
	return errors.Join(p.Runtime.Close(ctx), p.SQL.Close())
}

// ProjectService lazily creates and caches projects
type ProjectService struct {
	cfg    config.Config
	redis  *redis.Client
	tx     wasmvm.TxDispatcher
	logger *zap.Logger

	mu       sync.Mutex
	projects map[string]*Project
	closed   bool
}

// NewProjectService builds the registry. redisClient is required only when
// the KV backend is "redis"; tx may be nil, SendTx then always fails.
func NewProjectService(cfg config.Config, redisClient *redis.Client, tx wasmvm.TxDispatcher, logger *zap.Logger) (*ProjectService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.KV.Backend {
	case "", "memory":
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("kv backend redis requires a redis client")
		}
	default:
		return nil, fmt.Errorf("unknown kv backend: %s", cfg.KV.Backend)
	}
	switch cfg.SQL.Dialect {
	case "", "sqlite":
		if cfg.SQL.DataDir != "" {
			if err := os.MkdirAll(cfg.SQL.DataDir, 0755); err != nil {
				return nil, err
			}
		}
	case "postgres":
		if cfg.SQL.PostgresDSN == "" {
			return nil, fmt.Errorf("sql dialect postgres requires a dsn")
		}
	default:
		return nil, fmt.Errorf("unknown sql dialect: %s", cfg.SQL.Dialect)
	}
	return &ProjectService{
		cfg:      cfg,
		redis:    redisClient,
		tx:       tx,
		logger:   logger,
		projects: make(map[string]*Project),
	}, nil
}

func ValidateProjectName(name string) error {
	if !projectNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidProject, name)
	}
	return nil
}

// Get returns the named project, opening it on first use
func (s *ProjectService) Get(ctx context.Context, name string) (*Project, error) {
	if err := ValidateProjectName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrProjectsClosed
	}
	if p, ok := s.projects[name]; ok {
		return p, nil
	}
	p, err := s.open(ctx, name)
	if err != nil {
		return nil, err
	}
	s.projects[name] = p
	s.logger.Info("project opened",
		zap.String("project", name),
		zap.String("kv", s.cfg.KV.Backend),
		zap.String("sql", p.SQL.Dialect().Name()))
	return p, nil
}

func (s *ProjectService) open(ctx context.Context, name string) (*Project, error) {
	logger := s.logger.With(zap.String("project", name))

	var kv KVStore
	if s.cfg.KV.Backend == "redis" {
		kv = NewRedisKVStore(s.redis, name, s.cfg.KV.MaxEntries)
	} else {
		kv = NewMemoryKVStore(s.cfg.KV.MaxEntries)
	}

	engine, err := s.openSQL(ctx, name, logger)
	if err != nil {
		return nil, fmt.Errorf("open sql engine for %s: %w", name, err)
	}

	bridge := wasmvm.NewBridge(
		wasmvm.Stores{KV: kv, SQL: engine, Tx: s.tx},
		wasmvm.WithTxTimeout(s.cfg.Sandbox.TxTimeout),
		wasmvm.WithBridgeLogger(logger),
	)
	rt, err := wasmvm.NewRuntime(ctx, bridge,
		wasmvm.WithConfig(wasmvm.Config{
			MemoryLimitPages: s.cfg.Sandbox.MemoryLimitPages,
			MaxIOEntries:     s.cfg.Sandbox.MaxIOEntries,
		}),
		wasmvm.WithLogger(logger),
	)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return &Project{Name: name, KV: kv, SQL: engine, Bridge: bridge, Runtime: rt}, nil
}

func (s *ProjectService) openSQL(ctx context.Context, name string, logger *zap.Logger) (*sqldb.Engine, error) {
	if s.cfg.SQL.Dialect == "postgres" {
		return sqldb.OpenPostgres(ctx, s.cfg.SQL.PostgresDSN, PostgresNamespace(name), sqldb.WithLogger(logger))
	}
	dsn := ""
	if s.cfg.SQL.DataDir != "" {
		dsn = "file:" + filepath.Join(s.cfg.SQL.DataDir, name+".db") + "?_pragma=busy_timeout(5000)"
	}
	return sqldb.OpenSQLite(ctx, dsn, sqldb.WithLogger(logger))
}

// PostgresNamespace is the schema a project's tables live in
func PostgresNamespace(project string) string {
	return "wasmlab_" + strings.ReplaceAll(project, "-", "_")
}

// List returns the names of the open projects
func (s *ProjectService) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *ProjectService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for name, p := range s.projects {
		if err := p.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close project %s: %w", name, err))
		}
	}
	s.projects = nil
	return errors.Join(errs...)
}
