package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmlab-server/config"
)

func TestProjectServiceOpensLazily(t *testing.T) {
	ctx := context.Background()
	projects, err := NewProjectService(config.Default(), nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = projects.Close(ctx) })

	assert.Empty(t, projects.List())

	a, err := projects.Get(ctx, "beta")
	require.NoError(t, err)
	again, err := projects.Get(ctx, "beta")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, "sqlite", a.SQL.Dialect().Name())

	_, err = projects.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, projects.List())
}

func TestProjectsAreIsolated(t *testing.T) {
	ctx := context.Background()
	projects, err := NewProjectService(config.Default(), nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = projects.Close(ctx) })

	a, err := projects.Get(ctx, "a")
	require.NoError(t, err)
	b, err := projects.Get(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, a.KV.Set(ctx, "k", "v"))
	_, ok, err := b.KV.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjectServiceSQLiteFiles(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SQL.DataDir = filepath.Join(t.TempDir(), "sql")
	projects, err := NewProjectService(cfg, nil, nil, nil)
	require.NoError(t, err)

	_, err = projects.Get(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, projects.Close(ctx))

	_, err = os.Stat(filepath.Join(cfg.SQL.DataDir, "demo.db"))
	assert.NoError(t, err)
}

func TestProjectServiceClosed(t *testing.T) {
	ctx := context.Background()
	projects, err := NewProjectService(config.Default(), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, projects.Close(ctx))
	require.NoError(t, projects.Close(ctx))

	_, err = projects.Get(ctx, "demo")
	assert.ErrorIs(t, err, ErrProjectsClosed)
}

func TestNewProjectServiceValidatesBackends(t *testing.T) {
	cfg := config.Default()
	cfg.KV.Backend = "redis"
	_, err := NewProjectService(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.SQL.Dialect = "mysql"
	_, err = NewProjectService(cfg, nil, nil, nil)
	assert.ErrorContains(t, err, "unknown sql dialect")

	cfg = config.Default()
	cfg.SQL.Dialect = "postgres"
	_, err = NewProjectService(cfg, nil, nil, nil)
	assert.ErrorContains(t, err, "requires a dsn")
}

func TestValidateProjectName(t *testing.T) {
	for _, name := range []string{"demo", "a", "my-project_2", "0abc"} {
		assert.NoError(t, ValidateProjectName(name), name)
	}
	for _, name := range []string{"", "Demo", "-lead", "has space", "../etc", strings.Repeat("x", 60)} {
		assert.ErrorIs(t, ValidateProjectName(name), ErrInvalidProject, name)
	}
}

func TestPostgresNamespace(t *testing.T) {
	assert.Equal(t, "wasmlab_my_project", PostgresNamespace("my-project"))
	assert.Equal(t, "wasmlab_demo", PostgresNamespace("demo"))
}
