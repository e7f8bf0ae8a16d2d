package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wasmlab-server/config"
	"wasmlab-server/logging"
	"wasmlab-server/services"
)

var (
	configPath string
	project    string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "wasmlab",
	Short:         "Compile guest scripts to WebAssembly and run them locally",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $WASMLAB_CONFIG or wasmlab.toml)")
	rootCmd.PersistentFlags().StringVar(&project, "project", "local", "project whose KV and SQL stores are used")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for project databases (default in-memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sandbox internals")

	rootCmd.AddCommand(compileCmd, runCmd, schemaCmd, watchCmd)
}

// env is the local equivalent of the server's service graph
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	compiler *services.CompilerService
	projects *services.ProjectService
}

func newEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	// The CLI always keeps KV in memory; SQL persists only with --data-dir.
	cfg.KV.Backend = "memory"
	cfg.SQL.Dialect = "sqlite"
	cfg.SQL.DataDir = dataDir

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.Must(level, true)

	chains, err := services.NewChainService(cfg.Chains, nil, logger.Named("chain"))
	if err != nil {
		return nil, err
	}
	projects, err := services.NewProjectService(cfg, nil, chains.Dispatcher(), logger.Named("projects"))
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:      cfg,
		logger:   logger,
		compiler: services.NewCompilerService(cfg.Compiler.ASCPath, cfg.Compiler.WorkDir, cfg.Compiler.Timeout, logger.Named("compiler")),
		projects: projects,
	}, nil
}

func (e *env) Close() {
	_ = e.projects.Close(context.Background())
	_ = e.logger.Sync()
}
