// Package main provides the tombstone CLI, which runs the shop demo schema
// against one of the supported backends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/shop"
	"github.com/jacentio/tombstone/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// configFile is set by the --config flag.
	configFile string

	// app is initialized by PersistentPreRunE.
	app *application
)

// application holds what the commands share.
type application struct {
	config   *Config
	logger   *zap.Logger
	registry *store.Registry
	engine   *store.Engine
	backend  *backend
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "Soft deletes with cascades over SQL, MongoDB and DynamoDB",
	Long: `tombstone runs a demo shop schema (customers, profiles, orders, order
lines and notes) against the configured backend. Deleting a customer
soft-deletes its profile, orders and order lines in one commit.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./tombstone.yaml or ~/.tombstone/tombstone.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "backend: sqlite, postgres, mongo or dynamodb")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tombstone " + version)
	},
}

// initApp loads the config and opens the backend.
func initApp(cmd *cobra.Command, args []string) error {
	// Skip init for version command
	if cmd.Name() == "version" {
		return nil
	}

	backendFlag, _ := cmd.Flags().GetString("backend")
	cfg, err := loadConfig(configFile, backendFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	registry := shop.NewRegistry(cfg.TablePrefix())
	b, err := openBackend(cmd.Context(), cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	engineCfg := store.DefaultConfig()
	engineCfg.DefaultPageSize = cfg.PageSize
	engineCfg.Logger = logger

	app = &application{
		config:   cfg,
		logger:   logger,
		registry: registry,
		engine:   store.NewEngine(registry, engineCfg),
		backend:  b,
	}
	return nil
}

// closeApp releases the backend and flushes the logger.
func closeApp() error {
	if app == nil {
		return nil
	}
	err := app.backend.close()
	_ = app.logger.Sync()
	return err
}
