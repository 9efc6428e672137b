//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for hotdog-etl.
package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hotdog2030/hotdog-etl/internal/config"
	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/pkg/version"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "hotdog-etl",
		Short: "Consolidate the HotDog 2030 POS and mini-program databases into the warehouse",
		Long: `hotdog-etl loads the point-of-sale and WeChat mini-program databases
into the analytical warehouse. It provisions the warehouse schema, loads
the dimensions and facts with stable identities, refreshes daily profit,
customer segments and site scores, and detects operational alerts.

Database hosts and credentials come from the environment (WAREHOUSE_*,
POS_* and MINI_*), a .env file or hotdog-etl.yaml. They are never taken
from the command line.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./hotdog-etl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (console, json)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(expensesCmd)
	for _, c := range modeCommands() {
		rootCmd.AddCommand(c)
	}
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return etlerr.New(etlerr.Config, "config", err)
	}

	// Override with CLI flags
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogFormat != "json",
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the warehouse metadata",
	Long: `Print the schema version and the outcome of the last run recorded in
the warehouse metadata table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateWarehouse(); err != nil {
			return etlerr.New(etlerr.Config, "status", err)
		}

		ctx := context.Background()
		mgr := db.NewManager(cfg)
		defer mgr.Close()

		pool, err := mgr.Warehouse(ctx)
		if err != nil {
			return err
		}
		exists, err := db.MetadataExists(ctx, pool)
		if err != nil {
			return err
		}
		if !exists {
			cmd.Println("Warehouse is not initialized; run 'hotdog-etl init'")
			return nil
		}

		meta, err := db.GetAllMetadata(ctx, pool)
		if err != nil {
			return err
		}
		for _, k := range slices.Sorted(maps.Keys(meta)) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", k, meta[k])
		}
		return nil
	},
}
