package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

var initMode string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the warehouse schema",
	Long: `Provision the warehouse tables, indexes and views.

Modes:
  ensure  - create only the objects that are missing, keeping data (default)
  rebuild - drop and recreate every warehouse object

Example:
  hotdog-etl init --mode=rebuild`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", string(warehouse.Ensure),
		"provisioning mode: ensure or rebuild")
}

func runInit(cmd *cobra.Command, args []string) error {
	mode, err := warehouse.ParseMode(initMode)
	if err != nil {
		return err
	}
	if err := cfg.ValidateWarehouse(); err != nil {
		return etlerr.New(etlerr.Config, "init", err)
	}

	ctx := context.Background()
	mgr := db.NewManager(cfg)
	defer mgr.Close()

	pool, err := mgr.Warehouse(ctx)
	if err != nil {
		return err
	}

	logging.Info().Str("mode", string(mode)).Msg("Provisioning warehouse")
	if err := warehouse.EnsureSchema(ctx, pool, mode); err != nil {
		return err
	}
	if err := warehouse.Verify(ctx, pool); err != nil {
		return err
	}

	logging.Info().Str("mode", string(mode)).Msg("Warehouse ready")
	return nil
}
