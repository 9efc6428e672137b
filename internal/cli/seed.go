package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hotdog2030/hotdog-etl/internal/datagen"
	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

var seedOpts = datagen.DefaultOptions()

var seedCmd = &cobra.Command{
	Use:   "seed-sources",
	Short: "Fill development source databases with synthetic data",
	Long: `Create the POS and mini-program source tables and fill them with
synthetic shops, products, members and orders. A few mini-program order
ids repeat POS ids so that collision handling is exercised.

Sources that already hold orders are refused unless --force is given,
in which case their tables are dropped first. Never point this at
production databases.

Example:
  hotdog-etl seed-sources --shops 20 --orders 20000 --seed 7`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.Shops, "shops", seedOpts.Shops, "number of shops")
	seedCmd.Flags().IntVar(&seedOpts.Goods, "goods", seedOpts.Goods, "number of products")
	seedCmd.Flags().IntVar(&seedOpts.Customers, "customers", seedOpts.Customers, "number of members")
	seedCmd.Flags().IntVar(&seedOpts.Orders, "orders", seedOpts.Orders, "number of orders across both sources")
	seedCmd.Flags().IntVar(&seedOpts.Days, "days", seedOpts.Days, "days of order history")
	seedCmd.Flags().IntVar(&seedOpts.Overlap, "overlap", seedOpts.Overlap, "mini-program order ids that repeat POS ids")
	seedCmd.Flags().Uint64Var(&seedOpts.Seed, "seed", 0, "random seed (0 = random)")
	seedCmd.Flags().BoolVar(&seedOpts.Force, "force", false, "replace sources that already hold orders")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateSeed(); err != nil {
		return etlerr.New(etlerr.Config, "seed-sources", err)
	}
	if seedOpts.Shops < 1 || seedOpts.Goods < 1 || seedOpts.Customers < 2 {
		return etlerr.Newf(etlerr.Config, "seed-sources", "need at least one shop, one product and two members")
	}

	ctx := context.Background()
	mgr := db.NewManager(cfg)
	defer mgr.Close()

	pos, err := mgr.Source(ctx, db.RoleSourcePOS)
	if err != nil {
		return err
	}
	mini, err := mgr.Source(ctx, db.RoleSourceMini)
	if err != nil {
		return err
	}

	logging.Info().
		Int("shops", seedOpts.Shops).
		Int("orders", seedOpts.Orders).
		Bool("force", seedOpts.Force).
		Msg("Seeding sources")
	if err := datagen.NewSeeder(pos, mini, seedOpts).Seed(ctx); err != nil {
		return err
	}
	logging.Info().Msg("Sources seeded")
	return nil
}
