package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/expenses"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/pipeline"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
)

var (
	expensesFile     string
	expensesSheet    string
	expensesTemplate string
)

var expensesCmd = &cobra.Command{
	Use:   "import-expenses",
	Short: "Import daily operating expenses from an Excel workbook",
	Long: `Import daily operating expenses per store from an .xlsx workbook with
the columns date, store_code and amount. Dates may be YYYYMMDD, YYYY-MM-DD
or Excel dates. Existing daily profit rows pick up the new amounts.

Example:
  hotdog-etl import-expenses --file 2025-03.xlsx
  hotdog-etl import-expenses --template expenses.xlsx`,
	RunE: runImportExpenses,
}

func init() {
	expensesCmd.Flags().StringVar(&expensesFile, "file", "",
		"workbook to import")
	expensesCmd.Flags().StringVar(&expensesSheet, "sheet", "",
		"sheet to read (default: first sheet)")
	expensesCmd.Flags().StringVar(&expensesTemplate, "template", "",
		"write an empty workbook with the expected header to this path and exit")
}

func runImportExpenses(cmd *cobra.Command, args []string) error {
	if expensesTemplate != "" {
		f, err := expenses.Template()
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.SaveAs(expensesTemplate); err != nil {
			return etlerr.New(etlerr.Config, "import-expenses", err)
		}
		cmd.Printf("Template written to %s\n", expensesTemplate)
		return nil
	}

	if expensesFile == "" {
		return etlerr.Newf(etlerr.Config, "import-expenses", "--file is required")
	}
	if err := cfg.ValidateWarehouse(); err != nil {
		return etlerr.New(etlerr.Config, "import-expenses", err)
	}

	ctx := context.Background()
	mgr := db.NewManager(cfg)
	defer mgr.Close()

	pool, err := mgr.Warehouse(ctx)
	if err != nil {
		return err
	}

	logging.Info().Str("file", expensesFile).Msg("Importing operating expenses")
	im := expenses.NewImporter(pool)
	_, err = pipeline.New(pipeline.Config{Out: cmd.OutOrStdout()},
		pipeline.VerifyStage(pipeline.Components{Warehouse: pool}),
		pipeline.Stage{
			Name:  "import_expenses",
			Fatal: true,
			Run: func(ctx context.Context) ([]*stats.Counts, error) {
				counts, err := im.ImportFile(ctx, expensesFile, expensesSheet)
				return []*stats.Counts{counts}, err
			},
		},
	).Run(ctx)
	return err
}
