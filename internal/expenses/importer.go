package expenses

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

const createStageSQL = `CREATE TEMP TABLE expense_stage (
    date_key    INTEGER NOT NULL,
    store_code  VARCHAR(32) NOT NULL,
    amount      NUMERIC(14,2) NOT NULL,
    PRIMARY KEY (date_key, store_code)
) ON COMMIT DROP`

const upsertExpensesSQL = `
INSERT INTO operating_expense_daily (date_key, store_id, amount, source_file, updated_at)
SELECT s.date_key, st.id, s.amount, $1, now()
FROM expense_stage s
JOIN stores st ON st.store_code = s.store_code AND st.delflag = 0
ON CONFLICT (date_key, store_id) DO UPDATE SET
    amount      = EXCLUDED.amount,
    source_file = EXCLUDED.source_file,
    updated_at  = now()`

const unknownStoresSQL = `
SELECT DISTINCT s.store_code
FROM expense_stage s
WHERE NOT EXISTS (SELECT 1 FROM stores st WHERE st.store_code = s.store_code AND st.delflag = 0)
ORDER BY s.store_code`

const applyProfitSQL = `
UPDATE fact_profit_daily f SET
    operating_exp = s.amount,
    updated_at    = now()
FROM expense_stage s
JOIN stores st ON st.store_code = s.store_code AND st.delflag = 0
WHERE f.date_key = s.date_key AND f.store_id = st.id
  AND f.operating_exp IS DISTINCT FROM s.amount`

// Importer writes parsed expenses into the warehouse.
type Importer struct {
	q db.Querier
}

// NewImporter creates an Importer on the warehouse.
func NewImporter(q db.Querier) *Importer {
	return &Importer{q: q}
}

// ImportFile parses the workbook at path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path, sheet string) (*stats.Counts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, etlerr.New(etlerr.Config, "import-expenses", err)
	}
	defer f.Close()

	records, bad, err := Parse(f, sheet)
	if err != nil {
		return nil, etlerr.New(etlerr.Config, "import-expenses", err)
	}
	for _, b := range bad {
		logging.Warn().Int("row", b.Row).Str("reason", b.Reason).Msg("Skipping expense row")
	}

	counts, err := im.Import(ctx, filepath.Base(path), records)
	if counts != nil {
		counts.Skip(int64(len(bad)))
	}
	return counts, err
}

// Import upserts records into operating_expense_daily and carries the new
// amounts onto existing fact_profit_daily rows, in one transaction.
// Records for unknown store codes are skipped.
func (im *Importer) Import(ctx context.Context, sourceFile string, records []Record) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableOperatingExpDay)
	if len(records) == 0 {
		return counts, nil
	}

	tx, err := im.q.Begin(ctx)
	if err != nil {
		return counts, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createStageSQL); err != nil {
		return counts, err
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{r.DateKey, r.StoreCode, warehouse.Numeric(r.Amount)}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"expense_stage"},
		[]string{"date_key", "store_code", "amount"}, pgx.CopyFromRows(rows)); err != nil {
		return counts, fmt.Errorf("stage expenses: %w", err)
	}

	codes, err := tx.Query(ctx, unknownStoresSQL)
	if err != nil {
		return counts, err
	}
	unknown, err := pgx.CollectRows(codes, pgx.RowTo[string])
	if err != nil {
		return counts, err
	}
	for _, code := range unknown {
		logging.Warn().Str("store_code", code).Msg("Skipping expenses of unknown store")
	}

	tag, err := tx.Exec(ctx, upsertExpensesSQL, sourceFile)
	if err != nil {
		return counts, fmt.Errorf("upsert expenses: %w", err)
	}
	counts.Insert(tag.RowsAffected())
	counts.Skip(int64(len(records)) - tag.RowsAffected())

	applied, err := tx.Exec(ctx, applyProfitSQL)
	if err != nil {
		return counts, fmt.Errorf("apply expenses to profit: %w", err)
	}
	if err := db.Commit(ctx, tx); err != nil {
		return counts, err
	}

	logging.Info().
		Str("file", sourceFile).
		Int64("expenses", tag.RowsAffected()).
		Int64("profit_rows", applied.RowsAffected()).
		Int("unknown_stores", len(unknown)).
		Msg("Operating expenses imported")
	return counts, nil
}
