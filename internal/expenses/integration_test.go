//go:build integration

package expenses_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hotdog2030/hotdog-etl/internal/expenses"
	"github.com/hotdog2030/hotdog-etl/internal/testutil"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

func TestImportUpdatesProfit(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "expenses")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO stores (id, store_code, store_name, status) VALUES (1, '1001', 'A', 'open')`); err != nil {
		t.Fatalf("Insert store failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO fact_profit_daily (date_key, store_id, revenue, cogs) VALUES (20250301, 1, 500, 200)`); err != nil {
		t.Fatalf("Insert profit failed: %v", err)
	}

	im := expenses.NewImporter(pool)
	counts, err := im.Import(ctx, "march.xlsx", []expenses.Record{
		{DateKey: 20250301, StoreCode: "1001", Amount: decimal.NewFromInt(80)},
		{DateKey: 20250301, StoreCode: "9999", Amount: decimal.NewFromInt(10)},
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if counts.Inserted() != 1 || counts.Skipped() != 1 {
		t.Errorf("Expected 1 inserted and 1 skipped, got %d/%d", counts.Inserted(), counts.Skipped())
	}

	var net string
	if err := pool.QueryRow(ctx, `SELECT net_profit::text FROM fact_profit_daily WHERE date_key = 20250301 AND store_id = 1`).Scan(&net); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if net != "220.00" {
		t.Errorf("Expected net profit 220.00, got %s", net)
	}
}
