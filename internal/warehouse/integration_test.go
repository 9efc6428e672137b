//go:build integration

// Integration tests for the warehouse schema.
// Run with: go test -tags=integration ./internal/warehouse/...
// Set HOTDOG_TEST_CONN to override the connection string.

package warehouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/testutil"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
	"github.com/hotdog2030/hotdog-etl/pkg/version"
)

func TestEnsureSchemaModes(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "schema")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := warehouse.Verify(ctx, pool); etlerr.KindOf(err) != etlerr.FatalSchema {
		t.Fatalf("Expected fatal schema error on empty database, got %v", err)
	}

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if err := warehouse.Verify(ctx, pool); err != nil {
		t.Fatalf("Verify after rebuild failed: %v", err)
	}

	_, err := pool.Exec(ctx, `INSERT INTO stores (id, store_code, store_name, status) VALUES (1, '1', 'Test', 'open')`)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// ensure keeps data
	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Ensure); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM stores`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("Expected 1 store after ensure, got %d (%v)", n, err)
	}

	// rebuild drops it
	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Second rebuild failed: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM stores`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("Expected 0 stores after rebuild, got %d (%v)", n, err)
	}

	v, err := db.GetMetadataValue(ctx, pool, db.MetaSchemaVersion)
	if err != nil || v != version.SchemaVersion {
		t.Errorf("Expected schema version %s, got %q (%v)", version.SchemaVersion, v, err)
	}
}

func TestNetProfitIsDerived(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "netprofit")
	ctx := context.Background()

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	_, err := pool.Exec(ctx, `
        INSERT INTO stores (id, store_code, store_name, status) VALUES (7, '7', 'S', 'open');
        INSERT INTO fact_profit_daily (date_key, store_id, revenue, cogs, operating_exp)
        VALUES (20250101, 7, 1000, 300, 150);
    `)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var net float64
	if err := pool.QueryRow(ctx, `SELECT net_profit::float8 FROM fact_profit_daily`).Scan(&net); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if net != 550 {
		t.Errorf("Expected net_profit 550, got %v", net)
	}
}

func TestDropIndexesRebuildsAfterFailure(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "indexes")
	ctx := context.Background()

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	rebuild, err := warehouse.DropIndexes(cctx, pool, warehouse.IndexesOn(warehouse.TableOrders))
	if err != nil {
		t.Fatalf("DropIndexes failed: %v", err)
	}
	cancel()

	if err := rebuild(); err != nil {
		t.Fatalf("Rebuild after cancel failed: %v", err)
	}

	var n int
	err = pool.QueryRow(ctx, `SELECT count(*) FROM pg_indexes WHERE tablename = 'orders' AND indexname LIKE 'idx_%'`).Scan(&n)
	if err != nil || n != 5 {
		t.Errorf("Expected 5 order indexes, got %d (%v)", n, err)
	}
}

func TestSyncIdentity(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "identity")
	ctx := context.Background()

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO stores (id, store_code, store_name, status) VALUES (41, '41', 'S', 'open')`); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := warehouse.SyncIdentity(ctx, pool, warehouse.TableStores); err != nil {
		t.Fatalf("SyncIdentity failed: %v", err)
	}

	var id int64
	err := pool.QueryRow(ctx, `
        INSERT INTO stores (store_code, store_name, status) VALUES ('x42', 'P', 'open') RETURNING id
    `).Scan(&id)
	if err != nil || id != 42 {
		t.Errorf("Expected next id 42, got %d (%v)", id, err)
	}
}

func TestSyncIdentity_OnlyCandidateStores(t *testing.T) {
	pool, _ := testutil.NewWarehouse(t, "identity_neg")
	ctx := context.Background()

	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO stores (id, store_code, store_name, status) VALUES (-3, 'RG_3', 'P', 'preparing')`); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := warehouse.SyncIdentity(ctx, pool, warehouse.TableStores); err != nil {
		t.Fatalf("SyncIdentity failed: %v", err)
	}

	var id int64
	err := pool.QueryRow(ctx, `
        INSERT INTO stores (store_code, store_name, status) VALUES ('x1', 'S', 'open') RETURNING id
    `).Scan(&id)
	if err != nil || id != 1 {
		t.Errorf("Expected next id 1, got %d (%v)", id, err)
	}
}
