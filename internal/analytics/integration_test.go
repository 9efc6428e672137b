//go:build integration

// Integration tests for the analytical tables.
// Run with: go test -tags=integration ./internal/analytics/...

package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotdog2030/hotdog-etl/internal/analytics"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/testutil"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

func seeded(t *testing.T, name string) *pgxpool.Pool {
	t.Helper()
	pool, _ := testutil.NewWarehouse(t, name)
	ctx := context.Background()
	if err := warehouse.EnsureSchema(ctx, pool, warehouse.Rebuild); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	_, err := pool.Exec(ctx, `
        INSERT INTO stores (id, store_code, store_name, status) VALUES (1, '1', 'A', 'open');
        INSERT INTO orders (id, customer_id, store_id, source, pay_state, total_amount, created_at, updated_at) VALUES
            (10, 'oA', 1, 'pos', 2, 30.00, '2025-03-01 20:00:00', now()),
            (11, 'oA', 1, 'pos', 2, 20.00, '2025-03-02 12:00:00', now());
        INSERT INTO operating_expense_daily (date_key, store_id, amount) VALUES (20250302, 1, 5.00);
    `)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	return pool
}

func TestRefreshProfitDaily_ZeroesEmptiedDays(t *testing.T) {
	pool := seeded(t, "profit_zero")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m := analytics.New(pool)
	rng := source.Range{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local),
		To:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.Local),
	}
	if _, err := m.RefreshProfitDaily(ctx, rng); err != nil {
		t.Fatalf("First refresh failed: %v", err)
	}

	// The order of 2 March is voided in the source and reloaded as deleted.
	if _, err := pool.Exec(ctx, `UPDATE orders SET delflag = 1 WHERE id = 11`); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := m.RefreshProfitDaily(ctx, rng); err != nil {
		t.Fatalf("Second refresh failed: %v", err)
	}

	var revenue, net string
	err := pool.QueryRow(ctx, `
        SELECT revenue::text, net_profit::text FROM fact_profit_daily
        WHERE date_key = 20250302 AND store_id = 1`).Scan(&revenue, &net)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if revenue != "0.00" {
		t.Errorf("Expected revenue 0.00 for emptied day, got %s", revenue)
	}
	if net != "-5.00" {
		t.Errorf("Expected net profit -5.00 keeping the expense, got %s", net)
	}

	if err := pool.QueryRow(ctx, `
        SELECT revenue::text FROM fact_profit_daily
        WHERE date_key = 20250301 AND store_id = 1`).Scan(&revenue); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if revenue != "30.00" {
		t.Errorf("Expected revenue 30.00 for untouched day, got %s", revenue)
	}
}

func TestRefreshProfitDaily_OutsideRangeUntouched(t *testing.T) {
	pool := seeded(t, "profit_range")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m := analytics.New(pool)
	if _, err := m.RefreshProfitDaily(ctx, source.Range{}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE orders SET delflag = 1 WHERE id = 10`); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Refreshing 2 March only leaves 1 March as it was.
	rng := source.Range{
		From: time.Date(2025, 3, 2, 0, 0, 0, 0, time.Local),
		To:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.Local),
	}
	if _, err := m.RefreshProfitDaily(ctx, rng); err != nil {
		t.Fatalf("Ranged refresh failed: %v", err)
	}

	var revenue string
	if err := pool.QueryRow(ctx, `
        SELECT revenue::text FROM fact_profit_daily
        WHERE date_key = 20250301 AND store_id = 1`).Scan(&revenue); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if revenue != "30.00" {
		t.Errorf("Expected revenue 30.00 outside the range, got %s", revenue)
	}
}

func TestRefreshCustomerSegments_RecencyOnSourceWallClock(t *testing.T) {
	pool := seeded(t, "recency")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 15:00 in UTC+8, ten days and three hours after the last order's wall
	// clock but only nine days and nineteen hours as an instant.
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.FixedZone("CST", 8*3600))
	m := analytics.New(pool).WithClock(func() time.Time { return now })
	if _, err := m.RefreshCustomerSegments(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	var days int
	if err := pool.QueryRow(ctx, `SELECT recency_days FROM customer_segments WHERE customer_id = 'oA'`).Scan(&days); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if days != 10 {
		t.Errorf("Expected recency 10 days, got %d", days)
	}
}
