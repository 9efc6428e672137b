package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

const reconciliationSQL = `
SELECT date_key, store_id, revenue, gross_profit, net_receipt_total
FROM v_profit_reconciliation
WHERE ($1::integer = 0 OR date_key >= $1) AND ($2::integer = 0 OR date_key < $2)
ORDER BY store_id, date_key`

var alertColumns = []string{
	"date_key", "store_id", "alert_type", "metric", "current_value", "baseline_value",
	"delta_pct", "message", "severity", "run_id",
}

// Detector reads the reconciliation view, appends detected alerts and
// hands them to a publisher.
type Detector struct {
	q   db.Querier
	th  Thresholds
	pub Publisher
}

// NewDetector creates a Detector. A nil publisher publishes nothing.
func NewDetector(q db.Querier, th Thresholds, pub Publisher) *Detector {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Detector{q: q, th: th, pub: pub}
}

// Run detects alerts for the days of rng, every day when rng is zero.
// Writes are append-only; repeated runs add duplicate rows that
// consumers de-duplicate on (date_key, store_id, alert_type).
func (d *Detector) Run(ctx context.Context, rng source.Range, runID uuid.UUID) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableAlerts)

	var fromKey, toKey, readFrom int
	if !rng.From.IsZero() {
		fromKey = warehouse.DateKey(rng.From)
		readFrom = BaselineFrom(rng.From)
	}
	if !rng.To.IsZero() {
		toKey = warehouse.DateKey(rng.To)
	}

	days, err := d.days(ctx, readFrom, toKey)
	if err != nil {
		return counts, fmt.Errorf("read reconciliation: %w", err)
	}

	found := Detect(days, d.th, fromKey, toKey)
	if len(found) == 0 {
		logging.Info().Int("days", len(days)).Msg("No alerts")
		return counts, nil
	}
	for i := range found {
		found[i].RunID = runID.String()
	}

	rows := make([][]any, len(found))
	for i, a := range found {
		rows[i] = alertRow(a, runID)
	}
	n, err := d.q.CopyFrom(ctx, pgx.Identifier{warehouse.TableAlerts}, alertColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return counts, fmt.Errorf("write alerts: %w", err)
	}
	counts.Insert(n)

	if err := d.pub.Publish(ctx, found); err != nil {
		logging.Warn().Err(err).Int("alerts", len(found)).Msg("Alert publish failed")
	}
	return counts, nil
}

func alertRow(a Alert, runID uuid.UUID) []any {
	var base, delta pgtype.Numeric
	if a.Baseline != nil {
		base = warehouse.Numeric(a.Baseline.Round(2))
	}
	if a.DeltaPct != nil {
		delta = warehouse.Numeric(*a.DeltaPct)
	}
	return []any{
		a.DateKey, a.StoreID, a.Type, a.Metric, warehouse.Numeric(a.Current.Round(2)),
		base, delta, a.Message, int16(a.Severity), runID,
	}
}

func (d *Detector) days(ctx context.Context, fromKey, toKey int) ([]Day, error) {
	rows, err := d.q.Query(ctx, reconciliationSQL, fromKey, toKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var day Day
		var revenue, gross, receipt pgtype.Numeric
		if err := rows.Scan(&day.DateKey, &day.StoreID, &revenue, &gross, &receipt); err != nil {
			return nil, err
		}
		day.Revenue = warehouse.Decimal(revenue)
		day.GrossProfit = warehouse.Decimal(gross)
		day.NetReceipt = warehouse.Decimal(receipt)
		out = append(out, day)
	}
	return out, rows.Err()
}
