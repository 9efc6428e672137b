// Package analytics materializes the daily profit fact, the RFM customer
// segments and the site-candidate scores from warehouse contents.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Materializer refreshes the analytical tables. Every refresh is
// idempotent for unchanged inputs.
type Materializer struct {
	q   db.Querier
	now func() time.Time
}

// New returns a Materializer on the wall clock.
func New(q db.Querier) *Materializer {
	return &Materializer{q: q, now: time.Now}
}

// WithClock replaces the clock used for recency.
func (m *Materializer) WithClock(now func() time.Time) *Materializer {
	m.now = now
	return m
}

const profitDailySQL = `
WITH rev AS (
    SELECT to_char(o.created_at, 'YYYYMMDD')::integer AS date_key,
           o.store_id,
           SUM(o.total_amount) AS revenue
    FROM orders o
    WHERE o.pay_state = 2 AND o.delflag = 0 AND %[1]s
    GROUP BY 1, 2
), cost AS (
    SELECT to_char(o.created_at, 'YYYYMMDD')::integer AS date_key,
           o.store_id,
           SUM(i.quantity * COALESCE(p.cost_price, 0)) AS cogs
    FROM order_items i
    JOIN orders o ON o.id = i.order_id
    LEFT JOIN products p ON p.id = i.product_id
    WHERE o.pay_state = 2 AND o.delflag = 0 AND i.delflag = 0 AND %[1]s
    GROUP BY 1, 2
)
INSERT INTO fact_profit_daily (date_key, store_id, revenue, cogs, operating_exp, updated_at)
SELECT r.date_key, r.store_id, r.revenue, COALESCE(c.cogs, 0), COALESCE(e.amount, 0), now()
FROM rev r
LEFT JOIN cost c ON c.date_key = r.date_key AND c.store_id = r.store_id
LEFT JOIN operating_expense_daily e ON e.date_key = r.date_key AND e.store_id = r.store_id
ON CONFLICT (date_key, store_id) DO UPDATE SET
    revenue    = EXCLUDED.revenue,
    cogs       = EXCLUDED.cogs,
    updated_at = now()
WHERE (fact_profit_daily.revenue, fact_profit_daily.cogs)
      IS DISTINCT FROM (EXCLUDED.revenue, EXCLUDED.cogs)`

// Days in range whose orders have all gone keep their row with zero
// revenue and cost, so imported expenses survive.
const zeroProfitDailySQL = `
UPDATE fact_profit_daily f
SET revenue = 0, cogs = 0, updated_at = now()
WHERE (f.revenue, f.cogs) IS DISTINCT FROM (0::numeric, 0::numeric) AND %[1]s
  AND NOT EXISTS (
      SELECT 1 FROM orders o
      WHERE o.pay_state = 2 AND o.delflag = 0
        AND o.store_id = f.store_id
        AND to_char(o.created_at, 'YYYYMMDD')::integer = f.date_key)`

// RefreshProfitDaily merges revenue and cost of goods per store and day
// for the orders of rng, the whole history when rng is zero. Existing
// operating expenses are preserved.
func (m *Materializer) RefreshProfitDaily(ctx context.Context, rng source.Range) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableProfitDaily)

	where, args := "true", []any{}
	days, dayArgs := "true", []any{}
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		where += fmt.Sprintf(" AND o.created_at >= $%d", len(args))
		dayArgs = append(dayArgs, warehouse.DateKey(rng.From))
		days += fmt.Sprintf(" AND f.date_key >= $%d", len(dayArgs))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		where += fmt.Sprintf(" AND o.created_at < $%d", len(args))
		dayArgs = append(dayArgs, warehouse.DateKey(rng.To))
		days += fmt.Sprintf(" AND f.date_key < $%d", len(dayArgs))
	}

	tx, err := m.q.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("refresh profit daily: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf(profitDailySQL, where), args...)
	if err != nil {
		return counts, fmt.Errorf("refresh profit daily: %w", err)
	}
	zeroed, err := tx.Exec(ctx, fmt.Sprintf(zeroProfitDailySQL, days), dayArgs...)
	if err != nil {
		return counts, fmt.Errorf("zero emptied profit days: %w", err)
	}
	if err := db.Commit(ctx, tx); err != nil {
		return counts, fmt.Errorf("refresh profit daily: %w", err)
	}
	if n := zeroed.RowsAffected(); n > 0 {
		logging.Info().Int64("rows", n).Msg("Zeroed profit days without orders")
	}
	counts.Insert(tag.RowsAffected() + zeroed.RowsAffected())
	return counts, nil
}

const customerAggregateSQL = `
SELECT customer_id,
       MIN(created_at),
       MAX(created_at),
       COUNT(*),
       SUM(total_amount)
FROM orders
WHERE pay_state = 2 AND delflag = 0 AND customer_id IS NOT NULL AND customer_id <> ''
GROUP BY customer_id
ORDER BY customer_id`

type customerAggregate struct {
	RFM
	first, last time.Time
}

// RefreshCustomerSegments rescores every customer with paid orders,
// replaces customer_segments and updates the order aggregates and label
// on customer_profiles, all in one transaction.
func (m *Materializer) RefreshCustomerSegments(ctx context.Context) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableSegments)
	computedAt := m.now()
	now := WallClock(computedAt)

	rows, err := m.q.Query(ctx, customerAggregateSQL)
	if err != nil {
		return counts, fmt.Errorf("customer aggregates: %w", err)
	}
	var customers []customerAggregate
	for rows.Next() {
		var id string
		var first, last time.Time
		var n int
		var total pgtype.Numeric
		if err := rows.Scan(&id, &first, &last, &n, &total); err != nil {
			rows.Close()
			return counts, err
		}
		customers = append(customers, customerAggregate{
			RFM:   Score(id, RecencyDays(last, now), n, warehouse.Decimal(total)),
			first: first,
			last:  last,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return counts, err
	}

	tx, err := m.q.Begin(ctx)
	if err != nil {
		return counts, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM customer_segments"); err != nil {
		return counts, err
	}

	segments := make([][]any, len(customers))
	for i, c := range customers {
		segments[i] = []any{
			c.CustomerID, c.RecencyDays, c.Frequency, warehouse.Numeric(c.Monetary.Round(2)),
			int16(c.R), int16(c.F), int16(c.M), int16(c.Code()), c.Label(), computedAt,
		}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{warehouse.TableSegments},
		[]string{"customer_id", "recency_days", "frequency", "monetary", "r_score", "f_score", "m_score",
			"segment_code", "segment_label", "computed_at"},
		pgx.CopyFromRows(segments))
	if err != nil {
		return counts, fmt.Errorf("write segments: %w", err)
	}
	counts.Insert(n)

	updated, err := updateProfiles(ctx, tx, customers)
	if err != nil {
		return counts, err
	}
	if err := db.Commit(ctx, tx); err != nil {
		return counts, err
	}

	logging.Info().Int64("segments", n).Int64("profiles", updated).Msg("Customer segments refreshed")
	return counts, nil
}

// updateProfiles stages the aggregates and applies them to the profiles
// in one statement.
func updateProfiles(ctx context.Context, tx pgx.Tx, customers []customerAggregate) (int64, error) {
	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE profile_stage (
    customer_id       VARCHAR(64) PRIMARY KEY,
    first_order_date  TIMESTAMP,
    last_order_date   TIMESTAMP,
    order_count       INTEGER,
    total_amount      NUMERIC(14,2),
    avg_order_amount  NUMERIC(12,2),
    customer_segment  VARCHAR(16)
) ON COMMIT DROP`); err != nil {
		return 0, err
	}

	rows := make([][]any, len(customers))
	for i, c := range customers {
		avg := c.Monetary
		if c.Frequency > 0 {
			avg = c.Monetary.DivRound(decimal.NewFromInt(int64(c.Frequency)), 2)
		}
		rows[i] = []any{
			c.CustomerID, c.first, c.last, c.Frequency,
			warehouse.Numeric(c.Monetary.Round(2)), warehouse.Numeric(avg), c.ProfileLabel(),
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"profile_stage"},
		[]string{"customer_id", "first_order_date", "last_order_date", "order_count", "total_amount",
			"avg_order_amount", "customer_segment"},
		pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("stage profiles: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE customer_profiles p SET
    first_order_date = s.first_order_date,
    last_order_date  = s.last_order_date,
    order_count      = s.order_count,
    total_amount     = s.total_amount,
    avg_order_amount = s.avg_order_amount,
    customer_segment = s.customer_segment,
    updated_at       = now()
FROM profile_stage s
WHERE p.customer_id = s.customer_id AND p.delflag = 0`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const candidatesSQL = `
SELECT id, longitude, latitude
FROM stores
WHERE delflag = 0 AND store_code LIKE 'RG\_%'
ORDER BY id`

const existingStoresSQL = `
SELECT s.id, s.longitude, s.latitude, COALESCE(AVG(f.revenue), 0)
FROM stores s
LEFT JOIN fact_profit_daily f ON f.store_id = s.id
WHERE s.delflag = 0 AND s.store_code NOT LIKE 'RG\_%'
GROUP BY s.id, s.longitude, s.latitude
ORDER BY s.id`

const upsertSiteScoreSQL = `
INSERT INTO fact_site_score (candidate_id, match_score, cannibal_score, total_score, rationale, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (candidate_id) DO UPDATE SET
    match_score    = EXCLUDED.match_score,
    cannibal_score = EXCLUDED.cannibal_score,
    total_score    = EXCLUDED.total_score,
    rationale      = EXCLUDED.rationale,
    updated_at     = now()
WHERE (fact_site_score.match_score, fact_site_score.cannibal_score, fact_site_score.total_score, fact_site_score.rationale)
      IS DISTINCT FROM (EXCLUDED.match_score, EXCLUDED.cannibal_score, EXCLUDED.total_score, EXCLUDED.rationale)`

// RefreshSiteScores scores every candidate store with coordinates. Rows
// are only rewritten when a value changed.
func (m *Materializer) RefreshSiteScores(ctx context.Context) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableSiteScores)

	candidates, err := m.sites(ctx, candidatesSQL, false)
	if err != nil {
		return counts, fmt.Errorf("read candidates: %w", err)
	}
	stores, err := m.sites(ctx, existingStoresSQL, true)
	if err != nil {
		return counts, fmt.Errorf("read stores: %w", err)
	}

	scores := ScoreSites(candidates, stores)
	if len(scores) == 0 {
		return counts, nil
	}

	b := &pgx.Batch{}
	for _, sc := range scores {
		b.Queue(upsertSiteScoreSQL, sc.CandidateID,
			warehouse.FloatNumeric(sc.Match, 6),
			warehouse.FloatNumeric(sc.Cannibal, 6),
			warehouse.FloatNumeric(sc.Total, 6),
			sc.Rationale)
	}
	br := m.q.SendBatch(ctx, b)
	var unchanged int
	for _, sc := range scores {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return counts, fmt.Errorf("site score of store %d: %w", sc.CandidateID, err)
		}
		if tag.RowsAffected() == 0 {
			unchanged++
			continue
		}
		counts.Insert(1)
	}
	if err := br.Close(); err != nil {
		return counts, err
	}
	logging.Debug().Int("unchanged", unchanged).Msg("Site scores refreshed")
	return counts, nil
}

func (m *Materializer) sites(ctx context.Context, sql string, withRevenue bool) ([]Site, error) {
	rows, err := m.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		var s Site
		var lng, lat pgtype.Numeric
		var avg pgtype.Numeric
		dest := []any{&s.ID, &lng, &lat}
		if withRevenue {
			dest = append(dest, &avg)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if lng.Valid && lat.Valid {
			s.Lng, s.Lat, s.HasCoords = warehouse.Float(lng), warehouse.Float(lat), true
		}
		if withRevenue {
			s.AvgRevenue = warehouse.Float(avg)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
