//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package alerts detects week-over-week and margin anomalies on the
// reconciliation view and appends them to fact_alerts.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hotdog2030/hotdog-etl/internal/config"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Alert types.
const (
	WowDrop   = "WOW_DROP"
	GrossLow  = "GROSS_LOW"
	NetInDrop = "NETIN_DROP"
)

// Thresholds configure detection.
type Thresholds struct {
	MinRevenue     decimal.Decimal
	WowDrop        decimal.Decimal
	GrossMarginLow decimal.Decimal
	NetReceiptDrop decimal.Decimal
	Severity       int
}

// ThresholdsFrom converts the configured thresholds.
func ThresholdsFrom(cfg config.AlertConfig) Thresholds {
	return Thresholds{
		MinRevenue:     decimal.NewFromFloat(cfg.MinRevenue),
		WowDrop:        decimal.NewFromFloat(cfg.WowDropPct),
		GrossMarginLow: decimal.NewFromFloat(cfg.GrossMarginLow),
		NetReceiptDrop: decimal.NewFromFloat(cfg.NetReceiptDrop),
		Severity:       cfg.DefaultSeverity,
	}
}

// DefaultThresholds are the thresholds of the default configuration.
func DefaultThresholds() Thresholds {
	return ThresholdsFrom(config.DefaultConfig().Alerts)
}

// Day is one row of the reconciliation view.
type Day struct {
	DateKey     int
	StoreID     int64
	Revenue     decimal.Decimal
	GrossProfit decimal.Decimal
	NetReceipt  decimal.Decimal
}

// Alert is one detected anomaly.
type Alert struct {
	DateKey  int              `json:"date_key"`
	StoreID  int64            `json:"store_id"`
	Type     string           `json:"alert_type"`
	Metric   string           `json:"metric"`
	Current  decimal.Decimal  `json:"current_value"`
	Baseline *decimal.Decimal `json:"baseline_value,omitempty"`
	DeltaPct *decimal.Decimal `json:"delta_pct,omitempty"`
	Message  string           `json:"message"`
	Severity int              `json:"severity"`
	RunID    string           `json:"run_id,omitempty"`
}

type dayKey struct {
	storeID int64
	dateKey int
}

// weekBefore returns the date key seven days before key.
func weekBefore(key int) int {
	return warehouse.DateKey(warehouse.DateOfKey(key).AddDate(0, 0, -7))
}

// change returns (cur - base) / base, false when base is not positive.
func change(cur, base decimal.Decimal) (decimal.Decimal, bool) {
	if !base.IsPositive() {
		return decimal.Zero, false
	}
	return cur.Sub(base).Div(base), true
}

// Detect evaluates every day whose revenue reaches the minimum. Baselines
// are looked up among days, so callers pass the week before the range
// too; only days with keys in [fromKey, toKey) are evaluated, where zero
// disables a bound. Alerts are ordered by store, date and type.
func Detect(days []Day, th Thresholds, fromKey, toKey int) []Alert {
	byKey := make(map[dayKey]Day, len(days))
	for _, d := range days {
		byKey[dayKey{d.StoreID, d.DateKey}] = d
	}

	var out []Alert
	for _, d := range days {
		if (fromKey != 0 && d.DateKey < fromKey) || (toKey != 0 && d.DateKey >= toKey) {
			continue
		}
		if d.Revenue.LessThan(th.MinRevenue) {
			continue
		}

		base, hasBase := byKey[dayKey{d.StoreID, weekBefore(d.DateKey)}]
		if hasBase {
			if delta, ok := change(d.Revenue, base.Revenue); ok && delta.LessThanOrEqual(th.WowDrop) {
				out = append(out, newAlert(d, th, WowDrop, "revenue", d.Revenue, &base.Revenue, &delta,
					fmt.Sprintf("Revenue %s is %s%% against %s a week earlier", d.Revenue.StringFixed(2), pct(delta), base.Revenue.StringFixed(2))))
			}
		}

		margin := d.GrossProfit.Div(d.Revenue)
		if margin.LessThanOrEqual(th.GrossMarginLow) {
			out = append(out, newAlert(d, th, GrossLow, "gross_margin", margin.Round(4), nil, nil,
				fmt.Sprintf("Gross margin %s%% at or below %s%%", pct(margin), pct(th.GrossMarginLow))))
		}

		if hasBase {
			if delta, ok := change(d.NetReceipt, base.NetReceipt); ok && delta.LessThanOrEqual(th.NetReceiptDrop) {
				out = append(out, newAlert(d, th, NetInDrop, "net_receipt_total", d.NetReceipt, &base.NetReceipt, &delta,
					fmt.Sprintf("Net receipts %s are %s%% against %s a week earlier", d.NetReceipt.StringFixed(2), pct(delta), base.NetReceipt.StringFixed(2))))
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].DateKey < out[j].DateKey
	})
	return out
}

func newAlert(d Day, th Thresholds, typ, metric string, cur decimal.Decimal, base, delta *decimal.Decimal, msg string) Alert {
	a := Alert{
		DateKey:  d.DateKey,
		StoreID:  d.StoreID,
		Type:     typ,
		Metric:   metric,
		Current:  cur,
		Baseline: base,
		Message:  msg,
		Severity: th.Severity,
	}
	if delta != nil {
		r := delta.Round(4)
		a.DeltaPct = &r
	}
	return a
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(1)
}

// BaselineFrom returns the date key a read must start at so every day
// from fromKey on has its week-earlier baseline.
func BaselineFrom(from time.Time) int {
	return warehouse.DateKey(from.AddDate(0, 0, -7))
}
