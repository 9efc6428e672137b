package alerts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(key int, store int64, revenue, gross, receipt string) Day {
	return Day{DateKey: key, StoreID: store, Revenue: dec(revenue), GrossProfit: dec(gross), NetReceipt: dec(receipt)}
}

func types(alerts []Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Type
	}
	return out
}

func TestDetect_WowDrop(t *testing.T) {
	days := []Day{
		day(20250303, 1, "2000", "1200", "2000"),
		day(20250310, 1, "1500", "900", "1900"),
	}

	got := Detect(days, DefaultThresholds(), 0, 0)

	if len(got) != 1 || got[0].Type != WowDrop {
		t.Fatalf("Expected one WOW_DROP, got %v", types(got))
	}
	a := got[0]
	if a.DateKey != 20250310 || a.StoreID != 1 {
		t.Errorf("Unexpected key %d/%d", a.StoreID, a.DateKey)
	}
	if a.DeltaPct == nil || !a.DeltaPct.Equal(dec("-0.25")) {
		t.Errorf("Expected delta -0.25, got %v", a.DeltaPct)
	}
	if a.Baseline == nil || !a.Baseline.Equal(dec("2000")) {
		t.Errorf("Expected baseline 2000, got %v", a.Baseline)
	}
	if a.Severity != 2 {
		t.Errorf("Expected severity 2, got %d", a.Severity)
	}
}

func TestDetect_WowDropBoundary(t *testing.T) {
	// exactly -20% fires, -19% does not
	got := Detect([]Day{
		day(20250303, 1, "2000", "2000", "0"),
		day(20250310, 1, "1600", "1600", "0"),
		day(20250303, 2, "2000", "2000", "0"),
		day(20250310, 2, "1620", "1620", "0"),
	}, DefaultThresholds(), 20250310, 0)

	if len(got) != 1 || got[0].StoreID != 1 || got[0].Type != WowDrop {
		t.Errorf("Expected one WOW_DROP for store 1, got %v", got)
	}
}

func TestDetect_GrossLow(t *testing.T) {
	got := Detect([]Day{
		day(20250310, 1, "1000", "450", "0"),
		day(20250310, 2, "1000", "451", "0"),
	}, DefaultThresholds(), 0, 0)

	if len(got) != 1 || got[0].Type != GrossLow || got[0].StoreID != 1 {
		t.Fatalf("Expected one GROSS_LOW for store 1, got %v", got)
	}
	if !got[0].Current.Equal(dec("0.45")) {
		t.Errorf("Expected margin 0.45, got %s", got[0].Current)
	}
	if got[0].Baseline != nil || got[0].DeltaPct != nil {
		t.Error("Expected no baseline on a margin alert")
	}
}

func TestDetect_NetReceiptDrop(t *testing.T) {
	got := Detect([]Day{
		day(20250303, 1, "2000", "1200", "2000"),
		day(20250310, 1, "1900", "1140", "1500"),
	}, DefaultThresholds(), 0, 0)

	if len(got) != 1 || got[0].Type != NetInDrop {
		t.Fatalf("Expected one NETIN_DROP, got %v", types(got))
	}
	if got[0].Metric != "net_receipt_total" {
		t.Errorf("Unexpected metric %s", got[0].Metric)
	}
}

func TestDetect_MinimumRevenue(t *testing.T) {
	got := Detect([]Day{
		day(20250303, 1, "5000", "4000", "5000"),
		day(20250310, 1, "999.99", "10", "10"),
	}, DefaultThresholds(), 20250310, 0)

	if len(got) != 0 {
		t.Errorf("Expected days below the minimum to be ignored, got %v", types(got))
	}
}

func TestDetect_NoBaseline(t *testing.T) {
	got := Detect([]Day{
		day(20250303, 1, "0", "0", "0"),
		day(20250310, 1, "1500", "900", "1500"),
	}, DefaultThresholds(), 0, 0)

	if len(got) != 0 {
		t.Errorf("Expected a zero baseline to produce no drop, got %v", types(got))
	}
}

func TestDetect_Range(t *testing.T) {
	days := []Day{
		day(20250224, 1, "2000", "1200", "2000"),
		day(20250303, 1, "1000", "400", "1000"),
		day(20250310, 1, "500", "100", "500"),
	}

	got := Detect(days, DefaultThresholds(), 20250301, 20250310)

	if len(got) != 3 {
		t.Fatalf("Expected WOW_DROP, GROSS_LOW and NETIN_DROP, got %v", types(got))
	}
	want := []string{WowDrop, GrossLow, NetInDrop}
	for i, a := range got {
		if a.DateKey != 20250303 {
			t.Errorf("Expected only 20250303 to be evaluated, got %d", a.DateKey)
		}
		if a.Type != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, a.Type)
		}
	}
}

func TestWeekBefore(t *testing.T) {
	tests := map[int]int{
		20250310: 20250303,
		20250305: 20250226,
		20250103: 20241227,
	}
	for in, want := range tests {
		if got := weekBefore(in); got != want {
			t.Errorf("weekBefore(%d): expected %d, got %d", in, want, got)
		}
	}
}

func TestBaselineFrom(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	if got := BaselineFrom(from); got != 20250222 {
		t.Errorf("Expected 20250222, got %d", got)
	}
}
