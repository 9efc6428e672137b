package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestScore_Segment534(t *testing.T) {
	s := Score("oA", 10, 7, decimal.NewFromInt(650))

	if s.R != 5 || s.F != 3 || s.M != 4 {
		t.Errorf("Expected scores 5/3/4, got %d/%d/%d", s.R, s.F, s.M)
	}
	if s.Code() != 534 {
		t.Errorf("Expected segment code 534, got %d", s.Code())
	}
	if s.Label() != LabelActive {
		t.Errorf("Expected label %s, got %s", LabelActive, s.Label())
	}
}

func TestScoreThresholds(t *testing.T) {
	recency := map[int]int{0: 5, 30: 5, 31: 4, 60: 4, 61: 3, 90: 3, 91: 2, 180: 2, 181: 1, 1000: 1}
	for days, want := range recency {
		if got := RecencyScore(days); got != want {
			t.Errorf("RecencyScore(%d): expected %d, got %d", days, want, got)
		}
	}

	frequency := map[int]int{1: 1, 2: 2, 4: 2, 5: 3, 9: 3, 10: 4, 19: 4, 20: 5, 200: 5}
	for n, want := range frequency {
		if got := FrequencyScore(n); got != want {
			t.Errorf("FrequencyScore(%d): expected %d, got %d", n, want, got)
		}
	}

	monetary := map[string]int{"0": 1, "99.99": 1, "100": 2, "199.99": 2, "200": 3, "500": 4, "999.99": 4, "1000": 5}
	for m, want := range monetary {
		if got := MonetaryScore(decimal.RequireFromString(m)); got != want {
			t.Errorf("MonetaryScore(%s): expected %d, got %d", m, want, got)
		}
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		r, f, m int
		label   string
		profile string
	}{
		{5, 5, 5, LabelVIP, ProfileVIP},
		{5, 4, 4, LabelHighValue, ProfileLoyal},
		{5, 1, 1, LabelActive, ProfileNew},
		{4, 2, 2, LabelActive, ProfileActive},
		{3, 4, 4, LabelRegular, ProfileLoyal},
		{3, 2, 2, LabelRegular, ProfileAtRisk},
		{2, 2, 5, LabelAtRisk, ProfileAtRisk},
		{1, 5, 5, LabelLost, ProfileLost},
	}

	for _, tt := range tests {
		s := RFM{R: tt.r, F: tt.f, M: tt.m}
		if got := s.Label(); got != tt.label {
			t.Errorf("%d: expected label %s, got %s", s.Code(), tt.label, got)
		}
		if got := s.ProfileLabel(); got != tt.profile {
			t.Errorf("%d: expected profile label %s, got %s", s.Code(), tt.profile, got)
		}
	}
}

func TestSegmentCodeRange(t *testing.T) {
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				code := RFM{R: r, F: f, M: m}.Code()
				if code < 111 || code > 555 {
					t.Errorf("Code out of range: %d", code)
				}
			}
		}
	}
}

func TestRecencyDays(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	if got := RecencyDays(now.Add(-10*24*time.Hour-time.Hour), now); got != 10 {
		t.Errorf("Expected 10 days, got %d", got)
	}
	if got := RecencyDays(now.Add(time.Hour), now); got != 0 {
		t.Errorf("Expected future order to count as 0 days, got %d", got)
	}
}

func TestRecencyDays_WallClockOfLocalZone(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	// Last order at 20:00 local, stored without a zone and read back as UTC.
	last := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	// Ten days and an hour later on a host running UTC+8.
	now := time.Date(2025, 3, 11, 21, 0, 0, 0, shanghai)

	if got := RecencyDays(last, WallClock(now)); got != 10 {
		t.Errorf("Expected 10 days, got %d", got)
	}
	if got := RecencyDays(last, now); got != 9 {
		t.Errorf("Expected the zone-mixed difference to be 9 days, got %d", got)
	}
}

func TestWallClock(t *testing.T) {
	in := time.Date(2025, 3, 11, 6, 30, 0, 0, time.FixedZone("CST", 8*3600))
	got := WallClock(in)

	if got.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %s", got.Location())
	}
	if got.Hour() != 6 || got.Minute() != 30 || got.Day() != 11 {
		t.Errorf("Expected wall clock 11 06:30 kept, got %s", got)
	}
}
