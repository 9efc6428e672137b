package cli

import (
	"testing"
	"time"

	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
)

func TestParseRange(t *testing.T) {
	rng, err := parseRange("20250301", "20250331")
	if err != nil {
		t.Fatalf("parseRange failed: %v", err)
	}
	wantFrom := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	wantTo := time.Date(2025, 4, 1, 0, 0, 0, 0, time.Local)
	if !rng.From.Equal(wantFrom) {
		t.Errorf("Expected from %v, got %v", wantFrom, rng.From)
	}
	if !rng.To.Equal(wantTo) {
		t.Errorf("Expected exclusive to %v, got %v", wantTo, rng.To)
	}

	rng, err = parseRange("", "")
	if err != nil || !rng.IsZero() {
		t.Errorf("Expected an unbounded range, got %+v (%v)", rng, err)
	}

	// a single day
	rng, err = parseRange("20250301", "20250301")
	if err != nil || rng.To.Sub(rng.From) != 24*time.Hour {
		t.Errorf("Expected a one day range, got %+v (%v)", rng, err)
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, tt := range []struct{ from, to string }{
		{"2025-03-01", ""},
		{"", "20251301"},
		{"20250401", "20250301"},
	} {
		_, err := parseRange(tt.from, tt.to)
		if !etlerr.Is(err, etlerr.Config) {
			t.Errorf("parseRange(%q, %q): expected a Config error, got %v", tt.from, tt.to, err)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"init", "load-dimensions", "load-facts", "refresh-analytics", "detect-alerts", "run-all",
		"import-expenses", "seed-sources", "status", "version",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("Expected command %s to be registered", name)
		}
	}

	cmd, _, _ := rootCmd.Find([]string{"load-dimensions"})
	if cmd.Flags().Lookup("from") != nil {
		t.Error("load-dimensions should not take a range")
	}
	cmd, _, _ = rootCmd.Find([]string{"load-facts"})
	if cmd.Flags().Lookup("from") == nil || cmd.Flags().Lookup("to") == nil {
		t.Error("load-facts should take --from and --to")
	}
}
