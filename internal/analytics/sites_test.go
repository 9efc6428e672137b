package analytics

import (
	"math"
	"strings"
	"testing"
)

func TestHaversine(t *testing.T) {
	d := Haversine(121.47, 31.23, 121.48, 31.24)
	if d < 1.40 || d > 1.50 {
		t.Errorf("Expected about 1.46 km, got %f", d)
	}
	if Haversine(121.47, 31.23, 121.47, 31.23) != 0 {
		t.Error("Expected zero distance for the same point")
	}
}

func TestScoreSites_Cannibalization(t *testing.T) {
	candidates := []Site{{ID: 101, Lng: 121.47, Lat: 31.23, HasCoords: true}}
	stores := []Site{{ID: 1, Lng: 121.48, Lat: 31.24, HasCoords: true, AvgRevenue: 10000}}

	scores := ScoreSites(candidates, stores)
	if len(scores) != 1 {
		t.Fatalf("Expected 1 score, got %d", len(scores))
	}
	sc := scores[0]

	want := 10000 / math.Pow(Haversine(121.47, 31.23, 121.48, 31.24), 2)
	if math.Abs(sc.rawCannibal-want) > 1e-6 {
		t.Errorf("Expected raw cannibalization %f, got %f", want, sc.rawCannibal)
	}
	if sc.Cannibal != 1.0 {
		t.Errorf("Expected normalized cannibalization 1.0, got %f", sc.Cannibal)
	}
	if sc.Match != 1.0 {
		t.Errorf("Expected normalized match 1.0, got %f", sc.Match)
	}
	if sc.Total != 0.6 {
		t.Errorf("Expected total 0.6, got %f", sc.Total)
	}
	if !strings.Contains(sc.Rationale, "nearest store 1.46 km") {
		t.Errorf("Unexpected rationale: %s", sc.Rationale)
	}
}

func TestScoreSites_Normalization(t *testing.T) {
	candidates := []Site{
		{ID: 10, Lng: 121.47, Lat: 31.23, HasCoords: true},
		{ID: 11, Lng: 116.40, Lat: 39.90, HasCoords: true},
		{ID: 12},
	}
	stores := []Site{
		{ID: 1, Lng: 121.48, Lat: 31.24, HasCoords: true, AvgRevenue: 8000},
		{ID: 2, AvgRevenue: 2000},
	}

	scores := ScoreSites(candidates, stores)
	if len(scores) != 2 {
		t.Fatalf("Expected candidates without coordinates to be skipped, got %d scores", len(scores))
	}
	if scores[0].Cannibal != 1.0 {
		t.Errorf("Expected the nearest candidate to carry the max, got %f", scores[0].Cannibal)
	}
	if scores[1].Cannibal >= 0.01 {
		t.Errorf("Expected a distant candidate to be barely cannibalized, got %f", scores[1].Cannibal)
	}
	if scores[1].Total <= scores[0].Total {
		t.Errorf("Expected the distant candidate to score higher: %f <= %f", scores[1].Total, scores[0].Total)
	}
}

func TestScoreSites_NoStores(t *testing.T) {
	scores := ScoreSites([]Site{{ID: 1, Lng: 121.47, Lat: 31.23, HasCoords: true}}, nil)
	if len(scores) != 1 {
		t.Fatalf("Expected 1 score, got %d", len(scores))
	}
	if scores[0].Match != 0 || scores[0].Cannibal != 0 || scores[0].Total != 0.4 {
		t.Errorf("Unexpected score without stores: %+v", scores[0])
	}
	if !strings.Contains(scores[0].Rationale, "no store nearby") {
		t.Errorf("Unexpected rationale: %s", scores[0].Rationale)
	}
}

func TestScoreSites_Deterministic(t *testing.T) {
	candidates := []Site{{ID: 10, Lng: 121.47, Lat: 31.23, HasCoords: true}}
	stores := []Site{{ID: 1, Lng: 121.48, Lat: 31.24, HasCoords: true, AvgRevenue: 8000}}

	a := ScoreSites(candidates, stores)
	b := ScoreSites(candidates, stores)
	if a[0].Total != b[0].Total || a[0].Rationale != b[0].Rationale {
		t.Error("Expected identical scores for identical inputs")
	}
}
