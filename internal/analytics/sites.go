package analytics

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for distances.
const EarthRadiusKm = 6371.0

// minDistanceKm floors the distance in the gravity term so a store on the
// same spot does not dominate.
const minDistanceKm = 0.1

const (
	matchWeight    = 0.6
	cannibalWeight = 0.4
)

// Haversine returns the great-circle distance in km between two points
// given as longitude, latitude in degrees.
func Haversine(lng1, lat1, lng2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// Site is a store or candidate position. AvgRevenue is only meaningful
// for existing stores.
type Site struct {
	ID         int64
	Lng, Lat   float64
	HasCoords  bool
	AvgRevenue float64
}

// SiteScore is the score of one candidate.
type SiteScore struct {
	CandidateID int64
	Match       float64
	Cannibal    float64
	Total       float64
	Rationale   string

	rawCannibal float64
	nearestKm   float64
}

// ScoreSites scores every candidate with coordinates against the
// existing stores. Match and cannibalization are normalized by their
// maxima before weighting; a zero maximum normalizes to zero.
func ScoreSites(candidates, stores []Site) []SiteScore {
	var sumRevenue float64
	for _, s := range stores {
		sumRevenue += s.AvgRevenue
	}
	var match float64
	if len(stores) > 0 {
		match = sumRevenue / float64(len(stores))
	}

	scores := make([]SiteScore, 0, len(candidates))
	var maxCannibal float64
	for _, c := range candidates {
		if !c.HasCoords {
			continue
		}
		sc := SiteScore{CandidateID: c.ID, Match: match, nearestKm: -1}
		for _, s := range stores {
			if !s.HasCoords {
				continue
			}
			d := Haversine(c.Lng, c.Lat, s.Lng, s.Lat)
			if sc.nearestKm < 0 || d < sc.nearestKm {
				sc.nearestKm = d
			}
			sc.rawCannibal += s.AvgRevenue / math.Pow(math.Max(d, minDistanceKm), 2)
		}
		maxCannibal = math.Max(maxCannibal, sc.rawCannibal)
		scores = append(scores, sc)
	}

	for i := range scores {
		sc := &scores[i]
		sc.Match = normalize(match, match)
		sc.Cannibal = normalize(sc.rawCannibal, maxCannibal)
		sc.Total = round6(matchWeight*sc.Match + cannibalWeight*(1-sc.Cannibal))
		sc.Match = round6(sc.Match)
		sc.Cannibal = round6(sc.Cannibal)
		sc.Rationale = sc.rationale(match, len(stores))
	}
	return scores
}

func normalize(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func (sc SiteScore) rationale(avgRevenue float64, stores int) string {
	nearest := "no store nearby"
	if sc.nearestKm >= 0 {
		nearest = fmt.Sprintf("nearest store %.2f km", sc.nearestKm)
	}
	return fmt.Sprintf("mean store revenue %.0f over %d stores; %s; gravity %.0f",
		avgRevenue, stores, nearest, sc.rawCannibal)
}
