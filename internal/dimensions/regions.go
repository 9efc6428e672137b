package dimensions

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Region is one node of the administrative tree.
type Region struct {
	Code       string
	Name       string
	ParentCode string
	Level      int
}

// City pairs a city with its province and region node.
type City struct {
	Name       string
	Province   string
	RegionCode string
}

// Place is an observed (province, city) pair.
type Place struct {
	Province string
	City     string
}

// BuildRegions derives the province/city tree from observed places.
// Codes are assigned in sorted order, so the same input always yields
// the same codes.
func BuildRegions(places []Place) ([]Region, []City) {
	cities := map[string]map[string]struct{}{}
	for _, p := range places {
		prov := strings.TrimSpace(p.Province)
		if prov == "" {
			continue
		}
		if _, ok := cities[prov]; !ok {
			cities[prov] = map[string]struct{}{}
		}
		if c := strings.TrimSpace(p.City); c != "" {
			cities[prov][c] = struct{}{}
		}
	}

	provinces := make([]string, 0, len(cities))
	for prov := range cities {
		provinces = append(provinces, prov)
	}
	slices.Sort(provinces)

	var regions []Region
	var out []City
	cityN := 0
	for i, prov := range provinces {
		provCode := fmt.Sprintf("PROV_%03d", i+1)
		regions = append(regions, Region{Code: provCode, Name: prov, Level: 1})

		names := make([]string, 0, len(cities[prov]))
		for c := range cities[prov] {
			names = append(names, c)
		}
		slices.Sort(names)
		for _, c := range names {
			cityN++
			code := fmt.Sprintf("CITY_%03d", cityN)
			regions = append(regions, Region{Code: code, Name: c, ParentCode: provCode, Level: 2})
			out = append(out, City{Name: c, Province: prov, RegionCode: code})
		}
	}
	return regions, out
}

// LoadRegionsAndCities rebuilds regions and cities from the loaded
// stores in one transaction.
func (l *Loader) LoadRegionsAndCities(ctx context.Context) ([]*stats.Counts, error) {
	regionCounts := stats.NewCounts(warehouse.TableRegions)
	cityCounts := stats.NewCounts(warehouse.TableCities)

	rows, err := l.wh.Query(ctx, `
        SELECT DISTINCT COALESCE(province, ''), COALESCE(city, '')
        FROM stores
        WHERE delflag = 0`)
	if err != nil {
		return nil, fmt.Errorf("read store places: %w", err)
	}
	places, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Place, error) {
		var p Place
		err := row.Scan(&p.Province, &p.City)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("read store places: %w", err)
	}

	regions, cities := BuildRegions(places)

	tx, err := l.wh.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cities; DELETE FROM regions;`); err != nil {
		return nil, fmt.Errorf("clear regions: %w", err)
	}

	b := &pgx.Batch{}
	for _, r := range regions {
		var parent *string
		if r.ParentCode != "" {
			parent = &r.ParentCode
		}
		b.Queue(`INSERT INTO regions (code, name, parent_code, level) VALUES ($1, $2, $3, $4)`,
			r.Code, r.Name, parent, r.Level)
	}
	for _, c := range cities {
		b.Queue(`INSERT INTO cities (city_name, province, region_code) VALUES ($1, $2, $3)`,
			c.Name, c.Province, c.RegionCode)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return nil, fmt.Errorf("insert regions: %w", err)
	}
	if err := db.Commit(ctx, tx); err != nil {
		return nil, err
	}

	regionCounts.Insert(int64(len(regions)))
	cityCounts.Insert(int64(len(cities)))
	logging.Debug().Int("provinces", len(regions)-len(cities)).Int("cities", len(cities)).Msg("Regions rebuilt")
	return []*stats.Counts{regionCounts, cityCounts}, nil
}
