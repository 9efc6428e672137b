package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hotdog2030/hotdog-etl/internal/alerts"
	"github.com/hotdog2030/hotdog-etl/internal/analytics"
	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/dimensions"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/facts"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
	"github.com/hotdog2030/hotdog-etl/pkg/version"
)

// Run modes, one per CLI command.
const (
	ModeRunAll           = "run-all"
	ModeLoadDimensions   = "load-dimensions"
	ModeLoadFacts        = "load-facts"
	ModeRefreshAnalytics = "refresh-analytics"
	ModeDetectAlerts     = "detect-alerts"
)

// Components are the parts a run's stages call into. Parts a mode does
// not use may be nil.
type Components struct {
	Warehouse  db.Querier
	Sources    []*source.Reader
	Dimensions *dimensions.Loader
	Facts      *facts.Loader
	Analytics  *analytics.Materializer
	Alerts     *alerts.Detector

	SchemaMode warehouse.Mode
	Range      source.Range
	RunID      uuid.UUID
}

func single(f func(ctx context.Context) (*stats.Counts, error)) func(ctx context.Context) ([]*stats.Counts, error) {
	return func(ctx context.Context) ([]*stats.Counts, error) {
		c, err := f(ctx)
		return []*stats.Counts{c}, err
	}
}

// SchemaStage provisions the warehouse in the configured mode.
func SchemaStage(c Components) Stage {
	return Stage{Name: "schema", Fatal: true, Run: func(ctx context.Context) ([]*stats.Counts, error) {
		if err := warehouse.EnsureSchema(ctx, c.Warehouse, c.SchemaMode); err != nil {
			return nil, err
		}
		return nil, warehouse.Verify(ctx, c.Warehouse)
	}}
}

// VerifyStage checks the warehouse was provisioned at this schema
// version.
func VerifyStage(c Components) Stage {
	return Stage{Name: "verify", Fatal: true, Run: func(ctx context.Context) ([]*stats.Counts, error) {
		return nil, warehouse.Verify(ctx, c.Warehouse)
	}}
}

// ContractStage checks every source carries the tables and columns the
// loaders read.
func ContractStage(c Components) Stage {
	return Stage{Name: "source_contract", Fatal: true, Run: func(ctx context.Context) ([]*stats.Counts, error) {
		for _, r := range c.Sources {
			if err := r.CheckContract(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}}
}

// DimensionStages load the dimensions. The store load is fatal since
// every later table references stores.
func DimensionStages(c Components) []Stage {
	d := c.Dimensions
	return []Stage{
		{Name: "stores", Fatal: true, Run: single(d.LoadStores)},
		{Name: "regions_cities", Run: d.LoadRegionsAndCities},
		{Name: "products", Run: d.LoadProducts},
		{Name: "customers", Run: single(d.LoadCustomers)},
		{Name: "seek_shops", Run: d.LoadRgSeekShopAsStores},
	}
}

// FactStages load orders and then their items.
func FactStages(c Components) []Stage {
	f := c.Facts
	return []Stage{
		{Name: "orders", Run: func(ctx context.Context) ([]*stats.Counts, error) {
			counts, err := f.LoadOrders(ctx, c.Range)
			return []*stats.Counts{counts}, err
		}},
		{Name: "order_items", Run: func(ctx context.Context) ([]*stats.Counts, error) {
			counts, err := f.LoadItems(ctx, c.Range)
			return []*stats.Counts{counts}, err
		}},
	}
}

// AnalyticsStages refresh the analytical tables.
func AnalyticsStages(c Components) []Stage {
	a := c.Analytics
	return []Stage{
		{Name: "profit_daily", Run: func(ctx context.Context) ([]*stats.Counts, error) {
			counts, err := a.RefreshProfitDaily(ctx, c.Range)
			return []*stats.Counts{counts}, err
		}},
		{Name: "customer_segments", Run: single(a.RefreshCustomerSegments)},
		{Name: "site_scores", Run: single(a.RefreshSiteScores)},
	}
}

// AlertStage detects alerts for the run's range.
func AlertStage(c Components) Stage {
	return Stage{Name: "alerts", Run: func(ctx context.Context) ([]*stats.Counts, error) {
		counts, err := c.Alerts.Run(ctx, c.Range, c.RunID)
		return []*stats.Counts{counts}, err
	}}
}

// Stages returns the stages of mode in execution order.
func Stages(mode string, c Components) ([]Stage, error) {
	switch mode {
	case ModeRunAll:
		stages := []Stage{SchemaStage(c), ContractStage(c)}
		stages = append(stages, DimensionStages(c)...)
		stages = append(stages, FactStages(c)...)
		stages = append(stages, AnalyticsStages(c)...)
		return append(stages, AlertStage(c)), nil
	case ModeLoadDimensions:
		return append([]Stage{VerifyStage(c), ContractStage(c)}, DimensionStages(c)...), nil
	case ModeLoadFacts:
		return append([]Stage{VerifyStage(c), ContractStage(c)}, FactStages(c)...), nil
	case ModeRefreshAnalytics:
		return append([]Stage{VerifyStage(c)}, AnalyticsStages(c)...), nil
	case ModeDetectAlerts:
		return []Stage{VerifyStage(c), AlertStage(c)}, nil
	default:
		return nil, etlerr.Newf(etlerr.Config, "mode", "unknown run mode %q", mode)
	}
}

// UsesSources reports whether mode reads the source databases.
func UsesSources(mode string) bool {
	return mode == ModeRunAll || mode == ModeLoadDimensions || mode == ModeLoadFacts
}

// Status is the run status recorded in the metadata table.
func Status(err error) string {
	switch etlerr.ExitCode(err) {
	case etlerr.ExitOK:
		return "success"
	case etlerr.ExitPartial:
		return "partial"
	default:
		return "failed"
	}
}

// RecordRun saves the outcome of a run in the warehouse metadata.
func RecordRun(ctx context.Context, q db.Querier, mode string, runID uuid.UUID, rng source.Range, runErr error, finished time.Time) error {
	values := map[string]string{
		db.MetaLastRunID:     runID.String(),
		db.MetaLastRunMode:   mode,
		db.MetaLastRunStatus: Status(runErr),
		db.MetaLastRunAt:     finished.Format(time.RFC3339),
		db.MetaAppVersion:    version.Version,
	}
	if mode == ModeRunAll || mode == ModeLoadFacts {
		values[db.MetaLastFactsRange] = FormatRange(rng)
	}
	return db.SaveMetadata(ctx, q, values)
}

// FormatRange renders a range as from..to date keys, "all" when unbounded.
func FormatRange(rng source.Range) string {
	if rng.IsZero() {
		return "all"
	}
	from, to := "", ""
	if !rng.From.IsZero() {
		from = fmt.Sprint(warehouse.DateKey(rng.From))
	}
	if !rng.To.IsZero() {
		to = fmt.Sprint(warehouse.DateKey(rng.To))
	}
	return from + ".." + to
}
