package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hotdog2030/hotdog-etl/internal/alerts"
	"github.com/hotdog2030/hotdog-etl/internal/analytics"
	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/dimensions"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/facts"
	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/metrics"
	"github.com/hotdog2030/hotdog-etl/internal/pipeline"
	"github.com/hotdog2030/hotdog-etl/internal/runlock"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

var (
	runFrom string
	runTo   string
)

type modeSpec struct {
	mode   string
	short  string
	long   string
	ranged bool
}

var modes = []modeSpec{
	{
		mode:  pipeline.ModeLoadDimensions,
		short: "Load stores, regions, cities, products, customers and prospective sites",
		long: `Load the dimension tables from both sources. Stores are loaded first and
a failure there aborts the run; the other dimensions continue past
failures and the command exits with status 2.`,
	},
	{
		mode:  pipeline.ModeLoadFacts,
		short: "Load orders and order items",
		long: `Load paid orders and their items. Without a range every fact row is
replaced; with --from/--to only orders recorded in that range are.

Example:
  hotdog-etl load-facts --from 20250301 --to 20250331`,
		ranged: true,
	},
	{
		mode:   pipeline.ModeRefreshAnalytics,
		short:  "Refresh daily profit, customer segments and site scores",
		long:   `Refresh the analytical tables from the loaded facts.`,
		ranged: true,
	},
	{
		mode:   pipeline.ModeDetectAlerts,
		short:  "Detect week-over-week, margin and net receipt alerts",
		long:   `Scan the profit reconciliation and append alerts to fact_alerts.`,
		ranged: true,
	},
	{
		mode:  pipeline.ModeRunAll,
		short: "Run every stage in order",
		long: `Provision missing warehouse objects, then load dimensions and facts,
refresh analytics and detect alerts.

The first SIGINT or SIGTERM stops the run after the current stage; a
second one aborts the stage in flight.`,
		ranged: true,
	},
}

func modeCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(modes))
	for _, m := range modes {
		c := &cobra.Command{
			Use:   m.mode,
			Short: m.short,
			Long:  m.long,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPipeline(cmd, m.mode)
			},
		}
		if m.ranged {
			c.Flags().StringVar(&runFrom, "from", "", "first day to load (YYYYMMDD)")
			c.Flags().StringVar(&runTo, "to", "", "last day to load, inclusive (YYYYMMDD)")
		}
		cmds = append(cmds, c)
	}
	return cmds
}

// parseRange turns --from/--to day keys into a source range. The last
// day is inclusive on the command line and exclusive in the range.
func parseRange(from, to string) (source.Range, error) {
	var rng source.Range
	if from != "" {
		t, err := warehouse.ParseDateKey(from)
		if err != nil {
			return rng, etlerr.Newf(etlerr.Config, "range", "invalid --from %q: want YYYYMMDD", from)
		}
		rng.From = t
	}
	if to != "" {
		t, err := warehouse.ParseDateKey(to)
		if err != nil {
			return rng, etlerr.Newf(etlerr.Config, "range", "invalid --to %q: want YYYYMMDD", to)
		}
		rng.To = t.AddDate(0, 0, 1)
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return rng, etlerr.Newf(etlerr.Config, "range", "--from %s is after --to %s", from, to)
	}
	return rng, nil
}

func runPipeline(cmd *cobra.Command, mode string) error {
	withSources := pipeline.UsesSources(mode)
	validate := cfg.ValidateWarehouse
	if withSources {
		validate = cfg.ValidateSources
	}
	if err := validate(); err != nil {
		return etlerr.New(etlerr.Config, mode, err)
	}

	rng, err := parseRange(runFrom, runTo)
	if err != nil {
		return err
	}

	runID := uuid.New()
	logging.WithRun(runID.String())

	ctx, stop, release := pipeline.Interrupts(context.Background())
	defer release()

	mgr := db.NewManager(cfg)
	defer mgr.Close()

	pool, err := mgr.Warehouse(ctx)
	if err != nil {
		return err
	}

	var lock pipeline.Refresher
	if cfg.Redis.Addr != "" {
		client := runlock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()

		l, err := runlock.Acquire(ctx, client, runID.String(), cfg.Redis.LockTTL)
		if err != nil {
			return etlerr.New(etlerr.Config, "run lock", err)
		}
		defer func() {
			if err := l.Release(context.Background()); err != nil {
				logging.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
		lock = l
	}

	comps := pipeline.Components{
		Warehouse:  pool,
		Analytics:  analytics.New(pool),
		SchemaMode: warehouse.Ensure,
		Range:      rng,
		RunID:      runID,
	}

	if withSources {
		posDB, err := mgr.Source(ctx, db.RoleSourcePOS)
		if err != nil {
			return err
		}
		miniDB, err := mgr.Source(ctx, db.RoleSourceMini)
		if err != nil {
			return err
		}
		pos := source.NewReader(posDB, source.POS)
		mini := source.NewReader(miniDB, source.Mini)
		ids := identity.New()

		comps.Sources = []*source.Reader{pos, mini}
		comps.Dimensions = dimensions.NewLoader(pool, pos, mini, ids, cfg.Load.BatchSize)
		comps.Facts = facts.NewLoader(pool, mgr, ids, facts.Options{
			BatchSize:      cfg.Load.BatchSize,
			Workers:        cfg.Load.Workers,
			DisableIndexes: cfg.Load.DisableIndexes,
		}, pos, mini)
	}

	var pub alerts.Publisher = alerts.NopPublisher{}
	if cfg.AMQP.URL != "" {
		p, err := alerts.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			// alerts still land in fact_alerts
			logging.Warn().Err(err).Msg("Alert fan-out disabled")
		} else {
			defer p.Close()
			pub = p
		}
	}
	comps.Alerts = alerts.NewDetector(pool, alerts.ThresholdsFrom(cfg.Alerts), pub)

	stages, err := pipeline.Stages(mode, comps)
	if err != nil {
		return err
	}

	logging.Info().
		Str("mode", mode).
		Str("range", pipeline.FormatRange(rng)).
		Int("stages", len(stages)).
		Msg("Starting run")

	m := metrics.NewRun()
	results, runErr := pipeline.New(pipeline.Config{
		Out:     cmd.OutOrStdout(),
		Metrics: m,
		Lock:    lock,
		Stop:    stop,
	}, stages...).Run(ctx)
	finished := time.Now()
	if runErr == nil {
		m.Succeeded(finished)
	}

	// the run context may be cancelled; the bookkeeping still happens
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := pipeline.RecordRun(bg, pool, mode, runID, rng, runErr, finished); err != nil {
		logging.Warn().Err(err).Msg("Failed to record run metadata")
	}
	if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, mode); err != nil {
		logging.Warn().Err(err).Msg("Failed to push metrics")
	}

	logging.Info().
		Str("mode", mode).
		Str("status", pipeline.Status(runErr)).
		Int("stages_run", len(results)).
		Msg("Run finished")

	if runErr != nil {
		return fmt.Errorf("%s: %w", mode, runErr)
	}
	return nil
}
