// Package facts loads orders and order items, applying the revenue
// recognition rules and keeping the source event time.
package facts

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Skip reasons reported per load.
const (
	SkipOutOfBand     = "out_of_band"
	SkipUnmappedStore = "unmapped_store"
	SkipCollision     = "id_collision"
	SkipOrphanItem    = "orphan_item"
	SkipWriteFailed   = "write_failed"
)

// Options tune the bulk path.
type Options struct {
	BatchSize      int
	Workers        int
	DisableIndexes bool
}

type loadedOrder struct {
	system source.System
	at     time.Time
}

// Loader loads the fact tables. The source readers are consulted in
// priority order, POS first, so POS rows win id collisions.
type Loader struct {
	wh       db.Querier
	sessions Sessions
	readers  []*source.Reader
	ids      *identity.Resolver
	opts     Options

	mu      sync.Mutex
	loaded  map[int64]loadedOrder
	skipped map[string]int64
}

// NewLoader creates a fact loader. nil readers are ignored.
func NewLoader(wh db.Querier, sessions Sessions, ids *identity.Resolver, opts Options, readers ...*source.Reader) *Loader {
	var rs []*source.Reader
	for _, r := range readers {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &Loader{
		wh:       wh,
		sessions: sessions,
		readers:  rs,
		ids:      ids,
		opts:     opts,
		skipped:  map[string]int64{},
	}
}

func (l *Loader) skip(counts *stats.Counts, reason string) {
	counts.Skip(1)
	l.mu.Lock()
	l.skipped[reason]++
	l.mu.Unlock()
}

// SkipReasons returns the skip counts by reason since the loader was
// created.
func (l *Loader) SkipReasons() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.skipped)
}

func (l *Loader) logReasons(table string) {
	reasons := l.SkipReasons()
	ev := logging.Info().Str("table", table)
	for _, k := range slices.Sorted(maps.Keys(reasons)) {
		ev = ev.Int64(k, reasons[k])
	}
	ev.Msg("Skip reasons")
}

// clear empties the target rows of rng: the whole table for a full run,
// otherwise only rows whose order falls in the range.
func (l *Loader) clear(ctx context.Context, table string, rng source.Range) error {
	if rng.IsZero() {
		return warehouse.Truncate(ctx, l.wh, table)
	}

	where, args := rangeClause("created_at", rng)
	var sql string
	switch table {
	case warehouse.TableOrders:
		sql = "DELETE FROM orders WHERE " + where
	case warehouse.TableOrderItems:
		sql = "DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE " + where + ")"
	default:
		return fmt.Errorf("no range clear for %s", table)
	}
	_, err := l.wh.Exec(ctx, sql, args...)
	return err
}

// rangeClause builds a half-open time range predicate on col.
func rangeClause(col string, rng source.Range) (string, []any) {
	where := "true"
	var args []any
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		where += fmt.Sprintf(" AND %s >= $%d", col, len(args))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		where += fmt.Sprintf(" AND %s < $%d", col, len(args))
	}
	return where, args
}

// withoutIndexes runs load with the declared indexes of tables dropped
// when configured. The indexes are rebuilt whatever load returns.
func (l *Loader) withoutIndexes(ctx context.Context, load func() error, tables ...string) (err error) {
	if !l.opts.DisableIndexes {
		return load()
	}
	rebuild, err := warehouse.DropIndexes(ctx, l.wh, warehouse.IndexesOn(tables...))
	defer func() {
		if rerr := rebuild(); rerr != nil {
			logging.Error().Err(rerr).Msg("Index rebuild failed")
			if err == nil {
				err = rerr
			}
		}
	}()
	if err != nil {
		return err
	}
	return load()
}
