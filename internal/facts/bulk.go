package facts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
)

// MaxWorkers bounds the writer pool.
const MaxWorkers = 8

// Sessions opens dedicated warehouse connections for bulk writers.
type Sessions interface {
	BulkSession(ctx context.Context, name string) (*pgx.Conn, error)
}

// bulkTable describes one COPY target.
type bulkTable struct {
	name    string
	columns []string
	counts  *stats.Counts
	// release is called with the id of every row that was not written.
	release func(id int64)
}

func (t *bulkTable) insertSQL() string {
	ph := make([]string, len(t.columns))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{t.name}.Sanitize(), strings.Join(t.columns, ", "), strings.Join(ph, ", "))
}

type batch struct {
	ids  []int64
	rows [][]any
}

// emitFunc hands one row, keyed by its source id, to the writer pool.
type emitFunc func(id int64, row []any) error

// copyRows streams the rows produced by produce into t. Batches go to a
// fixed pool of workers, each on its own bulk session, so no connection
// is shared. Ordering between batches is not preserved.
func copyRows(ctx context.Context, sessions Sessions, t *bulkTable, batchSize, workers int, produce func(emit emitFunc) error) error {
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	progress := stats.NewProgress(t.name, 100000)
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan batch, workers)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			conn, err := sessions.BulkSession(gctx, fmt.Sprintf("%s-%d", t.name, i))
			if err != nil {
				return err
			}
			defer conn.Close(context.WithoutCancel(gctx))

			for b := range ch {
				if err := writeBatch(gctx, conn, t, b); err != nil {
					return err
				}
				progress.Update(int64(len(b.rows)))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(ch)

		cur := batch{}
		send := func() error {
			select {
			case ch <- cur:
				cur = batch{}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		err := produce(func(id int64, row []any) error {
			cur.ids = append(cur.ids, id)
			cur.rows = append(cur.rows, row)
			if len(cur.rows) >= batchSize {
				return send()
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(cur.rows) > 0 {
			return send()
		}
		return nil
	})

	return g.Wait()
}

// writeBatch copies one batch. A transient failure is retried once and
// then the batch is skipped; a data error falls back to row-by-row
// inserts so only the offending rows are lost.
func writeBatch(ctx context.Context, conn *pgx.Conn, t *bulkTable, b batch) error {
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(b.rows))
	if err == nil {
		t.counts.Insert(n)
		logging.Debug().Str("table", t.name).Int64("rows", n).Dur("duration", time.Since(start)).Msg("Batch copied")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if db.Classify(err) != db.Permanent {
		logging.Warn().Err(err).Str("table", t.name).Int("rows", len(b.rows)).Msg("Batch failed, retrying once")
		n, err = conn.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(b.rows))
		if err == nil {
			t.counts.Insert(n)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if db.Classify(err) != db.Permanent {
			logging.Warn().Err(err).
				Str("table", t.name).
				Int64("first_id", b.ids[0]).
				Int("rows", len(b.rows)).
				Msg("Batch failed twice, skipping")
			skipAll(t, b)
			return nil
		}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	logging.Warn().Str("table", t.name).Str("code", pgErr.Code).Msg("Batch rejected, inserting row by row")
	return insertRows(ctx, conn, t, b)
}

func insertRows(ctx context.Context, conn *pgx.Conn, t *bulkTable, b batch) error {
	sql := t.insertSQL()
	for i, row := range b.rows {
		_, err := conn.Exec(ctx, sql, row...)
		if err == nil {
			t.counts.Insert(1)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return err
		}
		logging.Warn().
			Str("table", t.name).
			Int64("id", b.ids[i]).
			Str("code", pgErr.Code).
			Msg(pgErr.Message)
		t.counts.Skip(1)
		if t.release != nil {
			t.release(b.ids[i])
		}
	}
	return nil
}

func skipAll(t *bulkTable, b batch) {
	t.counts.Skip(int64(len(b.ids)))
	if t.release != nil {
		for _, id := range b.ids {
			t.release(id)
		}
	}
}
