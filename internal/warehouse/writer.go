package warehouse

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
)

type pendingRow struct {
	id   int64
	sql  string
	args []any
}

// Writer queues row-level upserts and sends them as pgx batches. A batch
// that fails on a data error is replayed row by row so one bad row only
// costs itself; a transient failure retries the batch once and then
// skips it.
type Writer struct {
	q      db.Querier
	size   int
	counts *stats.Counts
	rows   []pendingRow

	// OnApplied, when set, is called with the id of every row that was
	// written.
	OnApplied func(id int64) error
}

// NewWriter returns a Writer flushing every size rows into counts.
func NewWriter(q db.Querier, size int, counts *stats.Counts) *Writer {
	if size <= 0 {
		size = 1000
	}
	return &Writer{q: q, size: size, counts: counts}
}

// Add queues one statement. id is the source id reported if the row
// fails. The queue is flushed when full.
func (w *Writer) Add(ctx context.Context, id int64, sql string, args ...any) error {
	w.rows = append(w.rows, pendingRow{id: id, sql: sql, args: args})
	if len(w.rows) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush sends the queued rows.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.rows) == 0 {
		return nil
	}
	rows := w.rows
	w.rows = nil

	err := w.send(ctx, rows)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if db.Classify(err) != db.Permanent {
		logging.Warn().Err(err).Str("table", w.counts.Table).Int("rows", len(rows)).Msg("Batch failed, retrying once")
		if err = w.send(ctx, rows); err == nil {
			return nil
		}
		if db.Classify(err) != db.Permanent {
			logging.Warn().Err(err).
				Str("table", w.counts.Table).
				Int64("first_id", rows[0].id).
				Int("rows", len(rows)).
				Msg("Batch failed twice, skipping")
			w.counts.Skip(int64(len(rows)))
			return nil
		}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	return w.replay(ctx, rows)
}

// send runs rows as one batch. Rows whose statement affected nothing,
// such as an upsert whose guard rejected the update, count as skipped.
func (w *Writer) send(ctx context.Context, rows []pendingRow) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(r.sql, r.args...)
	}
	br := w.q.SendBatch(ctx, b)

	written := make([]int64, 0, len(rows))
	var skipped int64
	for _, r := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if tag.RowsAffected() == 0 {
			skipped++
			logging.Warn().Str("table", w.counts.Table).Int64("id", r.id).Msg("Row not applied")
			continue
		}
		written = append(written, r.id)
	}
	if err := br.Close(); err != nil {
		return err
	}
	w.counts.Skip(skipped)
	for _, id := range written {
		w.markApplied(id)
	}
	return nil
}

func (w *Writer) markApplied(id int64) {
	if w.OnApplied != nil {
		if err := w.OnApplied(id); err != nil {
			w.counts.Skip(1)
			logging.Warn().Err(err).Str("table", w.counts.Table).Int64("id", id).Msg("Row written but not mapped")
			return
		}
	}
	w.counts.Insert(1)
}

func (w *Writer) replay(ctx context.Context, rows []pendingRow) error {
	for _, r := range rows {
		tag, err := w.q.Exec(ctx, r.sql, r.args...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return err
			}
			logging.Warn().
				Str("table", w.counts.Table).
				Int64("id", r.id).
				Str("code", pgErr.Code).
				Msg(pgErr.Message)
			w.counts.Skip(1)
			continue
		}
		if tag.RowsAffected() == 0 {
			w.counts.Skip(1)
			continue
		}
		w.markApplied(r.id)
	}
	return nil
}
