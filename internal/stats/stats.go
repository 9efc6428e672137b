//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package stats carries per-table row counts and load progress.
package stats

import (
	"sync/atomic"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Counts tracks inserted and skipped rows of one target table. It is safe
// for concurrent use by loader workers.
type Counts struct {
	Table    string
	inserted atomic.Int64
	skipped  atomic.Int64
}

// NewCounts returns zeroed counts for table.
func NewCounts(table string) *Counts {
	return &Counts{Table: table}
}

// Insert adds n written rows.
func (c *Counts) Insert(n int64) { c.inserted.Add(n) }

// Skip adds n rows that were not written.
func (c *Counts) Skip(n int64) { c.skipped.Add(n) }

// Inserted returns the written row count.
func (c *Counts) Inserted() int64 { return c.inserted.Load() }

// Skipped returns the skipped row count.
func (c *Counts) Skipped() int64 { return c.skipped.Load() }

// Log writes the one-line table summary.
func (c *Counts) Log() {
	logging.Info().
		Str("table", c.Table).
		Int64("inserted", c.Inserted()).
		Int64("skipped", c.Skipped()).
		Msg("Table loaded")
}

// Sum totals a set of counts.
func Sum(counts ...*Counts) (inserted, skipped int64) {
	for _, c := range counts {
		if c == nil {
			continue
		}
		inserted += c.Inserted()
		skipped += c.Skipped()
	}
	return inserted, skipped
}

// Progress logs every interval rows while a long table load runs.
type Progress struct {
	table    string
	interval int64
	current  atomic.Int64
}

// NewProgress creates a progress logger. A non-positive interval
// disables the periodic lines.
func NewProgress(table string, interval int64) *Progress {
	return &Progress{table: table, interval: interval}
}

// Update adds rows and logs when an interval boundary is crossed.
func (p *Progress) Update(rows int64) {
	cur := p.current.Add(rows)
	if p.interval <= 0 {
		return
	}
	if cur/p.interval > (cur-rows)/p.interval {
		logging.Info().
			Str("table", p.table).
			Int64("rows", cur).
			Msg("Loading")
	}
}

// Rows returns the rows seen so far.
func (p *Progress) Rows() int64 {
	return p.current.Load()
}
