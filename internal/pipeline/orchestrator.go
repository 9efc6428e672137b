//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the load stages strictly in order, reports each
// stage's counts and decides which failures abort a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/metrics"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
)

// ErrStopped is returned when an operator interrupt stopped the run at a
// stage boundary.
var ErrStopped = errors.New("run stopped by operator")

// Stage is one step of a run. A failing Fatal stage aborts the run; any
// other failure is reported and the run moves on.
type Stage struct {
	Name  string
	Fatal bool
	Run   func(ctx context.Context) ([]*stats.Counts, error)
}

// Result is the outcome of one stage.
type Result struct {
	Stage    string
	Inserted int64
	Skipped  int64
	Elapsed  time.Duration
	Err      error
}

// Summary is the one-line stage record written to the output.
func (r Result) Summary() string {
	return fmt.Sprintf("stage=%s inserted=%d skipped=%d ms=%d", r.Stage, r.Inserted, r.Skipped, r.Elapsed.Milliseconds())
}

// Refresher keeps a run lock alive between stages.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config wires the optional parts of an Orchestrator.
type Config struct {
	// Out receives one summary line per stage. Nothing is written when nil.
	Out io.Writer

	// Metrics records stage outcomes when set.
	Metrics *metrics.Run

	// Lock is refreshed before every stage when set.
	Lock Refresher

	// Stop, once closed, ends the run at the next stage boundary.
	Stop <-chan struct{}
}

// Orchestrator runs stages sequentially.
type Orchestrator struct {
	cfg    Config
	stages []Stage
}

// New creates an Orchestrator for stages.
func New(cfg Config, stages ...Stage) *Orchestrator {
	return &Orchestrator{cfg: cfg, stages: stages}
}

// Run executes every stage in order. It returns the results of the stages
// that ran and the error deciding the exit code: the classified error of
// an aborting stage, a Partial error wrapping the first failure of a
// non-fatal stage, or nil.
func (o *Orchestrator) Run(ctx context.Context) ([]Result, error) {
	var results []Result
	var firstFailure error

	for _, st := range o.stages {
		if o.stopped() {
			logging.Warn().Str("next_stage", st.Name).Msg("Stopping at stage boundary")
			return results, etlerr.New(etlerr.Partial, "run", ErrStopped)
		}
		if err := ctx.Err(); err != nil {
			return results, etlerr.New(etlerr.Partial, "run", err)
		}
		if o.cfg.Lock != nil {
			if err := o.cfg.Lock.Refresh(ctx); err != nil {
				return results, etlerr.New(etlerr.Config, "run lock", err)
			}
		}

		res := o.runStage(ctx, st)
		results = append(results, res)
		if res.Err == nil {
			continue
		}

		kind := etlerr.KindOf(res.Err)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.ObserveFailure(st.Name, kind.String())
		}
		logging.Error().Err(res.Err).Str("stage", st.Name).Str("kind", kind.String()).Msg("Stage failed")

		if st.Fatal || aborts(kind) || errors.Is(res.Err, context.Canceled) {
			return results, res.Err
		}
		if firstFailure == nil {
			firstFailure = res.Err
		}
	}

	if firstFailure != nil {
		return results, etlerr.New(etlerr.Partial, "run", firstFailure)
	}
	return results, nil
}

func (o *Orchestrator) runStage(ctx context.Context, st Stage) Result {
	logging.Info().Str("stage", st.Name).Msg("Stage started")
	start := time.Now()

	counts, err := st.Run(ctx)

	res := Result{Stage: st.Name, Elapsed: time.Since(start), Err: classify(st.Name, err)}
	res.Inserted, res.Skipped = stats.Sum(counts...)
	for _, c := range counts {
		if c != nil {
			c.Log()
		}
	}

	logging.Info().
		Str("stage", res.Stage).
		Int64("inserted", res.Inserted).
		Int64("skipped", res.Skipped).
		Int64("ms", res.Elapsed.Milliseconds()).
		Msg("Stage finished")
	if o.cfg.Out != nil {
		fmt.Fprintln(o.cfg.Out, res.Summary())
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveStage(res.Stage, res.Inserted, res.Skipped, res.Elapsed)
	}
	return res
}

func (o *Orchestrator) stopped() bool {
	if o.cfg.Stop == nil {
		return false
	}
	select {
	case <-o.cfg.Stop:
		return true
	default:
		return false
	}
}

// aborts reports whether a failure of kind ends the run whatever stage
// raised it.
func aborts(kind etlerr.Kind) bool {
	return kind == etlerr.FatalSchema || kind == etlerr.DataIntegrity
}

// classify gives an unclassified stage error a kind from its cause.
func classify(stage string, err error) error {
	if err == nil || etlerr.KindOf(err) != etlerr.Unknown {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return etlerr.New(etlerr.Partial, stage, err)
	}
	if db.IsIntegrityViolation(err) {
		return etlerr.New(etlerr.DataIntegrity, stage, err)
	}
	// SQLSTATE class 42: the warehouse lacks an object the stage needs
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "42") {
		return etlerr.New(etlerr.FatalSchema, stage, err)
	}
	switch db.Classify(err) {
	case db.Transient, db.Timeout:
		return etlerr.New(etlerr.Transient, stage, err)
	}
	return etlerr.New(etlerr.Connection, stage, err)
}
