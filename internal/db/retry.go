//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Class is the retry classification of a database error.
type Class int

const (
	// Permanent errors are never retried.
	Permanent Class = iota
	// Transient errors (deadlocks, dropped connections) may be retried.
	Transient
	// Timeout errors hit a statement or dial deadline; retried like
	// transient errors.
	Timeout
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Timeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// ErrCommitUncertain marks a COMMIT whose outcome is unknown. Such errors
// are permanent so a write that may have committed is never replayed.
var ErrCommitUncertain = errors.New("commit outcome unknown")

// Classify maps an error from pgx, the MySQL driver or the network stack
// onto a retry class.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, ErrCommitUncertain) || errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57014": // query_canceled (statement_timeout)
			return Timeout
		case "40001", "40P01", "55P03", "53300", "57P03":
			return Transient
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return Transient
		}
		return Permanent
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205: // lock wait timeout
			return Timeout
		case 1213, 1040, 2006, 2013:
			return Transient
		}
		return Permanent
	}

	if pgconn.Timeout(err) {
		return Timeout
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return Transient
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Transient
	}

	return Permanent
}

// IsIntegrityViolation reports whether err is a constraint violation
// (SQLSTATE class 23) raised by the warehouse.
func IsIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// WithRetry runs op up to attempts times with exponential backoff starting
// at initial. Only transient and timeout errors are retried.
func WithRetry(ctx context.Context, op func(context.Context) error, attempts int, initial time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second

	try := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		try++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		class := Classify(err)
		if class == Permanent {
			return struct{}{}, backoff.Permanent(err)
		}
		if try < attempts {
			logging.Warn().
				Err(err).
				Str("class", class.String()).
				Int("attempt", try).
				Int("max_attempts", attempts).
				Msg("Retrying after database error")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))

	return err
}

// Commit commits tx and marks a failure as uncertain so callers never
// retry the transaction body.
func Commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrCommitUncertain, err)
	}
	return nil
}
