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
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotdog2030/hotdog-etl/internal/config"
)

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "net failure" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return true }

var _ net.Error = fakeNetErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Permanent},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"canceled", context.Canceled, Permanent},
		{"pg statement timeout", &pgconn.PgError{Code: "57014"}, Timeout},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, Transient},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, Transient},
		{"pg connection exception", &pgconn.PgError{Code: "08006"}, Transient},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, Permanent},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, Permanent},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, Timeout},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, Transient},
		{"mysql gone away", &mysql.MySQLError{Number: 2006}, Transient},
		{"mysql access denied", &mysql.MySQLError{Number: 1045}, Permanent},
		{"mysql invalid conn", mysql.ErrInvalidConn, Transient},
		{"net timeout", fakeNetErr{timeout: true}, Timeout},
		{"net refused", fakeNetErr{timeout: false}, Transient},
		{"wrapped deadlock", fmt.Errorf("batch 3: %w", &pgconn.PgError{Code: "40P01"}), Transient},
		{"commit uncertain", errors.Join(ErrCommitUncertain, &pgconn.PgError{Code: "08006"}), Permanent},
		{"plain", errors.New("boom"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIsIntegrityViolation(t *testing.T) {
	if !IsIntegrityViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("Expected FK violation to be an integrity violation")
	}
	if IsIntegrityViolation(&pgconn.PgError{Code: "40P01"}) {
		t.Error("Deadlock is not an integrity violation")
	}
	if IsIntegrityViolation(errors.New("x")) {
		t.Error("Plain error is not an integrity violation")
	}
}

func TestWithRetryRetriesTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	}, 3, time.Millisecond)

	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsAtAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return fakeNetErr{}
	}, 3, time.Millisecond)

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetryNeverRetriesPermanent(t *testing.T) {
	calls := 0
	want := &pgconn.PgError{Code: "23505"}
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return want
	}, 5, time.Millisecond)

	if calls != 1 {
		t.Errorf("Expected a single call for a permanent error, got %d", calls)
	}
	if !errors.Is(err, want) {
		t.Errorf("Expected the original error, got %v", err)
	}
}

func TestWithRetryNeverReplaysUncertainCommit(t *testing.T) {
	calls := 0
	_ = WithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.Join(ErrCommitUncertain, fakeNetErr{})
	}, 3, time.Millisecond)

	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestWarehouseConnString(t *testing.T) {
	got := WarehouseConnString(config.DatabaseConfig{
		Host: "wh", Port: 5433, User: "etl", Password: "p@ss/word", Database: "hotdog",
	})
	want := "postgres://etl:p%40ss%2Fword@wh:5433/hotdog?application_name=hotdog-etl"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestSourceDSN(t *testing.T) {
	dsn := SourceDSN(config.DatabaseConfig{
		Host: "pos", Port: 3306, User: "reader", Password: "pw", Database: "cyrg2025",
	}, 30*time.Second)

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("Generated DSN does not parse: %v", err)
	}
	if parsed.Addr != "pos:3306" || parsed.DBName != "cyrg2025" || parsed.User != "reader" {
		t.Errorf("Unexpected DSN fields: %+v", parsed)
	}
	if !parsed.ParseTime {
		t.Error("Expected parseTime=true so order dates scan into time.Time")
	}
	if parsed.ReadTimeout != 30*time.Second {
		t.Errorf("Expected readTimeout 30s, got %s", parsed.ReadTimeout)
	}
	if parsed.Params["transaction_read_only"] != "1" {
		t.Error("Expected source sessions to be read-only")
	}
}
