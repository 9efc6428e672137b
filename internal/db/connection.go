//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package db provides connection and session management for hotdog-etl.
//
// The warehouse is PostgreSQL and is reached through pgx; the two source
// systems are MySQL and are reached read-only through gorm. Every physical
// connection targets exactly one database.
package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hotdog2030/hotdog-etl/internal/config"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Role names the database a session is opened against.
type Role string

const (
	RoleSourcePOS  Role = "source_pos"
	RoleSourceMini Role = "source_mini"
	RoleWarehouse  Role = "warehouse"
)

// connectBackoff is the first retry delay for connection errors.
const connectBackoff = 500 * time.Millisecond

// DefaultPoolConfig returns default connection pool configuration.
func DefaultPoolConfig() *pgxpool.Config {
	poolConfig, _ := pgxpool.ParseConfig("")

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	return poolConfig
}

// WarehouseConnString builds a PostgreSQL URL from a database quintuple.
func WarehouseConnString(d config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	q.Set("application_name", "hotdog-etl")
	u.RawQuery = q.Encode()
	return u.String()
}

// SourceDSN builds a go-sql-driver DSN for a read-only source session.
func SourceDSN(d config.DatabaseConfig, timeout time.Duration) string {
	c := mysql.NewConfig()
	c.User = d.User
	c.Passwd = d.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	c.DBName = d.Database
	c.ParseTime = true
	c.Loc = time.Local
	c.Timeout = 10 * time.Second
	c.ReadTimeout = timeout
	c.Params = map[string]string{
		"charset":               "utf8mb4",
		"transaction_isolation": "'READ-COMMITTED'",
		"transaction_read_only": "1",
	}
	return c.FormatDSN()
}

// Connect establishes a connection pool to the warehouse with the given
// per-statement timeout.
func Connect(ctx context.Context, connString string, maxConns int32, stmtTimeout time.Duration) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, etlerr.New(etlerr.Config, "parse warehouse url", err)
	}

	defaults := DefaultPoolConfig()
	poolConfig.MaxConns = max(maxConns, 2)
	poolConfig.MinConns = defaults.MinConns
	poolConfig.MaxConnLifetime = defaults.MaxConnLifetime
	poolConfig.MaxConnIdleTime = defaults.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = defaults.HealthCheckPeriod
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(stmtTimeout.Milliseconds(), 10)

	logging.Debug().
		Str("host", poolConfig.ConnConfig.Host).
		Uint16("port", poolConfig.ConnConfig.Port).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Connecting to warehouse")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	logging.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Connected to warehouse")

	return pool, nil
}

// ConnectSingle opens one dedicated warehouse connection tagged with an
// application name suffix, for sessions that must not share state.
func ConnectSingle(ctx context.Context, connString, appNameSuffix string, stmtTimeout time.Duration) (*pgx.Conn, error) {
	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, etlerr.New(etlerr.Config, "parse warehouse url", err)
	}
	connConfig.RuntimeParams["application_name"] = "hotdog-etl " + appNameSuffix
	connConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(stmtTimeout.Milliseconds(), 10)

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect (%s): %w", appNameSuffix, err)
	}
	return conn, nil
}

// OpenSource opens a read-only gorm session against a MySQL source.
func OpenSource(ctx context.Context, d config.DatabaseConfig, stmtTimeout time.Duration) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormmysql.Open(SourceDSN(d, stmtTimeout)), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open source %s: %w", d.Database, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping source %s: %w", d.Database, err)
	}
	return gdb, nil
}

// Manager opens and caches the sessions used during one command.
type Manager struct {
	cfg *config.Config

	mu        sync.Mutex
	warehouse *pgxpool.Pool
	sources   map[Role]*gorm.DB
}

// NewManager creates a session manager for the given configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		sources: make(map[Role]*gorm.DB),
	}
}

// Open verifies that the database behind role is reachable, opening and
// caching its session.
func (m *Manager) Open(ctx context.Context, role Role) error {
	switch role {
	case RoleWarehouse:
		_, err := m.Warehouse(ctx)
		return err
	case RoleSourcePOS, RoleSourceMini:
		_, err := m.Source(ctx, role)
		return err
	default:
		return etlerr.Newf(etlerr.Config, "open", "unknown role %q", role)
	}
}

// Warehouse returns the shared warehouse pool, connecting on first use.
func (m *Manager) Warehouse(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.warehouse != nil {
		return m.warehouse, nil
	}

	connString := WarehouseConnString(m.cfg.Warehouse)
	maxConns := int32(m.cfg.Load.Workers + 2)

	var pool *pgxpool.Pool
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		pool, err = Connect(ctx, connString, maxConns, m.cfg.Load.StatementTimeout)
		return err
	}, m.cfg.Load.ConnectAttempts, connectBackoff)
	if err != nil {
		return nil, etlerr.New(etlerr.Connection, string(RoleWarehouse), err)
	}

	m.warehouse = pool
	return pool, nil
}

// Source returns the gorm session for a source role, connecting on first use.
func (m *Manager) Source(ctx context.Context, role Role) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gdb, ok := m.sources[role]; ok {
		return gdb, nil
	}

	var d config.DatabaseConfig
	switch role {
	case RoleSourcePOS:
		d = m.cfg.POS
	case RoleSourceMini:
		d = m.cfg.Mini
	default:
		return nil, etlerr.Newf(etlerr.Config, "open", "%q is not a source role", role)
	}

	var gdb *gorm.DB
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		gdb, err = OpenSource(ctx, d, m.cfg.Load.BulkTimeout)
		return err
	}, m.cfg.Load.ConnectAttempts, connectBackoff)
	if err != nil {
		return nil, etlerr.New(etlerr.Connection, string(role), err)
	}

	logging.Info().
		Str("role", string(role)).
		Str("host", d.Host).
		Str("database", d.Database).
		Msg("Connected to source")

	m.sources[role] = gdb
	return gdb, nil
}

// BulkSession opens a dedicated warehouse connection configured for
// high-throughput writes: the bulk statement timeout applies and commits
// do not wait for WAL flush. The caller owns and must close it.
func (m *Manager) BulkSession(ctx context.Context, name string) (*pgx.Conn, error) {
	var conn *pgx.Conn
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		conn, err = ConnectSingle(ctx, WarehouseConnString(m.cfg.Warehouse), name, m.cfg.Load.BulkTimeout)
		return err
	}, m.cfg.Load.ConnectAttempts, connectBackoff)
	if err != nil {
		return nil, etlerr.New(etlerr.Connection, "bulk session", err)
	}

	if _, err := conn.Exec(ctx, "SET synchronous_commit = off"); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to configure bulk session: %w", err)
	}
	return conn, nil
}

// Close releases every cached session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.warehouse != nil {
		m.warehouse.Close()
		m.warehouse = nil
	}
	for role, gdb := range m.sources {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		delete(m.sources, role)
	}
}
