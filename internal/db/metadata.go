//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

const metadataTable = "etl_metadata"

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS etl_metadata (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Well-known metadata keys.
const (
	MetaSchemaVersion  = "schema_version"
	MetaAppVersion     = "app_version"
	MetaInitializedAt  = "initialized_at"
	MetaLastRunID      = "last_run_id"
	MetaLastRunMode    = "last_run_mode"
	MetaLastRunStatus  = "last_run_status"
	MetaLastRunAt      = "last_run_finished_at"
	MetaLastFactsRange = "last_facts_range"
)

// EnsureMetadataTable creates the metadata table.
func EnsureMetadataTable(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	return nil
}

// SaveMetadata upserts the given key/value pairs.
func SaveMetadata(ctx context.Context, q Querier, values map[string]string) error {
	if err := EnsureMetadataTable(ctx, q); err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, err := q.Exec(ctx, `
            INSERT INTO etl_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
        `, key, values[key])
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().
		Strs("keys", keys).
		Msg("Saved metadata")

	return nil
}

// GetMetadataValue retrieves a single metadata value by key. A missing key
// returns "" and no error.
func GetMetadataValue(ctx context.Context, q Querier, key string) (string, error) {
	var value string
	err := q.QueryRow(ctx, `
        SELECT value FROM etl_metadata WHERE key = $1
    `, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, q Querier) (map[string]string, error) {
	exists, err := MetadataExists(ctx, q)
	if err != nil || !exists {
		return map[string]string{}, err
	}

	rows, err := q.Query(ctx, `SELECT key, value FROM etl_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, q Querier) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_schema = current_schema() AND table_name = $1
        )
    `, metadataTable).Scan(&exists)
	return exists, err
}
