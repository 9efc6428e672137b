package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/pkg/version"
)

// Mode selects how EnsureSchema treats existing objects.
type Mode string

const (
	// Rebuild drops and recreates every warehouse object.
	Rebuild Mode = "rebuild"
	// Ensure creates only the objects that are missing.
	Ensure Mode = "ensure"
)

// ParseMode validates a mode name from the command line.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Rebuild:
		return Rebuild, nil
	case Ensure:
		return Ensure, nil
	}
	return "", etlerr.Newf(etlerr.Config, "init", "unknown mode %q (want rebuild or ensure)", s)
}

// EnsureSchema provisions the warehouse inside a single transaction. A
// failed rebuild leaves the previous warehouse untouched.
func EnsureSchema(ctx context.Context, q db.Querier, mode Mode) error {
	start := time.Now()

	tx, err := q.Begin(ctx)
	if err != nil {
		return schemaErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if mode == Rebuild {
		if _, err := tx.Exec(ctx, dropSchemaSQL); err != nil {
			return schemaErr("drop schema", err)
		}
	}
	if _, err := tx.Exec(ctx, createSchemaSQL); err != nil {
		return schemaErr("create tables", err)
	}
	for _, idx := range Indexes {
		if _, err := tx.Exec(ctx, idx.CreateSQL()); err != nil {
			return schemaErr("create index "+idx.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, createViewSQL); err != nil {
		return schemaErr("create view", err)
	}

	meta := map[string]string{
		db.MetaSchemaVersion: version.SchemaVersion,
		db.MetaAppVersion:    version.Version,
	}
	if mode == Rebuild {
		meta[db.MetaInitializedAt] = time.Now().UTC().Format(time.RFC3339)
	}
	if err := db.SaveMetadata(ctx, tx, meta); err != nil {
		return schemaErr("metadata", err)
	}

	if err := db.Commit(ctx, tx); err != nil {
		return schemaErr("commit", err)
	}

	logging.Info().
		Str("mode", string(mode)).
		Int("tables", len(Tables)).
		Int("indexes", len(Indexes)).
		Dur("duration", time.Since(start)).
		Msg("Warehouse schema ready")
	return nil
}

// schemaErr classifies a provisioning failure. SQL errors are fatal schema
// errors; anything below the SQL layer stays a connection problem.
func schemaErr(step string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return etlerr.New(etlerr.FatalSchema, "schema", fmt.Errorf("%s: %w", step, err))
	}
	return etlerr.New(etlerr.Connection, "schema", fmt.Errorf("%s: %w", step, err))
}

// Verify checks that every base table exists and the schema version
// matches this build.
func Verify(ctx context.Context, q db.Querier) error {
	var missing []string
	for _, t := range append(append([]string{}, Tables...), ViewReconciliation) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, t).Scan(&exists); err != nil {
			return etlerr.New(etlerr.Connection, "verify", err)
		}
		if !exists {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return etlerr.Newf(etlerr.FatalSchema, "verify",
			"warehouse is missing %s; run init first", strings.Join(missing, ", "))
	}

	v, err := db.GetMetadataValue(ctx, q, db.MetaSchemaVersion)
	if err != nil {
		return etlerr.New(etlerr.Connection, "verify", err)
	}
	if v != "" && v != version.SchemaVersion {
		return etlerr.Newf(etlerr.FatalSchema, "verify",
			"warehouse schema version %s, this build expects %s; run init --mode=rebuild", v, version.SchemaVersion)
	}
	return nil
}

// Truncate empties the given tables in one statement.
func Truncate(ctx context.Context, q db.Querier, tables ...string) error {
	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = pgx.Identifier{t}.Sanitize()
	}
	_, err := q.Exec(ctx, "TRUNCATE TABLE "+strings.Join(ids, ", ")+" CASCADE")
	return err
}

// DropIndexes drops idx and returns a function that recreates them. The
// returned function must run even when the load in between fails; it
// ignores cancellation of ctx for that reason.
func DropIndexes(ctx context.Context, q db.Querier, idx []Index) (rebuild func() error, err error) {
	var dropped []Index
	rebuild = func() error {
		rctx := context.WithoutCancel(ctx)
		var errs []error
		for _, i := range dropped {
			if _, err := q.Exec(rctx, i.CreateSQL()); err != nil {
				errs = append(errs, fmt.Errorf("recreate %s: %w", i.Name, err))
			}
		}
		if len(dropped) > 0 {
			logging.Info().Int("indexes", len(dropped)).Msg("Rebuilt secondary indexes")
		}
		return errors.Join(errs...)
	}

	for _, i := range idx {
		if _, err := q.Exec(ctx, i.DropSQL()); err != nil {
			return rebuild, fmt.Errorf("drop %s: %w", i.Name, err)
		}
		dropped = append(dropped, i)
	}
	logging.Debug().Int("indexes", len(dropped)).Msg("Dropped secondary indexes for bulk load")
	return rebuild, nil
}

// SyncIdentity moves the identity sequence of table past its largest id
// so rows inserted later without an explicit id do not collide. Negative
// ids (candidate stores) leave the sequence at 1 or above.
func SyncIdentity(ctx context.Context, q db.Querier, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	sql := fmt.Sprintf(`
        SELECT setval(pg_get_serial_sequence($1, 'id'),
                      GREATEST((SELECT MAX(id) FROM %s), 0) + 1, false)`, ident)
	var next int64
	if err := q.QueryRow(ctx, sql, table).Scan(&next); err != nil {
		return fmt.Errorf("sync identity of %s: %w", table, err)
	}
	return nil
}
