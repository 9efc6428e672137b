package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
)

var hydrateSQL = map[Kind]string{
	Store:     `SELECT id, store_code FROM stores WHERE delflag = 0`,
	Category:  `SELECT id FROM categories WHERE delflag = 0`,
	Product:   `SELECT id FROM products WHERE delflag = 0`,
	Customer:  `SELECT id, customer_id FROM customer_profiles WHERE delflag = 0`,
	Order:     `SELECT id, source FROM orders`,
	OrderItem: `SELECT id, source FROM order_items`,
}

// Hydrate fills the resolver from rows already in the warehouse, so a
// stage can run without the stages before it in the same process.
// Store hydration also covers candidates.
func (r *Resolver) Hydrate(ctx context.Context, q db.Querier, kinds ...Kind) error {
	for _, kind := range kinds {
		sql, ok := hydrateSQL[kind]
		if !ok {
			continue
		}
		rows, err := q.Query(ctx, sql)
		if err != nil {
			return fmt.Errorf("hydrate %s: %w", kind, err)
		}
		n, err := r.hydrateRows(kind, rows)
		if err != nil {
			return fmt.Errorf("hydrate %s: %w", kind, err)
		}
		logging.Debug().Str("kind", string(kind)).Int("rows", n).Msg("Hydrated identity map")
	}
	return nil
}

func (r *Resolver) hydrateRows(kind Kind, rows pgx.Rows) (int, error) {
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id int64
		switch kind {
		case Store:
			var code string
			if err := rows.Scan(&id, &code); err != nil {
				return n, err
			}
			k, srcID, ok := ParseStoreCode(code)
			if !ok {
				logging.Warn().Int64("store_id", id).Str("store_code", code).Msg("Unparseable store code, not mapped")
				continue
			}
			if err := r.Register(k, srcID, id); err != nil {
				return n, err
			}
		case Customer:
			var ext string
			if err := rows.Scan(&id, &ext); err != nil {
				return n, err
			}
			r.RegisterCustomer(ext, id)
		case Order, OrderItem:
			var system string
			if err := rows.Scan(&id, &system); err != nil {
				return n, err
			}
			r.Claim(kind, source.System(system), id)
		default:
			if err := rows.Scan(&id); err != nil {
				return n, err
			}
			if err := r.Register(kind, id, id); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, rows.Err()
}
