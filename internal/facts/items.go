package facts

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

var itemColumns = []string{
	"id", "order_id", "product_id", "product_name", "quantity", "price", "total_price",
	"profit_price", "source", "delflag", "created_at", "updated_at",
}

// ItemTotal is the line total of an item: the source total when present,
// otherwise price times quantity.
func ItemTotal(it *source.OrderGoods) decimal.Decimal {
	if it.GoodsTotal.Valid {
		return it.GoodsTotal.Decimal
	}
	return source.Dec(it.GoodsPrice).Mul(source.Dec(it.GoodsNumber)).Round(2)
}

// itemRow builds the warehouse row of an item. The product name is the
// snapshot on the item row.
func itemRow(it *source.OrderGoods, system source.System, productID *int64, order loadedOrder) []any {
	var product any
	if productID != nil {
		product = *productID
	}
	return []any{
		it.ID,
		it.OrderID,
		product,
		it.GoodsName,
		warehouse.Numeric(source.Dec(it.GoodsNumber)),
		warehouse.Numeric(source.Dec(it.GoodsPrice)),
		warehouse.Numeric(ItemTotal(it)),
		warehouse.NullNumeric(it.ProfitPrice),
		string(system),
		int16(0),
		order.at,
		order.at,
	}
}

// profitSums holds the profit of every emitted item until the load ends,
// so an item that is not written takes its profit back out.
type profitSums struct {
	mu    sync.Mutex
	items map[int64]itemProfit
}

type itemProfit struct {
	order  int64
	profit decimal.Decimal
}

func newProfitSums() *profitSums {
	return &profitSums{items: map[int64]itemProfit{}}
}

func (p *profitSums) add(itemID, orderID int64, v decimal.NullDecimal) {
	if !v.Valid {
		return
	}
	p.mu.Lock()
	p.items[itemID] = itemProfit{order: orderID, profit: v.Decimal}
	p.mu.Unlock()
}

func (p *profitSums) drop(itemID int64) {
	p.mu.Lock()
	delete(p.items, itemID)
	p.mu.Unlock()
}

// totals sums the remaining item profit per order.
func (p *profitSums) totals() map[int64]decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	sums := make(map[int64]decimal.Decimal)
	for _, it := range p.items {
		sums[it.order] = sums[it.order].Add(it.profit)
	}
	return sums
}

// LoadItems empties the items of rng and reloads the items of every
// loaded order from the order's own source. Item ids collide across
// sources like order ids; the first source keeps the id.
func (l *Loader) LoadItems(ctx context.Context, rng source.Range) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableOrderItems)

	if err := l.clear(ctx, warehouse.TableOrderItems, rng); err != nil {
		return counts, err
	}
	l.ids.ResetKind(identity.OrderItem)
	if !rng.IsZero() {
		if err := l.ids.Hydrate(ctx, l.wh, identity.OrderItem); err != nil {
			return counts, err
		}
	}
	if l.ids.Len(identity.Product) == 0 {
		if err := l.ids.Hydrate(ctx, l.wh, identity.Product); err != nil {
			return counts, err
		}
	}

	orders, err := l.loadedOrders(ctx, rng)
	if err != nil {
		return counts, err
	}

	profits := newProfitSums()
	table := l.itemTable(counts, profits)

	err = l.withoutIndexes(ctx, func() error {
		return copyRows(ctx, l.sessions, table, l.opts.BatchSize, l.opts.Workers, func(emit emitFunc) error {
			for _, r := range l.readers {
				withProfit := r.HasItemProfit()
				if !withProfit {
					logging.Info().Str("source", string(r.System())).Msg("OrderGoods has no profitPrice, order profit not derived")
				}
				if err := l.streamItems(ctx, r, rng, withProfit, orders, profits, counts, emit); err != nil {
					return err
				}
			}
			return nil
		})
	}, warehouse.TableOrderItems)
	if err != nil {
		return counts, err
	}

	if err := warehouse.SyncIdentity(ctx, l.wh, warehouse.TableOrderItems); err != nil {
		return counts, err
	}
	if sums := profits.totals(); len(sums) > 0 {
		if err := applyOrderProfit(ctx, l.wh, sums); err != nil {
			return counts, err
		}
	}
	l.logReasons(warehouse.TableOrderItems)
	return counts, nil
}

// itemTable is the COPY target of items. A row that is not written gives
// up its id and its share of the order profit.
func (l *Loader) itemTable(counts *stats.Counts, profits *profitSums) *bulkTable {
	return &bulkTable{
		name:    warehouse.TableOrderItems,
		columns: itemColumns,
		counts:  counts,
		release: func(id int64) {
			l.ids.Release(identity.OrderItem, id)
			profits.drop(id)
			l.mu.Lock()
			l.skipped[SkipWriteFailed]++
			l.mu.Unlock()
		},
	}
}

func (l *Loader) streamItems(ctx context.Context, r *source.Reader, rng source.Range, withProfit bool,
	orders map[int64]loadedOrder, profits *profitSums, counts *stats.Counts, emit emitFunc) error {
	system := r.System()

	return r.OrderItems(ctx, rng, withProfit, func(it *source.OrderGoods) error {
		order, ok := orders[it.OrderID]
		if !ok || order.system != system {
			l.skip(counts, SkipOrphanItem)
			return nil
		}
		if !l.ids.Claim(identity.OrderItem, system, it.ID) {
			l.skip(counts, SkipCollision)
			logging.Skipped(string(system), warehouse.TableOrderItems, it.ID).
				Msg("Item skipped: id already loaded from another source")
			return nil
		}

		var productID *int64
		if it.GoodsID != nil {
			if id, ok := l.ids.Resolve(identity.Product, *it.GoodsID); ok {
				productID = &id
			}
		}
		profits.add(it.ID, it.OrderID, it.ProfitPrice)
		return emit(it.ID, itemRow(it, system, productID, order))
	})
}

// applyOrderProfit writes per-order profit sums through a staging table
// so orders are updated in one statement.
func applyOrderProfit(ctx context.Context, q db.Querier, sums map[int64]decimal.Decimal) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE order_profit_stage (
    order_id BIGINT PRIMARY KEY,
    profit   NUMERIC(12,2) NOT NULL
) ON COMMIT DROP`); err != nil {
		return err
	}

	rows := make([][]any, 0, len(sums))
	for id, p := range sums {
		rows = append(rows, []any{id, warehouse.Numeric(p.Round(2))})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_profit_stage"}, []string{"order_id", "profit"}, pgx.CopyFromRows(rows)); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE orders o
SET total_profit = s.profit
FROM order_profit_stage s
WHERE o.id = s.order_id`)
	if err != nil {
		return err
	}
	if err := db.Commit(ctx, tx); err != nil {
		return err
	}
	logging.Info().Int64("orders", tag.RowsAffected()).Msg("Order profit updated")
	return nil
}
