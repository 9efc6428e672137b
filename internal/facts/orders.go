package facts

import (
	"context"
	"time"

	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

var orderColumns = []string{
	"id", "order_no", "customer_id", "store_id", "source", "pay_state", "pay_mode", "total_amount",
	"cash", "vip_amount", "vip_gift", "card_amount", "card_gift", "coupon_amount", "discount_amount",
	"rolls_real_income", "refund_money", "order_value", "vip_tel", "del_state", "delflag",
	"created_at", "updated_at",
}

// orderRow builds the warehouse row of an eligible order. created_at and
// updated_at both carry the source event time.
func orderRow(o *source.Order, system source.System, storeID int64, a Amounts) []any {
	var customerID, payMode any
	if id := source.Str(o.OpenID); id != "" {
		customerID = id
	}
	if a.PayMode != "" {
		payMode = a.PayMode
	}
	return []any{
		o.ID,
		o.OrderNo,
		customerID,
		storeID,
		string(system),
		int16(source.PaidState),
		payMode,
		warehouse.Numeric(Recognize(a).Round(2)),
		warehouse.NullNumeric(o.Cash),
		warehouse.NullNumeric(o.VipAmount),
		warehouse.NullNumeric(o.VipAmountZengSong),
		warehouse.NullNumeric(o.CardAmount),
		warehouse.NullNumeric(o.CardZengSong),
		warehouse.NullNumeric(o.CouponAmount),
		warehouse.NullNumeric(o.DiscountAmount),
		warehouse.NullNumeric(o.RollsRealIncome),
		warehouse.NullNumeric(o.RefundMoney),
		warehouse.NullNumeric(o.OrderValue),
		o.VipTel,
		o.DelState,
		int16(0),
		o.RecordTime,
		o.RecordTime,
	}
}

// LoadOrders empties the orders of rng and reloads them from every
// source. Orders outside the plausibility band, orders of unknown stores
// and ids already taken by a higher-priority source are skipped.
func (l *Loader) LoadOrders(ctx context.Context, rng source.Range) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableOrders)

	if err := l.clear(ctx, warehouse.TableOrders, rng); err != nil {
		return counts, err
	}
	l.ids.ResetKind(identity.Order)
	l.ids.ResetKind(identity.OrderItem)
	if !rng.IsZero() {
		if err := l.ids.Hydrate(ctx, l.wh, identity.Order); err != nil {
			return counts, err
		}
	}
	if l.ids.Len(identity.Store) == 0 {
		if err := l.ids.Hydrate(ctx, l.wh, identity.Store); err != nil {
			return counts, err
		}
	}

	l.mu.Lock()
	l.loaded = map[int64]loadedOrder{}
	l.mu.Unlock()

	table := &bulkTable{
		name:    warehouse.TableOrders,
		columns: orderColumns,
		counts:  counts,
		release: func(id int64) {
			l.ids.Release(identity.Order, id)
			l.mu.Lock()
			delete(l.loaded, id)
			l.skipped[SkipWriteFailed]++
			l.mu.Unlock()
		},
	}

	err := l.withoutIndexes(ctx, func() error {
		return copyRows(ctx, l.sessions, table, l.opts.BatchSize, l.opts.Workers, func(emit emitFunc) error {
			for _, r := range l.readers {
				if err := l.streamOrders(ctx, r, rng, counts, emit); err != nil {
					return err
				}
			}
			return nil
		})
	}, warehouse.TableOrders)
	if err != nil {
		return counts, err
	}

	if err := warehouse.SyncIdentity(ctx, l.wh, warehouse.TableOrders); err != nil {
		return counts, err
	}
	l.logReasons(warehouse.TableOrders)
	return counts, nil
}

func (l *Loader) streamOrders(ctx context.Context, r *source.Reader, rng source.Range, counts *stats.Counts, emit emitFunc) error {
	system := r.System()
	return r.PaidOrders(ctx, rng, func(o *source.Order) error {
		a := AmountsOf(o)
		if !InBand(a) {
			l.skip(counts, SkipOutOfBand)
			return nil
		}
		storeID, ok := l.ids.Resolve(identity.Store, o.ShopID)
		if !ok {
			l.skip(counts, SkipUnmappedStore)
			logging.Skipped(string(system), warehouse.TableOrders, o.ID).
				Int64("shop_id", o.ShopID).
				Msg("Order skipped: unknown store")
			return nil
		}
		if !l.ids.Claim(identity.Order, system, o.ID) {
			l.skip(counts, SkipCollision)
			logging.Skipped(string(system), warehouse.TableOrders, o.ID).
				Msg("Order skipped: id already loaded from another source")
			return nil
		}

		l.mu.Lock()
		l.loaded[o.ID] = loadedOrder{system: system, at: o.RecordTime}
		l.mu.Unlock()

		return emit(o.ID, orderRow(o, system, storeID, a))
	})
}

// loadedOrders returns the orders of rng that are in the warehouse,
// reading them back when this loader did not load them itself.
func (l *Loader) loadedOrders(ctx context.Context, rng source.Range) (map[int64]loadedOrder, error) {
	l.mu.Lock()
	loaded := l.loaded
	l.mu.Unlock()
	if loaded != nil {
		return loaded, nil
	}

	where, args := rangeClause("created_at", rng)
	rows, err := l.wh.Query(ctx, "SELECT id, source, created_at FROM orders WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loaded = map[int64]loadedOrder{}
	for rows.Next() {
		var id int64
		var system string
		var at time.Time
		if err := rows.Scan(&id, &system, &at); err != nil {
			return nil, err
		}
		loaded[id] = loadedOrder{system: source.System(system), at: at}
		l.ids.Claim(identity.Order, source.System(system), id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.loaded = loaded
	l.mu.Unlock()
	return loaded, nil
}
